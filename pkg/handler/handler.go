// Kunhua Huang 2026

// Package handler decides which connection carries a proxy's requests.
//
// A proxy caches one RequestHandler. A ConnectionRequestHandler is bound to a
// connection for its whole life; a ResolvingRequestHandler queues requests
// until the binder hands it a connection. Handlers are never mutated into
// another state: a rebind produces a new handler, and the proxy swaps its
// cached value with Update.
package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ecstasoy/rpcbind/pkg/protocol"
	"github.com/ecstasoy/rpcbind/pkg/reference"
)

var (
	ErrBindingNotReady       = errors.New("connection not yet bound")
	ErrConnectionUnavailable = errors.New("connection unavailable")
	ErrResolutionFailed      = errors.New("resolution failed")
)

// ResolutionError is delivered to every request queued on a
// ResolvingRequestHandler whose resolution failed.
type ResolutionError struct {
	Reference string
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Reference, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

func (e *ResolutionError) Is(target error) bool {
	return target == ErrResolutionFailed
}

// SentCallback notifies sent observers of a request that was written
// synchronously. It must be invoked at most once.
type SentCallback func()

// Connection is a transport session able to carry requests to a peer.
// Handlers compare connections by identity, so implementations must be
// pointer types.
type Connection interface {
	ID() string

	// PrepareBatchRequest reserves the connection's batch slot and resets out
	// for the caller to encode a request into. It must be followed by exactly
	// one FinishBatchRequest or AbortBatchRequest. Finishing or aborting
	// without a prepare is a caller bug; implementations may panic.
	PrepareBatchRequest(out *bytes.Buffer) error
	FinishBatchRequest(out *bytes.Buffer, compress bool) error
	AbortBatchRequest()
	FlushBatchRequests(ctx context.Context) error

	// SendAsyncRequest writes req or queues it for the writer. It reports
	// true when the request was written before returning, in which case the
	// caller notifies sent observers; otherwise the connection calls req.Sent
	// itself later.
	SendAsyncRequest(req PendingRequest, compress, response bool) (bool, error)

	// AsyncRequestCanceled drops req from the connection's queues and
	// completes it with reason. Canceling an unknown or finished request is a
	// no-op beyond the (idempotent) completion.
	AsyncRequestCanceled(req PendingRequest, reason error)

	// Err returns nil while the connection can carry requests.
	Err() error
}

// PendingRequest is one outgoing asynchronous call.
type PendingRequest interface {
	Request() *protocol.Request
	Send(conn Connection, compress, response bool) (bool, SentCallback, error)

	// Sent records that the request went out on the wire. It returns false
	// if the request completed first.
	Sent() bool

	// Complete finishes the request. Only the first call wins.
	Complete(resp *protocol.Response, err error) bool
	Done() <-chan struct{}
}

// Proxy owns the cached handler slot.
type Proxy interface {
	UpdateRequestHandler(previous, candidate RequestHandler)
}

type RequestHandler interface {
	Connect(proxy Proxy) RequestHandler
	Update(previous, candidate RequestHandler) RequestHandler

	PrepareBatchRequest(out *bytes.Buffer) error
	FinishBatchRequest(out *bytes.Buffer) error
	AbortBatchRequest()

	SendAsyncRequest(req PendingRequest) (bool, SentCallback, error)
	AsyncRequestCanceled(req PendingRequest, reason error)

	Reference() *reference.Reference
	Connection() (Connection, error)
	WaitForConnection(ctx context.Context) (Connection, error)

	requestHandler()
}

// sameConnection reports whether previous is currently bound to conn.
// A previous handler that cannot report a connection does not match.
func sameConnection(previous RequestHandler, conn Connection) bool {
	if previous == nil || conn == nil {
		return false
	}
	prevConn, err := previous.Connection()
	if err != nil {
		return false
	}
	return prevConn == conn
}

func unavailable(conn Connection) error {
	if err := conn.Err(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrConnectionUnavailable, conn.ID(), err)
	}
	return nil
}
