// Kunhua Huang 2026

package handler

import (
	"bytes"
	"context"

	"github.com/ecstasoy/rpcbind/pkg/reference"
)

// ConnectionRequestHandler routes every request of a reference through one
// connection. It does not own the connection.
type ConnectionRequestHandler struct {
	reference *reference.Reference
	response  bool
	conn      Connection
	compress  bool
}

var _ RequestHandler = (*ConnectionRequestHandler)(nil)

func NewConnectionRequestHandler(ref *reference.Reference, conn Connection, compress bool) *ConnectionRequestHandler {
	return &ConnectionRequestHandler{
		reference: ref,
		response:  ref.Mode() == reference.ModeTwoWay,
		conn:      conn,
		compress:  compress,
	}
}

func (h *ConnectionRequestHandler) Connect(Proxy) RequestHandler {
	return h
}

// Update adopts candidate when previous is h, or when previous is bound to
// the very same connection object as h.
func (h *ConnectionRequestHandler) Update(previous, candidate RequestHandler) RequestHandler {
	if previous == RequestHandler(h) {
		return candidate
	}
	if sameConnection(previous, h.conn) {
		return candidate
	}
	return h
}

func (h *ConnectionRequestHandler) PrepareBatchRequest(out *bytes.Buffer) error {
	return h.conn.PrepareBatchRequest(out)
}

func (h *ConnectionRequestHandler) FinishBatchRequest(out *bytes.Buffer) error {
	return h.conn.FinishBatchRequest(out, h.compress)
}

func (h *ConnectionRequestHandler) AbortBatchRequest() {
	h.conn.AbortBatchRequest()
}

func (h *ConnectionRequestHandler) SendAsyncRequest(req PendingRequest) (bool, SentCallback, error) {
	if err := unavailable(h.conn); err != nil {
		return false, nil, err
	}
	return req.Send(h.conn, h.compress, h.response)
}

func (h *ConnectionRequestHandler) AsyncRequestCanceled(req PendingRequest, reason error) {
	h.conn.AsyncRequestCanceled(req, reason)
}

func (h *ConnectionRequestHandler) Reference() *reference.Reference {
	return h.reference
}

// Connection always returns the bound connection, live or not.
func (h *ConnectionRequestHandler) Connection() (Connection, error) {
	return h.conn, nil
}

func (h *ConnectionRequestHandler) WaitForConnection(context.Context) (Connection, error) {
	if err := unavailable(h.conn); err != nil {
		return nil, err
	}
	return h.conn, nil
}

func (h *ConnectionRequestHandler) Compress() bool {
	return h.compress
}

func (h *ConnectionRequestHandler) ResponseExpected() bool {
	return h.response
}

func (h *ConnectionRequestHandler) requestHandler() {}
