// Kunhua Huang 2026

package handler

import (
	"bytes"
	"context"
	"sync"

	rpclog "github.com/ecstasoy/rpcbind/pkg/log"
	"github.com/ecstasoy/rpcbind/pkg/reference"
)

var log = rpclog.Logger("handler")

type resolveState int

const (
	stateResolving resolveState = iota
	stateFlushing
	stateResolved
	stateFailed
)

// queued is either an async request or an encoded batch request.
type queued struct {
	req   PendingRequest
	batch []byte
}

// ResolvingRequestHandler stands in for a proxy while its connection is being
// established. Requests are queued in submission order and replayed on the
// connection passed to SetConnection; SetError fails them all and leaves the
// handler terminal.
type ResolvingRequestHandler struct {
	reference *reference.Reference

	mu        sync.Mutex
	cond      *sync.Cond
	state     resolveState
	queue     []queued
	proxies   []Proxy
	inBatch   bool
	connected *ConnectionRequestHandler
	err       error
	done      chan struct{}
}

var _ RequestHandler = (*ResolvingRequestHandler)(nil)

func NewResolvingRequestHandler(ref *reference.Reference) *ResolvingRequestHandler {
	r := &ResolvingRequestHandler{
		reference: ref,
		done:      make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Connect registers proxy for the switch to the connected handler and
// returns r. A proxy connecting after resolution is switched immediately.
func (r *ResolvingRequestHandler) Connect(proxy Proxy) RequestHandler {
	r.mu.Lock()
	switch r.state {
	case stateResolved:
		connected := r.connected
		r.mu.Unlock()
		if proxy != nil {
			proxy.UpdateRequestHandler(r, connected)
		}
		return r
	case stateResolving, stateFlushing:
		if proxy != nil && !r.hasProxy(proxy) {
			r.proxies = append(r.proxies, proxy)
		}
	}
	r.mu.Unlock()
	return r
}

func (r *ResolvingRequestHandler) hasProxy(proxy Proxy) bool {
	for _, p := range r.proxies {
		if p == proxy {
			return true
		}
	}
	return false
}

func (r *ResolvingRequestHandler) Update(previous, candidate RequestHandler) RequestHandler {
	if previous == RequestHandler(r) {
		return candidate
	}

	r.mu.Lock()
	connected := r.connected
	r.mu.Unlock()

	if connected != nil && sameConnection(previous, connected.conn) {
		return candidate
	}
	return r
}

func (r *ResolvingRequestHandler) PrepareBatchRequest(out *bytes.Buffer) error {
	r.mu.Lock()
	for r.inBatch || r.state == stateFlushing {
		r.cond.Wait()
	}

	switch r.state {
	case stateResolved:
		connected := r.connected
		r.mu.Unlock()
		return connected.PrepareBatchRequest(out)
	case stateFailed:
		err := r.err
		r.mu.Unlock()
		return err
	}

	r.inBatch = true
	r.mu.Unlock()

	out.Reset()
	return nil
}

func (r *ResolvingRequestHandler) FinishBatchRequest(out *bytes.Buffer) error {
	r.mu.Lock()
	if !r.inBatch {
		connected := r.connected
		r.mu.Unlock()
		if connected == nil {
			panic("handler: FinishBatchRequest without PrepareBatchRequest")
		}
		return connected.FinishBatchRequest(out)
	}

	r.inBatch = false
	r.cond.Broadcast()

	if r.state == stateFailed {
		err := r.err
		r.mu.Unlock()
		return err
	}

	r.queue = append(r.queue, queued{batch: append([]byte(nil), out.Bytes()...)})
	r.mu.Unlock()
	return nil
}

func (r *ResolvingRequestHandler) AbortBatchRequest() {
	r.mu.Lock()
	if r.inBatch {
		r.inBatch = false
		r.cond.Broadcast()
		r.mu.Unlock()
		return
	}

	connected := r.connected
	r.mu.Unlock()
	if connected == nil {
		panic("handler: AbortBatchRequest without PrepareBatchRequest")
	}
	connected.AbortBatchRequest()
}

// SendAsyncRequest queues req until the handler resolves; it never reports
// the request as sent before that.
func (r *ResolvingRequestHandler) SendAsyncRequest(req PendingRequest) (bool, SentCallback, error) {
	r.mu.Lock()
	switch r.state {
	case stateResolved:
		connected := r.connected
		r.mu.Unlock()
		return connected.SendAsyncRequest(req)
	case stateFailed:
		err := r.err
		r.mu.Unlock()
		return false, nil, err
	}

	r.queue = append(r.queue, queued{req: req})
	r.mu.Unlock()
	return false, nil, nil
}

func (r *ResolvingRequestHandler) AsyncRequestCanceled(req PendingRequest, reason error) {
	r.mu.Lock()
	if r.state == stateResolving || r.state == stateFlushing {
		for i, q := range r.queue {
			if q.req == req {
				r.queue = append(r.queue[:i], r.queue[i+1:]...)
				r.mu.Unlock()
				req.Complete(nil, reason)
				return
			}
		}
	}
	connected := r.connected
	r.mu.Unlock()

	// Being replayed, or already handed to the connection.
	if connected != nil {
		connected.AsyncRequestCanceled(req, reason)
		return
	}
	req.Complete(nil, reason)
}

func (r *ResolvingRequestHandler) Reference() *reference.Reference {
	return r.reference
}

func (r *ResolvingRequestHandler) Connection() (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.state {
	case stateResolved:
		return r.connected.conn, nil
	case stateFailed:
		return nil, r.err
	default:
		return nil, ErrBindingNotReady
	}
}

// WaitForConnection blocks until the handler resolves, fails, or ctx ends.
func (r *ResolvingRequestHandler) WaitForConnection(ctx context.Context) (Connection, error) {
	select {
	case <-r.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	r.mu.Lock()
	connected, err := r.connected, r.err
	r.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return connected.WaitForConnection(ctx)
}

// SetConnection binds the handler, replays the queue in submission order and
// switches every connected proxy to the new ConnectionRequestHandler. Calls
// after the first SetConnection or SetError are ignored.
func (r *ResolvingRequestHandler) SetConnection(conn Connection, compress bool) {
	if conn == nil {
		r.SetError(ErrConnectionUnavailable)
		return
	}

	r.mu.Lock()
	if r.state != stateResolving {
		r.mu.Unlock()
		return
	}
	r.state = stateFlushing
	r.connected = NewConnectionRequestHandler(r.reference, conn, compress)
	connected := r.connected
	r.mu.Unlock()

	var proxies []Proxy
	for {
		r.mu.Lock()
		for r.inBatch {
			r.cond.Wait()
		}
		if len(r.queue) == 0 {
			r.state = stateResolved
			proxies = r.proxies
			r.proxies = nil
			r.cond.Broadcast()
			r.mu.Unlock()
			break
		}
		pending := r.queue
		r.queue = nil
		r.mu.Unlock()

		for _, q := range pending {
			r.replay(connected, q)
		}
	}
	for _, p := range proxies {
		p.UpdateRequestHandler(r, connected)
	}
	close(r.done)
}

func (r *ResolvingRequestHandler) replay(connected *ConnectionRequestHandler, q queued) {
	if q.req == nil {
		out := new(bytes.Buffer)
		if err := connected.PrepareBatchRequest(out); err != nil {
			log.Warningf("drop queued batch request for %s: %v", r.reference, err)
			return
		}
		out.Write(q.batch)
		if err := connected.FinishBatchRequest(out); err != nil {
			log.Warningf("drop queued batch request for %s: %v", r.reference, err)
		}
		return
	}

	sent, cb, err := connected.SendAsyncRequest(q.req)
	if err != nil {
		q.req.Complete(nil, err)
		return
	}
	if sent && cb != nil {
		cb()
	}
}

// SetError fails every queued request with a *ResolutionError, in
// submission order. The handler accepts no requests afterwards.
func (r *ResolvingRequestHandler) SetError(err error) {
	r.mu.Lock()
	if r.state != stateResolving {
		r.mu.Unlock()
		return
	}
	r.state = stateFailed
	r.err = &ResolutionError{Reference: r.reference.String(), Err: err}
	pending := r.queue
	r.queue = nil
	r.proxies = nil
	r.cond.Broadcast()
	failure := r.err
	r.mu.Unlock()

	close(r.done)

	for _, q := range pending {
		if q.req != nil {
			q.req.Complete(nil, failure)
		}
	}
}

// Done is closed once the handler resolved or failed.
func (r *ResolvingRequestHandler) Done() <-chan struct{} {
	return r.done
}

func (r *ResolvingRequestHandler) requestHandler() {}
