// Kunhua Huang 2026

package outgoing

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ecstasoy/rpcbind/pkg/handler"
	"github.com/ecstasoy/rpcbind/pkg/protocol"
)

const (
	statePending int32 = iota
	stateSent
	stateDone
)

// Async is an asynchronous outgoing call. It moves pending -> sent -> done,
// or straight to done when it fails or is canceled before it is written. A
// request never reports both "sent" and "canceled before sent", and it
// completes exactly once.
type Async struct {
	req *protocol.Request

	state    atomic.Int32
	response atomic.Bool

	mu       sync.Mutex
	owner    handler.RequestHandler
	sent     bool
	onSent   []func()
	sentOnce sync.Once
	done     chan struct{}
	resp     *protocol.Response
	err      error
}

var _ handler.PendingRequest = (*Async)(nil)

func NewAsync(req *protocol.Request) *Async {
	return &Async{
		req:  req,
		done: make(chan struct{}),
	}
}

func (a *Async) Request() *protocol.Request {
	return a.req
}

// OnSent registers fn to run once the request is on the wire. If the
// request was already sent, fn runs immediately.
func (a *Async) OnSent(fn func()) {
	a.mu.Lock()
	if a.state.Load() == statePending {
		a.onSent = append(a.onSent, fn)
		a.mu.Unlock()
		return
	}
	sent := a.sent
	a.mu.Unlock()
	if sent {
		fn()
	}
}

// Send hands the request to conn. A request that already completed (for
// instance canceled while it sat in a resolving queue) is not sent again.
func (a *Async) Send(conn handler.Connection, compress, response bool) (bool, handler.SentCallback, error) {
	if a.state.Load() == stateDone {
		return false, nil, nil
	}
	a.response.Store(response)
	a.req.OneWay = !response

	sent, err := conn.SendAsyncRequest(a, compress, response)
	if err != nil {
		return false, nil, err
	}
	if !sent {
		return false, nil, nil
	}
	a.markWritten()
	return true, a.invokeSent, nil
}

// markWritten records a synchronous write. The reply may already have
// completed the request while the connection was still writing, so the
// sent state is recorded whatever the current state is.
func (a *Async) markWritten() {
	a.mu.Lock()
	toSent := a.state.CompareAndSwap(statePending, stateSent)
	a.sent = true
	a.mu.Unlock()
	if toSent && !a.response.Load() {
		a.Complete(nil, nil)
	}
}

// SetHandler records the request handler the request was handed to.
// Cancellation goes through it even after the proxy rebinds.
func (a *Async) SetHandler(h handler.RequestHandler) {
	a.mu.Lock()
	a.owner = h
	a.mu.Unlock()
}

func (a *Async) Handler() handler.RequestHandler {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.owner
}

// Sent is called by the connection when a queued request was written.
func (a *Async) Sent() bool {
	if !a.markSent() {
		return false
	}
	a.invokeSent()
	return true
}

func (a *Async) markSent() bool {
	a.mu.Lock()
	if !a.state.CompareAndSwap(statePending, stateSent) {
		a.mu.Unlock()
		return false
	}
	a.sent = true
	a.mu.Unlock()
	if !a.response.Load() {
		a.Complete(nil, nil)
	}
	return true
}

func (a *Async) invokeSent() {
	a.sentOnce.Do(func() {
		a.mu.Lock()
		observers := a.onSent
		a.onSent = nil
		a.mu.Unlock()

		for _, fn := range observers {
			fn()
		}
	})
}

func (a *Async) Complete(resp *protocol.Response, err error) bool {
	a.mu.Lock()
	if a.state.Swap(stateDone) == stateDone {
		a.mu.Unlock()
		return false
	}
	a.resp = resp
	a.err = err
	a.mu.Unlock()

	close(a.done)
	return true
}

func (a *Async) Done() <-chan struct{} {
	return a.done
}

// IsSent reports whether the request reached the wire.
func (a *Async) IsSent() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sent
}

// Result returns the outcome once Done is closed.
func (a *Async) Result() (*protocol.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resp, a.err
}

// Wait blocks until the request completes or ctx ends.
func (a *Async) Wait(ctx context.Context) (*protocol.Response, error) {
	select {
	case <-a.done:
		return a.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
