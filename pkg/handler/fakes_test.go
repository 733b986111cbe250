package handler

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/ecstasoy/rpcbind/pkg/protocol"
	"github.com/ecstasoy/rpcbind/pkg/reference"
)

type sendCall struct {
	req      PendingRequest
	compress bool
	response bool
}

// fakeConn records what the handlers forward to it. Batch calls out of
// order fail the test instead of being tolerated.
type fakeConn struct {
	t  *testing.T
	id string

	mu       sync.Mutex
	err      error
	syncSend bool
	inBatch  bool
	batches  [][]byte
	compress []bool
	aborts   int
	sends    []sendCall
	canceled []PendingRequest
}

func newFakeConn(t *testing.T, id string) *fakeConn {
	return &fakeConn{t: t, id: id, syncSend: true}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) PrepareBatchRequest(out *bytes.Buffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inBatch {
		c.t.Errorf("%s: PrepareBatchRequest while a batch request is in progress", c.id)
	}
	c.inBatch = true
	out.Reset()
	return nil
}

func (c *fakeConn) FinishBatchRequest(out *bytes.Buffer, compress bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inBatch {
		c.t.Errorf("%s: FinishBatchRequest without PrepareBatchRequest", c.id)
	}
	c.inBatch = false
	c.batches = append(c.batches, append([]byte(nil), out.Bytes()...))
	c.compress = append(c.compress, compress)
	return nil
}

func (c *fakeConn) AbortBatchRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inBatch {
		c.t.Errorf("%s: AbortBatchRequest without PrepareBatchRequest", c.id)
	}
	c.inBatch = false
	c.aborts++
}

func (c *fakeConn) FlushBatchRequests(context.Context) error { return nil }

func (c *fakeConn) SendAsyncRequest(req PendingRequest, compress, response bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, sendCall{req: req, compress: compress, response: response})
	return c.syncSend, nil
}

func (c *fakeConn) AsyncRequestCanceled(req PendingRequest, reason error) {
	c.mu.Lock()
	c.canceled = append(c.canceled, req)
	c.mu.Unlock()
	req.Complete(nil, reason)
}

func (c *fakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeConn) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *fakeConn) sent() []sendCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sendCall(nil), c.sends...)
}

// completionLog collects completions across requests to check ordering.
type completionLog struct {
	mu    sync.Mutex
	order []uint64
}

func (l *completionLog) add(id uint64) {
	l.mu.Lock()
	l.order = append(l.order, id)
	l.mu.Unlock()
}

type fakeRequest struct {
	req *protocol.Request
	log *completionLog

	mu          sync.Mutex
	completions int
	sentCalls   int
	callbacks   int
	err         error
	done        chan struct{}
}

func newFakeRequest(id uint64, log *completionLog) *fakeRequest {
	return &fakeRequest{
		req:  &protocol.Request{ID: id, Identity: "hello", Method: "sayHello"},
		log:  log,
		done: make(chan struct{}),
	}
}

func (f *fakeRequest) Request() *protocol.Request { return f.req }

func (f *fakeRequest) Send(conn Connection, compress, response bool) (bool, SentCallback, error) {
	sent, err := conn.SendAsyncRequest(f, compress, response)
	if err != nil || !sent {
		return false, nil, err
	}
	return true, func() {
		f.mu.Lock()
		f.callbacks++
		f.mu.Unlock()
	}, nil
}

func (f *fakeRequest) Sent() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sentCalls++
	return f.completions == 0
}

func (f *fakeRequest) Complete(_ *protocol.Response, err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions++
	if f.completions > 1 {
		return false
	}
	f.err = err
	close(f.done)
	if f.log != nil {
		f.log.add(f.req.ID)
	}
	return true
}

func (f *fakeRequest) Done() <-chan struct{} { return f.done }

func (f *fakeRequest) result() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completions, f.err
}

type fakeProxy struct {
	mu      sync.Mutex
	current RequestHandler
	updates int
}

func (p *fakeProxy) UpdateRequestHandler(previous, candidate RequestHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates++
	if p.current == nil {
		p.current = candidate
		return
	}
	p.current = p.current.Update(previous, candidate)
}

func (p *fakeProxy) handler() RequestHandler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func mustRef(t *testing.T, mode reference.Mode) *reference.Reference {
	t.Helper()
	ref, err := reference.New("hello", reference.WithEndpoints("127.0.0.1:10000"), reference.WithMode(mode))
	if err != nil {
		t.Fatalf("reference.New: %v", err)
	}
	return ref
}
