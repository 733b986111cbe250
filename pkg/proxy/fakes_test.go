package proxy

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ecstasoy/rpcbind/pkg/handler"
	"github.com/ecstasoy/rpcbind/pkg/protocol"
	"github.com/ecstasoy/rpcbind/pkg/reference"
)

// replyFunc builds the reply a fakeConn sends for a two-way request. A nil
// reply leaves the request pending.
type replyFunc func(req *protocol.Request) *protocol.Response

func echo(req *protocol.Request) *protocol.Response {
	return protocol.NewSuccessResponse(req.ID, []byte(req.Method))
}

type fakeConn struct {
	id    string
	reply replyFunc

	mu       sync.Mutex
	err      error
	sent     []*protocol.Request
	canceled []handler.PendingRequest
	batches  [][]byte
	batching bool
	flushes  int
}

func newFakeConn(id string, reply replyFunc) *fakeConn {
	return &fakeConn{id: id, reply: reply}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeConn) kill(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

func (c *fakeConn) SendAsyncRequest(req handler.PendingRequest, compress, response bool) (bool, error) {
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return false, errors.Join(handler.ErrConnectionUnavailable, err)
	}
	c.sent = append(c.sent, req.Request())
	c.mu.Unlock()

	if response && c.reply != nil {
		if resp := c.reply(req.Request()); resp != nil {
			go req.Complete(resp, nil)
		}
	}
	return true, nil
}

func (c *fakeConn) AsyncRequestCanceled(req handler.PendingRequest, reason error) {
	c.mu.Lock()
	c.canceled = append(c.canceled, req)
	c.mu.Unlock()
	req.Complete(nil, reason)
}

func (c *fakeConn) PrepareBatchRequest(out *bytes.Buffer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.batching {
		panic("nested PrepareBatchRequest")
	}
	c.batching = true
	out.Reset()
	return nil
}

func (c *fakeConn) FinishBatchRequest(out *bytes.Buffer, compress bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.batching {
		panic("FinishBatchRequest without prepare")
	}
	c.batching = false
	c.batches = append(c.batches, append([]byte(nil), out.Bytes()...))
	return nil
}

func (c *fakeConn) AbortBatchRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batching = false
}

func (c *fakeConn) FlushBatchRequests(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return errors.Join(handler.ErrConnectionUnavailable, c.err)
	}
	c.flushes++
	return nil
}

func (c *fakeConn) requests() []*protocol.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*protocol.Request(nil), c.sent...)
}

// fakeBinder hands out handlers produced by next, counting calls.
type fakeBinder struct {
	mu    sync.Mutex
	calls int
	next  func(ref *reference.Reference) handler.RequestHandler
}

func (b *fakeBinder) RequestHandler(ref *reference.Reference, _ handler.Proxy) handler.RequestHandler {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	return b.next(ref)
}

func (b *fakeBinder) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// bindTo returns a binder that always binds to conn.
func bindTo(conn handler.Connection) *fakeBinder {
	return &fakeBinder{next: func(ref *reference.Reference) handler.RequestHandler {
		return handler.NewConnectionRequestHandler(ref, conn, false)
	}}
}

func mustRef(t *testing.T, opts ...reference.Option) *reference.Reference {
	t.Helper()
	ref, err := reference.New("hello", append([]reference.Option{reference.WithEndpoints("127.0.0.1:9000")}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return ref
}

func mustProxy(t *testing.T, ref *reference.Reference, b Binder, opts ...Option) *Proxy {
	t.Helper()
	p, err := New(ref, b, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return p
}
