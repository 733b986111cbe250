package binder

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ecstasoy/rpcbind/pkg/handler"
	"github.com/ecstasoy/rpcbind/pkg/loadbalancer"
	"github.com/ecstasoy/rpcbind/pkg/reference"
	"github.com/ecstasoy/rpcbind/pkg/registry"
	"github.com/ecstasoy/rpcbind/pkg/registry/memory"
	"github.com/ecstasoy/rpcbind/pkg/transport"
)

type fakeConn struct {
	endpoint string
}

var _ transport.Conn = (*fakeConn)(nil)

func (c *fakeConn) ID() string                                   { return "conn-" + c.endpoint }
func (c *fakeConn) Endpoint() string                             { return c.endpoint }
func (c *fakeConn) RemoteAddr() net.Addr                         { return nil }
func (c *fakeConn) PrepareBatchRequest(*bytes.Buffer) error      { return nil }
func (c *fakeConn) FinishBatchRequest(*bytes.Buffer, bool) error { return nil }
func (c *fakeConn) AbortBatchRequest()                           {}
func (c *fakeConn) FlushBatchRequests(context.Context) error     { return nil }
func (c *fakeConn) Err() error                                   { return nil }
func (c *fakeConn) Close() error                                 { return nil }
func (c *fakeConn) LastActivity() time.Time                      { return time.Now() }
func (c *fakeConn) Outstanding() int                             { return 0 }

func (c *fakeConn) SendAsyncRequest(handler.PendingRequest, bool, bool) (bool, error) {
	return true, nil
}

func (c *fakeConn) AsyncRequestCanceled(req handler.PendingRequest, reason error) {
	req.Complete(nil, reason)
}

// fakeSource dials instantly unless gate is set, and refuses endpoints
// listed in refuse.
type fakeSource struct {
	mu     sync.Mutex
	conns  map[string]*fakeConn
	dials  []string
	refuse map[string]bool
	gate   chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{conns: make(map[string]*fakeConn), refuse: make(map[string]bool)}
}

func (s *fakeSource) Lookup(endpoint string) (transport.Conn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[endpoint]
	if !ok {
		return nil, false
	}
	return c, true
}

func (s *fakeSource) GetConnection(ctx context.Context, endpoint string) (transport.Conn, error) {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials = append(s.dials, endpoint)
	if s.refuse[endpoint] {
		return nil, errors.New("connection refused")
	}
	c, ok := s.conns[endpoint]
	if !ok {
		c = &fakeConn{endpoint: endpoint}
		s.conns[endpoint] = c
	}
	return c, nil
}

type fakeProxy struct {
	mu      sync.Mutex
	updates []handler.RequestHandler
}

func (p *fakeProxy) UpdateRequestHandler(previous, candidate handler.RequestHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, candidate)
}

func (p *fakeProxy) last() handler.RequestHandler {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.updates) == 0 {
		return nil
	}
	return p.updates[len(p.updates)-1]
}

func mustRef(t *testing.T, opts ...reference.Option) *reference.Reference {
	t.Helper()
	ref, err := reference.New("hello", opts...)
	if err != nil {
		t.Fatal(err)
	}
	return ref
}

func newBinder(t *testing.T, src ConnectionSource, discovery registry.Discovery, opts ...Option) *Binder {
	t.Helper()
	b, err := New(src, discovery, loadbalancer.NewRoundRobin(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func wait(t *testing.T, h handler.RequestHandler) (handler.Connection, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return h.WaitForConnection(ctx)
}

func TestFixedEndpointResolvesThenReuses(t *testing.T) {
	src := newFakeSource()
	b := newBinder(t, src, nil)
	ref := mustRef(t, reference.WithEndpoints("10.0.0.1:9000"))
	proxy := &fakeProxy{}

	h := b.RequestHandler(ref, proxy)
	resolving, ok := h.(*handler.ResolvingRequestHandler)
	if !ok {
		t.Fatalf("first handler = %T, want resolving", h)
	}
	resolving.Connect(proxy)

	conn, err := wait(t, h)
	if err != nil {
		t.Fatal(err)
	}
	if conn.ID() != "conn-10.0.0.1:9000" {
		t.Errorf("bound to %s", conn.ID())
	}

	<-resolving.Done()
	if switched, ok := proxy.last().(*handler.ConnectionRequestHandler); !ok {
		t.Errorf("proxy switched to %T", proxy.last())
	} else if c, _ := switched.Connection(); c != conn {
		t.Error("proxy switched to a different connection")
	}

	again := b.RequestHandler(ref, proxy)
	bound, ok := again.(*handler.ConnectionRequestHandler)
	if !ok {
		t.Fatalf("rebind handler = %T, want connection", again)
	}
	if c, _ := bound.Connection(); c != conn {
		t.Error("rebind did not reuse the pooled connection")
	}
	if len(src.dials) != 1 {
		t.Errorf("dials = %v", src.dials)
	}
}

func TestLocatorLookupHonorsVersion(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	old := registry.NewServiceInstance("greeter", "10.0.0.1", 9000)
	old.Version = "1.0.0"
	current := registry.NewServiceInstance("greeter", "10.0.0.2", 9000)
	current.Version = "2.3.0"
	_ = reg.Register(ctx, old)
	_ = reg.Register(ctx, current)

	src := newFakeSource()
	b := newBinder(t, src, reg)
	ref := mustRef(t, reference.WithService("greeter"), reference.WithVersion(">=2.0.0"))

	conn, err := wait(t, b.RequestHandler(ref, &fakeProxy{}))
	if err != nil {
		t.Fatal(err)
	}
	if conn.ID() != "conn-10.0.0.2:9000" {
		t.Errorf("bound to %s", conn.ID())
	}

	// The remembered endpoint short-circuits the next lookup.
	if _, ok := b.RequestHandler(ref, &fakeProxy{}).(*handler.ConnectionRequestHandler); !ok {
		t.Error("affinity lookup missed")
	}
}

func TestResolutionFailures(t *testing.T) {
	reg := memory.NewRegistry()
	down := registry.NewServiceInstance("legacy", "10.0.0.9", 9000)
	down.Version = "0.1.0"
	_ = reg.Register(context.Background(), down)

	src := newFakeSource()
	src.refuse["10.0.0.5:9000"] = true

	tests := []struct {
		name      string
		discovery registry.Discovery
		ref       []reference.Option
		want      error
	}{
		{"unknown service", reg, []reference.Option{reference.WithService("missing")}, registry.ErrNotFound},
		{"no locator", nil, []reference.Option{reference.WithService("greeter")}, ErrNoLocator},
		{"version mismatch", reg, []reference.Option{reference.WithService("legacy"), reference.WithVersion(">=1.0.0")}, ErrNoCandidates},
		{"refused", nil, []reference.Option{reference.WithEndpoints("10.0.0.5:9000")}, nil},
		{"bad endpoint", nil, []reference.Option{reference.WithEndpoints("no-port")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBinder(t, src, tt.discovery)
			h := b.RequestHandler(mustRef(t, tt.ref...), &fakeProxy{})

			_, err := wait(t, h)
			if !errors.Is(err, handler.ErrResolutionFailed) {
				t.Fatalf("err = %v, want a resolution failure", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if _, err := h.Connection(); !errors.Is(err, handler.ErrResolutionFailed) {
				t.Errorf("Connection() err = %v", err)
			}
		})
	}
}

func TestCompressOverride(t *testing.T) {
	b := newBinder(t, newFakeSource(), nil, WithCompress(true))

	if !b.Compress(mustRef(t, reference.WithEndpoints("a:1"))) {
		t.Error("default not applied")
	}
	if b.Compress(mustRef(t, reference.WithEndpoints("a:1"), reference.WithCompress(false))) {
		t.Error("reference override ignored")
	}

	src := newFakeSource()
	src.conns["a:1"] = &fakeConn{endpoint: "a:1"}
	b = newBinder(t, src, nil)
	h := b.RequestHandler(mustRef(t, reference.WithEndpoints("a:1"), reference.WithCompress(true)), &fakeProxy{})
	bound, ok := h.(*handler.ConnectionRequestHandler)
	if !ok || !bound.Compress() {
		t.Errorf("handler = %T compress override not carried", h)
	}
}

func TestCloseFailsPendingResolutions(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	b, err := New(src, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	h := b.RequestHandler(mustRef(t, reference.WithEndpoints("a:1")), &fakeProxy{})
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := wait(t, h); !errors.Is(err, ErrClosed) || !errors.Is(err, context.Canceled) {
		t.Errorf("pending err = %v, want ErrClosed wrapping context.Canceled", err)
	}

	late := b.RequestHandler(mustRef(t, reference.WithEndpoints("a:1")), &fakeProxy{})
	if _, err := wait(t, late); !errors.Is(err, ErrClosed) {
		t.Errorf("late err = %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	if _, err := New(nil, nil, nil); err == nil {
		t.Error("nil source accepted")
	}
	if _, err := New(newFakeSource(), nil, nil, WithResolveTimeout(0)); err == nil {
		t.Error("zero timeout accepted")
	}
}

func TestAffinityKeySeparatesVersions(t *testing.T) {
	a, _ := reference.New("hello", reference.WithService("greeter"), reference.WithVersion(">=1.0.0"))
	b, _ := reference.New("hello", reference.WithService("greeter"), reference.WithVersion(">=2.0.0"))
	c, _ := reference.New("hello", reference.WithService("greeter"))
	if affinityKey(a) == affinityKey(b) || affinityKey(a) == affinityKey(c) {
		t.Errorf("keys collide: %q %q %q", affinityKey(a), affinityKey(b), affinityKey(c))
	}
}

func TestCloseRacesRequestHandler(t *testing.T) {
	src := newFakeSource()
	src.gate = make(chan struct{})
	b, err := New(src, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	ref := mustRef(t, reference.WithEndpoints("a:1"))
	var g errgroup.Group
	handlers := make([]handler.RequestHandler, 16)
	for i := range handlers {
		g.Go(func() error {
			handlers[i] = b.RequestHandler(ref, &fakeProxy{})
			return nil
		})
	}
	g.Go(b.Close)
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	for _, h := range handlers {
		if _, err := wait(t, h); !errors.Is(err, ErrClosed) {
			t.Errorf("err = %v, want ErrClosed", err)
		}
	}
}
