// Kunhua Huang 2026

// Package binder resolves references to connections and hands proxies the
// request handler that matches the resolution state.
package binder

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/ecstasoy/rpcbind/pkg/handler"
	"github.com/ecstasoy/rpcbind/pkg/loadbalancer"
	rpclog "github.com/ecstasoy/rpcbind/pkg/log"
	"github.com/ecstasoy/rpcbind/pkg/reference"
	"github.com/ecstasoy/rpcbind/pkg/registry"
	"github.com/ecstasoy/rpcbind/pkg/transport"
)

var log = rpclog.Logger("binder")

var (
	ErrNoLocator    = errors.New("no locator configured")
	ErrNoCandidates = errors.New("no instance matches the reference")
	ErrClosed       = errors.New("binder closed")
)

// ConnectionSource is where bindings get their connections; the pool
// manager in production.
type ConnectionSource interface {
	Lookup(endpoint string) (transport.Conn, bool)
	GetConnection(ctx context.Context, endpoint string) (transport.Conn, error)
}

// ----------------- Options -----------------

type Options struct {
	// Compress is used for references that carry no override.
	Compress       bool
	ResolveTimeout time.Duration
	// AffinityCacheSize bounds the remembered reference -> endpoint picks.
	AffinityCacheSize int
}

func DefaultOptions() *Options {
	return &Options{
		ResolveTimeout:    10 * time.Second,
		AffinityCacheSize: 1024,
	}
}

type Option func(*Options)

func WithCompress(compress bool) Option {
	return func(o *Options) {
		o.Compress = compress
	}
}

func WithResolveTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.ResolveTimeout = timeout
	}
}

func WithAffinityCacheSize(size int) Option {
	return func(o *Options) {
		o.AffinityCacheSize = size
	}
}

// ----------------- Binder -----------------

type Binder struct {
	conns     ConnectionSource
	discovery registry.Discovery
	balancer  loadbalancer.LoadBalancer
	opts      *Options

	// affinity remembers the endpoint each reference was last bound to, so
	// a rebind with a live pooled connection skips the locator.
	affinity *lru.Cache

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add against Close.
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// New returns a Binder. discovery may be nil when every reference carries
// fixed endpoints; balancer defaults to round-robin.
func New(conns ConnectionSource, discovery registry.Discovery, balancer loadbalancer.LoadBalancer, options ...Option) (*Binder, error) {
	if conns == nil {
		return nil, fmt.Errorf("binder: nil connection source")
	}

	opts := DefaultOptions()
	for _, o := range options {
		o(opts)
	}
	if opts.ResolveTimeout <= 0 {
		return nil, fmt.Errorf("binder: ResolveTimeout must be > 0, got %v", opts.ResolveTimeout)
	}
	if balancer == nil {
		balancer = loadbalancer.NewRoundRobin()
	}

	affinity, err := lru.New(max(opts.AffinityCacheSize, 1))
	if err != nil {
		return nil, fmt.Errorf("binder: affinity cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Binder{
		conns:     conns,
		discovery: discovery,
		balancer:  balancer,
		opts:      opts,
		affinity:  affinity,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Compress is the compression a binding of ref uses.
func (b *Binder) Compress(ref *reference.Reference) bool {
	if compress, ok := ref.Compress(); ok {
		return compress
	}
	return b.opts.Compress
}

// RequestHandler returns the handler a proxy for ref should cache. When a
// live pooled connection already serves ref it is bound directly; otherwise
// a ResolvingRequestHandler is returned and resolution runs in the
// background.
func (b *Binder) RequestHandler(ref *reference.Reference, proxy handler.Proxy) handler.RequestHandler {
	compress := b.Compress(ref)

	if conn, ok := b.lookup(ref); ok {
		resolutionsTotal.WithLabelValues(outcomeReused).Inc()
		return handler.NewConnectionRequestHandler(ref, conn, compress)
	}

	resolving := handler.NewResolvingRequestHandler(ref)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		resolving.SetError(ErrClosed)
		return resolving
	}
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		b.resolve(resolving, ref, compress)
	}()
	return resolving
}

func (b *Binder) lookup(ref *reference.Reference) (transport.Conn, bool) {
	if endpoint, ok := b.affinity.Get(affinityKey(ref)); ok {
		if conn, ok := b.conns.Lookup(endpoint.(string)); ok {
			return conn, true
		}
	}

	// Fixed endpoints need no lookup, so any live connection to one of
	// them can serve.
	for _, endpoint := range ref.Endpoints() {
		if conn, ok := b.conns.Lookup(endpoint); ok {
			return conn, true
		}
	}
	return nil, false
}

func (b *Binder) resolve(resolving *handler.ResolvingRequestHandler, ref *reference.Reference, compress bool) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(b.ctx, b.opts.ResolveTimeout)
	defer cancel()

	conn, endpoint, err := b.connect(ctx, ref)
	resolveDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		if b.ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ErrClosed, err)
		}
		resolutionsTotal.WithLabelValues(outcomeFailed).Inc()
		log.Warningf("resolve %s failed: %v", ref, err)
		resolving.SetError(err)
		return
	}

	resolutionsTotal.WithLabelValues(outcomeResolved).Inc()
	b.affinity.Add(affinityKey(ref), endpoint)
	log.Debugf("resolved %s to %s via %s", ref, endpoint, conn.ID())
	resolving.SetConnection(conn, compress)
}

func (b *Binder) connect(ctx context.Context, ref *reference.Reference) (transport.Conn, string, error) {
	instances, err := b.candidates(ctx, ref)
	if err != nil {
		return nil, "", err
	}

	picked, err := b.balancer.Pick(ctx, ref.Identity(), instances)
	if err != nil {
		return nil, "", fmt.Errorf("pick endpoint: %w", err)
	}

	endpoint := picked.Endpoint()
	conn, err := b.conns.GetConnection(ctx, endpoint)
	if err != nil {
		return nil, "", fmt.Errorf("connect %s: %w", endpoint, err)
	}
	return conn, endpoint, nil
}

// candidates lists the instances ref may bind to: its fixed endpoints, or
// the locator's instances of its service that satisfy its version
// constraint.
func (b *Binder) candidates(ctx context.Context, ref *reference.Reference) ([]*registry.ServiceInstance, error) {
	if endpoints := ref.Endpoints(); len(endpoints) > 0 {
		return staticInstances(endpoints)
	}

	if b.discovery == nil {
		return nil, ErrNoLocator
	}

	found, err := b.discovery.GetInstances(ctx, ref.Service())
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", ref.Service(), err)
	}

	var instances []*registry.ServiceInstance
	for _, inst := range found {
		if inst.Available() && ref.AcceptsVersion(inst.Version) {
			instances = append(instances, inst)
		}
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCandidates, ref)
	}
	return instances, nil
}

func staticInstances(endpoints []string) ([]*registry.ServiceInstance, error) {
	instances := make([]*registry.ServiceInstance, 0, len(endpoints))
	for _, endpoint := range endpoints {
		host, portStr, err := net.SplitHostPort(endpoint)
		if err != nil {
			return nil, fmt.Errorf("endpoint %q: %w", endpoint, err)
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, fmt.Errorf("endpoint %q: bad port: %w", endpoint, err)
		}
		inst := registry.NewServiceInstance("", host, port)
		inst.ID = endpoint
		instances = append(instances, inst)
	}
	return instances, nil
}

func affinityKey(ref *reference.Reference) string {
	target := ref.Service()
	if len(ref.Endpoints()) > 0 {
		target = fmt.Sprint(ref.Endpoints())
	}
	if v := ref.Version(); v != "" {
		target += "#" + v
	}
	return ref.Identity() + "@" + target
}

// Close cancels background resolutions and waits for them to fail their
// handlers. Handlers requested afterwards fail with ErrClosed.
func (b *Binder) Close() error {
	b.mu.Lock()
	b.closed = true
	b.cancel()
	b.mu.Unlock()

	b.wg.Wait()
	return nil
}
