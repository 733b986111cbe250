// Kunhua Huang 2026

// Package client wires the connection pools, the locator and the binder
// together and hands out proxies.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ecstasoy/rpcbind/pkg/binder"
	"github.com/ecstasoy/rpcbind/pkg/interceptor"
	rpclog "github.com/ecstasoy/rpcbind/pkg/log"
	"github.com/ecstasoy/rpcbind/pkg/pool"
	"github.com/ecstasoy/rpcbind/pkg/proxy"
	"github.com/ecstasoy/rpcbind/pkg/reference"
	"github.com/ecstasoy/rpcbind/pkg/registry"
)

var log = rpclog.Logger("client")

var ErrClientClosed = errors.New("client closed")

type Client struct {
	opts *clientOptions

	poolManager *pool.PoolManager
	discovery   registry.Discovery
	binder      *binder.Binder
	chain       *interceptor.Chain

	mu     sync.RWMutex
	closed bool
}

func New(opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, o := range opts {
		o(options)
	}

	poolOptions := append([]pool.PoolOption{
		pool.WithPoolCodec(options.codecType, options.compressType),
	}, options.poolOptions...)
	poolManager := pool.NewPoolManager(poolOptions...)

	b, err := binder.New(poolManager, options.discovery, options.loadBalancer,
		binder.WithCompress(options.compress),
		binder.WithResolveTimeout(options.resolveTimeout),
		binder.WithAffinityCacheSize(options.affinityCacheSize),
	)
	if err != nil {
		return nil, err
	}

	return &Client{
		opts:        options,
		poolManager: poolManager,
		discovery:   options.discovery,
		binder:      b,
		chain:       interceptor.NewChain(options.interceptors...),
	}, nil
}

// Proxy returns a new proxy for ref. Proxies of one client share its
// connections.
func (c *Client) Proxy(ref *reference.Reference) (*proxy.Proxy, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClientClosed
	}

	return proxy.New(ref, c.binder,
		proxy.WithCodec(c.opts.codecType),
		proxy.WithChain(c.chain),
	)
}

// ProxyFor builds the reference and its proxy in one step.
func (c *Client) ProxyFor(identity string, opts ...reference.Option) (*proxy.Proxy, error) {
	ref, err := reference.New(identity, opts...)
	if err != nil {
		return nil, err
	}
	return c.Proxy(ref)
}

func (c *Client) PoolStats() map[string]pool.PoolStats {
	return c.poolManager.Stats()
}

// Close stops pending resolutions, closes every pooled connection (failing
// their outstanding requests) and closes the locator.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	var errs []error
	if err := c.binder.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close binder: %w", err))
	}
	if err := c.poolManager.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pools: %w", err))
	}
	if c.discovery != nil {
		if err := c.discovery.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close discovery: %w", err))
		}
	}

	log.Debugf("client closed")
	return errors.Join(errs...)
}

// Ping checks that a proxy can bind, without invoking anything.
func Ping(ctx context.Context, p *proxy.Proxy) error {
	_, err := p.Connection(ctx)
	return err
}
