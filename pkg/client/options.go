package client

import (
	"time"

	"github.com/ecstasoy/rpcbind/pkg/interceptor"
	"github.com/ecstasoy/rpcbind/pkg/loadbalancer"
	"github.com/ecstasoy/rpcbind/pkg/pool"
	"github.com/ecstasoy/rpcbind/pkg/protocol"
	"github.com/ecstasoy/rpcbind/pkg/registry"
)

type clientOptions struct {
	codecType    protocol.CodecType
	compressType protocol.CompressType
	compress     bool

	resolveTimeout    time.Duration
	affinityCacheSize int

	poolOptions  []pool.PoolOption
	discovery    registry.Discovery
	loadBalancer loadbalancer.LoadBalancer
	interceptors []interceptor.Interceptor
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		codecType:         protocol.CodecTypeJSON,
		compressType:      protocol.CompressTypeGzip,
		resolveTimeout:    10 * time.Second,
		affinityCacheSize: 1024,
		loadBalancer:      loadbalancer.NewRoundRobin(),
	}
}

type Option func(*clientOptions)

func WithCodec(codec protocol.CodecType, compress protocol.CompressType) Option {
	return func(o *clientOptions) {
		o.codecType = codec
		o.compressType = compress
	}
}

// WithCompress sets the compression used by references that carry no
// override of their own.
func WithCompress(compress bool) Option {
	return func(o *clientOptions) {
		o.compress = compress
	}
}

func WithResolveTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		o.resolveTimeout = timeout
	}
}

func WithAffinityCacheSize(size int) Option {
	return func(o *clientOptions) {
		o.affinityCacheSize = size
	}
}

func WithPoolOptions(opts ...pool.PoolOption) Option {
	return func(o *clientOptions) {
		o.poolOptions = append(o.poolOptions, opts...)
	}
}

// WithDiscovery sets the locator. The client closes it on Close.
func WithDiscovery(discovery registry.Discovery) Option {
	return func(o *clientOptions) {
		o.discovery = discovery
	}
}

func WithLoadBalancer(lb loadbalancer.LoadBalancer) Option {
	return func(o *clientOptions) {
		o.loadBalancer = lb
	}
}

func WithInterceptors(interceptors ...interceptor.Interceptor) Option {
	return func(o *clientOptions) {
		o.interceptors = append(o.interceptors, interceptors...)
	}
}
