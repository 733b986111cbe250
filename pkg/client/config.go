// Kunhua Huang 2026

package client

import (
	"context"
	"fmt"

	"github.com/ecstasoy/rpcbind/pkg/config"
	"github.com/ecstasoy/rpcbind/pkg/interceptor"
	"github.com/ecstasoy/rpcbind/pkg/loadbalancer"
	rpclog "github.com/ecstasoy/rpcbind/pkg/log"
	"github.com/ecstasoy/rpcbind/pkg/pool"
	"github.com/ecstasoy/rpcbind/pkg/protocol"
	"github.com/ecstasoy/rpcbind/pkg/ratelimiter"
	"github.com/ecstasoy/rpcbind/pkg/registry"
	"github.com/ecstasoy/rpcbind/pkg/registry/etcd"
	"github.com/ecstasoy/rpcbind/pkg/registry/memory"

	logging "github.com/op/go-logging"
)

// FromConfig builds a client from a loaded configuration. extra options
// are applied after the configured ones.
func FromConfig(cfg *config.Config, extra ...Option) (*Client, error) {
	level := rpclog.ParseLevel(cfg.Log.Level, logging.WARNING)
	logging.SetLevel(rpclog.LevelFromEnv(level), "")

	opts, err := configOptions(cfg)
	if err != nil {
		return nil, err
	}

	c, err := New(append(opts, extra...)...)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func configOptions(cfg *config.Config) ([]Option, error) {
	codecType, err := protocol.ParseCodecType(cfg.Client.Codec)
	if err != nil {
		return nil, err
	}
	compressType, err := protocol.ParseCompressType(cfg.Client.CompressType)
	if err != nil {
		return nil, err
	}
	lb, err := loadbalancer.New(cfg.Client.LoadBalancer)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithCodec(codecType, compressType),
		WithCompress(cfg.Client.Compress),
		WithResolveTimeout(cfg.Client.ResolveTimeout.Duration),
		WithAffinityCacheSize(cfg.Client.AffinityCacheSize),
		WithLoadBalancer(lb),
		WithPoolOptions(poolOptions(cfg.Pool, codecType, compressType)...),
	}

	discovery, err := newDiscovery(cfg.Registry)
	if err != nil {
		return nil, err
	}
	if discovery != nil {
		opts = append(opts, WithDiscovery(discovery))
	}

	opts = append(opts, WithInterceptors(interceptors(cfg.Client)...))
	return opts, nil
}

func poolOptions(cfg config.PoolConfig, codecType protocol.CodecType, compressType protocol.CompressType) []pool.PoolOption {
	opts := []pool.PoolOption{
		pool.WithPoolSize(cfg.MaxSize),
		pool.WithIdleTimeout(cfg.MaxIdleTime.Duration),
		pool.WithMaxLifetime(cfg.MaxLifetime.Duration),
		pool.WithCleanupInterval(cfg.CleanupInterval.Duration),
		pool.WithDialTimeout(cfg.DialTimeout.Duration),
		pool.WithHealthCheck(cfg.EnableHealthCheck, cfg.HealthCheckInterval.Duration),
		pool.WithWaitTimeout(cfg.WaitTimeout.Duration),
	}

	var factory pool.ConnectionFactory = pool.NewDefaultConnectionFactory(codecType, compressType,
		cfg.DialTimeout.Duration, cfg.KeepAlive, cfg.KeepAlivePeriod.Duration)
	if cfg.DialRetries > 0 {
		factory = pool.NewRetryConnectionFactory(factory, cfg.DialRetries, cfg.DialRetryInterval.Duration)
	}
	return append(opts, pool.WithConnectionFactory(factory))
}

func newDiscovery(cfg config.RegistryConfig) (registry.Discovery, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		reg := memory.NewRegistry()
		for _, s := range cfg.Static {
			inst := registry.NewServiceInstance(s.Service, s.Address, s.Port)
			inst.Version = s.Version
			if s.Weight > 0 {
				inst.Weight = s.Weight
			}
			if err := reg.Register(context.Background(), inst); err != nil {
				return nil, fmt.Errorf("seed %s: %w", inst.ID, err)
			}
		}
		return reg, nil
	case "etcd":
		return etcd.NewEtcdDiscovery(&etcd.Config{
			Endpoints:   cfg.Etcd.Endpoints,
			DialTimeout: cfg.Etcd.DialTimeout.Duration,
			KeyPrefix:   cfg.Etcd.KeyPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown registry type %q", cfg.Type)
	}
}

func interceptors(cfg config.ClientConfig) []interceptor.Interceptor {
	var out []interceptor.Interceptor
	if cfg.Interceptors.Recovery {
		out = append(out, interceptor.Recovery())
	}
	if cfg.Interceptors.Logging {
		out = append(out, interceptor.Logging(nil))
	}
	if cfg.Interceptors.Metrics {
		out = append(out, interceptor.Metrics())
	}
	if cfg.RateLimit.Rate > 0 {
		limiter := ratelimiter.NewTokenBucketLimiter(cfg.RateLimit.Rate, cfg.RateLimit.Burst)
		out = append(out, interceptor.RateLimit(limiter, cfg.RateLimit.Wait))
	}
	return out
}
