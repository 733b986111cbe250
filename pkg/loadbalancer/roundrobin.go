// Kunhua Huang 2026

package loadbalancer

import (
	"context"
	"sync/atomic"

	"github.com/ecstasoy/rpcbind/pkg/registry"
)

type RoundRobinBalancer struct {
	index atomic.Uint64
}

func NewRoundRobin() *RoundRobinBalancer {
	return &RoundRobinBalancer{}
}

func (rb *RoundRobinBalancer) Pick(ctx context.Context, key string, instances []*registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	idx := (rb.index.Add(1) - 1) % uint64(len(instances))
	return instances[idx], nil
}

func (rb *RoundRobinBalancer) Name() string {
	return RoundRobin
}
