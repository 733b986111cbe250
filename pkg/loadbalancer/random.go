// Kunhua Huang 2026

package loadbalancer

import (
	"context"
	"math/rand/v2"

	"github.com/ecstasoy/rpcbind/pkg/registry"
)

type RandomBalancer struct{}

func NewRandom() *RandomBalancer {
	return &RandomBalancer{}
}

func (r *RandomBalancer) Pick(ctx context.Context, key string, instances []*registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}
	return instances[rand.IntN(len(instances))], nil
}

func (r *RandomBalancer) Name() string {
	return Random
}
