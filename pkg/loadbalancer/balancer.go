// Kunhua Huang 2026

package loadbalancer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ecstasoy/rpcbind/pkg/registry"
)

var (
	ErrNoInstances      = errors.New("no available instances")
	ErrInvalidAlgorithm = errors.New("invalid algorithm")
)

// LoadBalancer picks the instance a binding dials. key identifies what is
// being bound (the reference's object identity); only affinity balancers
// use it.
type LoadBalancer interface {
	Pick(ctx context.Context, key string, instances []*registry.ServiceInstance) (*registry.ServiceInstance, error)
	Name() string
}

const (
	RoundRobin         = "round-robin"
	Random             = "random"
	WeightedRoundRobin = "weighted-round-robin"
	ConsistentHash     = "consistent-hash"
)

// New returns the balancer registered under name. An empty name selects
// round-robin.
func New(name string) (LoadBalancer, error) {
	switch name {
	case "", RoundRobin:
		return NewRoundRobin(), nil
	case Random:
		return NewRandom(), nil
	case WeightedRoundRobin:
		return NewWeightedRoundRobin(), nil
	case ConsistentHash:
		return NewConsistentHash(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidAlgorithm, name)
	}
}

func sameInstances(a, b []*registry.ServiceInstance) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Weight != b[i].Weight {
			return false
		}
	}
	return true
}
