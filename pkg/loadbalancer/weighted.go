// Kunhua Huang 2026

package loadbalancer

import (
	"context"
	"sync"

	"github.com/ecstasoy/rpcbind/pkg/registry"
)

const defaultWeight = 100

// WeightedRoundRobinBalancer is the smooth weighted round robin: each pick
// raises every instance by its weight and lowers the winner by the total,
// so heavy instances are interleaved rather than picked in runs.
type WeightedRoundRobinBalancer struct {
	mu        sync.Mutex
	instances []*registry.ServiceInstance
	current   []int
}

func NewWeightedRoundRobin() *WeightedRoundRobinBalancer {
	return &WeightedRoundRobinBalancer{}
}

func weightOf(inst *registry.ServiceInstance) int {
	if inst.Weight <= 0 {
		return defaultWeight
	}
	return inst.Weight
}

func (w *WeightedRoundRobinBalancer) Pick(ctx context.Context, key string, instances []*registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if !sameInstances(instances, w.instances) {
		w.instances = append(w.instances[:0], instances...)
		w.current = make([]int, len(instances))
	}

	total, best := 0, 0
	for i, inst := range w.instances {
		weight := weightOf(inst)
		total += weight
		w.current[i] += weight
		if w.current[i] > w.current[best] {
			best = i
		}
	}
	w.current[best] -= total

	return w.instances[best], nil
}

func (w *WeightedRoundRobinBalancer) Name() string {
	return WeightedRoundRobin
}
