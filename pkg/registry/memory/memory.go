// Kunhua Huang 2026
// In-memory locator, used by tests and by clients configured with a
// static service table.

package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ecstasoy/rpcbind/pkg/registry"
)

type Registry struct {
	instances map[string]*registry.ServiceInstance
	mu        sync.RWMutex
	closed    bool
}

var (
	_ registry.Discovery = (*Registry)(nil)
	_ registry.Registrar = (*Registry)(nil)
)

func NewRegistry() *Registry {
	return &Registry{
		instances: make(map[string]*registry.ServiceInstance),
	}
}

func (r *Registry) Register(ctx context.Context, instance *registry.ServiceInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return registry.ErrNotConnected
	}
	r.instances[instance.ID] = instance
	return nil
}

func (r *Registry) Deregister(ctx context.Context, service, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	instance, exists := r.instances[instanceID]
	if !exists || instance.Service != service {
		return registry.ErrNotFound
	}

	delete(r.instances, instanceID)
	return nil
}

// GetInstances returns the available instances of service ordered by ID,
// or ErrNotFound when there are none.
func (r *Registry) GetInstances(ctx context.Context, service string) ([]*registry.ServiceInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, registry.ErrNotConnected
	}

	var result []*registry.ServiceInstance
	for _, instance := range r.instances {
		if instance.Service == service && instance.Available() {
			result = append(result, instance)
		}
	}
	if len(result) == 0 {
		return nil, registry.ErrNotFound
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}
