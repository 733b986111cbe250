// Kunhua Huang 2026

package pool

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ecstasoy/rpcbind/pkg/transport"
)

// PoolManager keeps one ConnectionPool per endpoint.
type PoolManager struct {
	pools map[string]*ConnectionPool
	mu    sync.RWMutex

	options []PoolOption
}

func NewPoolManager(options ...PoolOption) *PoolManager {
	return &PoolManager{
		pools:   make(map[string]*ConnectionPool),
		options: options,
	}
}

func (pm *PoolManager) GetConnection(ctx context.Context, addr string) (transport.Conn, error) {
	pool, err := pm.pool(addr)
	if err != nil {
		return nil, err
	}
	return pool.Get(ctx)
}

// Lookup returns a live connection to addr if one is already pooled.
func (pm *PoolManager) Lookup(addr string) (transport.Conn, bool) {
	pm.mu.RLock()
	pool, exists := pm.pools[addr]
	pm.mu.RUnlock()

	if !exists {
		return nil, false
	}
	return pool.Lookup()
}

func (pm *PoolManager) pool(addr string) (*ConnectionPool, error) {
	// Double-checked locking
	pm.mu.RLock()
	pool, exists := pm.pools[addr]
	pm.mu.RUnlock()

	if exists {
		return pool, nil
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pool, exists = pm.pools[addr]; exists {
		return pool, nil
	}

	newPool, err := NewConnectionPool(addr, pm.options...)
	if err != nil {
		return nil, fmt.Errorf("new pool: %w", err)
	}

	pm.pools[addr] = newPool
	return newPool, nil
}

func (pm *PoolManager) RemovePool(addr string) error {
	pm.mu.Lock()
	pool, exists := pm.pools[addr]
	delete(pm.pools, addr)
	pm.mu.Unlock()

	if !exists {
		return nil
	}
	return pool.Close()
}

func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	pools := pm.pools
	pm.pools = make(map[string]*ConnectionPool)
	pm.mu.Unlock()

	var g errgroup.Group
	for addr, pool := range pools {
		g.Go(func() error {
			if err := pool.Close(); err != nil {
				return fmt.Errorf("close pool for %s: %w", addr, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (pm *PoolManager) Stats() map[string]PoolStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	stats := make(map[string]PoolStats)
	for addr, pool := range pm.pools {
		stats[addr] = pool.Stats()
	}

	return stats
}
