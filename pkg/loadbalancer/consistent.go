// Kunhua Huang 2026

package loadbalancer

import (
	"context"
	"crypto/md5"
	"fmt"
	"sort"
	"sync"

	"github.com/ecstasoy/rpcbind/pkg/registry"
)

const defaultVirtualNodes = 150

// ConsistentHashBalancer keeps bindings of the same object on the same
// instance while the instance set is stable.
type ConsistentHashBalancer struct {
	virtualNodes int

	mu        sync.Mutex
	instances []*registry.ServiceInstance
	ring      []uint32
	nodes     map[uint32]*registry.ServiceInstance
}

func NewConsistentHash() *ConsistentHashBalancer {
	return &ConsistentHashBalancer{
		virtualNodes: defaultVirtualNodes,
	}
}

func (ch *ConsistentHashBalancer) Pick(ctx context.Context, key string, instances []*registry.ServiceInstance) (*registry.ServiceInstance, error) {
	if len(instances) == 0 {
		return nil, ErrNoInstances
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if !sameInstances(instances, ch.instances) {
		ch.rebuild(instances)
	}

	hash := hashKey(key)
	idx := sort.Search(len(ch.ring), func(i int) bool {
		return ch.ring[i] >= hash
	})
	if idx == len(ch.ring) {
		idx = 0
	}

	return ch.nodes[ch.ring[idx]], nil
}

func (ch *ConsistentHashBalancer) rebuild(instances []*registry.ServiceInstance) {
	ch.instances = append(ch.instances[:0], instances...)
	ch.ring = ch.ring[:0]
	ch.nodes = make(map[uint32]*registry.ServiceInstance, len(instances)*ch.virtualNodes)

	for _, inst := range instances {
		for i := 0; i < ch.virtualNodes; i++ {
			hash := hashKey(fmt.Sprintf("%s-%d", inst.ID, i))
			if _, taken := ch.nodes[hash]; taken {
				continue
			}
			ch.ring = append(ch.ring, hash)
			ch.nodes[hash] = inst
		}
	}

	sort.Slice(ch.ring, func(i, j int) bool {
		return ch.ring[i] < ch.ring[j]
	})
}

func hashKey(key string) uint32 {
	hash := md5.Sum([]byte(key))
	return uint32(hash[0])<<24 | uint32(hash[1])<<16 | uint32(hash[2])<<8 | uint32(hash[3])
}

func (ch *ConsistentHashBalancer) Name() string {
	return ConsistentHash
}
