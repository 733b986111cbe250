// Kunhua Huang 2026

package etcd

import (
	"context"
	"encoding/json"
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"

	rpclog "github.com/ecstasoy/rpcbind/pkg/log"
	"github.com/ecstasoy/rpcbind/pkg/registry"
)

var log = rpclog.Logger("registry.etcd")

type EtcdDiscovery struct {
	*EtcdClient
}

var _ registry.Discovery = (*EtcdDiscovery)(nil)

func NewEtcdDiscovery(config *Config) (*EtcdDiscovery, error) {
	client, err := NewEtcdClient(config)
	if err != nil {
		return nil, err
	}

	return &EtcdDiscovery{
		EtcdClient: client,
	}, nil
}

func (ed *EtcdDiscovery) GetInstances(ctx context.Context, service string) ([]*registry.ServiceInstance, error) {
	resp, err := ed.client.Get(ctx, ed.servicePrefix(service), clientv3.WithPrefix(), clientv3.WithSort(clientv3.SortByKey, clientv3.SortAscend))
	if err != nil {
		return nil, fmt.Errorf("%w: get instances: %w", registry.ErrNotConnected, err)
	}

	values := make([][]byte, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		values = append(values, kv.Value)
	}

	instances := decodeInstances(service, values)
	if len(instances) == 0 {
		return nil, fmt.Errorf("%w: %s", registry.ErrNotFound, service)
	}
	return instances, nil
}

// decodeInstances keeps the available instances; undecodable entries are
// logged and skipped.
func decodeInstances(service string, values [][]byte) []*registry.ServiceInstance {
	var instances []*registry.ServiceInstance
	for _, v := range values {
		var instance registry.ServiceInstance
		if err := json.Unmarshal(v, &instance); err != nil {
			log.Warningf("service %s: skipping undecodable instance: %v", service, err)
			continue
		}
		if instance.Available() {
			instances = append(instances, &instance)
		}
	}
	return instances
}
