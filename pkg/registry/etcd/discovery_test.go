package etcd

import (
	"encoding/json"
	"testing"

	"github.com/ecstasoy/rpcbind/pkg/registry"
)

func TestServicePrefix(t *testing.T) {
	for _, prefix := range []string{"/rpc/services", "/rpc/services/"} {
		if got := servicePrefix(prefix, "hello"); got != "/rpc/services/hello/" {
			t.Errorf("servicePrefix(%q) = %q", prefix, got)
		}
	}
}

func TestDecodeInstances(t *testing.T) {
	up := registry.NewServiceInstance("hello", "10.0.0.1", 9000)
	down := registry.NewServiceInstance("hello", "10.0.0.2", 9000)
	down.Status = registry.StatusDown

	encode := func(inst *registry.ServiceInstance) []byte {
		b, err := json.Marshal(inst)
		if err != nil {
			t.Fatal(err)
		}
		return b
	}

	got := decodeInstances("hello", [][]byte{encode(up), []byte("{garbage"), encode(down)})
	if len(got) != 1 || got[0].Endpoint() != "10.0.0.1:9000" {
		t.Errorf("decodeInstances = %v", got)
	}
}
