package loadbalancer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ecstasoy/rpcbind/pkg/registry"
)

func instances(weights ...int) []*registry.ServiceInstance {
	var out []*registry.ServiceInstance
	for i, w := range weights {
		inst := registry.NewServiceInstance("hello", fmt.Sprintf("10.0.0.%d", i+1), 9000)
		inst.Weight = w
		out = append(out, inst)
	}
	return out
}

func TestNew(t *testing.T) {
	for _, name := range []string{"", RoundRobin, Random, WeightedRoundRobin, ConsistentHash} {
		lb, err := New(name)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if name != "" && lb.Name() != name {
			t.Errorf("New(%q).Name() = %q", name, lb.Name())
		}
	}
	if _, err := New("least-loaded"); !errors.Is(err, ErrInvalidAlgorithm) {
		t.Errorf("err = %v", err)
	}
}

func TestEmptyInstances(t *testing.T) {
	for _, name := range []string{RoundRobin, Random, WeightedRoundRobin, ConsistentHash} {
		lb, _ := New(name)
		if _, err := lb.Pick(context.Background(), "k", nil); !errors.Is(err, ErrNoInstances) {
			t.Errorf("%s: err = %v", name, err)
		}
	}
}

func TestRoundRobin(t *testing.T) {
	lb := NewRoundRobin()
	insts := instances(1, 1, 1)
	for i := 0; i < 6; i++ {
		got, _ := lb.Pick(context.Background(), "", insts)
		if got != insts[i%3] {
			t.Errorf("pick %d = %s", i, got.Endpoint())
		}
	}
}

func TestWeightedRoundRobin(t *testing.T) {
	lb := NewWeightedRoundRobin()
	insts := instances(5, 1, 1)

	counts := map[string]int{}
	var seq []string
	for i := 0; i < 7; i++ {
		got, _ := lb.Pick(context.Background(), "", insts)
		counts[got.ID]++
		seq = append(seq, got.ID)
	}
	if counts[insts[0].ID] != 5 || counts[insts[1].ID] != 1 || counts[insts[2].ID] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if seq[0] == seq[1] && seq[1] == seq[2] && seq[2] == seq[3] {
		t.Errorf("heavy instance picked in a run: %v", seq)
	}
}

func TestConsistentHashAffinity(t *testing.T) {
	lb := NewConsistentHash()
	insts := instances(1, 1, 1, 1)
	ctx := context.Background()

	first, _ := lb.Pick(ctx, "account/42", insts)
	for i := 0; i < 10; i++ {
		if got, _ := lb.Pick(ctx, "account/42", insts); got != first {
			t.Fatalf("pick moved from %s to %s", first.ID, got.ID)
		}
	}

	// Dropping an unrelated instance keeps the key where it was.
	var rest []*registry.ServiceInstance
	for _, inst := range insts {
		if inst != first {
			rest = append(rest, inst)
			break
		}
	}
	rest = append(rest, first)
	if got, _ := lb.Pick(ctx, "account/42", rest); got != first {
		t.Errorf("key moved after removing another instance")
	}
}

func TestRandomStaysInRange(t *testing.T) {
	lb := NewRandom()
	insts := instances(1, 1)
	for i := 0; i < 50; i++ {
		got, err := lb.Pick(context.Background(), "", insts)
		if err != nil || (got != insts[0] && got != insts[1]) {
			t.Fatalf("Pick() = %v, %v", got, err)
		}
	}
}
