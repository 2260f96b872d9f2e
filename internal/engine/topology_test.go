package engine

import (
	"reflect"
	"testing"

	"github.com/miradorstack/mirador-responder/internal/models"
)

func shopServices() map[string]models.Service {
	return map[string]models.Service{
		"gateway":   {ID: "gateway", DependsOn: []string{"orders", "catalog"}},
		"orders":    {ID: "orders", DependsOn: []string{"payments", "inventory", "payments"}},
		"catalog":   {ID: "catalog", DependsOn: []string{"inventory"}},
		"payments":  {ID: "payments", DependsOn: []string{"ledger-db"}},
		"inventory": {ID: "inventory"},
		"loop-a":    {ID: "loop-a", DependsOn: []string{"loop-b"}},
		"loop-b":    {ID: "loop-b", DependsOn: []string{"loop-a", "loop-b"}},
	}
}

func TestTopologyAffected(t *testing.T) {
	topo := NewTopology(shopServices())
	cases := map[string][]string{
		"inventory": {"catalog", "orders", "gateway"},
		"payments":  {"orders", "gateway"},
		"ledger-db": {"payments", "orders", "gateway"},
		"gateway":   nil,
		"loop-a":    {"loop-b"},
		"ghost":     nil,
	}
	for svc, want := range cases {
		if got := topo.Affected(svc); !reflect.DeepEqual(got, want) {
			t.Fatalf("%s: expected %v, got %v", svc, want, got)
		}
	}
}

func TestTopologyCausalChain(t *testing.T) {
	topo := NewTopology(shopServices())
	want := []string{"gateway", "catalog", "inventory", "orders", "payments", "ledger-db"}
	if got := topo.CausalChain("gateway"); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if got := topo.CausalChain("loop-a"); !reflect.DeepEqual(got, []string{"loop-a", "loop-b"}) {
		t.Fatalf("cycle not cut: %v", got)
	}
	var empty *Topology
	if got := empty.CausalChain("x"); !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("nil topology: %v", got)
	}
}
