package engine

import (
	"sort"
	"strings"

	"github.com/miradorstack/mirador-responder/internal/models"
)

// Topology is the service dependency graph built from the registry. An edge
// a -> b means a depends on b. Dependencies on unregistered services are kept
// as leaf nodes.
type Topology struct {
	deps       map[string][]string
	dependents map[string][]string
}

// NewTopology indexes the DependsOn lists of services.
func NewTopology(services map[string]models.Service) *Topology {
	t := &Topology{deps: make(map[string][]string), dependents: make(map[string][]string)}
	for id, svc := range services {
		seen := make(map[string]struct{}, len(svc.DependsOn))
		for _, dep := range svc.DependsOn {
			dep = strings.TrimSpace(dep)
			if dep == "" || dep == id {
				continue
			}
			if _, dup := seen[dep]; dup {
				continue
			}
			seen[dep] = struct{}{}
			t.deps[id] = append(t.deps[id], dep)
			t.dependents[dep] = append(t.dependents[dep], id)
		}
	}
	for _, m := range []map[string][]string{t.deps, t.dependents} {
		for k := range m {
			sort.Strings(m[k])
		}
	}
	return t
}

// Affected returns every service that reaches serviceID through its
// dependencies, breadth first so direct callers come before transitive ones.
// serviceID itself is not included.
func (t *Topology) Affected(serviceID string) []string {
	if t == nil {
		return nil
	}
	visited := map[string]bool{serviceID: true}
	var out []string
	frontier := []string{serviceID}
	for len(frontier) > 0 {
		var next []string
		for _, id := range frontier {
			for _, up := range t.dependents[id] {
				if visited[up] {
					continue
				}
				visited[up] = true
				out = append(out, up)
				next = append(next, up)
			}
		}
		frontier = next
	}
	return out
}

// CausalChain returns serviceID followed by its dependencies in depth-first
// preorder: the services a failure in serviceID may originate from.
func (t *Topology) CausalChain(serviceID string) []string {
	chain := []string{serviceID}
	if t == nil {
		return chain
	}
	visited := map[string]bool{serviceID: true}
	var walk func(id string)
	walk = func(id string) {
		for _, dep := range t.deps[id] {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			chain = append(chain, dep)
			walk(dep)
		}
	}
	walk(serviceID)
	return chain
}
