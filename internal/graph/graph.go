// Package graph builds the dependency graph of a template and derives the
// order in which its resources must be applied.
package graph

import (
	"fmt"
	"sort"

	"github.com/stackforge/stackforge/internal/models"
)

// Build flattens the template into nodes and dependency edges. Reference
// fields contribute "reference" edges; explicit entries in the template's
// DependsOn map contribute "depends_on" edges, which win when both exist.
func Build(t *models.Template) *models.Graph {
	g := &models.Graph{
		Nodes: []models.Node{},
		Edges: []models.Edge{},
	}
	byKind := make(map[string]int)

	for _, res := range t.Resources() {
		addr := res.Address()
		g.Nodes = append(g.Nodes, models.Node{
			ID:       addr,
			Kind:     string(res.Kind),
			Metadata: buildMetadata(res),
		})
		byKind[string(res.Kind)]++

		for target, edgeType := range collectDependencies(t.DependsOn[addr], res.References) {
			g.Edges = append(g.Edges, models.Edge{
				Source: addr,
				Target: target,
				Type:   edgeType,
			})
		}
	}

	sort.Slice(g.Edges, func(i, j int) bool {
		if g.Edges[i].Source != g.Edges[j].Source {
			return g.Edges[i].Source < g.Edges[j].Source
		}
		return g.Edges[i].Target < g.Edges[j].Target
	})

	g.Stats = &models.Stats{
		TotalNodes:      len(g.Nodes),
		TotalEdges:      len(g.Edges),
		ResourcesByKind: byKind,
	}
	return g
}

// Order returns the template's resources sorted so that every dependency
// precedes its dependents. Ties break on address so the order is stable
// across runs. A cycle is an error.
func Order(t *models.Template) ([]models.Resource, error) {
	resources := t.Resources()
	byAddr := make(map[string]models.Resource, len(resources))
	deps := make(map[string][]string, len(resources))

	for _, res := range resources {
		addr := res.Address()
		byAddr[addr] = res
		for target := range collectDependencies(t.DependsOn[addr], res.References) {
			deps[addr] = append(deps[addr], target)
		}
	}

	addrs := make([]string, 0, len(byAddr))
	for addr := range byAddr {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	var out []models.Resource
	state := make(map[string]int, len(byAddr)) // 0 unvisited, 1 in progress, 2 done

	var visit func(addr string) error
	visit = func(addr string) error {
		switch state[addr] {
		case 2:
			return nil
		case 1:
			return fmt.Errorf("dependency cycle through %s", addr)
		}
		state[addr] = 1
		targets := append([]string(nil), deps[addr]...)
		sort.Strings(targets)
		for _, target := range targets {
			if _, ok := byAddr[target]; !ok {
				return fmt.Errorf("%s depends on unknown resource %s", addr, target)
			}
			if err := visit(target); err != nil {
				return err
			}
		}
		state[addr] = 2
		out = append(out, byAddr[addr])
		return nil
	}

	for _, addr := range addrs {
		if err := visit(addr); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func buildMetadata(res models.Resource) map[string]any {
	metadata := map[string]any{
		"name": res.Name,
	}
	switch spec := res.Spec.(type) {
	case models.ImageLookup:
		metadata["owner"] = spec.Owner
		metadata["name_pattern"] = spec.NamePattern
	case models.Instance:
		metadata["size"] = spec.Size
		if len(spec.Tags) > 0 {
			metadata["tags"] = spec.Tags
		}
	case models.RuleSet:
		metadata["ingress_rules"] = len(spec.Ingress)
		metadata["egress_rules"] = len(spec.Egress)
	case models.Bucket:
		metadata["name_prefix"] = spec.NamePrefix
	}
	return metadata
}

func collectDependencies(explicit, implicit []string) map[string]string {
	deps := make(map[string]string)

	for _, dep := range explicit {
		deps[dep] = "depends_on"
	}

	for _, dep := range implicit {
		if _, exists := deps[dep]; !exists {
			deps[dep] = "reference"
		}
	}

	return deps
}
