package models

// Graph is the dependency view of a template, serialized by the API.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
	Stats *Stats `json:"stats,omitempty"`
}

type Node struct {
	ID       string         `json:"id"`
	Kind     string         `json:"kind"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Edge points from a resource to one of its dependencies. Type is either
// "reference" (implied by a field) or "depends_on" (explicit).
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

type Stats struct {
	TotalNodes      int            `json:"total_nodes"`
	TotalEdges      int            `json:"total_edges"`
	ResourcesByKind map[string]int `json:"resources_by_kind,omitempty"`
}
