package model

// Node is one function in a derived call graph view.
type Node struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Module    string  `json:"module,omitempty"`
	Size      float64 `json:"size"`
	Depth     int     `json:"depth"`
	Center    bool    `json:"center,omitempty"`
	Protected bool    `json:"protected,omitempty"`
	Changed   bool    `json:"changed,omitempty"`
	HasErrors bool    `json:"has_errors,omitempty"`
}

// GraphEdge is one deduplicated caller→callee relationship in a graph view.
type GraphEdge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Weight int    `json:"weight"`
}

// Graph is the transient node/edge view answered per query. Never persisted.
type Graph struct {
	Nodes []Node      `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}
