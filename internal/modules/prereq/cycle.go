package prereq

import (
	types "github.com/yungbote/tutorgraph-backend/internal/domain"
)

type CycleInput struct {
	FromConceptID string
	ToConceptID   string
	ExistingEdges []types.EdgeSummary
}

type CycleCheck struct {
	WouldCycle   bool     `json:"would_cycle"`
	CycleNodeIDs []string `json:"cycle_node_ids,omitempty"`
}

// WouldCreatePrereqCycle reports whether adding FromConceptID -[PREREQUISITE_OF]->
// ToConceptID to the prerequisite subgraph closes a cycle. When it does, the
// returned path starts at ToConceptID and ends at FromConceptID in DFS
// visitation order. Edges of any other type are ignored.
func WouldCreatePrereqCycle(in CycleInput) CycleCheck {
	from, to := in.FromConceptID, in.ToConceptID
	if from == to {
		return CycleCheck{WouldCycle: true, CycleNodeIDs: []string{from}}
	}

	adj := map[string][]string{}
	for _, e := range in.ExistingEdges {
		if e.Type != types.EdgePrerequisiteOf {
			continue
		}
		adj[e.FromConceptID] = append(adj[e.FromConceptID], e.ToConceptID)
	}
	adj[from] = append(adj[from], to)

	visited := map[string]bool{}
	path := make([]string, 0, 8)
	var dfs func(node string) bool
	dfs = func(node string) bool {
		visited[node] = true
		path = append(path, node)
		if node == from {
			return true
		}
		for _, next := range adj[node] {
			if visited[next] {
				continue
			}
			if dfs(next) {
				return true
			}
		}
		path = path[:len(path)-1]
		return false
	}

	if !dfs(to) {
		return CycleCheck{WouldCycle: false}
	}
	out := make([]string, len(path))
	copy(out, path)
	return CycleCheck{WouldCycle: true, CycleNodeIDs: out}
}
