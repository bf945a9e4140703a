package prereq

import (
	"container/heap"
	"fmt"
	"sort"
	"strings"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
)

type PathInput struct {
	TargetConceptID string
	Edges           []types.EdgeSummary
	// SortKey orders ready nodes (case-insensitive); nil means the id itself.
	SortKey func(id string) string
}

// PathResult is either an ordering (OK) or the set of nodes stuck in a
// cycle. Exactly one of OrderedConceptIDs / CycleNodeIDs is populated.
type PathResult struct {
	OK                bool     `json:"ok"`
	OrderedConceptIDs []string `json:"ordered_concept_ids,omitempty"`
	CycleNodeIDs      []string `json:"cycle_node_ids,omitempty"`
}

// CycleError is the error form of a failed PathResult.
type CycleError struct {
	TargetConceptID string
	CycleNodeIDs    []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("prerequisite cycle reachable from %s: %s", e.TargetConceptID, strings.Join(e.CycleNodeIDs, ", "))
}

// Err returns nil for an ordering and a *CycleError otherwise.
func (r PathResult) Err(target string) error {
	if r.OK {
		return nil
	}
	return &CycleError{TargetConceptID: target, CycleNodeIDs: r.CycleNodeIDs}
}

// ComputePrerequisitePath orders the target and all of its transitive
// prerequisites so that every prerequisite precedes its dependents. The
// target itself is last. Output is deterministic regardless of edge order.
func ComputePrerequisitePath(in PathInput) PathResult {
	target := in.TargetConceptID
	keyOf := in.SortKey
	if keyOf == nil {
		keyOf = func(id string) string { return id }
	}
	less := func(a, b string) bool {
		ka, kb := strings.ToLower(keyOf(a)), strings.ToLower(keyOf(b))
		if ka != kb {
			return ka < kb
		}
		return a < b
	}

	prereqsOf := map[string][]string{}
	for _, e := range in.Edges {
		if e.Type != types.EdgePrerequisiteOf {
			continue
		}
		prereqsOf[e.ToConceptID] = append(prereqsOf[e.ToConceptID], e.FromConceptID)
	}

	// Everything the target transitively requires, plus the target.
	inSet := map[string]bool{target: true}
	stack := []string{target}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range prereqsOf[n] {
			if !inSet[p] {
				inSet[p] = true
				stack = append(stack, p)
			}
		}
	}

	indeg := make(map[string]int, len(inSet))
	out := map[string][]string{}
	seenEdge := map[[2]string]bool{}
	for n := range inSet {
		indeg[n] = 0
	}
	for _, e := range in.Edges {
		if e.Type != types.EdgePrerequisiteOf || !inSet[e.FromConceptID] || !inSet[e.ToConceptID] {
			continue
		}
		k := [2]string{e.FromConceptID, e.ToConceptID}
		if seenEdge[k] {
			continue
		}
		seenEdge[k] = true
		out[e.FromConceptID] = append(out[e.FromConceptID], e.ToConceptID)
		indeg[e.ToConceptID]++
	}

	ready := &idHeap{less: less}
	for n, d := range indeg {
		if d == 0 {
			ready.ids = append(ready.ids, n)
		}
	}
	heap.Init(ready)

	ordered := make([]string, 0, len(inSet))
	for ready.Len() > 0 {
		n := heap.Pop(ready).(string)
		ordered = append(ordered, n)
		for _, next := range out[n] {
			indeg[next]--
			if indeg[next] == 0 {
				heap.Push(ready, next)
			}
		}
	}

	if len(ordered) < len(inSet) {
		stuck := make([]string, 0, len(inSet)-len(ordered))
		for n, d := range indeg {
			if d > 0 {
				stuck = append(stuck, n)
			}
		}
		sort.Slice(stuck, func(i, j int) bool { return less(stuck[i], stuck[j]) })
		return PathResult{OK: false, CycleNodeIDs: stuck}
	}
	return PathResult{OK: true, OrderedConceptIDs: ordered}
}

type idHeap struct {
	ids  []string
	less func(a, b string) bool
}

func (h *idHeap) Len() int           { return len(h.ids) }
func (h *idHeap) Less(i, j int) bool { return h.less(h.ids[i], h.ids[j]) }
func (h *idHeap) Swap(i, j int)      { h.ids[i], h.ids[j] = h.ids[j], h.ids[i] }
func (h *idHeap) Push(x any)         { h.ids = append(h.ids, x.(string)) }
func (h *idHeap) Pop() any {
	old := h.ids
	n := len(old)
	x := old[n-1]
	h.ids = old[:n-1]
	return x
}
