package lens

import (
	"sort"
	"strings"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
)

const (
	SidePrereq    = "prereq"
	SideCenter    = "center"
	SideDependent = "dependent"
	SideRelated   = "related"

	WarningCycleDetected = "cycle_detected"
)

type Input struct {
	CenterID string
	Radius   int
	Edges    []types.EdgeSummary
	// Nodes supplies titles for ranking; ids missing here rank by id.
	Nodes []types.ConceptSummary
	// EdgeTypeFilter limits secondary (non-prerequisite) edges; empty means all.
	EdgeTypeFilter []string
	// IncludeRelated pulls in direct secondary-edge neighbours of the center
	// as side "related" at depth 1.
	IncludeRelated bool
}

type NodeMeta struct {
	ID    string `json:"id"`
	Side  string `json:"side"`
	Depth int    `json:"depth"`
	Rank  int    `json:"rank"`
}

type Result struct {
	NodeIDs  []string            `json:"node_ids"`
	EdgeIDs  []string            `json:"edge_ids"`
	Metadata map[string]NodeMeta `json:"metadata"`
	Warnings []string            `json:"warnings"`
}

// Compute builds the bounded neighbourhood of CenterID: prerequisites walked
// backward up to Radius hops, dependents walked forward up to Radius hops.
// A cycle through the center is reported as a warning and the partial
// neighbourhood is still returned.
func Compute(in Input) Result {
	radius := in.Radius
	if radius < 0 {
		radius = 0
	}
	center := in.CenterID

	prereqsOf := map[string][]string{}
	dependentsOf := map[string][]string{}
	for _, e := range in.Edges {
		if e.Type != types.EdgePrerequisiteOf || e.FromConceptID == e.ToConceptID {
			continue
		}
		prereqsOf[e.ToConceptID] = append(prereqsOf[e.ToConceptID], e.FromConceptID)
		dependentsOf[e.FromConceptID] = append(dependentsOf[e.FromConceptID], e.ToConceptID)
	}

	meta := map[string]*NodeMeta{center: {ID: center, Side: SideCenter, Depth: 0}}
	cycle := false

	frontier := []string{center}
	for depth := 1; depth <= radius && len(frontier) > 0; depth++ {
		next := []string{}
		for _, n := range frontier {
			for _, p := range prereqsOf[n] {
				if p == center {
					cycle = true
					continue
				}
				if _, seen := meta[p]; seen {
					continue
				}
				meta[p] = &NodeMeta{ID: p, Side: SidePrereq, Depth: depth}
				next = append(next, p)
			}
		}
		frontier = next
	}

	frontier = []string{center}
	for depth := 1; depth <= radius && len(frontier) > 0; depth++ {
		next := []string{}
		for _, n := range frontier {
			for _, d := range dependentsOf[n] {
				if d == center {
					cycle = true
					continue
				}
				if m, seen := meta[d]; seen {
					if m.Side == SidePrereq {
						cycle = true
					}
					continue
				}
				meta[d] = &NodeMeta{ID: d, Side: SideDependent, Depth: depth}
				next = append(next, d)
			}
		}
		frontier = next
	}

	filter := map[string]bool{}
	for _, t := range in.EdgeTypeFilter {
		filter[t] = true
	}
	secondaryAllowed := func(t string) bool {
		return len(filter) == 0 || filter[t]
	}

	if in.IncludeRelated && radius > 0 {
		for _, e := range in.Edges {
			if e.Type == types.EdgePrerequisiteOf || !secondaryAllowed(e.Type) {
				continue
			}
			var other string
			switch center {
			case e.FromConceptID:
				other = e.ToConceptID
			case e.ToConceptID:
				other = e.FromConceptID
			default:
				continue
			}
			if _, seen := meta[other]; !seen {
				meta[other] = &NodeMeta{ID: other, Side: SideRelated, Depth: 1}
			}
		}
	}

	edgeIDs := []string{}
	for _, e := range in.Edges {
		if _, ok := meta[e.FromConceptID]; !ok {
			continue
		}
		if _, ok := meta[e.ToConceptID]; !ok {
			continue
		}
		if e.Type == types.EdgePrerequisiteOf || secondaryAllowed(e.Type) {
			edgeIDs = append(edgeIDs, e.ID)
		}
	}
	sort.Strings(edgeIDs)
	edgeIDs = dedupeSorted(edgeIDs)

	assignRanks(meta, titleIndex(in.Nodes))

	out := Result{
		NodeIDs:  make([]string, 0, len(meta)),
		EdgeIDs:  edgeIDs,
		Metadata: make(map[string]NodeMeta, len(meta)),
		Warnings: []string{},
	}
	for id, m := range meta {
		out.NodeIDs = append(out.NodeIDs, id)
		out.Metadata[id] = *m
	}
	sort.Strings(out.NodeIDs)
	if cycle {
		out.Warnings = append(out.Warnings, WarningCycleDetected)
	}
	return out
}

type tier struct {
	side  string
	depth int
}

func assignRanks(meta map[string]*NodeMeta, titles map[string]string) {
	groups := map[tier][]*NodeMeta{}
	for _, m := range meta {
		k := tier{side: m.Side, depth: m.Depth}
		groups[k] = append(groups[k], m)
	}
	for _, members := range groups {
		sort.Slice(members, func(i, j int) bool {
			ti := strings.ToLower(titleOr(titles, members[i].ID))
			tj := strings.ToLower(titleOr(titles, members[j].ID))
			if ti != tj {
				return ti < tj
			}
			return members[i].ID < members[j].ID
		})
		for i, m := range members {
			m.Rank = i
		}
	}
}

func titleIndex(nodes []types.ConceptSummary) map[string]string {
	out := make(map[string]string, len(nodes))
	for _, n := range nodes {
		out[n.ID] = n.Title
	}
	return out
}

func titleOr(titles map[string]string, id string) string {
	if t := titles[id]; t != "" {
		return t
	}
	return id
}

func dedupeSorted(ss []string) []string {
	if len(ss) < 2 {
		return ss
	}
	out := ss[:1]
	for _, s := range ss[1:] {
		if s != out[len(out)-1] {
			out = append(out, s)
		}
	}
	return out
}
