package merge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/observability"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
)

const (
	EdgeRewire = "rewire"
	EdgeDelete = "delete"

	ReasonSelfLoop      = "self_loop"
	ReasonDuplicateEdge = "duplicate_edge"
)

var validate = validator.New()

// EdgeChange is one planned edit to an edge touching a duplicate.
type EdgeChange struct {
	EdgeID        string `json:"edge_id"`
	Action        string `json:"action"`
	Type          string `json:"type"`
	FromConceptID string `json:"from_concept_id"`
	ToConceptID   string `json:"to_concept_id"`
	// Endpoints after a rewire; empty for deletes.
	NewFromConceptID string `json:"new_from_concept_id,omitempty"`
	NewToConceptID   string `json:"new_to_concept_id,omitempty"`
	// Why a delete was chosen over a rewire.
	Reason string `json:"reason,omitempty"`
	// For duplicate_edge deletes, the edge that already carries the key.
	DuplicateOfEdgeID string `json:"duplicate_of_edge_id,omitempty"`
}

type Preview struct {
	CanonicalID      string       `json:"canonical_id"`
	DuplicateIDs     []string     `json:"duplicate_ids"`
	EdgeChanges      []EdgeChange `json:"edge_changes"`
	RewiredEdgeCount int          `json:"rewired_edge_count"`
	DeletedEdgeCount int          `json:"deleted_edge_count"`
	ReviewItemCount  int          `json:"review_item_count"`
	SourceCount      int          `json:"source_count"`
}

// plan is a Preview plus the full rows apply needs to execute and snapshot it.
type plan struct {
	Preview

	duplicates     []types.Concept
	edges          []types.Edge
	reviewItems    []types.ReviewItem
	conceptSources []types.ConceptSource

	rewired        []EdgeChange
	deletedEdgeIDs []string
	reviewItemIDs  []string
	// Attachments moved to the canonical, and those dropped because the
	// canonical already cites the same source.
	movedSourceIDs   []string
	droppedSourceIDs []string
}

// Preview computes what Apply would do without changing anything.
func (s *Service) Preview(ctx context.Context, req Request) (out *Preview, err error) {
	defer func() { s.deps.Metrics.ObserveMergeOp("preview", observability.StatusOf(err)) }()
	p, err := s.plan(dbctx.Context{Ctx: ctx}, req)
	if err != nil {
		return nil, err
	}
	return &p.Preview, nil
}

type edgeKey struct {
	from, to, typ string
}

func (s *Service) plan(dbc dbctx.Context, req Request) (*plan, error) {
	if err := checkRequest(req); err != nil {
		return nil, err
	}
	canonicalID := req.CanonicalID
	dupIDs := req.DuplicateIDs

	canonical, err := s.deps.Concepts.GetRawByID(dbc, canonicalID)
	if err != nil {
		return nil, fmt.Errorf("load canonical concept: %w", err)
	}
	if canonical == nil {
		return nil, apperr.NotFound("concept_not_found",
			fmt.Sprintf("concept %s not found", canonicalID), map[string]any{"concept_id": canonicalID})
	}
	dups, err := s.deps.Concepts.GetRawByIDs(dbc, dupIDs)
	if err != nil {
		return nil, fmt.Errorf("load duplicate concepts: %w", err)
	}
	byID := make(map[string]*types.Concept, len(dups))
	for _, c := range dups {
		byID[c.ID] = c
	}
	for _, id := range dupIDs {
		if byID[id] == nil {
			return nil, apperr.NotFound("concept_not_found",
				fmt.Sprintf("concept %s not found", id), map[string]any{"concept_id": id})
		}
	}

	all := append([]string{canonicalID}, dupIDs...)
	aliased, err := s.deps.Aliases.Resolve(dbc, all)
	if err != nil {
		return nil, fmt.Errorf("resolve aliases: %w", err)
	}
	if len(aliased) > 0 {
		ids := make([]string, 0, len(aliased))
		for id := range aliased {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return nil, apperr.Conflict("concept_already_merged",
			fmt.Sprintf("concepts already merged into another: %s", strings.Join(ids, ", ")),
			map[string]any{"concept_ids": ids})
	}
	// A duplicate that is itself the canonical of a live merge would leave
	// two-hop aliases behind.
	for _, id := range dupIDs {
		held, err := s.deps.Aliases.ListByCanonicalID(dbc, id)
		if err != nil {
			return nil, fmt.Errorf("list aliases of %s: %w", id, err)
		}
		if len(held) > 0 {
			return nil, apperr.Conflict("duplicate_is_canonical",
				fmt.Sprintf("concept %s is the canonical of an earlier merge", id),
				map[string]any{"concept_id": id})
		}
	}

	p := &plan{Preview: Preview{
		CanonicalID:  canonicalID,
		DuplicateIDs: append([]string{}, dupIDs...),
		EdgeChanges:  []EdgeChange{},
	}}
	for _, id := range dupIDs {
		p.duplicates = append(p.duplicates, *byID[id])
	}

	if err := s.planEdges(dbc, p); err != nil {
		return nil, err
	}
	if err := s.planReviewItems(dbc, p); err != nil {
		return nil, err
	}
	if err := s.planSources(dbc, p); err != nil {
		return nil, err
	}
	return p, nil
}

func checkRequest(req Request) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return apperr.Validation("invalid_merge_request", err.Error(),
				map[string]any{"canonical_id": req.CanonicalID, "duplicate_ids": req.DuplicateIDs})
		}
		return fmt.Errorf("validate merge request: %w", err)
	}
	seen := map[string]bool{}
	for _, id := range req.DuplicateIDs {
		if id == req.CanonicalID {
			return apperr.Validation("canonical_in_duplicates",
				fmt.Sprintf("concept %s cannot be merged into itself", id), map[string]any{"concept_id": id})
		}
		if seen[id] {
			return apperr.Validation("duplicate_ids_repeated",
				fmt.Sprintf("concept %s is listed twice", id), map[string]any{"concept_id": id})
		}
		seen[id] = true
	}
	return nil
}

// planEdges decides rewire vs delete for every edge touching a duplicate.
// Edges not touching a duplicate claim their (from, to, type) key first;
// duplicate-touching edges then claim keys in id order, and an edge whose
// rewired key is taken, or which collapses onto the canonical, is deleted.
func (s *Service) planEdges(dbc dbctx.Context, p *plan) error {
	isDup := make(map[string]bool, len(p.DuplicateIDs))
	for _, id := range p.DuplicateIDs {
		isDup[id] = true
	}
	edges, err := s.deps.Edges.ListByConceptIDs(dbc, append([]string{p.CanonicalID}, p.DuplicateIDs...))
	if err != nil {
		return fmt.Errorf("list edges: %w", err)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	claimed := map[edgeKey]string{}
	touching := []*types.Edge{}
	for _, e := range edges {
		if isDup[e.FromConceptID] || isDup[e.ToConceptID] {
			touching = append(touching, e)
			continue
		}
		k := edgeKey{e.FromConceptID, e.ToConceptID, e.Type}
		if _, ok := claimed[k]; !ok {
			claimed[k] = e.ID
		}
	}

	rewrite := func(id string) string {
		if isDup[id] {
			return p.CanonicalID
		}
		return id
	}
	for _, e := range touching {
		p.edges = append(p.edges, *e)
		ch := EdgeChange{
			EdgeID:        e.ID,
			Type:          e.Type,
			FromConceptID: e.FromConceptID,
			ToConceptID:   e.ToConceptID,
		}
		from, to := rewrite(e.FromConceptID), rewrite(e.ToConceptID)
		k := edgeKey{from, to, e.Type}
		switch holder, taken := claimed[k]; {
		case from == to:
			ch.Action, ch.Reason = EdgeDelete, ReasonSelfLoop
		case taken:
			ch.Action, ch.Reason, ch.DuplicateOfEdgeID = EdgeDelete, ReasonDuplicateEdge, holder
		default:
			claimed[k] = e.ID
			ch.Action, ch.NewFromConceptID, ch.NewToConceptID = EdgeRewire, from, to
		}
		p.EdgeChanges = append(p.EdgeChanges, ch)
		if ch.Action == EdgeRewire {
			p.rewired = append(p.rewired, ch)
			p.RewiredEdgeCount++
		} else {
			p.deletedEdgeIDs = append(p.deletedEdgeIDs, e.ID)
			p.DeletedEdgeCount++
		}
	}
	return nil
}

func (s *Service) planReviewItems(dbc dbctx.Context, p *plan) error {
	items, err := s.deps.ReviewItems.ListByConceptIDs(dbc, p.DuplicateIDs)
	if err != nil {
		return fmt.Errorf("list review items: %w", err)
	}
	for _, ri := range items {
		p.reviewItems = append(p.reviewItems, *ri)
		p.reviewItemIDs = append(p.reviewItemIDs, ri.ID)
	}
	p.ReviewItemCount = len(items)
	return nil
}

func (s *Service) planSources(dbc dbctx.Context, p *plan) error {
	rows, err := s.deps.ConceptSources.ListByConceptIDs(dbc, append([]string{p.CanonicalID}, p.DuplicateIDs...))
	if err != nil {
		return fmt.Errorf("list concept sources: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })

	cited := map[string]bool{}
	for _, cs := range rows {
		if cs.ConceptID == p.CanonicalID {
			cited[cs.SourceID] = true
		}
	}
	for _, cs := range rows {
		if cs.ConceptID == p.CanonicalID {
			continue
		}
		p.conceptSources = append(p.conceptSources, *cs)
		if cited[cs.SourceID] {
			p.droppedSourceIDs = append(p.droppedSourceIDs, cs.ID)
			continue
		}
		cited[cs.SourceID] = true
		p.movedSourceIDs = append(p.movedSourceIDs, cs.ID)
	}
	p.SourceCount = len(p.conceptSources)
	return nil
}
