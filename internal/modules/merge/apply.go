package merge

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/tutorgraph-backend/internal/data/db"
	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/observability"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
	"github.com/yungbote/tutorgraph-backend/internal/realtime"
)

type Result struct {
	Merge   *types.ConceptMerge `json:"merge"`
	Preview Preview             `json:"preview"`
}

// Apply executes the plan Preview reports for req inside one transaction
// and records a ConceptMerge holding the pre-merge snapshot.
func (s *Service) Apply(ctx context.Context, req Request) (out *Result, err error) {
	ctx, span := observability.StartSpan(ctx, "merge.apply",
		attribute.String("canonical_id", req.CanonicalID),
		attribute.Int("duplicates", len(req.DuplicateIDs)),
	)
	defer func() {
		observability.EndSpan(span, err)
		s.deps.Metrics.ObserveMergeOp("apply", observability.StatusOf(err))
	}()

	unlock, err := s.lock(ctx, "merge:"+req.CanonicalID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var p *plan
	err = s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		var err error
		if p, err = s.plan(dbc, req); err != nil {
			return err
		}

		snap := types.MergeSnapshot{
			Concepts:       p.duplicates,
			Edges:          p.edges,
			ReviewItems:    p.reviewItems,
			ConceptSources: p.conceptSources,
			RewiredEdgeIDs: []string{},
			DeletedEdgeIDs: p.deletedEdgeIDs,
		}
		for _, ch := range p.rewired {
			snap.RewiredEdgeIDs = append(snap.RewiredEdgeIDs, ch.EdgeID)
		}
		rawSnap, err := types.JSONValue(snap)
		if err != nil {
			return fmt.Errorf("encode merge snapshot: %w", err)
		}

		// Deletes first so no rewired edge ever sits beside the edge it replaces.
		if err := s.deps.Edges.DeleteByIDs(dbc, p.deletedEdgeIDs); err != nil {
			return fmt.Errorf("delete edges: %w", err)
		}
		for _, ch := range p.rewired {
			if err := s.deps.Edges.UpdateEndpoints(dbc, ch.EdgeID, ch.NewFromConceptID, ch.NewToConceptID); err != nil {
				return fmt.Errorf("rewire edge %s: %w", ch.EdgeID, err)
			}
		}
		if err := s.deps.ReviewItems.ReassignConcept(dbc, p.reviewItemIDs, p.CanonicalID); err != nil {
			return fmt.Errorf("reassign review items: %w", err)
		}
		if err := s.deps.ConceptSources.DeleteByIDs(dbc, p.droppedSourceIDs); err != nil {
			return fmt.Errorf("drop concept sources: %w", err)
		}
		if err := s.deps.ConceptSources.Reassign(dbc, p.movedSourceIDs, p.CanonicalID); err != nil {
			return fmt.Errorf("move concept sources: %w", err)
		}

		m := &types.ConceptMerge{
			ID:           uuid.NewString(),
			CanonicalID:  p.CanonicalID,
			DuplicateIDs: types.JSONStrings(p.DuplicateIDs),
			Snapshot:     rawSnap,
		}
		aliases := make([]*types.ConceptAlias, 0, len(p.DuplicateIDs))
		for _, id := range p.DuplicateIDs {
			aliases = append(aliases, &types.ConceptAlias{AliasID: id, CanonicalID: p.CanonicalID, MergeID: m.ID})
		}
		if _, err := s.deps.Aliases.Create(dbc, aliases); err != nil {
			if db.IsUniqueViolation(err) {
				e := apperr.Conflict("concept_already_merged",
					"a duplicate was merged concurrently", map[string]any{"duplicate_ids": p.DuplicateIDs})
				e.Cause = err
				return e
			}
			return fmt.Errorf("create concept aliases: %w", err)
		}
		if _, err := s.deps.Merges.Create(dbc, m); err != nil {
			return fmt.Errorf("create merge record: %w", err)
		}
		out = &Result{Merge: m, Preview: p.Preview}
		return nil
	})
	if err != nil {
		s.log.Warn("merge apply failed", "canonical_id", req.CanonicalID, "code", apperr.CodeOf(err), "error", err)
		return nil, err
	}

	s.mirrorApply(ctx, p)
	edgeIDs := make([]string, 0, len(p.EdgeChanges))
	for _, ch := range p.EdgeChanges {
		edgeIDs = append(edgeIDs, ch.EdgeID)
	}
	s.publish(ctx, realtime.GraphEvent{
		Type:       realtime.EventMergeApplied,
		ID:         out.Merge.ID,
		ConceptIDs: append([]string{p.CanonicalID}, p.DuplicateIDs...),
		EdgeIDs:    edgeIDs,
		At:         out.Merge.CreatedAt,
	})
	s.log.Info("concepts merged",
		"merge_id", out.Merge.ID,
		"canonical_id", p.CanonicalID,
		"duplicates", len(p.DuplicateIDs),
		"rewired_edges", p.RewiredEdgeCount,
		"deleted_edges", p.DeletedEdgeCount,
		"review_items", p.ReviewItemCount,
		"sources", p.SourceCount,
	)
	return out, nil
}

func (s *Service) mirrorApply(ctx context.Context, p *plan) {
	// Mirror relationships cannot move endpoints, so rewired edges are
	// dropped and re-created.
	stale := append([]string{}, p.deletedEdgeIDs...)
	for _, ch := range p.rewired {
		stale = append(stale, ch.EdgeID)
	}
	if err := s.deps.Mirror.DeleteEdges(ctx, stale); err != nil {
		s.log.Warn("graph mirror edge delete failed", "error", err)
	}
	if len(p.rewired) > 0 {
		rewired := make([]*types.Edge, 0, len(p.rewired))
		byID := make(map[string]types.Edge, len(p.edges))
		for _, e := range p.edges {
			byID[e.ID] = e
		}
		for _, ch := range p.rewired {
			e := byID[ch.EdgeID]
			e.FromConceptID, e.ToConceptID = ch.NewFromConceptID, ch.NewToConceptID
			rewired = append(rewired, &e)
		}
		if err := s.deps.Mirror.UpsertConceptGraph(ctx, nil, rewired); err != nil {
			s.log.Warn("graph mirror edge upsert failed", "error", err)
		}
	}
	if err := s.deps.Mirror.MarkAliases(ctx, p.CanonicalID, p.DuplicateIDs); err != nil {
		s.log.Warn("graph mirror alias update failed", "error", err)
	}
}

// Undo restores every duplicate, edge, review item and source attachment the
// merge touched to its pre-merge record and stamps the merge undone. A merge
// can be undone once.
func (s *Service) Undo(ctx context.Context, mergeID string) (out *types.ConceptMerge, err error) {
	ctx, span := observability.StartSpan(ctx, "merge.undo", attribute.String("merge_id", mergeID))
	defer func() {
		observability.EndSpan(span, err)
		s.deps.Metrics.ObserveMergeOp("undo", observability.StatusOf(err))
	}()

	unlock, err := s.lock(ctx, "merge-undo:"+mergeID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var snap *types.MergeSnapshot
	err = s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		m, err := s.loadMerge(dbc, mergeID)
		if err != nil {
			return err
		}
		if m.UndoneAt != nil {
			return alreadyUndone(m.ID)
		}
		if snap, err = DecodeSnapshot(m); err != nil {
			return err
		}
		if err := s.checkUndoable(dbc, m, snap); err != nil {
			return err
		}

		// Restore deletes each snapshotted row by id and re-inserts the
		// pre-merge record, which covers rewired and deleted rows alike.
		if err := s.deps.Edges.Restore(dbc, snap.Edges); err != nil {
			return fmt.Errorf("restore edges: %w", err)
		}
		if err := s.deps.ReviewItems.Restore(dbc, snap.ReviewItems); err != nil {
			return fmt.Errorf("restore review items: %w", err)
		}
		if err := s.deps.ConceptSources.Restore(dbc, snap.ConceptSources); err != nil {
			return fmt.Errorf("restore concept sources: %w", err)
		}
		if _, err := s.deps.Aliases.DeleteByMergeID(dbc, m.ID); err != nil {
			return fmt.Errorf("remove concept aliases: %w", err)
		}

		at := s.deps.Now()
		ok, err := s.deps.Merges.MarkUndone(dbc, m.ID, at)
		if err != nil {
			return fmt.Errorf("mark merge undone: %w", err)
		}
		if !ok {
			return alreadyUndone(m.ID)
		}
		m.UndoneAt = &at
		out = m
		return nil
	})
	if err != nil {
		s.log.Warn("merge undo failed", "merge_id", mergeID, "code", apperr.CodeOf(err), "error", err)
		return nil, err
	}

	dupIDs := types.Strings(out.DuplicateIDs)
	if err := s.deps.Mirror.ClearAliases(ctx, dupIDs); err != nil {
		s.log.Warn("graph mirror alias clear failed", "error", err)
	}
	concepts := make([]*types.Concept, 0, len(snap.Concepts))
	for i := range snap.Concepts {
		concepts = append(concepts, &snap.Concepts[i])
	}
	edges := make([]*types.Edge, 0, len(snap.Edges))
	edgeIDs := make([]string, 0, len(snap.Edges))
	for i := range snap.Edges {
		edges = append(edges, &snap.Edges[i])
		edgeIDs = append(edgeIDs, snap.Edges[i].ID)
	}
	if err := s.deps.Mirror.DeleteEdges(ctx, edgeIDs); err != nil {
		s.log.Warn("graph mirror edge delete failed", "error", err)
	}
	if err := s.deps.Mirror.UpsertConceptGraph(ctx, concepts, edges); err != nil {
		s.log.Warn("graph mirror restore failed", "error", err)
	}
	s.publish(ctx, realtime.GraphEvent{
		Type:       realtime.EventMergeUndone,
		ID:         out.ID,
		ConceptIDs: append([]string{out.CanonicalID}, dupIDs...),
		EdgeIDs:    edgeIDs,
		At:         *out.UndoneAt,
	})
	s.log.Info("merge undone", "merge_id", out.ID, "canonical_id", out.CanonicalID, "duplicates", len(dupIDs))
	return out, nil
}

func alreadyUndone(mergeID string) error {
	return apperr.Conflict("merge_already_undone",
		fmt.Sprintf("merge %s was already undone", mergeID), map[string]any{"merge_id": mergeID})
}
