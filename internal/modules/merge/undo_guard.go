package merge

import (
	"fmt"
	"sort"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
)

// checkUndoable refuses to undo m unless every row it touched still has the
// shape m left behind. Merges unwind last-in-first-out: a later live merge
// that moved one of those rows must be undone first.
func (s *Service) checkUndoable(dbc dbctx.Context, m *types.ConceptMerge, snap *types.MergeSnapshot) error {
	dups := map[string]bool{}
	for _, id := range types.Strings(m.DuplicateIDs) {
		dups[id] = true
	}
	remap := func(id string) string {
		if dups[id] {
			return m.CanonicalID
		}
		return id
	}

	moved := map[string]bool{}

	pre := make(map[string]types.Edge, len(snap.Edges))
	for _, e := range snap.Edges {
		pre[e.ID] = e
	}
	rewired, err := s.deps.Edges.ListByIDs(dbc, snap.RewiredEdgeIDs)
	if err != nil {
		return fmt.Errorf("load rewired edges: %w", err)
	}
	current := make(map[string]*types.Edge, len(rewired))
	for _, e := range rewired {
		current[e.ID] = e
	}
	for _, id := range snap.RewiredEdgeIDs {
		was, cur := pre[id], current[id]
		if cur == nil || cur.FromConceptID != remap(was.FromConceptID) || cur.ToConceptID != remap(was.ToConceptID) {
			moved[id] = true
		}
	}
	deleted, err := s.deps.Edges.ListByIDs(dbc, snap.DeletedEdgeIDs)
	if err != nil {
		return fmt.Errorf("load deleted edges: %w", err)
	}
	for _, e := range deleted {
		moved[e.ID] = true
	}

	reviewIDs := make([]string, 0, len(snap.ReviewItems))
	for _, ri := range snap.ReviewItems {
		reviewIDs = append(reviewIDs, ri.ID)
	}
	reviews, err := s.deps.ReviewItems.ListByIDs(dbc, reviewIDs)
	if err != nil {
		return fmt.Errorf("load review items: %w", err)
	}
	found := map[string]bool{}
	for _, ri := range reviews {
		found[ri.ID] = true
		if ri.ConceptID != m.CanonicalID {
			moved[ri.ID] = true
		}
	}
	for _, id := range reviewIDs {
		if !found[id] {
			moved[id] = true
		}
	}

	// Dropped attachments are gone on purpose, so only survivors are checked.
	sourceIDs := make([]string, 0, len(snap.ConceptSources))
	for _, cs := range snap.ConceptSources {
		sourceIDs = append(sourceIDs, cs.ID)
	}
	sources, err := s.deps.ConceptSources.ListByIDs(dbc, sourceIDs)
	if err != nil {
		return fmt.Errorf("load concept sources: %w", err)
	}
	for _, cs := range sources {
		if cs.ConceptID != m.CanonicalID {
			moved[cs.ID] = true
		}
	}

	if len(moved) == 0 {
		return nil
	}

	live, err := s.deps.Merges.ListLive(dbc)
	if err != nil {
		return fmt.Errorf("list live merges: %w", err)
	}
	// Newest overlapping merge wins so the caller learns what to undo next.
	var blocking string
	for _, other := range live {
		if other.ID == m.ID {
			continue
		}
		osnap, err := DecodeSnapshot(other)
		if err != nil {
			return err
		}
		if snapshotTouches(osnap, moved) {
			blocking = other.ID
		}
	}
	ids := make([]string, 0, len(moved))
	for id := range moved {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	fields := map[string]any{"merge_id": m.ID, "changed_ids": ids}
	msg := fmt.Sprintf("merge %s cannot be undone: rows it touched changed since", m.ID)
	if blocking != "" {
		fields["blocking_merge_id"] = blocking
		msg = fmt.Sprintf("merge %s cannot be undone before later merge %s", m.ID, blocking)
	}
	return apperr.Conflict("merge_undo_blocked", msg, fields)
}

func snapshotTouches(snap *types.MergeSnapshot, ids map[string]bool) bool {
	for _, e := range snap.Edges {
		if ids[e.ID] {
			return true
		}
	}
	for _, ri := range snap.ReviewItems {
		if ids[ri.ID] {
			return true
		}
	}
	for _, cs := range snap.ConceptSources {
		if ids[cs.ID] {
			return true
		}
	}
	return false
}
