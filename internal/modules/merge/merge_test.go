package merge

import (
	"context"
	"sort"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/tutorgraph-backend/internal/data/repos"
	"github.com/yungbote/tutorgraph-backend/internal/data/repos/testutil"
	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/observability"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
	"github.com/yungbote/tutorgraph-backend/internal/realtime"
	"github.com/yungbote/tutorgraph-backend/internal/realtime/bus"
)

type fixture struct {
	ctx     context.Context
	db      *gorm.DB
	svc     *Service
	bus     *bus.MemoryBus
	metrics *observability.Metrics

	concepts       repos.ConceptRepo
	edges          repos.EdgeRepo
	reviewItems    repos.ReviewItemRepo
	conceptSources repos.ConceptSourceRepo
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	f := &fixture{
		ctx:            context.Background(),
		db:             db,
		bus:            bus.NewMemoryBus(),
		metrics:        observability.NewMetrics(prometheus.NewRegistry()),
		concepts:       repos.NewConceptRepo(db, log),
		edges:          repos.NewEdgeRepo(db, log),
		reviewItems:    repos.NewReviewItemRepo(db, log),
		conceptSources: repos.NewConceptSourceRepo(db, log),
	}
	f.svc = New(Deps{
		DB:             db,
		Log:            log,
		Concepts:       f.concepts,
		Aliases:        repos.NewConceptAliasRepo(db, log),
		Edges:          f.edges,
		ReviewItems:    f.reviewItems,
		ConceptSources: f.conceptSources,
		Merges:         repos.NewConceptMergeRepo(db, log),
		Bus:            f.bus,
		Metrics:        f.metrics,
	})
	return f
}

func (f *fixture) dbc() dbctx.Context { return dbctx.Context{Ctx: f.ctx} }

type edgeShape struct {
	ID, From, To, Type string
}

func (f *fixture) edgeShapes(t *testing.T, conceptIDs ...string) []edgeShape {
	t.Helper()
	edges, err := f.edges.ListByConceptIDs(f.dbc(), conceptIDs)
	require.NoError(t, err)
	out := make([]edgeShape, 0, len(edges))
	for _, e := range edges {
		out = append(out, edgeShape{e.ID, e.FromConceptID, e.ToConceptID, e.Type})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func changeFor(t *testing.T, p *Preview, edgeID string) EdgeChange {
	t.Helper()
	for _, ch := range p.EdgeChanges {
		if ch.EdgeID == edgeID {
			return ch
		}
	}
	t.Fatalf("no edge change for %s", edgeID)
	return EdgeChange{}
}

func TestMergeUndoIsExact(t *testing.T) {
	f := newFixture(t)
	testutil.SeedConcept(t, f.ctx, f.db, "algebra", "Algebra")
	testutil.SeedConcept(t, f.ctx, f.db, "derivative", "Derivative")
	testutil.SeedConcept(t, f.ctx, f.db, "derivatives", "Derivatives")
	rewired := testutil.SeedEdge(t, f.ctx, f.db, "algebra", "derivatives", types.EdgePrerequisiteOf)
	selfLoop := testutil.SeedEdge(t, f.ctx, f.db, "derivatives", "derivative", types.EdgeRelatedTo)
	review := testutil.SeedReviewItem(t, f.ctx, f.db, "derivatives")

	before := f.edgeShapes(t, "derivatives")
	req := Request{CanonicalID: "derivative", DuplicateIDs: []string{"derivatives"}}

	preview, err := f.svc.Preview(f.ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 1, preview.RewiredEdgeCount)
	assert.Equal(t, 1, preview.DeletedEdgeCount)
	assert.Equal(t, 1, preview.ReviewItemCount)
	assert.Equal(t, 0, preview.SourceCount)
	rw := changeFor(t, preview, rewired.ID)
	assert.Equal(t, EdgeRewire, rw.Action)
	assert.Equal(t, "algebra", rw.NewFromConceptID)
	assert.Equal(t, "derivative", rw.NewToConceptID)
	del := changeFor(t, preview, selfLoop.ID)
	assert.Equal(t, EdgeDelete, del.Action)
	assert.Equal(t, ReasonSelfLoop, del.Reason)
	assert.Equal(t, before, f.edgeShapes(t, "derivatives"), "preview must not mutate")

	res, err := f.svc.Apply(f.ctx, req)
	require.NoError(t, err)
	require.NotNil(t, res.Merge)
	assert.Equal(t, *preview, res.Preview)

	c, err := f.concepts.GetByID(f.dbc(), "derivatives")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "derivative", c.ID)
	assert.Empty(t, f.edgeShapes(t, "derivatives"))
	e, err := f.edges.GetByID(f.dbc(), rewired.ID)
	require.NoError(t, err)
	assert.Equal(t, "derivative", e.ToConceptID)
	gone, err := f.edges.GetByID(f.dbc(), selfLoop.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	ri, err := f.reviewItems.GetByID(f.dbc(), review.ID)
	require.NoError(t, err)
	assert.Equal(t, "derivative", ri.ConceptID)
	summaries, err := f.concepts.ListSummaries(f.dbc())
	require.NoError(t, err)
	assert.Len(t, summaries, 2)

	undone, err := f.svc.Undo(f.ctx, res.Merge.ID)
	require.NoError(t, err)
	require.NotNil(t, undone.UndoneAt)

	c, err = f.concepts.GetByID(f.dbc(), "derivatives")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "derivatives", c.ID)
	assert.Equal(t, "Derivatives", c.Title)
	assert.Equal(t, before, f.edgeShapes(t, "derivatives"))
	ri, err = f.reviewItems.GetByID(f.dbc(), review.ID)
	require.NoError(t, err)
	assert.Equal(t, "derivatives", ri.ConceptID)
	assert.Equal(t, review.Prompt, ri.Prompt)
	require.NotNil(t, ri.DueAt)
	assert.True(t, review.DueAt.Equal(*ri.DueAt))

	_, err = f.svc.Undo(f.ctx, res.Merge.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "merge_already_undone", apperr.CodeOf(err))

	m, err := f.svc.Get(f.ctx, res.Merge.ID)
	require.NoError(t, err)
	assert.NotNil(t, m.UndoneAt)

	events := f.bus.Published()
	require.Len(t, events, 2)
	assert.Equal(t, realtime.EventMergeApplied, events[0].Type)
	assert.Equal(t, realtime.EventMergeUndone, events[1].Type)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.MergeOps.WithLabelValues("undo", "ok")))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.MergeOps.WithLabelValues("undo", "conflict")))
}

func TestUndo_RequiresLaterOverlappingMergesUndoneFirst(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"x", "y", "c", "z"} {
		testutil.SeedConcept(t, f.ctx, f.db, id, id)
	}
	e := testutil.SeedEdge(t, f.ctx, f.db, "x", "y", types.EdgePrerequisiteOf)

	first, err := f.svc.Apply(f.ctx, Request{CanonicalID: "c", DuplicateIDs: []string{"x"}})
	require.NoError(t, err)
	second, err := f.svc.Apply(f.ctx, Request{CanonicalID: "z", DuplicateIDs: []string{"y"}})
	require.NoError(t, err)

	got, err := f.edges.GetByID(f.dbc(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, "c", got.FromConceptID)
	assert.Equal(t, "z", got.ToConceptID)

	_, err = f.svc.Undo(f.ctx, first.Merge.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "merge_undo_blocked", apperr.CodeOf(err))
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, second.Merge.ID, ae.Fields["blocking_merge_id"])

	got, err = f.edges.GetByID(f.dbc(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, "c", got.FromConceptID, "a refused undo must not touch the graph")
	assert.Equal(t, "z", got.ToConceptID)
	m, err := f.svc.Get(f.ctx, first.Merge.ID)
	require.NoError(t, err)
	assert.Nil(t, m.UndoneAt)

	_, err = f.svc.Undo(f.ctx, second.Merge.ID)
	require.NoError(t, err)
	_, err = f.svc.Undo(f.ctx, first.Merge.ID)
	require.NoError(t, err)

	got, err = f.edges.GetByID(f.dbc(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, "x", got.FromConceptID)
	assert.Equal(t, "y", got.ToConceptID)
	for _, id := range []string{"x", "y"} {
		c, err := f.concepts.GetByID(f.dbc(), id)
		require.NoError(t, err)
		assert.Equal(t, id, c.ID)
	}
}

func TestPreview_DeletesEdgesThatWouldDuplicateCanonicalEdges(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"a", "canon", "dup1", "dup2", "x"} {
		testutil.SeedConcept(t, f.ctx, f.db, id, id)
	}
	kept := testutil.SeedEdge(t, f.ctx, f.db, "a", "canon", types.EdgePrerequisiteOf)
	clash := testutil.SeedEdge(t, f.ctx, f.db, "a", "dup1", types.EdgePrerequisiteOf)
	otherType := testutil.SeedEdge(t, f.ctx, f.db, "a", "dup1", types.EdgeUsedIn)
	between := testutil.SeedEdge(t, f.ctx, f.db, "dup1", "dup2", types.EdgePartOf)
	out1 := testutil.SeedEdge(t, f.ctx, f.db, "dup1", "x", types.EdgeContrastsWith)
	out2 := testutil.SeedEdge(t, f.ctx, f.db, "dup2", "x", types.EdgeContrastsWith)

	p, err := f.svc.Preview(f.ctx, Request{CanonicalID: "canon", DuplicateIDs: []string{"dup1", "dup2"}})
	require.NoError(t, err)

	ch := changeFor(t, p, clash.ID)
	assert.Equal(t, EdgeDelete, ch.Action)
	assert.Equal(t, ReasonDuplicateEdge, ch.Reason)
	assert.Equal(t, kept.ID, ch.DuplicateOfEdgeID)

	assert.Equal(t, EdgeRewire, changeFor(t, p, otherType.ID).Action)
	assert.Equal(t, ReasonSelfLoop, changeFor(t, p, between.ID).Reason)

	// dup1->x and dup2->x collapse onto one key: exactly one survives.
	a, b := changeFor(t, p, out1.ID), changeFor(t, p, out2.ID)
	assert.ElementsMatch(t, []string{EdgeRewire, EdgeDelete}, []string{a.Action, b.Action})

	assert.Equal(t, 2, p.RewiredEdgeCount)
	assert.Equal(t, 3, p.DeletedEdgeCount)
	assert.Len(t, p.EdgeChanges, 5)
	for _, ch := range p.EdgeChanges {
		assert.NotEqual(t, kept.ID, ch.EdgeID, "edges not touching a duplicate are left alone")
	}
}

func TestApply_MovesSourcesAndDropsRepeatedAttachments(t *testing.T) {
	f := newFixture(t)
	testutil.SeedConcept(t, f.ctx, f.db, "canon", "Canon")
	testutil.SeedConcept(t, f.ctx, f.db, "dup", "Dup")
	shared := testutil.SeedSource(t, f.ctx, f.db, "https://example.com/shared")
	own := testutil.SeedSource(t, f.ctx, f.db, "https://example.com/own")
	testutil.SeedConceptSource(t, f.ctx, f.db, "canon", shared.ID)
	dropped := testutil.SeedConceptSource(t, f.ctx, f.db, "dup", shared.ID)
	moved := testutil.SeedConceptSource(t, f.ctx, f.db, "dup", own.ID)

	res, err := f.svc.Apply(f.ctx, Request{CanonicalID: "canon", DuplicateIDs: []string{"dup"}})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Preview.SourceCount)

	rows, err := f.conceptSources.ListByConceptIDs(f.dbc(), []string{"canon", "dup"})
	require.NoError(t, err)
	bySource := map[string][]string{}
	for _, r := range rows {
		assert.Equal(t, "canon", r.ConceptID)
		bySource[r.SourceID] = append(bySource[r.SourceID], r.ID)
	}
	assert.Len(t, bySource[shared.ID], 1)
	assert.Equal(t, []string{moved.ID}, bySource[own.ID])

	_, err = f.svc.Undo(f.ctx, res.Merge.ID)
	require.NoError(t, err)
	rows, err = f.conceptSources.ListByConceptIDs(f.dbc(), []string{"dup"})
	require.NoError(t, err)
	ids := []string{}
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{dropped.ID, moved.ID}, ids)
}

func TestPreviewAndApply_RejectBadRequests(t *testing.T) {
	f := newFixture(t)
	testutil.SeedConcept(t, f.ctx, f.db, "canon", "Canon")
	testutil.SeedConcept(t, f.ctx, f.db, "dup", "Dup")
	testutil.SeedConcept(t, f.ctx, f.db, "other", "Other")

	cases := []struct {
		name string
		req  Request
		kind error
		code string
	}{
		{"no duplicates", Request{CanonicalID: "canon"}, apperr.ErrInvalidArgument, "invalid_merge_request"},
		{"no canonical", Request{DuplicateIDs: []string{"dup"}}, apperr.ErrInvalidArgument, "invalid_merge_request"},
		{"canonical listed as duplicate", Request{CanonicalID: "canon", DuplicateIDs: []string{"dup", "canon"}}, apperr.ErrInvalidArgument, "canonical_in_duplicates"},
		{"repeated duplicate", Request{CanonicalID: "canon", DuplicateIDs: []string{"dup", "dup"}}, apperr.ErrInvalidArgument, "duplicate_ids_repeated"},
		{"unknown canonical", Request{CanonicalID: "nope", DuplicateIDs: []string{"dup"}}, apperr.ErrNotFound, "concept_not_found"},
		{"unknown duplicate", Request{CanonicalID: "canon", DuplicateIDs: []string{"nope"}}, apperr.ErrNotFound, "concept_not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Preview(f.ctx, tc.req)
			require.ErrorIs(t, err, tc.kind)
			assert.Equal(t, tc.code, apperr.CodeOf(err))
			_, err = f.svc.Apply(f.ctx, tc.req)
			require.ErrorIs(t, err, tc.kind)
		})
	}

	res, err := f.svc.Apply(f.ctx, Request{CanonicalID: "canon", DuplicateIDs: []string{"dup"}})
	require.NoError(t, err)

	_, err = f.svc.Apply(f.ctx, Request{CanonicalID: "other", DuplicateIDs: []string{"dup"}})
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "concept_already_merged", apperr.CodeOf(err))

	_, err = f.svc.Apply(f.ctx, Request{CanonicalID: "other", DuplicateIDs: []string{"canon"}})
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "duplicate_is_canonical", apperr.CodeOf(err))

	_, err = f.svc.Undo(f.ctx, res.Merge.ID)
	require.NoError(t, err)
	_, err = f.svc.Apply(f.ctx, Request{CanonicalID: "other", DuplicateIDs: []string{"dup"}})
	require.NoError(t, err, "an undone merge frees its duplicates")
}

func TestUndo_UnknownMerge(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Undo(f.ctx, "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.Get(f.ctx, "missing")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSnapshotRecordsPreMergeRows(t *testing.T) {
	f := newFixture(t)
	testutil.SeedConcept(t, f.ctx, f.db, "canon", "Canon")
	testutil.SeedConcept(t, f.ctx, f.db, "dup", "Dup")
	e := testutil.SeedEdge(t, f.ctx, f.db, "dup", "canon", types.EdgeRelatedTo)

	res, err := f.svc.Apply(f.ctx, Request{CanonicalID: "canon", DuplicateIDs: []string{"dup"}})
	require.NoError(t, err)
	m, err := f.svc.Get(f.ctx, res.Merge.ID)
	require.NoError(t, err)
	snap, err := DecodeSnapshot(m)
	require.NoError(t, err)
	require.Len(t, snap.Concepts, 1)
	assert.Equal(t, "Dup", snap.Concepts[0].Title)
	require.Len(t, snap.Edges, 1)
	assert.Equal(t, e.ID, snap.Edges[0].ID)
	assert.Equal(t, []string{e.ID}, snap.DeletedEdgeIDs)
	assert.Empty(t, snap.RewiredEdgeIDs)
	assert.Equal(t, []string{"dup"}, types.Strings(m.DuplicateIDs))
}
