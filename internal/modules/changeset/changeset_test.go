package changeset

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	redisclient "github.com/yungbote/tutorgraph-backend/internal/clients/redis"
	"github.com/yungbote/tutorgraph-backend/internal/data/repos"
	"github.com/yungbote/tutorgraph-backend/internal/data/repos/testutil"
	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/modules/vaultpatch"
	"github.com/yungbote/tutorgraph-backend/internal/observability"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
	"github.com/yungbote/tutorgraph-backend/internal/realtime"
	"github.com/yungbote/tutorgraph-backend/internal/realtime/bus"
)

type fixture struct {
	ctx     context.Context
	db      *gorm.DB
	root    string
	svc     *Service
	bus     *bus.MemoryBus
	metrics *observability.Metrics

	concepts   repos.ConceptRepo
	aliases    repos.ConceptAliasRepo
	edges      repos.EdgeRepo
	changesets repos.ChangesetRepo
	items      repos.ChangesetItemRepo
	vaultFiles repos.VaultFileRepo
}

func newFixture(t *testing.T, mutate ...func(*Deps)) *fixture {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	f := &fixture{
		ctx:        context.Background(),
		db:         db,
		root:       t.TempDir(),
		bus:        bus.NewMemoryBus(),
		metrics:    observability.NewMetrics(prometheus.NewRegistry()),
		concepts:   repos.NewConceptRepo(db, log),
		aliases:    repos.NewConceptAliasRepo(db, log),
		edges:      repos.NewEdgeRepo(db, log),
		changesets: repos.NewChangesetRepo(db, log),
		items:      repos.NewChangesetItemRepo(db, log),
		vaultFiles: repos.NewVaultFileRepo(db, log),
	}
	deps := Deps{
		DB:         db,
		Log:        log,
		Concepts:   f.concepts,
		Aliases:    f.aliases,
		Edges:      f.edges,
		Changesets: f.changesets,
		Items:      f.items,
		Chunks:     repos.NewChunkRepo(db, log),
		VaultFiles: f.vaultFiles,
		VaultRoot:  f.root,
		Bus:        f.bus,
		Metrics:    f.metrics,
	}
	for _, m := range mutate {
		m(&deps)
	}
	f.svc = New(deps)
	return f
}

func (f *fixture) dbc() dbctx.Context { return dbctx.Context{Ctx: f.ctx} }

func (f *fixture) writeFile(t *testing.T, rel, content string) {
	t.Helper()
	p := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func (f *fixture) readFile(t *testing.T, rel string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(f.root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(b)
}

func (f *fixture) acceptAll(t *testing.T, v *View) {
	t.Helper()
	for _, it := range v.Items {
		_, err := f.svc.SetItemStatus(f.ctx, it.ID, types.ItemAccepted)
		require.NoError(t, err)
	}
}

func (f *fixture) requireNothingStaged(t *testing.T) {
	t.Helper()
	n, err := f.changesets.Count(f.dbc())
	require.NoError(t, err)
	assert.Zero(t, n, "changesets")
	n, err = f.items.Count(f.dbc())
	require.NoError(t, err)
	assert.Zero(t, n, "changeset items")
}

const helloDiff = "--- a/notes/hello.md\n+++ b/notes/hello.md\n@@ -1,2 +1,2 @@\n hello\n-world\n+there\n"

func TestStage_CreatesPendingItemsInStagingOrder(t *testing.T) {
	f := newFixture(t)
	testutil.SeedConcept(t, f.ctx, f.db, "algebra", "Algebra")

	v, err := f.svc.Stage(f.ctx, Proposal{
		Concepts:    []types.ConceptPayload{{ID: "calculus", Title: "Calculus"}},
		Edges:       []types.EdgePayload{{FromConceptID: "algebra", ToConceptID: "calculus", Type: types.EdgePrerequisiteOf}},
		FilePatches: []types.FilePatchPayload{{FilePath: "notes/hello.md", UnifiedDiff: helloDiff}},
	})
	require.NoError(t, err)
	assert.Equal(t, types.ChangesetDraft, v.Changeset.Status)
	require.Len(t, v.Items, 3)

	got, err := f.svc.Get(f.ctx, v.Changeset.ID)
	require.NoError(t, err)
	require.Len(t, got.Items, 3)
	wantTypes := []string{types.EntityConcept, types.EntityEdge, types.EntityFile}
	wantActions := []string{types.ActionCreate, types.ActionCreate, types.ActionPatch}
	for i, it := range got.Items {
		assert.Equal(t, i, it.Ordinal)
		assert.Equal(t, wantTypes[i], it.EntityType)
		assert.Equal(t, wantActions[i], it.Action)
		assert.Equal(t, types.ItemPending, it.Status)
	}

	p, err := types.DecodePayload(got.Items[1].EntityType, got.Items[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, "calculus", p.(types.EdgePayload).ToConceptID)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.ChangesetOps.WithLabelValues("stage", "ok")))
}

func TestStage_RejectsInvalidProposals(t *testing.T) {
	cases := []struct {
		name string
		p    Proposal
		code string
	}{
		{
			name: "empty",
			p:    Proposal{},
			code: "empty_proposal",
		},
		{
			name: "missing title",
			p:    Proposal{Concepts: []types.ConceptPayload{{ID: "x"}}},
			code: "invalid_payload",
		},
		{
			name: "duplicate concept ids",
			p: Proposal{Concepts: []types.ConceptPayload{
				{ID: "x", Title: "X"},
				{ID: "x", Title: "X again"},
			}},
			code: "duplicate_concept_id",
		},
		{
			name: "concept already stored",
			p:    Proposal{Concepts: []types.ConceptPayload{{ID: "algebra", Title: "Algebra"}}},
			code: "concept_exists",
		},
		{
			name: "self loop",
			p: Proposal{Edges: []types.EdgePayload{
				{FromConceptID: "algebra", ToConceptID: "algebra", Type: types.EdgePrerequisiteOf},
			}},
			code: "self_loop_edge",
		},
		{
			name: "unknown endpoint",
			p: Proposal{
				Concepts: []types.ConceptPayload{{ID: "x", Title: "X"}},
				Edges: []types.EdgePayload{
					{FromConceptID: "x", ToConceptID: "nowhere", Type: types.EdgePrerequisiteOf},
				},
			},
			code: "dangling_endpoint",
		},
		{
			name: "unknown edge type",
			p: Proposal{
				Concepts: []types.ConceptPayload{{ID: "x", Title: "X"}},
				Edges:    []types.EdgePayload{{FromConceptID: "algebra", ToConceptID: "x", Type: "LIKES"}},
			},
			code: "unknown_edge_type",
		},
		{
			name: "missing evidence chunk",
			p: Proposal{Concepts: []types.ConceptPayload{
				{ID: "x", Title: "X", EvidenceChunkIDs: []string{"no-such-chunk"}},
			}},
			code: "missing_evidence_chunk",
		},
		{
			name: "unsafe file path",
			p:    Proposal{FilePatches: []types.FilePatchPayload{{FilePath: "../escape.md", UnifiedDiff: helloDiff}}},
			code: "unsafe_file_path",
		},
		{
			name: "multi hunk diff",
			p: Proposal{FilePatches: []types.FilePatchPayload{{
				FilePath:    "a.md",
				UnifiedDiff: "@@ -1,1 +1,1 @@\n-a\n+A\n@@ -4,1 +4,1 @@\n-d\n+D\n",
			}}},
			code: "multi_hunk_item",
		},
		{
			name: "malformed diff line",
			p:    Proposal{FilePatches: []types.FilePatchPayload{{FilePath: "a.md", UnifiedDiff: "@@ -1,1 +1,1 @@\n*a\n"}}},
			code: "diff_parse_error",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			testutil.SeedConcept(t, f.ctx, f.db, "algebra", "Algebra")

			_, err := f.svc.Stage(f.ctx, tc.p)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
			assert.Equal(t, tc.code, apperr.CodeOf(err))
			f.requireNothingStaged(t)
		})
	}
}

func TestStage_AcceptsExistingEvidenceChunks(t *testing.T) {
	f := newFixture(t)
	src := testutil.SeedSource(t, f.ctx, f.db, "https://example.com/limits")
	chunk := testutil.SeedChunk(t, f.ctx, f.db, src.ID, 0)

	v, err := f.svc.Stage(f.ctx, Proposal{
		SourceID: &src.ID,
		Concepts: []types.ConceptPayload{{ID: "limits", Title: "Limits", EvidenceChunkIDs: []string{chunk.ID}}},
	})
	require.NoError(t, err)
	require.NotNil(t, v.Changeset.SourceID)
	assert.Equal(t, src.ID, *v.Changeset.SourceID)
}

func TestApply_PersistsConceptEvidence(t *testing.T) {
	f := newFixture(t)
	src := testutil.SeedSource(t, f.ctx, f.db, "https://example.com/limits")
	chunk := testutil.SeedChunk(t, f.ctx, f.db, src.ID, 0)

	v, err := f.svc.Stage(f.ctx, Proposal{
		SourceID: &src.ID,
		Concepts: []types.ConceptPayload{{ID: "limits", Title: "Limits", EvidenceChunkIDs: []string{chunk.ID}}},
	})
	require.NoError(t, err)
	f.acceptAll(t, v)
	_, err = f.svc.Apply(f.ctx, v.Changeset.ID)
	require.NoError(t, err)

	c, err := f.concepts.GetByID(f.dbc(), "limits")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, []string{chunk.ID}, types.Strings(c.EvidenceChunkIDs))
	ids, err := f.concepts.ListEvidenceChunkIDs(f.dbc(), "limits")
	require.NoError(t, err)
	assert.Equal(t, []string{chunk.ID}, ids)
}

func TestStage_RejectsSelfLoopThroughMergeAlias(t *testing.T) {
	f := newFixture(t)
	testutil.SeedConcept(t, f.ctx, f.db, "algebra", "Algebra")
	testutil.SeedConcept(t, f.ctx, f.db, "algebra-dup", "algebra")
	_, err := f.aliases.Create(f.dbc(), []*types.ConceptAlias{{AliasID: "algebra-dup", CanonicalID: "algebra", MergeID: "m1"}})
	require.NoError(t, err)

	_, err = f.svc.Stage(f.ctx, Proposal{Edges: []types.EdgePayload{
		{FromConceptID: "algebra-dup", ToConceptID: "algebra", Type: types.EdgeRelatedTo},
	}})
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Equal(t, "self_loop_edge", apperr.CodeOf(err))
	f.requireNothingStaged(t)
}

func TestSetItemStatus_Transitions(t *testing.T) {
	f := newFixture(t)
	v, err := f.svc.Stage(f.ctx, Proposal{Concepts: []types.ConceptPayload{{ID: "x", Title: "X"}}})
	require.NoError(t, err)
	id := v.Items[0].ID

	it, err := f.svc.SetItemStatus(f.ctx, id, types.ItemAccepted)
	require.NoError(t, err)
	assert.Equal(t, types.ItemAccepted, it.Status)

	_, err = f.svc.SetItemStatus(f.ctx, id, types.ItemRejected)
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "invalid_item_transition", apperr.CodeOf(err))

	it, err = f.svc.SetItemStatus(f.ctx, id, types.ItemPending)
	require.NoError(t, err)
	assert.Equal(t, types.ItemPending, it.Status)

	it, err = f.svc.SetItemStatus(f.ctx, id, types.ItemRejected)
	require.NoError(t, err)
	assert.Equal(t, types.ItemRejected, it.Status)

	it, err = f.svc.SetItemStatus(f.ctx, id, types.ItemRejected)
	require.NoError(t, err)
	assert.Equal(t, types.ItemRejected, it.Status)

	_, err = f.svc.SetItemStatus(f.ctx, id, types.ItemApplied)
	require.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Equal(t, "invalid_item_status", apperr.CodeOf(err))

	_, err = f.svc.SetItemStatus(f.ctx, "missing", types.ItemAccepted)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestApply_CreatesConceptAndEdgeTogether(t *testing.T) {
	f := newFixture(t)
	testutil.SeedConcept(t, f.ctx, f.db, "algebra", "Algebra")

	v, err := f.svc.Stage(f.ctx, Proposal{
		Concepts: []types.ConceptPayload{{ID: "calculus", Title: "Calculus", L1: []string{"rates"}}},
		Edges:    []types.EdgePayload{{FromConceptID: "algebra", ToConceptID: "calculus", Type: types.EdgePrerequisiteOf}},
	})
	require.NoError(t, err)
	f.acceptAll(t, v)

	res, err := f.svc.Apply(f.ctx, v.Changeset.ID)
	require.NoError(t, err)
	assert.False(t, res.AlreadyApplied)
	assert.Equal(t, types.ChangesetApplied, res.Status)
	require.NotNil(t, res.AppliedAt)
	assert.Equal(t, []string{"calculus"}, res.CreatedConceptIDs)
	require.Len(t, res.CreatedEdgeIDs, 1)
	assert.ElementsMatch(t, []string{v.Items[0].ID, v.Items[1].ID}, res.AppliedItemIDs)

	c, err := f.concepts.GetByID(f.dbc(), "calculus")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, []string{"rates"}, types.Strings(c.L1))

	e, err := f.edges.GetByID(f.dbc(), res.CreatedEdgeIDs[0])
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, "algebra", e.FromConceptID)
	assert.Equal(t, "calculus", e.ToConceptID)

	got, err := f.svc.Get(f.ctx, v.Changeset.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChangesetApplied, got.Changeset.Status)
	assert.NotNil(t, got.Changeset.AppliedAt)
	for _, it := range got.Items {
		assert.Equal(t, types.ItemApplied, it.Status)
	}

	events := f.bus.Published()
	require.Len(t, events, 1)
	assert.Equal(t, realtime.EventChangesetApplied, events[0].Type)
	assert.Equal(t, v.Changeset.ID, events[0].ID)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.ChangesetOps.WithLabelValues("apply", "ok")))
}

func TestApply_LeavesPendingAndRejectedItemsUntouched(t *testing.T) {
	f := newFixture(t)
	v, err := f.svc.Stage(f.ctx, Proposal{Concepts: []types.ConceptPayload{
		{ID: "a", Title: "A"},
		{ID: "b", Title: "B"},
		{ID: "c", Title: "C"},
	}})
	require.NoError(t, err)
	_, err = f.svc.SetItemStatus(f.ctx, v.Items[0].ID, types.ItemAccepted)
	require.NoError(t, err)
	_, err = f.svc.SetItemStatus(f.ctx, v.Items[2].ID, types.ItemRejected)
	require.NoError(t, err)

	res, err := f.svc.Apply(f.ctx, v.Changeset.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, res.CreatedConceptIDs)

	got, err := f.svc.Get(f.ctx, v.Changeset.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ItemApplied, got.Items[0].Status)
	assert.Equal(t, types.ItemPending, got.Items[1].Status)
	assert.Equal(t, types.ItemRejected, got.Items[2].Status)

	existing, err := f.concepts.ExistingIDs(f.dbc(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, existing)
}

func TestApply_MissingPatchTargetAppliesNothing(t *testing.T) {
	f := newFixture(t)
	v, err := f.svc.Stage(f.ctx, Proposal{
		Concepts:    []types.ConceptPayload{{ID: "x", Title: "X"}},
		FilePatches: []types.FilePatchPayload{{FilePath: "missing.md", UnifiedDiff: helloDiff}},
	})
	require.NoError(t, err)
	f.acceptAll(t, v)

	_, err = f.svc.Apply(f.ctx, v.Changeset.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "patch_target_missing", apperr.CodeOf(err))

	got, err := f.svc.Get(f.ctx, v.Changeset.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChangesetDraft, got.Changeset.Status)
	for _, it := range got.Items {
		assert.Equal(t, types.ItemAccepted, it.Status)
	}
	c, err := f.concepts.GetRawByID(f.dbc(), "x")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.PatchFailures.WithLabelValues("patch_target_missing")))
	assert.Empty(t, f.bus.Published())
}

func TestApply_FilePatchUpdatesVaultIndex(t *testing.T) {
	f := newFixture(t)
	f.writeFile(t, "notes/hello.md", "hello\nworld\n")

	v, err := f.svc.Stage(f.ctx, Proposal{FilePatches: []types.FilePatchPayload{{FilePath: "notes/hello.md", UnifiedDiff: helloDiff}}})
	require.NoError(t, err)
	f.acceptAll(t, v)

	res, err := f.svc.Apply(f.ctx, v.Changeset.ID)
	require.NoError(t, err)
	require.Len(t, res.VaultFileUpdates, 1)
	assert.Equal(t, "hello\nthere\n", f.readFile(t, "notes/hello.md"))

	vf, err := f.vaultFiles.GetByPath(f.dbc(), "notes/hello.md")
	require.NoError(t, err)
	require.NotNil(t, vf)
	assert.Equal(t, "hello\nthere\n", vf.Content)
	assert.Equal(t, vaultpatch.ContentHash("hello\nthere\n"), vf.ContentHash)

	events := f.bus.Published()
	require.Len(t, events, 1)
	assert.Equal(t, []string{"notes/hello.md"}, events[0].FilePaths)
}

type failingVaultFiles struct {
	repos.VaultFileRepo
}

func (failingVaultFiles) Upsert(dbctx.Context, *types.VaultFile) error {
	return errors.New("index unavailable")
}

func TestApply_DatabaseFailureRollsBackVaultWrites(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.VaultFiles = failingVaultFiles{d.VaultFiles} })
	f.writeFile(t, "notes/hello.md", "hello\nworld\n")

	v, err := f.svc.Stage(f.ctx, Proposal{FilePatches: []types.FilePatchPayload{{FilePath: "notes/hello.md", UnifiedDiff: helloDiff}}})
	require.NoError(t, err)
	f.acceptAll(t, v)

	_, err = f.svc.Apply(f.ctx, v.Changeset.ID)
	require.Error(t, err)
	assert.Equal(t, "hello\nworld\n", f.readFile(t, "notes/hello.md"))

	got, err := f.svc.Get(f.ctx, v.Changeset.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChangesetDraft, got.Changeset.Status)
	assert.Equal(t, types.ItemAccepted, got.Items[0].Status)
}

func TestApply_IsIdempotent(t *testing.T) {
	f := newFixture(t)
	v, err := f.svc.Stage(f.ctx, Proposal{Concepts: []types.ConceptPayload{{ID: "x", Title: "X"}}})
	require.NoError(t, err)

	// Nothing accepted yet: empty result, changeset stays draft.
	res, err := f.svc.Apply(f.ctx, v.Changeset.ID)
	require.NoError(t, err)
	assert.Empty(t, res.AppliedItemIDs)
	assert.Equal(t, types.ChangesetDraft, res.Status)

	f.acceptAll(t, v)
	res, err = f.svc.Apply(f.ctx, v.Changeset.ID)
	require.NoError(t, err)
	assert.Len(t, res.AppliedItemIDs, 1)

	res, err = f.svc.Apply(f.ctx, v.Changeset.ID)
	require.NoError(t, err)
	assert.True(t, res.AlreadyApplied)
	assert.Empty(t, res.AppliedItemIDs)
	assert.Empty(t, res.CreatedConceptIDs)
	assert.Equal(t, types.ChangesetApplied, res.Status)

	n, err := f.concepts.Count(f.dbc())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, f.bus.Published(), 1)

	_, err = f.svc.SetItemStatus(f.ctx, v.Items[0].ID, types.ItemPending)
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "changeset_not_draft", apperr.CodeOf(err))
}

func TestReject_BlocksApply(t *testing.T) {
	f := newFixture(t)
	v, err := f.svc.Stage(f.ctx, Proposal{Concepts: []types.ConceptPayload{{ID: "x", Title: "X"}, {ID: "y", Title: "Y"}}})
	require.NoError(t, err)
	_, err = f.svc.SetItemStatus(f.ctx, v.Items[0].ID, types.ItemAccepted)
	require.NoError(t, err)

	got, err := f.svc.Reject(f.ctx, v.Changeset.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ChangesetRejected, got.Changeset.Status)
	for _, it := range got.Items {
		assert.Equal(t, types.ItemRejected, it.Status)
	}

	_, err = f.svc.Apply(f.ctx, v.Changeset.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "changeset_not_applicable", apperr.CodeOf(err))

	_, err = f.svc.Reject(f.ctx, v.Changeset.ID)
	require.NoError(t, err)
}

func TestReject_AppliedChangesetConflicts(t *testing.T) {
	f := newFixture(t)
	v, err := f.svc.Stage(f.ctx, Proposal{Concepts: []types.ConceptPayload{{ID: "x", Title: "X"}}})
	require.NoError(t, err)
	f.acceptAll(t, v)
	_, err = f.svc.Apply(f.ctx, v.Changeset.ID)
	require.NoError(t, err)

	_, err = f.svc.Reject(f.ctx, v.Changeset.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestApply_UnknownChangeset(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Apply(f.ctx, "nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = f.svc.Get(f.ctx, "nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

type heldLocker struct{}

func (heldLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	return nil, fmt.Errorf("acquire %s: %w", key, redisclient.ErrLockHeld)
}

type recordingLocker struct {
	keys     []string
	released int
}

func (l *recordingLocker) Acquire(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	l.keys = append(l.keys, key)
	return func(context.Context) error { l.released++; return nil }, nil
}

func TestApply_LockHeldElsewhereConflicts(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Locker = heldLocker{} })
	v, err := f.svc.Stage(f.ctx, Proposal{Concepts: []types.ConceptPayload{{ID: "x", Title: "X"}}})
	require.NoError(t, err)
	f.acceptAll(t, v)

	_, err = f.svc.Apply(f.ctx, v.Changeset.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "changeset_apply_in_progress", apperr.CodeOf(err))
	assert.Equal(t, 1.0, promtest.ToFloat64(f.metrics.ChangesetOps.WithLabelValues("apply", "conflict")))
	assert.Zero(t, promtest.ToFloat64(f.metrics.ChangesetOps.WithLabelValues("apply", "error")))
}

func TestApply_AcquiresAndReleasesLock(t *testing.T) {
	locker := &recordingLocker{}
	f := newFixture(t, func(d *Deps) { d.Locker = locker })
	v, err := f.svc.Stage(f.ctx, Proposal{Concepts: []types.ConceptPayload{{ID: "x", Title: "X"}}})
	require.NoError(t, err)
	f.acceptAll(t, v)

	_, err = f.svc.Apply(f.ctx, v.Changeset.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"changeset:" + v.Changeset.ID}, locker.keys)
	assert.Equal(t, 1, locker.released)
}
