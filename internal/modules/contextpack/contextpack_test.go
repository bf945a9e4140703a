package contextpack

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/tutorgraph-backend/internal/data/repos"
	"github.com/yungbote/tutorgraph-backend/internal/data/repos/testutil"
	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/modules/prereq"
	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
)

func newBuilder(t *testing.T) (*Builder, *gorm.DB) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	return New(Deps{
		DB:       db,
		Log:      log,
		Concepts: repos.NewConceptRepo(db, log),
		Edges:    repos.NewEdgeRepo(db, log),
	}), db
}

func TestBuild_OrdersDiamondByTitle(t *testing.T) {
	b, db := newBuilder(t)
	ctx := context.Background()
	for id, title := range map[string]string{"A": "Arithmetic", "B": "Bases", "C": "Counting", "D": "Discrete math"} {
		testutil.SeedConcept(t, ctx, db, id, title)
	}
	testutil.SeedEdge(t, ctx, db, "A", "B", types.EdgePrerequisiteOf)
	testutil.SeedEdge(t, ctx, db, "A", "C", types.EdgePrerequisiteOf)
	testutil.SeedEdge(t, ctx, db, "B", "D", types.EdgePrerequisiteOf)
	testutil.SeedEdge(t, ctx, db, "C", "D", types.EdgePrerequisiteOf)
	testutil.SeedEdge(t, ctx, db, "D", "A", types.EdgeRelatedTo)

	pack, err := b.Build(ctx, "D")
	require.NoError(t, err)
	ids := make([]string, 0, len(pack.Entries))
	for _, e := range pack.Entries {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"A", "B", "C", "D"}, ids)
	assert.Equal(t, "Discrete math", pack.Entries[3].Title)
	assert.NotNil(t, pack.EvidenceChunkIDs)
}

func TestBuild_CycleIsConflictCarryingCycleNodes(t *testing.T) {
	b, db := newBuilder(t)
	ctx := context.Background()
	for _, id := range []string{"A", "B", "C"} {
		testutil.SeedConcept(t, ctx, db, id, id)
	}
	testutil.SeedEdge(t, ctx, db, "A", "B", types.EdgePrerequisiteOf)
	testutil.SeedEdge(t, ctx, db, "B", "C", types.EdgePrerequisiteOf)
	testutil.SeedEdge(t, ctx, db, "C", "A", types.EdgePrerequisiteOf)

	_, err := b.Build(ctx, "A")
	require.ErrorIs(t, err, apperr.ErrConflict)
	var cycle *prereq.CycleError
	require.True(t, errors.As(err, &cycle))
	assert.Equal(t, []string{"A", "B", "C"}, cycle.CycleNodeIDs)
}

func TestBuild_CollectsTargetEvidence(t *testing.T) {
	b, db := newBuilder(t)
	ctx := context.Background()
	testutil.SeedConcept(t, ctx, db, "A", "A")
	testutil.SeedConcept(t, ctx, db, "B", "B")
	src := testutil.SeedSource(t, ctx, db, "https://example.com")
	chunk := testutil.SeedChunk(t, ctx, db, src.ID, 0)
	e := testutil.SeedEdge(t, ctx, db, "A", "B", types.EdgePrerequisiteOf)
	require.NoError(t, db.Model(&types.Edge{}).Where("id = ?", e.ID).
		Update("evidence_chunk_ids", types.JSONStrings([]string{chunk.ID})).Error)

	pack, err := b.Build(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, []string{chunk.ID}, pack.EvidenceChunkIDs)

	own := testutil.SeedChunk(t, ctx, db, src.ID, 1)
	require.NoError(t, db.Model(&types.Concept{}).Where("id = ?", "B").
		Update("evidence_chunk_ids", types.JSONStrings([]string{own.ID, chunk.ID})).Error)

	pack, err = b.Build(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, []string{own.ID, chunk.ID}, pack.EvidenceChunkIDs)
}

func TestBuild_UnknownTarget(t *testing.T) {
	b, _ := newBuilder(t)
	_, err := b.Build(context.Background(), "nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}
