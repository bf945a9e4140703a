package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
)

func SeedConcept(tb testing.TB, ctx context.Context, tx *gorm.DB, id, title string) *types.Concept {
	tb.Helper()
	c := &types.Concept{
		ID:    id,
		Title: title,
		Kind:  "concept",
		L1:    types.JSONStrings(nil),
		L2:    types.JSONStrings(nil),
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed concept: %v", err)
	}
	return c
}

func SeedEdge(tb testing.TB, ctx context.Context, tx *gorm.DB, from, to, edgeType string) *types.Edge {
	tb.Helper()
	e := &types.Edge{
		ID:               uuid.NewString(),
		FromConceptID:    from,
		ToConceptID:      to,
		Type:             edgeType,
		EvidenceChunkIDs: types.JSONStrings(nil),
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed edge: %v", err)
	}
	return e
}

func SeedSource(tb testing.TB, ctx context.Context, tx *gorm.DB, url string) *types.Source {
	tb.Helper()
	s := &types.Source{ID: uuid.NewString(), URL: url, Title: "source"}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed source: %v", err)
	}
	return s
}

func SeedChunk(tb testing.TB, ctx context.Context, tx *gorm.DB, sourceID string, ordinal int) *types.Chunk {
	tb.Helper()
	c := &types.Chunk{ID: uuid.NewString(), SourceID: sourceID, Ordinal: ordinal, Text: "chunk"}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed chunk: %v", err)
	}
	return c
}

func SeedConceptSource(tb testing.TB, ctx context.Context, tx *gorm.DB, conceptID, sourceID string) *types.ConceptSource {
	tb.Helper()
	cs := &types.ConceptSource{ID: uuid.NewString(), ConceptID: conceptID, SourceID: sourceID}
	if err := tx.WithContext(ctx).Create(cs).Error; err != nil {
		tb.Fatalf("seed concept source: %v", err)
	}
	return cs
}

func SeedReviewItem(tb testing.TB, ctx context.Context, tx *gorm.DB, conceptID string) *types.ReviewItem {
	tb.Helper()
	ri := &types.ReviewItem{
		ID:        uuid.NewString(),
		ConceptID: conceptID,
		Type:      "flashcard",
		Prompt:    "prompt",
		Status:    "active",
		DueAt:     PtrTime(time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)),
	}
	if err := tx.WithContext(ctx).Create(ri).Error; err != nil {
		tb.Fatalf("seed review item: %v", err)
	}
	return ri
}

func PtrFloat(v float64) *float64 { return &v }

func PtrTime(v time.Time) *time.Time { return &v }
