package graph

import (
	"context"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
)

// Mirror keeps a read-optimized copy of the concept graph outside the
// primary store. Mirror failures never fail a committed mutation; callers
// log and move on.
type Mirror interface {
	UpsertConceptGraph(ctx context.Context, concepts []*types.Concept, edges []*types.Edge) error
	DeleteEdges(ctx context.Context, edgeIDs []string) error
	MarkAliases(ctx context.Context, canonicalID string, aliasIDs []string) error
	ClearAliases(ctx context.Context, aliasIDs []string) error
}

type nopMirror struct{}

func NopMirror() Mirror { return nopMirror{} }

func (nopMirror) UpsertConceptGraph(context.Context, []*types.Concept, []*types.Edge) error {
	return nil
}
func (nopMirror) DeleteEdges(context.Context, []string) error { return nil }
func (nopMirror) MarkAliases(context.Context, string, []string) error { return nil }
func (nopMirror) ClearAliases(context.Context, []string) error { return nil }
