package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
)

func TestEdgeRecordsByTypeDropsUnknownTypes(t *testing.T) {
	conf := 0.7
	edges := []*types.Edge{
		{ID: "e1", FromConceptID: "a", ToConceptID: "b", Type: types.EdgePrerequisiteOf, Confidence: &conf},
		{ID: "e2", FromConceptID: "a", ToConceptID: "c", Type: "DROP_ALL)--"},
		{ID: "e3", FromConceptID: "b", ToConceptID: "c", Type: types.EdgePartOf},
		nil,
	}
	got := edgeRecordsByType(edges, "now")
	require.Len(t, got, 2)
	require.Len(t, got[types.EdgePrerequisiteOf], 1)
	assert.Equal(t, 0.7, got[types.EdgePrerequisiteOf][0]["confidence"])
	assert.Equal(t, "e3", got[types.EdgePartOf][0]["id"])
}

func TestConceptNodes(t *testing.T) {
	l0 := "summary"
	nodes := conceptNodes([]*types.Concept{{ID: "a", Title: "A", L0: &l0, EvidenceChunkIDs: types.JSONStrings([]string{"k1"})}, {ID: ""}}, "now")
	require.Len(t, nodes, 1)
	assert.Equal(t, "summary", nodes[0]["l0"])
	assert.Equal(t, `["k1"]`, nodes[0]["evidence_json"])
}

func TestNilClientYieldsNopMirror(t *testing.T) {
	m := NewNeo4jMirror(nil, logger.Nop())
	ctx := context.Background()
	assert.NoError(t, m.UpsertConceptGraph(ctx, nil, nil))
	assert.NoError(t, m.DeleteEdges(ctx, []string{"e1"}))
	assert.NoError(t, m.MarkAliases(ctx, "a", []string{"b"}))
	assert.NoError(t, m.ClearAliases(ctx, []string{"b"}))
}
