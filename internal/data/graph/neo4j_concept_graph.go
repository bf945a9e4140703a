package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
	"github.com/yungbote/tutorgraph-backend/internal/platform/neo4jdb"
)

type neo4jMirror struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

// NewNeo4jMirror returns a Mirror backed by client, or a no-op Mirror when
// client is nil (neo4j not configured).
func NewNeo4jMirror(client *neo4jdb.Client, log *logger.Logger) Mirror {
	if client == nil || client.Driver == nil {
		return NopMirror()
	}
	return &neo4jMirror{client: client, log: log.With("service", "Neo4jConceptGraph")}
}

func conceptNodes(concepts []*types.Concept, now string) []map[string]any {
	nodes := make([]map[string]any, 0, len(concepts))
	for _, c := range concepts {
		if c == nil || c.ID == "" {
			continue
		}
		l0 := ""
		if c.L0 != nil {
			l0 = *c.L0
		}
		nodes = append(nodes, map[string]any{
			"id":            c.ID,
			"title":         c.Title,
			"kind":          c.Kind,
			"module":        c.Module,
			"l0":            l0,
			"mastery_score": c.MasteryScore,
			"evidence_json": string(c.EvidenceChunkIDs),
			"synced_at":     now,
		})
	}
	return nodes
}

// edgeRecordsByType groups edges by relationship type. Only known edge types
// are kept since the type is spliced into the Cypher text.
func edgeRecordsByType(edges []*types.Edge, now string) map[string][]map[string]any {
	out := map[string][]map[string]any{}
	for _, e := range edges {
		if e == nil || e.ID == "" || e.FromConceptID == "" || e.ToConceptID == "" || !types.IsEdgeType(e.Type) {
			continue
		}
		rec := map[string]any{
			"id":            e.ID,
			"from_id":       e.FromConceptID,
			"to_id":         e.ToConceptID,
			"evidence_json": string(e.EvidenceChunkIDs),
			"synced_at":     now,
		}
		if e.Confidence != nil {
			rec["confidence"] = *e.Confidence
		}
		out[e.Type] = append(out[e.Type], rec)
	}
	return out
}

func (m *neo4jMirror) session(ctx context.Context) neo4j.SessionWithContext {
	return m.client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: m.client.Database,
	})
}

func (m *neo4jMirror) UpsertConceptGraph(ctx context.Context, concepts []*types.Concept, edges []*types.Edge) error {
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	nodes := conceptNodes(concepts, now)
	rels := edgeRecordsByType(edges, now)
	if len(nodes) == 0 && len(rels) == 0 {
		return nil
	}

	session := m.session(ctx)
	defer session.Close(ctx)

	// Create schema helpers (best-effort; may fail for restricted users).
	if res, err := session.Run(ctx, `CREATE CONSTRAINT concept_id_unique IF NOT EXISTS FOR (c:Concept) REQUIRE c.id IS UNIQUE`, nil); err != nil {
		m.log.Warn("neo4j schema init failed (continuing)", "error", err)
	} else {
		_, _ = res.Consume(ctx)
	}

	relTypes := make([]string, 0, len(rels))
	for t := range rels {
		relTypes = append(relTypes, t)
	}
	sort.Strings(relTypes)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(nodes) > 0 {
			res, err := tx.Run(ctx, `
UNWIND $nodes AS n
MERGE (c:Concept {id: n.id})
SET c += n
`, map[string]any{"nodes": nodes})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}

		for _, relType := range relTypes {
			res, err := tx.Run(ctx, fmt.Sprintf(`
UNWIND $rels AS r
MERGE (a:Concept {id: r.from_id})
MERGE (b:Concept {id: r.to_id})
MERGE (a)-[e:%s {id: r.id}]->(b)
SET e += r
`, relType), map[string]any{"rels": rels[relType]})
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (m *neo4jMirror) DeleteEdges(ctx context.Context, edgeIDs []string) error {
	if len(edgeIDs) == 0 {
		return nil
	}
	return m.write(ctx, `
MATCH (:Concept)-[e]->(:Concept)
WHERE e.id IN $ids
DELETE e
`, map[string]any{"ids": edgeIDs})
}

func (m *neo4jMirror) MarkAliases(ctx context.Context, canonicalID string, aliasIDs []string) error {
	if canonicalID == "" || len(aliasIDs) == 0 {
		return nil
	}
	return m.write(ctx, `
MATCH (c:Concept)
WHERE c.id IN $ids
SET c.alias_of = $canonical
`, map[string]any{"ids": aliasIDs, "canonical": canonicalID})
}

func (m *neo4jMirror) ClearAliases(ctx context.Context, aliasIDs []string) error {
	if len(aliasIDs) == 0 {
		return nil
	}
	return m.write(ctx, `
MATCH (c:Concept)
WHERE c.id IN $ids
REMOVE c.alias_of
`, map[string]any{"ids": aliasIDs})
}

func (m *neo4jMirror) write(ctx context.Context, cypher string, params map[string]any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	session := m.session(ctx)
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}
