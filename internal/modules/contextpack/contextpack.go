package contextpack

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/tutorgraph-backend/internal/data/repos"
	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/modules/prereq"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
)

type Deps struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Concepts repos.ConceptRepo
	Edges    repos.EdgeRepo
}

// Entry is one stop on the study sequence.
type Entry struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Module string  `json:"module,omitempty"`
	L0     *string `json:"l0,omitempty"`
}

// Pack is the ordered study sequence for a target concept: every transitive
// prerequisite first, the target last.
type Pack struct {
	TargetConceptID string  `json:"target_concept_id"`
	Entries         []Entry `json:"entries"`
	// Evidence recorded on the target, then evidence cited by its edges.
	EvidenceChunkIDs []string `json:"evidence_chunk_ids"`
}

type Builder struct {
	deps Deps
	log  *logger.Logger
}

func New(deps Deps) *Builder {
	return &Builder{deps: deps, log: deps.Log.With("service", "ContextPackBuilder")}
}

// Build assembles the pack for targetID. A prerequisite cycle is returned as
// a conflict wrapping *prereq.CycleError.
func (b *Builder) Build(ctx context.Context, targetID string) (*Pack, error) {
	var out *Pack
	err := b.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		target, err := b.deps.Concepts.GetByID(dbc, targetID)
		if err != nil {
			return fmt.Errorf("load target concept: %w", err)
		}
		if target == nil {
			return apperr.NotFound("concept_not_found",
				fmt.Sprintf("concept %s not found", targetID), map[string]any{"concept_id": targetID})
		}

		summaries, err := b.deps.Concepts.ListSummaries(dbc)
		if err != nil {
			return fmt.Errorf("list concepts: %w", err)
		}
		titles := make(map[string]string, len(summaries))
		for _, c := range summaries {
			titles[c.ID] = c.Title
		}
		edges, err := b.deps.Edges.ListSummaries(dbc)
		if err != nil {
			return fmt.Errorf("list edges: %w", err)
		}

		res := prereq.ComputePrerequisitePath(prereq.PathInput{
			TargetConceptID: target.ID,
			Edges:           edges,
			SortKey: func(id string) string {
				if t := titles[id]; t != "" {
					return t
				}
				return id
			},
		})
		if err := res.Err(target.ID); err != nil {
			var cycle *prereq.CycleError
			errors.As(err, &cycle)
			e := apperr.Conflict("prereq_cycle",
				fmt.Sprintf("prerequisites of %s form a cycle: %s", target.ID, strings.Join(cycle.CycleNodeIDs, ", ")),
				map[string]any{"concept_id": target.ID, "cycle_node_ids": cycle.CycleNodeIDs})
			e.Cause = cycle
			return e
		}

		rows, err := b.deps.Concepts.GetRawByIDs(dbc, res.OrderedConceptIDs)
		if err != nil {
			return fmt.Errorf("load path concepts: %w", err)
		}
		byID := make(map[string]*types.Concept, len(rows))
		for _, c := range rows {
			byID[c.ID] = c
		}
		entries := make([]Entry, 0, len(res.OrderedConceptIDs))
		for _, id := range res.OrderedConceptIDs {
			c := byID[id]
			if c == nil {
				// Edge endpoint without a concept row.
				entries = append(entries, Entry{ID: id, Title: id})
				continue
			}
			entries = append(entries, Entry{ID: c.ID, Title: c.Title, Module: c.Module, L0: c.L0})
		}

		own, err := b.deps.Concepts.ListEvidenceChunkIDs(dbc, target.ID)
		if err != nil {
			return fmt.Errorf("list concept evidence: %w", err)
		}
		cited, err := b.deps.Edges.ListEvidenceChunkIDsForConcept(dbc, target.ID)
		if err != nil {
			return fmt.Errorf("list edge evidence: %w", err)
		}
		out = &Pack{TargetConceptID: target.ID, Entries: entries, EvidenceChunkIDs: dedupe(own, cited)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.log.Debug("context pack built", "concept_id", out.TargetConceptID, "entries", len(out.Entries))
	return out, nil
}

func dedupe(lists ...[]string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, ids := range lists {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
