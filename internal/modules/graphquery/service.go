package graphquery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	redisclient "github.com/yungbote/tutorgraph-backend/internal/clients/redis"
	graphmirror "github.com/yungbote/tutorgraph-backend/internal/data/graph"
	"github.com/yungbote/tutorgraph-backend/internal/data/repos"
	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/modules/lens"
	"github.com/yungbote/tutorgraph-backend/internal/modules/prereq"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
)

const (
	defaultMaxRadius = 3
	defaultLockTTL   = 30 * time.Second

	prereqEdgesLockKey = "prereq-edges"
)

type Deps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Concepts repos.ConceptRepo
	Edges    repos.EdgeRepo

	// Optional.
	Mirror    graphmirror.Mirror
	MaxRadius int
	// Optional: serialize cycle-checked edge creation across processes.
	Locker  redisclient.Locker
	LockTTL time.Duration
}

// Service loads graph snapshots from the store and runs the lens, path and
// cycle computations over them.
type Service struct {
	deps Deps
	log  *logger.Logger

	// Held from the cycle check until the new edge commits.
	prereqMu sync.Mutex
}

func New(deps Deps) *Service {
	if deps.Mirror == nil {
		deps.Mirror = graphmirror.NopMirror()
	}
	if deps.MaxRadius <= 0 {
		deps.MaxRadius = defaultMaxRadius
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = defaultLockTTL
	}
	return &Service{deps: deps, log: deps.Log.With("service", "GraphQueryService")}
}

// Snapshot is a consistent read of every live concept and edge.
type Snapshot struct {
	Concepts []types.ConceptSummary
	Edges    []types.EdgeSummary
}

func (s Snapshot) Titles() map[string]string {
	out := make(map[string]string, len(s.Concepts))
	for _, c := range s.Concepts {
		out[c.ID] = c.Title
	}
	return out
}

func (s *Service) LoadSnapshot(ctx context.Context) (*Snapshot, error) {
	var snap *Snapshot
	err := s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		snap, err = s.loadSnapshot(dbctx.Context{Ctx: ctx, Tx: tx})
		return err
	})
	return snap, err
}

func (s *Service) loadSnapshot(dbc dbctx.Context) (*Snapshot, error) {
	concepts, err := s.deps.Concepts.ListSummaries(dbc)
	if err != nil {
		return nil, fmt.Errorf("list concepts: %w", err)
	}
	edges, err := s.deps.Edges.ListSummaries(dbc)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	return &Snapshot{Concepts: concepts, Edges: edges}, nil
}

// resolveConcept follows merge aliases and fails with not-found when id
// names no concept.
func (s *Service) resolveConcept(dbc dbctx.Context, id string) (*types.Concept, error) {
	c, err := s.deps.Concepts.GetByID(dbc, id)
	if err != nil {
		return nil, fmt.Errorf("load concept %s: %w", id, err)
	}
	if c == nil {
		return nil, apperr.NotFound("concept_not_found",
			fmt.Sprintf("concept %s not found", id), map[string]any{"concept_id": id})
	}
	return c, nil
}

type LensRequest struct {
	CenterID       string
	Radius         int
	EdgeTypeFilter []string
	IncludeRelated bool
}

// Lens computes the bounded neighbourhood of a concept. The radius is capped
// at the configured maximum.
func (s *Service) Lens(ctx context.Context, req LensRequest) (*lens.Result, error) {
	for _, t := range req.EdgeTypeFilter {
		if !types.IsEdgeType(t) {
			return nil, apperr.Validation("unknown_edge_type",
				fmt.Sprintf("unknown edge type %q", t), map[string]any{"type": t})
		}
	}
	radius := req.Radius
	if radius > s.deps.MaxRadius {
		radius = s.deps.MaxRadius
	}

	dbc := dbctx.Context{Ctx: ctx}
	center, err := s.resolveConcept(dbc, req.CenterID)
	if err != nil {
		return nil, err
	}
	snap, err := s.LoadSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	res := lens.Compute(lens.Input{
		CenterID:       center.ID,
		Radius:         radius,
		Edges:          snap.Edges,
		Nodes:          snap.Concepts,
		EdgeTypeFilter: req.EdgeTypeFilter,
		IncludeRelated: req.IncludeRelated,
	})
	if len(res.Warnings) > 0 {
		s.log.Debug("lens warnings", "center_id", center.ID, "warnings", strings.Join(res.Warnings, ","))
	}
	return &res, nil
}

// PrerequisitePath orders targetID and everything it transitively requires,
// ties broken by title.
func (s *Service) PrerequisitePath(ctx context.Context, targetID string) (prereq.PathResult, error) {
	dbc := dbctx.Context{Ctx: ctx}
	target, err := s.resolveConcept(dbc, targetID)
	if err != nil {
		return prereq.PathResult{}, err
	}
	snap, err := s.LoadSnapshot(ctx)
	if err != nil {
		return prereq.PathResult{}, err
	}
	titles := snap.Titles()
	return prereq.ComputePrerequisitePath(prereq.PathInput{
		TargetConceptID: target.ID,
		Edges:           snap.Edges,
		SortKey:         func(id string) string { return titleOr(titles, id) },
	}), nil
}

// WouldCreatePrereqCycle checks a prospective PREREQUISITE_OF edge against
// the stored graph.
func (s *Service) WouldCreatePrereqCycle(ctx context.Context, fromID, toID string) (prereq.CycleCheck, error) {
	dbc := dbctx.Context{Ctx: ctx}
	from, err := s.resolveConcept(dbc, fromID)
	if err != nil {
		return prereq.CycleCheck{}, err
	}
	to, err := s.resolveConcept(dbc, toID)
	if err != nil {
		return prereq.CycleCheck{}, err
	}
	edges, err := s.deps.Edges.ListSummaries(dbc)
	if err != nil {
		return prereq.CycleCheck{}, fmt.Errorf("list edges: %w", err)
	}
	return prereq.WouldCreatePrereqCycle(prereq.CycleInput{
		FromConceptID: from.ID,
		ToConceptID:   to.ID,
		ExistingEdges: edges,
	}), nil
}

type EdgeInput struct {
	FromConceptID    string
	ToConceptID      string
	Type             string
	EvidenceChunkIDs []string
	SourceURL        *string
	Confidence       *float64
}

// CreateEdgeGuarded creates one edge outside the changeset flow. Endpoints
// follow merge aliases, and a PREREQUISITE_OF edge that would close a cycle
// is refused with the cycle path attached. PREREQUISITE_OF creates are
// serialized so two of them cannot both pass the check and close a cycle
// together.
func (s *Service) CreateEdgeGuarded(ctx context.Context, in EdgeInput) (*types.Edge, error) {
	if !types.IsEdgeType(in.Type) {
		return nil, apperr.Validation("unknown_edge_type",
			fmt.Sprintf("unknown edge type %q", in.Type), map[string]any{"type": in.Type})
	}
	if in.Confidence != nil && (*in.Confidence < 0 || *in.Confidence > 1) {
		return nil, apperr.Validation("invalid_confidence",
			fmt.Sprintf("confidence %v outside [0,1]", *in.Confidence), map[string]any{"confidence": *in.Confidence})
	}
	if in.Type == types.EdgePrerequisiteOf {
		unlock, err := s.lockPrereqEdges(ctx)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}

	var created *types.Edge
	err := s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		from, err := s.resolveConcept(dbc, in.FromConceptID)
		if err != nil {
			return err
		}
		to, err := s.resolveConcept(dbc, in.ToConceptID)
		if err != nil {
			return err
		}
		fields := map[string]any{"from_concept_id": from.ID, "to_concept_id": to.ID, "type": in.Type}
		if from.ID == to.ID {
			return apperr.Validation("self_loop_edge",
				fmt.Sprintf("edge %s -> %s is a self-loop", in.FromConceptID, in.ToConceptID), fields)
		}
		if in.Type == types.EdgePrerequisiteOf {
			existing, err := s.deps.Edges.ListSummaries(dbc)
			if err != nil {
				return fmt.Errorf("list edges: %w", err)
			}
			check := prereq.WouldCreatePrereqCycle(prereq.CycleInput{
				FromConceptID: from.ID,
				ToConceptID:   to.ID,
				ExistingEdges: existing,
			})
			if check.WouldCycle {
				fields["cycle_node_ids"] = check.CycleNodeIDs
				return apperr.Conflict("prereq_cycle",
					fmt.Sprintf("edge %s -> %s would close a prerequisite cycle through %s",
						from.ID, to.ID, strings.Join(check.CycleNodeIDs, " -> ")), fields)
			}
		}
		rows, err := s.deps.Edges.Create(dbc, []*types.Edge{{
			ID:               uuid.NewString(),
			FromConceptID:    from.ID,
			ToConceptID:      to.ID,
			Type:             in.Type,
			EvidenceChunkIDs: types.JSONStrings(in.EvidenceChunkIDs),
			SourceURL:        in.SourceURL,
			Confidence:       in.Confidence,
		}})
		if err != nil {
			return fmt.Errorf("create edge: %w", err)
		}
		created = rows[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := s.deps.Mirror.UpsertConceptGraph(ctx, nil, []*types.Edge{created}); err != nil {
		s.log.Warn("graph mirror edge upsert failed", "edge_id", created.ID, "error", err)
	}
	s.log.Info("edge created", "edge_id", created.ID, "type", created.Type)
	return created, nil
}

func (s *Service) lockPrereqEdges(ctx context.Context) (func(), error) {
	s.prereqMu.Lock()
	if s.deps.Locker == nil {
		return s.prereqMu.Unlock, nil
	}
	release, err := s.deps.Locker.Acquire(ctx, prereqEdgesLockKey, s.deps.LockTTL)
	if err != nil {
		s.prereqMu.Unlock()
		if errors.Is(err, redisclient.ErrLockHeld) {
			return nil, apperr.Conflict("prereq_edges_locked",
				"another prerequisite edge is being created", map[string]any{"lock": prereqEdgesLockKey})
		}
		return nil, fmt.Errorf("lock %s: %w", prereqEdgesLockKey, err)
	}
	return func() {
		_ = release(context.WithoutCancel(ctx))
		s.prereqMu.Unlock()
	}, nil
}

// Search returns live concepts whose title contains query; exact, when set,
// switches to case-insensitive title equality.
func (s *Service) Search(ctx context.Context, query string, exact bool, limit int) ([]types.ConceptSummary, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("empty_query", "search query is empty", nil)
	}
	dbc := dbctx.Context{Ctx: ctx}
	if exact {
		return s.deps.Concepts.SearchExact(dbc, query)
	}
	return s.deps.Concepts.SearchSummaries(dbc, query, limit)
}

func titleOr(titles map[string]string, id string) string {
	if t := titles[id]; t != "" {
		return t
	}
	return id
}
