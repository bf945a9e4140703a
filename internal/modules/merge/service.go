package merge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	redisclient "github.com/yungbote/tutorgraph-backend/internal/clients/redis"
	graphmirror "github.com/yungbote/tutorgraph-backend/internal/data/graph"
	"github.com/yungbote/tutorgraph-backend/internal/data/repos"
	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/observability"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
	"github.com/yungbote/tutorgraph-backend/internal/realtime"
	"github.com/yungbote/tutorgraph-backend/internal/realtime/bus"
)

const defaultLockTTL = 2 * time.Minute

type Deps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Concepts       repos.ConceptRepo
	Aliases        repos.ConceptAliasRepo
	Edges          repos.EdgeRepo
	ReviewItems    repos.ReviewItemRepo
	ConceptSources repos.ConceptSourceRepo
	Merges         repos.ConceptMergeRepo

	// Optional: serialize merges across processes.
	Locker  redisclient.Locker
	LockTTL time.Duration
	// Optional: post-commit side effects.
	Mirror  graphmirror.Mirror
	Bus     bus.Bus
	Metrics *observability.Metrics

	Now func() time.Time
}

// Service folds duplicate concepts into a canonical one and can reverse a
// merge exactly once.
type Service struct {
	deps Deps
	log  *logger.Logger
}

func New(deps Deps) *Service {
	if deps.Mirror == nil {
		deps.Mirror = graphmirror.NopMirror()
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = defaultLockTTL
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{deps: deps, log: deps.Log.With("service", "MergeService")}
}

type Request struct {
	CanonicalID  string   `json:"canonical_id" validate:"required"`
	DuplicateIDs []string `json:"duplicate_ids" validate:"required,min=1,dive,required"`
}

// Get returns the merge record, snapshot included.
func (s *Service) Get(ctx context.Context, mergeID string) (*types.ConceptMerge, error) {
	return s.loadMerge(dbctx.Context{Ctx: ctx}, mergeID)
}

// DecodeSnapshot unpacks the pre-merge state stored on m.
func DecodeSnapshot(m *types.ConceptMerge) (*types.MergeSnapshot, error) {
	var snap types.MergeSnapshot
	if len(m.Snapshot) == 0 {
		return nil, fmt.Errorf("merge %s has no snapshot", m.ID)
	}
	if err := json.Unmarshal(m.Snapshot, &snap); err != nil {
		return nil, fmt.Errorf("decode merge %s snapshot: %w", m.ID, err)
	}
	return &snap, nil
}

func (s *Service) loadMerge(dbc dbctx.Context, mergeID string) (*types.ConceptMerge, error) {
	m, err := s.deps.Merges.GetByID(dbc, mergeID)
	if err != nil {
		return nil, fmt.Errorf("load merge: %w", err)
	}
	if m == nil {
		return nil, apperr.NotFound("merge_not_found",
			fmt.Sprintf("merge %s not found", mergeID), map[string]any{"merge_id": mergeID})
	}
	return m, nil
}

func (s *Service) lock(ctx context.Context, key string) (func(), error) {
	if s.deps.Locker == nil {
		return func() {}, nil
	}
	release, err := s.deps.Locker.Acquire(ctx, key, s.deps.LockTTL)
	if errors.Is(err, redisclient.ErrLockHeld) {
		return nil, apperr.Conflict("merge_in_progress",
			fmt.Sprintf("%s is locked by another merge", key), map[string]any{"lock": key})
	}
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", key, err)
	}
	return func() { _ = release(context.WithoutCancel(ctx)) }, nil
}

func (s *Service) publish(ctx context.Context, ev realtime.GraphEvent) {
	if s.deps.Bus == nil {
		return
	}
	if err := s.deps.Bus.Publish(ctx, ev); err != nil {
		s.log.Warn("graph event publish failed", "type", ev.Type, "id", ev.ID, "error", err)
	}
}
