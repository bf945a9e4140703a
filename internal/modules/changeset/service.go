package changeset

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	redisclient "github.com/yungbote/tutorgraph-backend/internal/clients/redis"
	graphmirror "github.com/yungbote/tutorgraph-backend/internal/data/graph"
	"github.com/yungbote/tutorgraph-backend/internal/data/repos"
	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/modules/vaultpatch"
	"github.com/yungbote/tutorgraph-backend/internal/observability"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
	"github.com/yungbote/tutorgraph-backend/internal/realtime"
	"github.com/yungbote/tutorgraph-backend/internal/realtime/bus"
)

const defaultLockTTL = 2 * time.Minute

type Deps struct {
	DB  *gorm.DB
	Log *logger.Logger

	Concepts   repos.ConceptRepo
	Aliases    repos.ConceptAliasRepo
	Edges      repos.EdgeRepo
	Changesets repos.ChangesetRepo
	Items      repos.ChangesetItemRepo
	Chunks     repos.ChunkRepo
	VaultFiles repos.VaultFileRepo

	Patcher   *vaultpatch.Applier
	VaultRoot string

	// Optional: serialize apply across processes.
	Locker  redisclient.Locker
	LockTTL time.Duration
	// Optional: post-commit side effects.
	Mirror  graphmirror.Mirror
	Bus     bus.Bus
	Metrics *observability.Metrics

	Now func() time.Time
}

// Service stages proposals as draft changesets, records per-item review
// decisions and applies accepted items.
type Service struct {
	deps   Deps
	log    *logger.Logger
	flight singleflight.Group
}

func New(deps Deps) *Service {
	if deps.Patcher == nil {
		deps.Patcher = vaultpatch.NewApplier()
	}
	if deps.Mirror == nil {
		deps.Mirror = graphmirror.NopMirror()
	}
	if deps.LockTTL <= 0 {
		deps.LockTTL = defaultLockTTL
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{deps: deps, log: deps.Log.With("service", "ChangesetService")}
}

// Proposal is a batch of graph mutations to stage. Items are staged in
// order: concepts, then edges, then file patches.
type Proposal struct {
	SourceID    *string                  `json:"source_id,omitempty"`
	Concepts    []types.ConceptPayload   `json:"concepts,omitempty" validate:"dive"`
	Edges       []types.EdgePayload      `json:"edges,omitempty" validate:"dive"`
	FilePatches []types.FilePatchPayload `json:"file_patches,omitempty" validate:"dive"`
}

func (p Proposal) empty() bool {
	return len(p.Concepts) == 0 && len(p.Edges) == 0 && len(p.FilePatches) == 0
}

// View is a changeset with its items in staging order.
type View struct {
	Changeset *types.Changeset       `json:"changeset"`
	Items     []*types.ChangesetItem `json:"items"`
}

type ApplyResult struct {
	ChangesetID string     `json:"changeset_id"`
	Status      string     `json:"status"`
	AppliedAt   *time.Time `json:"applied_at,omitempty"`
	// AlreadyApplied is set when the call was a no-op retry.
	AlreadyApplied    bool                    `json:"already_applied"`
	AppliedItemIDs    []string                `json:"applied_item_ids"`
	CreatedConceptIDs []string                `json:"created_concept_ids"`
	CreatedEdgeIDs    []string                `json:"created_edge_ids"`
	VaultFileUpdates  []vaultpatch.FileUpdate `json:"vault_file_updates"`
}

func emptyApplyResult(cs *types.Changeset) *ApplyResult {
	return &ApplyResult{
		ChangesetID:       cs.ID,
		Status:            cs.Status,
		AppliedAt:         cs.AppliedAt,
		AppliedItemIDs:    []string{},
		CreatedConceptIDs: []string{},
		CreatedEdgeIDs:    []string{},
		VaultFileUpdates:  []vaultpatch.FileUpdate{},
	}
}

func (s *Service) publish(ctx context.Context, ev realtime.GraphEvent) {
	if s.deps.Bus == nil {
		return
	}
	if err := s.deps.Bus.Publish(ctx, ev); err != nil {
		s.log.Warn("graph event publish failed", "type", ev.Type, "id", ev.ID, "error", err)
	}
}
