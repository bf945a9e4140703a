package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/tutorgraph-backend/internal/modules/changeset"
	"github.com/yungbote/tutorgraph-backend/internal/modules/contextpack"
	"github.com/yungbote/tutorgraph-backend/internal/modules/graphquery"
	"github.com/yungbote/tutorgraph-backend/internal/modules/merge"
	"github.com/yungbote/tutorgraph-backend/internal/modules/vaultpatch"
	"github.com/yungbote/tutorgraph-backend/internal/observability"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
)

type Services struct {
	Changesets  *changeset.Service
	Merges      *merge.Service
	Graph       *graphquery.Service
	ContextPack *contextpack.Builder
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, r Repos, c Clients, metrics *observability.Metrics) Services {
	log.Info("Wiring services...")

	patcher := vaultpatch.NewApplier()
	patcher.SearchWindow = cfg.PatchSearchWindow

	return Services{
		Changesets: changeset.New(changeset.Deps{
			DB:         db,
			Log:        log,
			Concepts:   r.Concept,
			Aliases:    r.ConceptAlias,
			Edges:      r.Edge,
			Changesets: r.Changeset,
			Items:      r.ChangesetItem,
			Chunks:     r.Chunk,
			VaultFiles: r.VaultFile,
			Patcher:    patcher,
			VaultRoot:  cfg.VaultRoot,
			Locker:     c.Locker,
			LockTTL:    cfg.ApplyLockTTL,
			Mirror:     c.Mirror,
			Bus:        c.Bus,
			Metrics:    metrics,
		}),
		Merges: merge.New(merge.Deps{
			DB:             db,
			Log:            log,
			Concepts:       r.Concept,
			Aliases:        r.ConceptAlias,
			Edges:          r.Edge,
			ReviewItems:    r.ReviewItem,
			ConceptSources: r.ConceptSource,
			Merges:         r.ConceptMerge,
			Locker:         c.Locker,
			LockTTL:        cfg.ApplyLockTTL,
			Mirror:         c.Mirror,
			Bus:            c.Bus,
			Metrics:        metrics,
		}),
		Graph: graphquery.New(graphquery.Deps{
			DB:        db,
			Log:       log,
			Concepts:  r.Concept,
			Edges:     r.Edge,
			Mirror:    c.Mirror,
			MaxRadius: cfg.LensMaxRadius,
			Locker:    c.Locker,
			LockTTL:   cfg.ApplyLockTTL,
		}),
		ContextPack: contextpack.New(contextpack.Deps{
			DB:       db,
			Log:      log,
			Concepts: r.Concept,
			Edges:    r.Edge,
		}),
	}
}
