package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/tutorgraph-backend/internal/data/repos/graph"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
)

type ConceptRepo = graph.ConceptRepo
type ConceptAliasRepo = graph.ConceptAliasRepo
type EdgeRepo = graph.EdgeRepo

type ChangesetRepo = graph.ChangesetRepo
type ChangesetItemRepo = graph.ChangesetItemRepo

type SourceRepo = graph.SourceRepo
type ChunkRepo = graph.ChunkRepo
type ConceptSourceRepo = graph.ConceptSourceRepo
type ReviewItemRepo = graph.ReviewItemRepo
type VaultFileRepo = graph.VaultFileRepo
type ConceptMergeRepo = graph.ConceptMergeRepo

func NewConceptRepo(db *gorm.DB, log *logger.Logger) ConceptRepo {
	return graph.NewConceptRepo(db, log)
}
func NewConceptAliasRepo(db *gorm.DB, log *logger.Logger) ConceptAliasRepo {
	return graph.NewConceptAliasRepo(db, log)
}
func NewEdgeRepo(db *gorm.DB, log *logger.Logger) EdgeRepo {
	return graph.NewEdgeRepo(db, log)
}
func NewChangesetRepo(db *gorm.DB, log *logger.Logger) ChangesetRepo {
	return graph.NewChangesetRepo(db, log)
}
func NewChangesetItemRepo(db *gorm.DB, log *logger.Logger) ChangesetItemRepo {
	return graph.NewChangesetItemRepo(db, log)
}
func NewSourceRepo(db *gorm.DB, log *logger.Logger) SourceRepo {
	return graph.NewSourceRepo(db, log)
}
func NewChunkRepo(db *gorm.DB, log *logger.Logger) ChunkRepo {
	return graph.NewChunkRepo(db, log)
}
func NewConceptSourceRepo(db *gorm.DB, log *logger.Logger) ConceptSourceRepo {
	return graph.NewConceptSourceRepo(db, log)
}
func NewReviewItemRepo(db *gorm.DB, log *logger.Logger) ReviewItemRepo {
	return graph.NewReviewItemRepo(db, log)
}
func NewVaultFileRepo(db *gorm.DB, log *logger.Logger) VaultFileRepo {
	return graph.NewVaultFileRepo(db, log)
}
func NewConceptMergeRepo(db *gorm.DB, log *logger.Logger) ConceptMergeRepo {
	return graph.NewConceptMergeRepo(db, log)
}
