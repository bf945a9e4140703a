package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/tutorgraph-backend/internal/data/repos"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
)

type Repos struct {
	Concept       repos.ConceptRepo
	ConceptAlias  repos.ConceptAliasRepo
	Edge          repos.EdgeRepo
	Changeset     repos.ChangesetRepo
	ChangesetItem repos.ChangesetItemRepo
	Source        repos.SourceRepo
	Chunk         repos.ChunkRepo
	ConceptSource repos.ConceptSourceRepo
	ReviewItem    repos.ReviewItemRepo
	VaultFile     repos.VaultFileRepo
	ConceptMerge  repos.ConceptMergeRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Concept:       repos.NewConceptRepo(db, log),
		ConceptAlias:  repos.NewConceptAliasRepo(db, log),
		Edge:          repos.NewEdgeRepo(db, log),
		Changeset:     repos.NewChangesetRepo(db, log),
		ChangesetItem: repos.NewChangesetItemRepo(db, log),
		Source:        repos.NewSourceRepo(db, log),
		Chunk:         repos.NewChunkRepo(db, log),
		ConceptSource: repos.NewConceptSourceRepo(db, log),
		ReviewItem:    repos.NewReviewItemRepo(db, log),
		VaultFile:     repos.NewVaultFileRepo(db, log),
		ConceptMerge:  repos.NewConceptMergeRepo(db, log),
	}
}
