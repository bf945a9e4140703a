package graph

import (
	"gorm.io/gorm"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
)

type ConceptAliasRepo interface {
	Create(dbc dbctx.Context, rows []*types.ConceptAlias) ([]*types.ConceptAlias, error)
	// Resolve maps every aliased id in ids to its canonical id. Ids that are
	// not aliases are absent from the result.
	Resolve(dbc dbctx.Context, ids []string) (map[string]string, error)
	ListByCanonicalID(dbc dbctx.Context, canonicalID string) ([]*types.ConceptAlias, error)
	DeleteByMergeID(dbc dbctx.Context, mergeID string) (int64, error)
}

type conceptAliasRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConceptAliasRepo(db *gorm.DB, baseLog *logger.Logger) ConceptAliasRepo {
	return &conceptAliasRepo{db: db, log: baseLog.With("repo", "ConceptAliasRepo")}
}

func (r *conceptAliasRepo) Create(dbc dbctx.Context, rows []*types.ConceptAlias) ([]*types.ConceptAlias, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.ConceptAlias{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *conceptAliasRepo) Resolve(dbc dbctx.Context, ids []string) (map[string]string, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := map[string]string{}
	if len(ids) == 0 {
		return out, nil
	}
	var rows []*types.ConceptAlias
	if err := transaction.WithContext(dbc.Ctx).
		Where("alias_id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, a := range rows {
		out[a.AliasID] = a.CanonicalID
	}
	return out, nil
}

func (r *conceptAliasRepo) ListByCanonicalID(dbc dbctx.Context, canonicalID string) ([]*types.ConceptAlias, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ConceptAlias
	if canonicalID == "" {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("canonical_id = ?", canonicalID).
		Order("alias_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conceptAliasRepo) DeleteByMergeID(dbc dbctx.Context, mergeID string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if mergeID == "" {
		return 0, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Where("merge_id = ?", mergeID).
		Delete(&types.ConceptAlias{})
	return res.RowsAffected, res.Error
}
