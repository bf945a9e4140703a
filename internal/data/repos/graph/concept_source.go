package graph

import (
	"gorm.io/gorm"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
)

type ConceptSourceRepo interface {
	Attach(dbc dbctx.Context, rows []*types.ConceptSource) ([]*types.ConceptSource, error)
	ListByConceptIDs(dbc dbctx.Context, conceptIDs []string) ([]*types.ConceptSource, error)
	ListByIDs(dbc dbctx.Context, ids []string) ([]*types.ConceptSource, error)
	Reassign(dbc dbctx.Context, ids []string, conceptID string) error
	DeleteByIDs(dbc dbctx.Context, ids []string) error
	Restore(dbc dbctx.Context, rows []types.ConceptSource) error
}

type conceptSourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConceptSourceRepo(db *gorm.DB, baseLog *logger.Logger) ConceptSourceRepo {
	return &conceptSourceRepo{db: db, log: baseLog.With("repo", "ConceptSourceRepo")}
}

func (r *conceptSourceRepo) Attach(dbc dbctx.Context, rows []*types.ConceptSource) ([]*types.ConceptSource, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.ConceptSource{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *conceptSourceRepo) ListByConceptIDs(dbc dbctx.Context, conceptIDs []string) ([]*types.ConceptSource, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ConceptSource
	if len(conceptIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("concept_id IN ?", conceptIDs).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conceptSourceRepo) ListByIDs(dbc dbctx.Context, ids []string) ([]*types.ConceptSource, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ConceptSource
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conceptSourceRepo) Reassign(dbc dbctx.Context, ids []string, conceptID string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 || conceptID == "" {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.ConceptSource{}).
		Where("id IN ?", ids).
		Update("concept_id", conceptID).Error
}

func (r *conceptSourceRepo) DeleteByIDs(dbc dbctx.Context, ids []string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Where("id IN ?", ids).Delete(&types.ConceptSource{}).Error
}

func (r *conceptSourceRepo) Restore(dbc dbctx.Context, rows []types.ConceptSource) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	ids := make([]string, 0, len(rows))
	for _, cs := range rows {
		ids = append(ids, cs.ID)
	}
	if err := transaction.WithContext(dbc.Ctx).Where("id IN ?", ids).Delete(&types.ConceptSource{}).Error; err != nil {
		return err
	}
	return transaction.WithContext(dbc.Ctx).Create(&rows).Error
}
