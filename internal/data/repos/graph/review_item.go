package graph

import (
	"gorm.io/gorm"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
)

type ReviewItemRepo interface {
	Create(dbc dbctx.Context, rows []*types.ReviewItem) ([]*types.ReviewItem, error)
	GetByID(dbc dbctx.Context, id string) (*types.ReviewItem, error)
	ListByConceptIDs(dbc dbctx.Context, conceptIDs []string) ([]*types.ReviewItem, error)
	ListByIDs(dbc dbctx.Context, ids []string) ([]*types.ReviewItem, error)
	ReassignConcept(dbc dbctx.Context, ids []string, conceptID string) error
	Restore(dbc dbctx.Context, rows []types.ReviewItem) error
}

type reviewItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReviewItemRepo(db *gorm.DB, baseLog *logger.Logger) ReviewItemRepo {
	return &reviewItemRepo{db: db, log: baseLog.With("repo", "ReviewItemRepo")}
}

func (r *reviewItemRepo) Create(dbc dbctx.Context, rows []*types.ReviewItem) ([]*types.ReviewItem, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.ReviewItem{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *reviewItemRepo) GetByID(dbc dbctx.Context, id string) (*types.ReviewItem, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return nil, nil
	}
	var out []*types.ReviewItem
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *reviewItemRepo) ListByConceptIDs(dbc dbctx.Context, conceptIDs []string) ([]*types.ReviewItem, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ReviewItem
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

func (r *reviewItemRepo) ListByIDs(dbc dbctx.Context, ids []string) ([]*types.ReviewItem, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ReviewItem
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

func (r *reviewItemRepo) ReassignConcept(dbc dbctx.Context, ids []string, conceptID string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 || conceptID == "" {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.ReviewItem{}).
		Where("id IN ?", ids).
		Update("concept_id", conceptID).Error
}

func (r *reviewItemRepo) Restore(dbc dbctx.Context, rows []types.ReviewItem) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	ids := make([]string, 0, len(rows))
	for _, ri := range rows {
		ids = append(ids, ri.ID)
	}
	if err := transaction.WithContext(dbc.Ctx).Where("id IN ?", ids).Delete(&types.ReviewItem{}).Error; err != nil {
		return err
	}
	return transaction.WithContext(dbc.Ctx).Create(&rows).Error
}
