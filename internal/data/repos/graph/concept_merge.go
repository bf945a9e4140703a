package graph

import (
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
)

type ConceptMergeRepo interface {
	Create(dbc dbctx.Context, row *types.ConceptMerge) (*types.ConceptMerge, error)
	GetByID(dbc dbctx.Context, id string) (*types.ConceptMerge, error)
	// ListLive returns every merge not yet undone, oldest first.
	ListLive(dbc dbctx.Context) ([]*types.ConceptMerge, error)
	// MarkUndone stamps undone_at only if the merge has not been undone yet.
	MarkUndone(dbc dbctx.Context, id string, at time.Time) (bool, error)
}

type conceptMergeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConceptMergeRepo(db *gorm.DB, baseLog *logger.Logger) ConceptMergeRepo {
	return &conceptMergeRepo{db: db, log: baseLog.With("repo", "ConceptMergeRepo")}
}

func (r *conceptMergeRepo) Create(dbc dbctx.Context, row *types.ConceptMerge) (*types.ConceptMerge, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *conceptMergeRepo) GetByID(dbc dbctx.Context, id string) (*types.ConceptMerge, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return nil, nil
	}
	var out []*types.ConceptMerge
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *conceptMergeRepo) ListLive(dbc dbctx.Context) ([]*types.ConceptMerge, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ConceptMerge
	if err := transaction.WithContext(dbc.Ctx).
		Where("undone_at IS NULL").
		Order("created_at ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conceptMergeRepo) MarkUndone(dbc dbctx.Context, id string, at time.Time) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return false, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.ConceptMerge{}).
		Where("id = ? AND undone_at IS NULL", id).
		Update("undone_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
