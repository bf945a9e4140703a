package graph

import (
	"gorm.io/gorm"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
)

type ChangesetItemRepo interface {
	CreateBatch(dbc dbctx.Context, rows []*types.ChangesetItem) ([]*types.ChangesetItem, error)
	GetByID(dbc dbctx.Context, id string) (*types.ChangesetItem, error)
	ListByChangesetID(dbc dbctx.Context, changesetID string) ([]*types.ChangesetItem, error)

	UpdateStatus(dbc dbctx.Context, id string, fromStatuses []string, status string) (bool, error)
	UpdateStatusByChangesetID(dbc dbctx.Context, changesetID string, fromStatuses []string, status string) (int64, error)
	// MarkApplied moves the given accepted items to applied and returns how
	// many rows changed.
	MarkApplied(dbc dbctx.Context, ids []string) (int64, error)
	Count(dbc dbctx.Context) (int64, error)
}

type changesetItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChangesetItemRepo(db *gorm.DB, baseLog *logger.Logger) ChangesetItemRepo {
	return &changesetItemRepo{db: db, log: baseLog.With("repo", "ChangesetItemRepo")}
}

func (r *changesetItemRepo) CreateBatch(dbc dbctx.Context, rows []*types.ChangesetItem) ([]*types.ChangesetItem, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.ChangesetItem{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *changesetItemRepo) GetByID(dbc dbctx.Context, id string) (*types.ChangesetItem, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return nil, nil
	}
	var out []*types.ChangesetItem
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *changesetItemRepo) ListByChangesetID(dbc dbctx.Context, changesetID string) ([]*types.ChangesetItem, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ChangesetItem
	if changesetID == "" {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("changeset_id = ?", changesetID).
		Order("ordinal ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *changesetItemRepo) UpdateStatus(dbc dbctx.Context, id string, fromStatuses []string, status string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" || len(fromStatuses) == 0 {
		return false, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.ChangesetItem{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(map[string]interface{}{"status": status})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *changesetItemRepo) UpdateStatusByChangesetID(dbc dbctx.Context, changesetID string, fromStatuses []string, status string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if changesetID == "" || len(fromStatuses) == 0 {
		return 0, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.ChangesetItem{}).
		Where("changeset_id = ? AND status IN ?", changesetID, fromStatuses).
		Updates(map[string]interface{}{"status": status})
	return res.RowsAffected, res.Error
}

func (r *changesetItemRepo) MarkApplied(dbc dbctx.Context, ids []string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.ChangesetItem{}).
		Where("id IN ? AND status = ?", ids, types.ItemAccepted).
		Updates(map[string]interface{}{"status": types.ItemApplied})
	return res.RowsAffected, res.Error
}

func (r *changesetItemRepo) Count(dbc dbctx.Context) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(dbc.Ctx).Model(&types.ChangesetItem{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
