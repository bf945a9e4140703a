package graph

import (
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
)

type ChangesetRepo interface {
	Create(dbc dbctx.Context, row *types.Changeset) (*types.Changeset, error)
	GetByID(dbc dbctx.Context, id string) (*types.Changeset, error)
	// UpdateStatus moves the changeset to status only if it is currently in
	// one of fromStatuses; it reports whether a row changed.
	UpdateStatus(dbc dbctx.Context, id string, fromStatuses []string, status string) (bool, error)
	MarkApplied(dbc dbctx.Context, id string, at time.Time) (bool, error)
	Count(dbc dbctx.Context) (int64, error)
}

type changesetRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChangesetRepo(db *gorm.DB, baseLog *logger.Logger) ChangesetRepo {
	return &changesetRepo{db: db, log: baseLog.With("repo", "ChangesetRepo")}
}

func (r *changesetRepo) Create(dbc dbctx.Context, row *types.Changeset) (*types.Changeset, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(dbc.Ctx).Create(row).Error; err != nil {
		return nil, err
	}
	return row, nil
}

func (r *changesetRepo) GetByID(dbc dbctx.Context, id string) (*types.Changeset, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return nil, nil
	}
	var out []*types.Changeset
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *changesetRepo) UpdateStatus(dbc dbctx.Context, id string, fromStatuses []string, status string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" || len(fromStatuses) == 0 {
		return false, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.Changeset{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(map[string]interface{}{"status": status})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkApplied transitions a draft changeset to applied. A changeset in any
// other state is left alone and false is returned.
func (r *changesetRepo) MarkApplied(dbc dbctx.Context, id string, at time.Time) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return false, nil
	}
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.Changeset{}).
		Where("id = ? AND status = ?", id, types.ChangesetDraft).
		Updates(map[string]interface{}{
			"status":     types.ChangesetApplied,
			"applied_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *changesetRepo) Count(dbc dbctx.Context) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(dbc.Ctx).Model(&types.Changeset{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
