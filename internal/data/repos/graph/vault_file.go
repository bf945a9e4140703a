package graph

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
)

type VaultFileRepo interface {
	GetByPath(dbc dbctx.Context, path string) (*types.VaultFile, error)
	Upsert(dbc dbctx.Context, row *types.VaultFile) error
}

type vaultFileRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewVaultFileRepo(db *gorm.DB, baseLog *logger.Logger) VaultFileRepo {
	return &vaultFileRepo{db: db, log: baseLog.With("repo", "VaultFileRepo")}
}

func (r *vaultFileRepo) GetByPath(dbc dbctx.Context, path string) (*types.VaultFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if path == "" {
		return nil, nil
	}
	var out []*types.VaultFile
	if err := transaction.WithContext(dbc.Ctx).Where("path = ?", path).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *vaultFileRepo) Upsert(dbc dbctx.Context, row *types.VaultFile) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil || row.Path == "" {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "content_hash", "updated_at"}),
		}).
		Create(row).Error
}
