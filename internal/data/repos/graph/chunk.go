package graph

import (
	"gorm.io/gorm"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
)

type ChunkRepo interface {
	Create(dbc dbctx.Context, rows []*types.Chunk) ([]*types.Chunk, error)
	GetByID(dbc dbctx.Context, id string) (*types.Chunk, error)
	ListBySourceID(dbc dbctx.Context, sourceID string) ([]*types.Chunk, error)
	// ExistingIDs returns the subset of ids that name a stored chunk.
	ExistingIDs(dbc dbctx.Context, ids []string) ([]string, error)
}

type chunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChunkRepo(db *gorm.DB, baseLog *logger.Logger) ChunkRepo {
	return &chunkRepo{db: db, log: baseLog.With("repo", "ChunkRepo")}
}

func (r *chunkRepo) Create(dbc dbctx.Context, rows []*types.Chunk) ([]*types.Chunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.Chunk{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *chunkRepo) GetByID(dbc dbctx.Context, id string) (*types.Chunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return nil, nil
	}
	var out []*types.Chunk
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *chunkRepo) ListBySourceID(dbc dbctx.Context, sourceID string) ([]*types.Chunk, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Chunk
	if sourceID == "" {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("source_id = ?", sourceID).
		Order("ordinal ASC, id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *chunkRepo) ExistingIDs(dbc dbctx.Context, ids []string) ([]string, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := []string{}
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Chunk{}).
		Where("id IN ?", ids).
		Order("id ASC").
		Pluck("id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
