package graph

import (
	"gorm.io/gorm"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
)

type EdgeRepo interface {
	Create(dbc dbctx.Context, rows []*types.Edge) ([]*types.Edge, error)
	GetByID(dbc dbctx.Context, id string) (*types.Edge, error)

	ListSummaries(dbc dbctx.Context) ([]types.EdgeSummary, error)
	ListSummariesByConceptIDs(dbc dbctx.Context, conceptIDs []string) ([]types.EdgeSummary, error)
	ListByConceptIDs(dbc dbctx.Context, conceptIDs []string) ([]*types.Edge, error)
	ListByIDs(dbc dbctx.Context, ids []string) ([]*types.Edge, error)
	ListEvidenceChunkIDsForConcept(dbc dbctx.Context, conceptID string) ([]string, error)

	UpdateEndpoints(dbc dbctx.Context, id, fromConceptID, toConceptID string) error
	DeleteByIDs(dbc dbctx.Context, ids []string) error
	// Restore replaces any current rows with the same ids by rows, verbatim.
	Restore(dbc dbctx.Context, rows []types.Edge) error
	Count(dbc dbctx.Context) (int64, error)
}

type edgeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEdgeRepo(db *gorm.DB, baseLog *logger.Logger) EdgeRepo {
	return &edgeRepo{db: db, log: baseLog.With("repo", "EdgeRepo")}
}

const edgeSummaryColumns = "id, from_concept_id, to_concept_id, type"

func (r *edgeRepo) Create(dbc dbctx.Context, rows []*types.Edge) ([]*types.Edge, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.Edge{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *edgeRepo) GetByID(dbc dbctx.Context, id string) (*types.Edge, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return nil, nil
	}
	var out []*types.Edge
	if err := transaction.WithContext(dbc.Ctx).Where("id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *edgeRepo) ListSummaries(dbc dbctx.Context) ([]types.EdgeSummary, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := []types.EdgeSummary{}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Edge{}).
		Select(edgeSummaryColumns).
		Order("id ASC").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *edgeRepo) ListSummariesByConceptIDs(dbc dbctx.Context, conceptIDs []string) ([]types.EdgeSummary, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := []types.EdgeSummary{}
	if len(conceptIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Edge{}).
		Select(edgeSummaryColumns).
		Where("from_concept_id IN ? OR to_concept_id IN ?", conceptIDs, conceptIDs).
		Order("id ASC").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *edgeRepo) ListByConceptIDs(dbc dbctx.Context, conceptIDs []string) ([]*types.Edge, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Edge
	if len(conceptIDs) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("from_concept_id IN ? OR to_concept_id IN ?", conceptIDs, conceptIDs).
		Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *edgeRepo) ListByIDs(dbc dbctx.Context, ids []string) ([]*types.Edge, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Edge
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

// ListEvidenceChunkIDsForConcept returns the distinct evidence chunk ids of
// every edge touching conceptID, in edge-id then list order.
func (r *edgeRepo) ListEvidenceChunkIDsForConcept(dbc dbctx.Context, conceptID string) ([]string, error) {
	out := []string{}
	if conceptID == "" {
		return out, nil
	}
	edges, err := r.ListByConceptIDs(dbc, []string{conceptID})
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, e := range edges {
		for _, id := range types.Strings(e.EvidenceChunkIDs) {
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *edgeRepo) UpdateEndpoints(dbc dbctx.Context, id, fromConceptID, toConceptID string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Model(&types.Edge{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"from_concept_id": fromConceptID,
			"to_concept_id":   toConceptID,
		}).Error
}

func (r *edgeRepo) DeleteByIDs(dbc dbctx.Context, ids []string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Delete(&types.Edge{}).Error
}

func (r *edgeRepo) Restore(dbc dbctx.Context, rows []types.Edge) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	ids := make([]string, 0, len(rows))
	for _, e := range rows {
		ids = append(ids, e.ID)
	}
	if err := transaction.WithContext(dbc.Ctx).Where("id IN ?", ids).Delete(&types.Edge{}).Error; err != nil {
		return err
	}
	return transaction.WithContext(dbc.Ctx).Create(&rows).Error
}

func (r *edgeRepo) Count(dbc dbctx.Context) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(dbc.Ctx).Model(&types.Edge{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
