package graph

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	"github.com/yungbote/tutorgraph-backend/internal/platform/logger"
)

type ConceptRepo interface {
	Create(dbc dbctx.Context, rows []*types.Concept) ([]*types.Concept, error)

	// GetByID follows merge aliases: a duplicate id yields its canonical concept.
	GetByID(dbc dbctx.Context, id string) (*types.Concept, error)
	GetRawByID(dbc dbctx.Context, id string) (*types.Concept, error)
	GetRawByIDs(dbc dbctx.Context, ids []string) ([]*types.Concept, error)
	// ListEvidenceChunkIDs returns the chunk ids recorded on the concept row,
	// alias-resolved like GetByID.
	ListEvidenceChunkIDs(dbc dbctx.Context, id string) ([]string, error)

	Update(dbc dbctx.Context, row *types.Concept) error

	ListSummaries(dbc dbctx.Context) ([]types.ConceptSummary, error)
	ListSummariesByIDs(dbc dbctx.Context, ids []string) ([]types.ConceptSummary, error)
	SearchSummaries(dbc dbctx.Context, query string, limit int) ([]types.ConceptSummary, error)
	SearchExact(dbc dbctx.Context, title string) ([]types.ConceptSummary, error)

	ExistingIDs(dbc dbctx.Context, ids []string) ([]string, error)
	Count(dbc dbctx.Context) (int64, error)
}

type conceptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConceptRepo(db *gorm.DB, baseLog *logger.Logger) ConceptRepo {
	return &conceptRepo{db: db, log: baseLog.With("repo", "ConceptRepo")}
}

const summaryColumns = "id, title, module, kind"

// notAliased excludes merged duplicates from listings.
const notAliased = "id NOT IN (SELECT alias_id FROM concept_alias)"

func (r *conceptRepo) Create(dbc dbctx.Context, rows []*types.Concept) ([]*types.Concept, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.Concept{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *conceptRepo) GetByID(dbc dbctx.Context, id string) (*types.Concept, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == "" {
		return nil, nil
	}
	var alias types.ConceptAlias
	err := transaction.WithContext(dbc.Ctx).Where("alias_id = ?", id).Take(&alias).Error
	switch {
	case err == nil:
		id = alias.CanonicalID
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}
	return r.GetRawByID(dbc, id)
}

func (r *conceptRepo) GetRawByID(dbc dbctx.Context, id string) (*types.Concept, error) {
	if id == "" {
		return nil, nil
	}
	rows, err := r.GetRawByIDs(dbc, []string{id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

func (r *conceptRepo) GetRawByIDs(dbc dbctx.Context, ids []string) ([]*types.Concept, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Concept
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

func (r *conceptRepo) ListEvidenceChunkIDs(dbc dbctx.Context, id string) ([]string, error) {
	out := []string{}
	c, err := r.GetByID(dbc, id)
	if err != nil || c == nil {
		return out, err
	}
	for _, chunkID := range types.Strings(c.EvidenceChunkIDs) {
		if chunkID != "" {
			out = append(out, chunkID)
		}
	}
	return out, nil
}

func (r *conceptRepo) Update(dbc dbctx.Context, row *types.Concept) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil || row.ID == "" {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Save(row).Error
}

func (r *conceptRepo) ListSummaries(dbc dbctx.Context) ([]types.ConceptSummary, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := []types.ConceptSummary{}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Concept{}).
		Select(summaryColumns).
		Where(notAliased).
		Order("id ASC").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conceptRepo) ListSummariesByIDs(dbc dbctx.Context, ids []string) ([]types.ConceptSummary, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := []types.ConceptSummary{}
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Concept{}).
		Select(summaryColumns).
		Where("id IN ?", ids).
		Order("id ASC").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conceptRepo) SearchSummaries(dbc dbctx.Context, query string, limit int) ([]types.ConceptSummary, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := []types.ConceptSummary{}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return out, nil
	}
	if limit <= 0 {
		limit = 20
	}
	q = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(q)
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Concept{}).
		Select(summaryColumns).
		Where(`LOWER(title) LIKE ? ESCAPE '\'`, "%"+q+"%").
		Where(notAliased).
		Order("title ASC, id ASC").
		Limit(limit).
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conceptRepo) SearchExact(dbc dbctx.Context, title string) ([]types.ConceptSummary, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := []types.ConceptSummary{}
	t := strings.ToLower(strings.TrimSpace(title))
	if t == "" {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Concept{}).
		Select(summaryColumns).
		Where("LOWER(title) = ?", t).
		Where(notAliased).
		Order("id ASC").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ExistingIDs returns the subset of ids that have a concept row, aliased
// duplicates included.
func (r *conceptRepo) ExistingIDs(dbc dbctx.Context, ids []string) ([]string, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := []string{}
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Concept{}).
		Where("id IN ?", ids).
		Order("id ASC").
		Pluck("id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *conceptRepo) Count(dbc dbctx.Context) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(dbc.Ctx).Model(&types.Concept{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
