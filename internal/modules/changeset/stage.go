package changeset

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/observability"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
)

// Stage validates p and records it as a draft changeset with one pending
// item per entity. Any violation aborts the call before anything is written.
func (s *Service) Stage(ctx context.Context, p Proposal) (out *View, err error) {
	ctx, span := observability.StartSpan(ctx, "changeset.stage",
		attribute.Int("concepts", len(p.Concepts)),
		attribute.Int("edges", len(p.Edges)),
		attribute.Int("file_patches", len(p.FilePatches)),
	)
	defer func() {
		observability.EndSpan(span, err)
		s.deps.Metrics.ObserveChangesetOp("stage", observability.StatusOf(err))
	}()

	if p.empty() {
		return nil, apperr.Validation("empty_proposal", "proposal contains no concepts, edges or file patches", nil)
	}
	if err := validateShape(p); err != nil {
		return nil, err
	}

	err = s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.checkProposal(dbc, p); err != nil {
			return err
		}

		cs := &types.Changeset{
			ID:       uuid.NewString(),
			SourceID: p.SourceID,
			Status:   types.ChangesetDraft,
		}
		if _, err := s.deps.Changesets.Create(dbc, cs); err != nil {
			return fmt.Errorf("create changeset: %w", err)
		}
		items, err := buildItems(cs.ID, p)
		if err != nil {
			return err
		}
		if _, err := s.deps.Items.CreateBatch(dbc, items); err != nil {
			return fmt.Errorf("create changeset items: %w", err)
		}
		out = &View{Changeset: cs, Items: items}
		return nil
	})
	if err != nil {
		s.log.Info("changeset staging rejected", "code", apperr.CodeOf(err), "error", err)
		return nil, err
	}
	s.log.Info("changeset staged", "changeset_id", out.Changeset.ID, "items", len(out.Items))
	return out, nil
}

func buildItems(changesetID string, p Proposal) ([]*types.ChangesetItem, error) {
	payloads := make([]types.Payload, 0, len(p.Concepts)+len(p.Edges)+len(p.FilePatches))
	for _, c := range p.Concepts {
		payloads = append(payloads, c)
	}
	for _, e := range p.Edges {
		payloads = append(payloads, e)
	}
	for _, f := range p.FilePatches {
		payloads = append(payloads, f)
	}

	items := make([]*types.ChangesetItem, 0, len(payloads))
	for i, pl := range payloads {
		raw, err := types.JSONValue(pl)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload %d: %w", pl.EntityType(), i, err)
		}
		action := types.ActionCreate
		if pl.EntityType() == types.EntityFile {
			action = types.ActionPatch
		}
		items = append(items, &types.ChangesetItem{
			ID:          uuid.NewString(),
			ChangesetID: changesetID,
			Ordinal:     i,
			EntityType:  pl.EntityType(),
			Action:      action,
			Status:      types.ItemPending,
			Payload:     raw,
		})
	}
	return items, nil
}
