package changeset

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/observability"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
)

// reviewTransitions lists the decisions a reviewer may make before apply.
// applied is deliberately absent: only Apply produces it.
var reviewTransitions = map[string]map[string]bool{
	types.ItemPending:  {types.ItemAccepted: true, types.ItemRejected: true},
	types.ItemAccepted: {types.ItemPending: true},
	types.ItemRejected: {types.ItemPending: true},
}

// SetItemStatus records a review decision on one item of a draft changeset.
// Setting the status an item already has is a no-op.
func (s *Service) SetItemStatus(ctx context.Context, itemID, status string) (out *types.ChangesetItem, err error) {
	defer func() {
		s.deps.Metrics.ObserveChangesetOp("set_item_status", observability.StatusOf(err))
	}()

	if _, ok := reviewTransitions[status]; !ok {
		return nil, apperr.Validation("invalid_item_status",
			fmt.Sprintf("item status %q cannot be set directly", status),
			map[string]any{"item_id": itemID, "status": status})
	}

	err = s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		item, err := s.deps.Items.GetByID(dbc, itemID)
		if err != nil {
			return fmt.Errorf("load changeset item: %w", err)
		}
		if item == nil {
			return apperr.NotFound("changeset_item_not_found",
				fmt.Sprintf("changeset item %s not found", itemID), map[string]any{"item_id": itemID})
		}
		cs, err := s.deps.Changesets.GetByID(dbc, item.ChangesetID)
		if err != nil {
			return fmt.Errorf("load changeset: %w", err)
		}
		if cs == nil {
			return apperr.NotFound("changeset_not_found",
				fmt.Sprintf("changeset %s not found", item.ChangesetID), map[string]any{"changeset_id": item.ChangesetID})
		}
		if cs.Status != types.ChangesetDraft {
			return apperr.Conflict("changeset_not_draft",
				fmt.Sprintf("changeset %s is %s", cs.ID, cs.Status),
				map[string]any{"changeset_id": cs.ID, "status": cs.Status})
		}
		if item.Status == status {
			out = item
			return nil
		}
		if !reviewTransitions[item.Status][status] {
			return apperr.Conflict("invalid_item_transition",
				fmt.Sprintf("item %s cannot move from %s to %s", item.ID, item.Status, status),
				map[string]any{"item_id": item.ID, "from": item.Status, "to": status})
		}
		ok, err := s.deps.Items.UpdateStatus(dbc, item.ID, []string{item.Status}, status)
		if err != nil {
			return fmt.Errorf("update item status: %w", err)
		}
		if !ok {
			return apperr.Conflict("item_status_changed",
				fmt.Sprintf("item %s changed concurrently", item.ID), map[string]any{"item_id": item.ID})
		}
		item.Status = status
		out = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reject abandons a draft changeset: it and every unapplied item become
// rejected. Rejecting a rejected changeset is a no-op.
func (s *Service) Reject(ctx context.Context, changesetID string) (out *View, err error) {
	defer func() {
		s.deps.Metrics.ObserveChangesetOp("reject", observability.StatusOf(err))
	}()

	err = s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		cs, err := s.loadChangeset(dbc, changesetID)
		if err != nil {
			return err
		}
		switch cs.Status {
		case types.ChangesetApplied:
			return apperr.Conflict("changeset_already_applied",
				fmt.Sprintf("changeset %s is already applied", cs.ID), map[string]any{"changeset_id": cs.ID})
		case types.ChangesetDraft:
			ok, err := s.deps.Changesets.UpdateStatus(dbc, cs.ID, []string{types.ChangesetDraft}, types.ChangesetRejected)
			if err != nil {
				return fmt.Errorf("reject changeset: %w", err)
			}
			if !ok {
				return apperr.Conflict("changeset_status_changed",
					fmt.Sprintf("changeset %s changed concurrently", cs.ID), map[string]any{"changeset_id": cs.ID})
			}
			if _, err := s.deps.Items.UpdateStatusByChangesetID(dbc, cs.ID,
				[]string{types.ItemPending, types.ItemAccepted}, types.ItemRejected); err != nil {
				return fmt.Errorf("reject changeset items: %w", err)
			}
		}
		out, err = s.view(dbc, cs.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("changeset rejected", "changeset_id", changesetID)
	return out, nil
}

// Get returns the changeset and its items in staging order.
func (s *Service) Get(ctx context.Context, changesetID string) (*View, error) {
	return s.view(dbctx.Context{Ctx: ctx}, changesetID)
}

func (s *Service) view(dbc dbctx.Context, changesetID string) (*View, error) {
	cs, err := s.loadChangeset(dbc, changesetID)
	if err != nil {
		return nil, err
	}
	items, err := s.deps.Items.ListByChangesetID(dbc, cs.ID)
	if err != nil {
		return nil, fmt.Errorf("list changeset items: %w", err)
	}
	return &View{Changeset: cs, Items: items}, nil
}

func (s *Service) loadChangeset(dbc dbctx.Context, changesetID string) (*types.Changeset, error) {
	cs, err := s.deps.Changesets.GetByID(dbc, changesetID)
	if err != nil {
		return nil, fmt.Errorf("load changeset: %w", err)
	}
	if cs == nil {
		return nil, apperr.NotFound("changeset_not_found",
			fmt.Sprintf("changeset %s not found", changesetID), map[string]any{"changeset_id": changesetID})
	}
	return cs, nil
}
