package changeset

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	redisclient "github.com/yungbote/tutorgraph-backend/internal/clients/redis"
	"github.com/yungbote/tutorgraph-backend/internal/data/db"
	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/modules/vaultpatch"
	"github.com/yungbote/tutorgraph-backend/internal/observability"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
	"github.com/yungbote/tutorgraph-backend/internal/realtime"
)

// Apply commits every accepted item of a draft changeset and marks the items
// and the changeset applied, all in one transaction. Vault files written by
// file-patch items are rolled back if anything after them fails.
//
// Re-applying an applied changeset, or applying one with no accepted items,
// returns an empty result. Concurrent calls for the same id inside this
// process share one execution; across processes the optional Locker makes
// the loser fail with a conflict.
func (s *Service) Apply(ctx context.Context, changesetID string) (*ApplyResult, error) {
	v, err, _ := s.flight.Do(changesetID, func() (any, error) {
		return s.apply(ctx, changesetID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ApplyResult), nil
}

type acceptedWork struct {
	itemIDs  []string
	concepts []types.ConceptPayload
	edges    []types.EdgePayload
	files    []vaultpatch.Item
}

func (s *Service) apply(ctx context.Context, changesetID string) (out *ApplyResult, err error) {
	start := s.deps.Now()
	ctx, span := observability.StartSpan(ctx, "changeset.apply", attribute.String("changeset_id", changesetID))
	status := "ok"
	defer func() {
		if err != nil {
			status = observability.StatusOf(err)
		}
		observability.EndSpan(span, err)
		s.deps.Metrics.ObserveChangesetApply(status, s.deps.Now().Sub(start))
	}()

	if s.deps.Locker != nil {
		release, lerr := s.deps.Locker.Acquire(ctx, "changeset:"+changesetID, s.deps.LockTTL)
		if errors.Is(lerr, redisclient.ErrLockHeld) {
			return nil, apperr.Conflict("changeset_apply_in_progress",
				fmt.Sprintf("changeset %s is being applied elsewhere", changesetID),
				map[string]any{"changeset_id": changesetID})
		}
		if lerr != nil {
			return nil, fmt.Errorf("lock changeset %s: %w", changesetID, lerr)
		}
		defer func() { _ = release(context.WithoutCancel(ctx)) }()
	}

	var (
		rollback func() error
		concepts []*types.Concept
		edges    []*types.Edge
	)
	err = s.deps.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		cs, err := s.loadChangeset(dbc, changesetID)
		if err != nil {
			return err
		}
		switch cs.Status {
		case types.ChangesetApplied:
			out = emptyApplyResult(cs)
			out.AlreadyApplied = true
			return nil
		case types.ChangesetRejected:
			return apperr.Conflict("changeset_not_applicable",
				fmt.Sprintf("changeset %s is rejected", cs.ID),
				map[string]any{"changeset_id": cs.ID, "status": cs.Status})
		}

		items, err := s.deps.Items.ListByChangesetID(dbc, cs.ID)
		if err != nil {
			return fmt.Errorf("list changeset items: %w", err)
		}
		work, err := partition(items)
		if err != nil {
			return err
		}
		out = emptyApplyResult(cs)
		if len(work.itemIDs) == 0 {
			return nil
		}

		if concepts, err = s.createConcepts(dbc, work.concepts); err != nil {
			return err
		}
		if edges, err = s.createEdges(dbc, work.edges); err != nil {
			return err
		}
		if len(work.files) > 0 {
			res, err := s.deps.Patcher.Apply(s.deps.VaultRoot, work.files)
			if err != nil {
				s.deps.Metrics.IncPatchFailure(apperr.CodeOf(err))
				return err
			}
			rollback = res.Rollback
			for _, u := range res.VaultFileUpdates {
				if err := s.deps.VaultFiles.Upsert(dbc, &types.VaultFile{
					Path:        u.FilePath,
					Content:     u.Content,
					ContentHash: u.ContentHash,
				}); err != nil {
					return fmt.Errorf("index vault file %s: %w", u.FilePath, err)
				}
			}
			out.VaultFileUpdates = res.VaultFileUpdates
		}

		n, err := s.deps.Items.MarkApplied(dbc, work.itemIDs)
		if err != nil {
			return fmt.Errorf("mark items applied: %w", err)
		}
		if int(n) != len(work.itemIDs) {
			return apperr.Conflict("changeset_items_changed",
				fmt.Sprintf("changeset %s items changed during apply", cs.ID),
				map[string]any{"changeset_id": cs.ID, "expected": len(work.itemIDs), "updated": n})
		}
		at := s.deps.Now()
		ok, err := s.deps.Changesets.MarkApplied(dbc, cs.ID, at)
		if err != nil {
			return fmt.Errorf("mark changeset applied: %w", err)
		}
		if !ok {
			return apperr.Conflict("changeset_status_changed",
				fmt.Sprintf("changeset %s changed during apply", cs.ID), map[string]any{"changeset_id": cs.ID})
		}

		out.Status = types.ChangesetApplied
		out.AppliedAt = &at
		out.AppliedItemIDs = work.itemIDs
		for _, c := range concepts {
			out.CreatedConceptIDs = append(out.CreatedConceptIDs, c.ID)
		}
		for _, e := range edges {
			out.CreatedEdgeIDs = append(out.CreatedEdgeIDs, e.ID)
		}
		return nil
	})
	if err != nil {
		if rollback != nil {
			if rbErr := rollback(); rbErr != nil {
				s.log.Error("vault rollback failed", "changeset_id", changesetID, "error", rbErr)
			}
		}
		s.log.Warn("changeset apply failed", "changeset_id", changesetID, "code", apperr.CodeOf(err), "error", err)
		return nil, err
	}

	if out.AlreadyApplied || len(out.AppliedItemIDs) == 0 {
		status = "noop"
		return out, nil
	}

	if err := s.deps.Mirror.UpsertConceptGraph(ctx, concepts, edges); err != nil {
		s.log.Warn("graph mirror update failed", "changeset_id", changesetID, "error", err)
	}
	filePaths := make([]string, 0, len(out.VaultFileUpdates))
	for _, u := range out.VaultFileUpdates {
		filePaths = append(filePaths, u.FilePath)
	}
	s.publish(ctx, realtime.GraphEvent{
		Type:       realtime.EventChangesetApplied,
		ID:         changesetID,
		ConceptIDs: out.CreatedConceptIDs,
		EdgeIDs:    out.CreatedEdgeIDs,
		FilePaths:  filePaths,
		At:         *out.AppliedAt,
	})
	s.log.Info("changeset applied",
		"changeset_id", changesetID,
		"items", len(out.AppliedItemIDs),
		"concepts", len(out.CreatedConceptIDs),
		"edges", len(out.CreatedEdgeIDs),
		"files", len(out.VaultFileUpdates),
	)
	return out, nil
}

// partition decodes the accepted items. pending and rejected items are
// skipped; an undecodable accepted item fails the apply.
func partition(items []*types.ChangesetItem) (acceptedWork, error) {
	var w acceptedWork
	for _, it := range items {
		if it.Status != types.ItemAccepted {
			continue
		}
		p, err := types.DecodePayload(it.EntityType, it.Payload)
		if err != nil {
			e := apperr.Validation("invalid_payload",
				fmt.Sprintf("changeset item %s has an invalid payload", it.ID),
				map[string]any{"item_id": it.ID, "entity_type": it.EntityType})
			e.Cause = err
			return w, e
		}
		switch pl := p.(type) {
		case types.ConceptPayload:
			w.concepts = append(w.concepts, pl)
		case types.EdgePayload:
			w.edges = append(w.edges, pl)
		case types.FilePatchPayload:
			w.files = append(w.files, vaultpatch.Item{ID: it.ID, FilePath: pl.FilePath, UnifiedDiff: pl.UnifiedDiff})
		default:
			return w, apperr.Validation("unknown_entity_type",
				fmt.Sprintf("changeset item %s has unknown entity type %q", it.ID, it.EntityType),
				map[string]any{"item_id": it.ID, "entity_type": it.EntityType})
		}
		w.itemIDs = append(w.itemIDs, it.ID)
	}
	return w, nil
}

func (s *Service) createConcepts(dbc dbctx.Context, payloads []types.ConceptPayload) ([]*types.Concept, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(payloads))
	rows := make([]*types.Concept, 0, len(payloads))
	for _, p := range payloads {
		kind := p.Kind
		if kind == "" {
			kind = "concept"
		}
		ids = append(ids, p.ID)
		rows = append(rows, &types.Concept{
			ID:     p.ID,
			Title:  p.Title,
			Kind:   kind,
			L0:     p.L0,
			L1:     types.JSONStrings(p.L1),
			L2:     types.JSONStrings(p.L2),
			Module: p.Module,

			EvidenceChunkIDs: types.JSONStrings(p.EvidenceChunkIDs),
		})
	}
	existing, err := s.deps.Concepts.ExistingIDs(dbc, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup concepts: %w", err)
	}
	if len(existing) > 0 {
		return nil, apperr.Conflict("concept_exists",
			fmt.Sprintf("concepts created since staging: %v", existing),
			map[string]any{"concept_ids": existing})
	}
	created, err := s.deps.Concepts.Create(dbc, rows)
	if err != nil {
		if db.IsUniqueViolation(err) {
			e := apperr.Conflict("concept_exists", "a proposed concept was created concurrently", nil)
			e.Cause = err
			return nil, e
		}
		return nil, fmt.Errorf("create concepts: %w", err)
	}
	return created, nil
}

// createEdges re-checks endpoints against the store, concepts created by
// this apply included, and attaches edges aimed at a merged duplicate to
// its canonical.
func (s *Service) createEdges(dbc dbctx.Context, payloads []types.EdgePayload) ([]*types.Edge, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	endpoints := []string{}
	for _, p := range payloads {
		endpoints = append(endpoints, p.FromConceptID, p.ToConceptID)
	}
	endpoints = dedupe(endpoints)
	found, err := s.deps.Concepts.ExistingIDs(dbc, endpoints)
	if err != nil {
		return nil, fmt.Errorf("lookup edge endpoints: %w", err)
	}
	stored := toSet(found)
	canonical, err := s.deps.Aliases.Resolve(dbc, found)
	if err != nil {
		return nil, fmt.Errorf("resolve edge endpoints: %w", err)
	}
	resolve := func(id string) string {
		if c, ok := canonical[id]; ok {
			return c
		}
		return id
	}

	rows := make([]*types.Edge, 0, len(payloads))
	for _, p := range payloads {
		fields := map[string]any{"from_concept_id": p.FromConceptID, "to_concept_id": p.ToConceptID, "type": p.Type}
		for _, id := range []string{p.FromConceptID, p.ToConceptID} {
			if !stored[id] {
				f := cloneFields(fields)
				f["concept_id"] = id
				return nil, apperr.Validation("dangling_endpoint",
					fmt.Sprintf("edge endpoint %q does not exist", id), f)
			}
		}
		from, to := resolve(p.FromConceptID), resolve(p.ToConceptID)
		if from == to {
			return nil, apperr.Validation("self_loop_edge",
				fmt.Sprintf("edge %s -> %s is a self-loop", p.FromConceptID, p.ToConceptID), fields)
		}
		if !types.IsEdgeType(p.Type) {
			return nil, apperr.Validation("unknown_edge_type", fmt.Sprintf("unknown edge type %q", p.Type), fields)
		}
		rows = append(rows, &types.Edge{
			ID:               uuid.NewString(),
			FromConceptID:    from,
			ToConceptID:      to,
			Type:             p.Type,
			EvidenceChunkIDs: types.JSONStrings(p.EvidenceChunkIDs),
			SourceURL:        p.SourceURL,
			Confidence:       p.Confidence,
		})
	}
	created, err := s.deps.Edges.Create(dbc, rows)
	if err != nil {
		return nil, fmt.Errorf("create edges: %w", err)
	}
	return created, nil
}
