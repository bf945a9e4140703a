package changeset

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
	"github.com/yungbote/tutorgraph-backend/internal/modules/vaultpatch"
	"github.com/yungbote/tutorgraph-backend/internal/pkg/dbctx"
	apperr "github.com/yungbote/tutorgraph-backend/internal/pkg/errors"
)

var validate = validator.New()

// validateShape checks struct tags on every payload.
func validateShape(p Proposal) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate proposal: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Namespace())
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return apperr.Validation("invalid_payload", strings.Join(msgs, "; "), map[string]any{"fields": fields})
}

// checkProposal enforces the graph-level staging rules. It reads but never
// writes, so a failure leaves nothing behind.
func (s *Service) checkProposal(dbc dbctx.Context, p Proposal) error {
	proposed := make(map[string]bool, len(p.Concepts))
	ids := make([]string, 0, len(p.Concepts))
	for i, c := range p.Concepts {
		if proposed[c.ID] {
			return apperr.Validation("duplicate_concept_id",
				fmt.Sprintf("concept id %q is proposed more than once", c.ID),
				map[string]any{"concept_id": c.ID, "index": i})
		}
		proposed[c.ID] = true
		ids = append(ids, c.ID)
	}
	existing, err := s.deps.Concepts.ExistingIDs(dbc, ids)
	if err != nil {
		return fmt.Errorf("lookup proposed concepts: %w", err)
	}
	if len(existing) > 0 {
		return apperr.Validation("concept_exists",
			fmt.Sprintf("concepts already exist: %s", strings.Join(existing, ", ")),
			map[string]any{"concept_ids": existing})
	}

	if err := s.checkEdges(dbc, p.Edges, proposed); err != nil {
		return err
	}

	chunkIDs := []string{}
	for _, c := range p.Concepts {
		chunkIDs = append(chunkIDs, c.EvidenceChunkIDs...)
	}
	for _, e := range p.Edges {
		chunkIDs = append(chunkIDs, e.EvidenceChunkIDs...)
	}
	if missing, err := s.missingChunks(dbc, chunkIDs); err != nil {
		return err
	} else if len(missing) > 0 {
		return apperr.Validation("missing_evidence_chunk",
			fmt.Sprintf("evidence chunks not found: %s", strings.Join(missing, ", ")),
			map[string]any{"chunk_ids": missing})
	}

	for i, f := range p.FilePatches {
		if _, _, err := vaultpatch.ResolveVaultPath(s.deps.VaultRoot, f.FilePath); err != nil {
			return err
		}
		hunks, err := vaultpatch.ParseUnifiedDiff(f.UnifiedDiff)
		if err != nil {
			return err
		}
		if len(hunks) != 1 {
			return apperr.Validation("multi_hunk_item",
				fmt.Sprintf("file patch %d for %s must contain exactly one hunk, found %d", i, f.FilePath, len(hunks)),
				map[string]any{"index": i, "file_path": f.FilePath, "hunks": len(hunks)})
		}
	}
	return nil
}

// checkEdges requires a known type, endpoints that are proposed or stored,
// and no self-loop either as written or after following merge aliases.
func (s *Service) checkEdges(dbc dbctx.Context, edges []types.EdgePayload, proposed map[string]bool) error {
	if len(edges) == 0 {
		return nil
	}
	lookup := []string{}
	for _, e := range edges {
		for _, id := range []string{e.FromConceptID, e.ToConceptID} {
			if !proposed[id] {
				lookup = append(lookup, id)
			}
		}
	}
	found, err := s.deps.Concepts.ExistingIDs(dbc, dedupe(lookup))
	if err != nil {
		return fmt.Errorf("lookup edge endpoints: %w", err)
	}
	stored := toSet(found)
	canonical, err := s.deps.Aliases.Resolve(dbc, found)
	if err != nil {
		return fmt.Errorf("resolve edge endpoints: %w", err)
	}
	resolve := func(id string) string {
		if c, ok := canonical[id]; ok {
			return c
		}
		return id
	}

	for i, e := range edges {
		fields := map[string]any{
			"index":           i,
			"from_concept_id": e.FromConceptID,
			"to_concept_id":   e.ToConceptID,
			"type":            e.Type,
		}
		if !types.IsEdgeType(e.Type) {
			return apperr.Validation("unknown_edge_type", fmt.Sprintf("unknown edge type %q", e.Type), fields)
		}
		if e.FromConceptID == e.ToConceptID {
			return apperr.Validation("self_loop_edge",
				fmt.Sprintf("edge %s -> %s is a self-loop", e.FromConceptID, e.ToConceptID), fields)
		}
		for _, id := range []string{e.FromConceptID, e.ToConceptID} {
			if !proposed[id] && !stored[id] {
				f := cloneFields(fields)
				f["concept_id"] = id
				return apperr.Validation("dangling_endpoint",
					fmt.Sprintf("edge endpoint %q is neither stored nor proposed", id), f)
			}
		}
		if resolve(e.FromConceptID) == resolve(e.ToConceptID) {
			return apperr.Validation("self_loop_edge",
				fmt.Sprintf("edge %s -> %s is a self-loop after alias resolution", e.FromConceptID, e.ToConceptID), fields)
		}
	}
	return nil
}

func (s *Service) missingChunks(dbc dbctx.Context, ids []string) ([]string, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := s.deps.Chunks.ExistingIDs(dbc, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup evidence chunks: %w", err)
	}
	have := toSet(found)
	missing := []string{}
	for _, id := range ids {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func toSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}

func cloneFields(in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
