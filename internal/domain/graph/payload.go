package graph

import (
	"encoding/json"
	"fmt"
)

// Payload is the entity-specific body of a changeset item. The concrete
// types are ConceptPayload, EdgePayload and FilePatchPayload.
type Payload interface {
	EntityType() string
}

type ConceptPayload struct {
	ID               string   `json:"id" validate:"required"`
	Title            string   `json:"title" validate:"required"`
	Kind             string   `json:"kind,omitempty"`
	L0               *string  `json:"l0,omitempty"`
	L1               []string `json:"l1,omitempty"`
	L2               []string `json:"l2,omitempty"`
	Module           string   `json:"module,omitempty"`
	EvidenceChunkIDs []string `json:"evidence_chunk_ids,omitempty"`
}

func (ConceptPayload) EntityType() string { return EntityConcept }

type EdgePayload struct {
	FromConceptID    string   `json:"from_concept_id" validate:"required"`
	ToConceptID      string   `json:"to_concept_id" validate:"required"`
	Type             string   `json:"type" validate:"required"`
	EvidenceChunkIDs []string `json:"evidence_chunk_ids,omitempty"`
	SourceURL        *string  `json:"source_url,omitempty"`
	Confidence       *float64 `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
}

func (EdgePayload) EntityType() string { return EntityEdge }

type FilePatchPayload struct {
	FilePath    string `json:"file_path" validate:"required"`
	UnifiedDiff string `json:"unified_diff" validate:"required"`
}

func (FilePatchPayload) EntityType() string { return EntityFile }

// DecodePayload decodes raw according to entityType.
func DecodePayload(entityType string, raw []byte) (Payload, error) {
	switch entityType {
	case EntityConcept:
		var p ConceptPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode concept payload: %w", err)
		}
		return p, nil
	case EntityEdge:
		var p EdgePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode edge payload: %w", err)
		}
		return p, nil
	case EntityFile:
		var p FilePatchPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decode file payload: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	}
}
