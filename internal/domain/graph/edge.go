package graph

import (
	"time"

	"gorm.io/datatypes"
)

const (
	EdgePrerequisiteOf = "PREREQUISITE_OF"
	EdgePartOf         = "PART_OF"
	EdgeUsedIn         = "USED_IN"
	EdgeContrastsWith  = "CONTRASTS_WITH"
	EdgeAddresses      = "ADDRESSES"
	EdgeInstanceOf     = "INSTANCE_OF"
	EdgeRelatedTo      = "RELATED_TO"
)

var edgeTypes = map[string]struct{}{
	EdgePrerequisiteOf: {},
	EdgePartOf:         {},
	EdgeUsedIn:         {},
	EdgeContrastsWith:  {},
	EdgeAddresses:      {},
	EdgeInstanceOf:     {},
	EdgeRelatedTo:      {},
}

func IsEdgeType(t string) bool {
	_, ok := edgeTypes[t]
	return ok
}

// Edge is a typed directed relation. "A -[PREREQUISITE_OF]-> B" means A is
// a prerequisite of B.
type Edge struct {
	ID               string         `gorm:"column:id;primaryKey" json:"id"`
	FromConceptID    string         `gorm:"column:from_concept_id;not null;index" json:"from_concept_id"`
	ToConceptID      string         `gorm:"column:to_concept_id;not null;index" json:"to_concept_id"`
	Type             string         `gorm:"column:type;not null;index" json:"type"`
	EvidenceChunkIDs datatypes.JSON `gorm:"column:evidence_chunk_ids" json:"evidence_chunk_ids"` // []string
	SourceURL        *string        `gorm:"column:source_url" json:"source_url,omitempty"`
	Confidence       *float64       `gorm:"column:confidence" json:"confidence,omitempty"`
	VerifierScore    *float64       `gorm:"column:verifier_score" json:"verifier_score,omitempty"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
}

func (Edge) TableName() string { return "edge" }

// EdgeSummary is the snapshot shape the graph algorithms consume.
type EdgeSummary struct {
	ID            string `json:"id"`
	FromConceptID string `json:"from_concept_id"`
	ToConceptID   string `json:"to_concept_id"`
	Type          string `json:"type"`
}

func (e *Edge) Summary() EdgeSummary {
	return EdgeSummary{ID: e.ID, FromConceptID: e.FromConceptID, ToConceptID: e.ToConceptID, Type: e.Type}
}
