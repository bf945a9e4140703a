package graph

import (
	"time"

	"gorm.io/datatypes"
)

// Concept is a learnable idea. Concepts are never hard-deleted; a merged
// duplicate keeps its row and gains a ConceptAlias pointing at the canonical.
type Concept struct {
	ID    string  `gorm:"column:id;primaryKey" json:"id"`
	Title string  `gorm:"column:title;not null;index" json:"title"`
	Kind  string  `gorm:"column:kind;not null;default:'concept'" json:"kind"`
	L0    *string `gorm:"column:l0;type:text" json:"l0"`
	// Ordered bullets, increasing detail.
	L1           datatypes.JSON `gorm:"column:l1" json:"l1"` // []string
	L2           datatypes.JSON `gorm:"column:l2" json:"l2"` // []string
	Module       string         `gorm:"column:module;index" json:"module,omitempty"`
	MasteryScore float64        `gorm:"column:mastery_score;not null;default:0" json:"mastery_score"`
	// Chunks that back the concept itself, as opposed to its edges.
	EvidenceChunkIDs datatypes.JSON `gorm:"column:evidence_chunk_ids" json:"evidence_chunk_ids"` // []string
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
}

func (Concept) TableName() string { return "concept" }

// ConceptSummary is the lightweight projection used by listings, the lens
// and the path planner.
type ConceptSummary struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Module string `json:"module,omitempty"`
	Kind   string `json:"kind"`
}

// ConceptAlias redirects lookups of a merged duplicate to its canonical.
type ConceptAlias struct {
	AliasID     string    `gorm:"column:alias_id;primaryKey" json:"alias_id"`
	CanonicalID string    `gorm:"column:canonical_id;not null;index" json:"canonical_id"`
	MergeID     string    `gorm:"column:merge_id;not null;index" json:"merge_id"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
}

func (ConceptAlias) TableName() string { return "concept_alias" }
