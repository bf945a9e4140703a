package graph

import (
	"time"

	"gorm.io/datatypes"
)

// ConceptMerge records one reversible dedupe of DuplicateIDs into CanonicalID.
type ConceptMerge struct {
	ID           string         `gorm:"column:id;primaryKey" json:"id"`
	CanonicalID  string         `gorm:"column:canonical_id;not null;index" json:"canonical_id"`
	DuplicateIDs datatypes.JSON `gorm:"column:duplicate_ids;not null" json:"duplicate_ids"` // []string
	// MergeSnapshot, enough to restore every duplicate exactly.
	Snapshot  datatypes.JSON `gorm:"column:snapshot" json:"-"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UndoneAt  *time.Time     `gorm:"column:undone_at" json:"undone_at"`
}

func (ConceptMerge) TableName() string { return "concept_merge" }

// MergeSnapshot holds full pre-merge records of everything a merge touches.
type MergeSnapshot struct {
	Concepts       []Concept       `json:"concepts"`
	Edges          []Edge          `json:"edges"`
	ReviewItems    []ReviewItem    `json:"review_items"`
	ConceptSources []ConceptSource `json:"concept_sources"`
	// Ids of edges rewired (kept with new endpoints) and deleted by the merge.
	RewiredEdgeIDs []string `json:"rewired_edge_ids"`
	DeletedEdgeIDs []string `json:"deleted_edge_ids"`
}
