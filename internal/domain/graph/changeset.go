package graph

import (
	"time"

	"gorm.io/datatypes"
)

const (
	ChangesetDraft    = "draft"
	ChangesetApplied  = "applied"
	ChangesetRejected = "rejected"
)

const (
	ItemPending  = "pending"
	ItemAccepted = "accepted"
	ItemRejected = "rejected"
	ItemApplied  = "applied"
)

const (
	EntityConcept = "concept"
	EntityEdge    = "edge"
	EntityFile    = "file"
)

const (
	ActionCreate = "create"
	ActionPatch  = "patch"
)

type Changeset struct {
	ID        string     `gorm:"column:id;primaryKey" json:"id"`
	SourceID  *string    `gorm:"column:source_id;index" json:"source_id"`
	Status    string     `gorm:"column:status;not null;default:'draft';index" json:"status"`
	AppliedAt *time.Time `gorm:"column:applied_at" json:"applied_at,omitempty"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null" json:"updated_at"`
}

func (Changeset) TableName() string { return "changeset" }

type ChangesetItem struct {
	ID          string `gorm:"column:id;primaryKey" json:"id"`
	ChangesetID string `gorm:"column:changeset_id;not null;index:idx_changeset_item_order,priority:1" json:"changeset_id"`
	// Staging order within the changeset.
	Ordinal    int            `gorm:"column:ordinal;not null;default:0;index:idx_changeset_item_order,priority:2" json:"ordinal"`
	EntityType string         `gorm:"column:entity_type;not null" json:"entity_type"`
	Action     string         `gorm:"column:action;not null" json:"action"`
	Status     string         `gorm:"column:status;not null;default:'pending'" json:"status"`
	Payload    datatypes.JSON `gorm:"column:payload" json:"payload"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

func (ChangesetItem) TableName() string { return "changeset_item" }
