package graph

import "time"

// ReviewItem is a spaced-repetition card. Only its concept reference is
// touched by the graph core; scheduling lives elsewhere.
type ReviewItem struct {
	ID        string     `gorm:"column:id;primaryKey" json:"id"`
	ConceptID string     `gorm:"column:concept_id;not null;index" json:"concept_id"`
	Type      string     `gorm:"column:type;not null;default:'flashcard'" json:"type"`
	Prompt    string     `gorm:"column:prompt;type:text" json:"prompt"`
	Status    string     `gorm:"column:status;not null;default:'active'" json:"status"`
	DueAt     *time.Time `gorm:"column:due_at;index" json:"due_at,omitempty"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null" json:"updated_at"`
}

func (ReviewItem) TableName() string { return "review_item" }
