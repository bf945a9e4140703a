package graph

import "time"

type Source struct {
	ID          string    `gorm:"column:id;primaryKey" json:"id"`
	URL         string    `gorm:"column:url;index" json:"url"`
	Title       string    `gorm:"column:title" json:"title"`
	ContentHash string    `gorm:"column:content_hash" json:"content_hash,omitempty"`
	CreatedAt   time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (Source) TableName() string { return "source" }

// Chunk is a span of source text cited as evidence.
type Chunk struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	SourceID  string    `gorm:"column:source_id;not null;index" json:"source_id"`
	Ordinal   int       `gorm:"column:ordinal;not null;default:0" json:"ordinal"`
	Text      string    `gorm:"column:text;type:text" json:"text"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (Chunk) TableName() string { return "chunk" }

// ConceptSource attaches a source document to a concept.
type ConceptSource struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	ConceptID string    `gorm:"column:concept_id;not null;index" json:"concept_id"`
	SourceID  string    `gorm:"column:source_id;not null;index" json:"source_id"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}

func (ConceptSource) TableName() string { return "concept_source" }
