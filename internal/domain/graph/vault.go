package graph

import "time"

// VaultFile mirrors a vault markdown file for search and change detection.
type VaultFile struct {
	Path        string    `gorm:"column:path;primaryKey" json:"path"`
	Content     string    `gorm:"column:content;type:text" json:"content"`
	ContentHash string    `gorm:"column:content_hash;not null" json:"content_hash"`
	UpdatedAt   time.Time `gorm:"not null" json:"updated_at"`
}

func (VaultFile) TableName() string { return "vault_file" }
