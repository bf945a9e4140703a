package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/tutorgraph-backend/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.AllModels()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return EnsureGraphIndexes(db)
}

// EnsureGraphIndexes creates the composite indexes gorm tags cannot express
// portably across postgres and sqlite.
func EnsureGraphIndexes(db *gorm.DB) error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"idx_edge_from_to_type", `CREATE INDEX IF NOT EXISTS idx_edge_from_to_type ON edge (from_concept_id, to_concept_id, type);`},
		{"idx_concept_source_pair", `CREATE INDEX IF NOT EXISTS idx_concept_source_pair ON concept_source (concept_id, source_id);`},
		{"idx_concept_title_lower", `CREATE INDEX IF NOT EXISTS idx_concept_title_lower ON concept (lower(title));`},
	}
	for _, s := range stmts {
		if err := db.Exec(s.sql).Error; err != nil {
			return fmt.Errorf("create %s: %w", s.name, err)
		}
	}
	return nil
}
