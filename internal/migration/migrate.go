package migration

import (
	"fmt"
	"log"

	"cluster-intelligence-be/internal/model"
	"cluster-intelligence-be/pkg/vectorstore"

	"gorm.io/gorm"
)

var setupSQL = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
	`CREATE EXTENSION IF NOT EXISTS vector;`,
}

// Models lists every table the engine owns, in dependency order.
func Models() []interface{} {
	return []interface{}{
		&model.Cluster{},
		&model.Collection{},
		&model.Document{},
		&vectorstore.DocumentEmbedding{},
		&model.ClusterEvent{},
		&model.ClusterSuggestion{},
	}
}

var postMigrationSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_cluster_events_user_created ON cluster_events (user_id, created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_cluster_suggestions_user_status ON cluster_suggestions (user_id, status);`,
}

// Run creates extensions, migrates the cluster tables and adds the listing
// indexes. Extension and index failures are logged, not fatal.
func Run(db *gorm.DB) error {
	log.Println("Step 1: Setting up extensions...")
	for _, sql := range setupSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute setup SQL: %v. Continuing...", err)
		}
	}

	models := Models()
	log.Printf("Step 2: Running AutoMigrate for %d tables...", len(models))
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	log.Println("Step 3: Creating indexes...")
	for _, sql := range postMigrationSQL {
		if err := db.Exec(sql).Error; err != nil {
			log.Printf("Warn: Failed to execute post-migration SQL: %v", err)
		}
	}
	return nil
}
