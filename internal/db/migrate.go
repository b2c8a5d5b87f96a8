package db

import (
	"fmt"

	"github.com/zulandar/modelyard/internal/models"
	"gorm.io/gorm"
)

// AllModels returns the list of GORM models that make up the run store.
func AllModels() []interface{} {
	return []interface{}{
		&models.Run{},
		&models.Metric{},
		&models.Artifact{},
		&models.RegistryEntry{},
	}
}

// AutoMigrate creates or updates all run store tables. It is idempotent.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
