package models

import (
	"time"

	"gorm.io/datatypes"
)

// RegistryEntry is the promotion slot for a model name. There is at most one
// row per (name, stage); promotion replaces every column.
type RegistryEntry struct {
	Name      string            `gorm:"primaryKey;size:128"`
	Stage     string            `gorm:"primaryKey;size:32"`
	RunID     string            `gorm:"column:run_id;size:64"`
	Path      string            `gorm:"type:text;not null"`
	CreatedAt time.Time         `gorm:"not null"`
	Metrics   datatypes.JSONMap `gorm:"column:metrics_json;type:json"`
}

func (RegistryEntry) TableName() string { return "models" }
