package models

import (
	"time"

	"gorm.io/datatypes"
)

// Run is one training or evaluation execution. Rows are written once and
// never updated.
type Run struct {
	RunID     string            `gorm:"column:run_id;primaryKey;size:64"`
	CreatedAt time.Time         `gorm:"not null;index"`
	GitCommit *string           `gorm:"size:64"`
	GitBranch *string           `gorm:"size:255"`
	GitDirty  bool              `gorm:"default:false"`
	Params    datatypes.JSONMap `gorm:"column:params_json;type:json"`
	Note      *string           `gorm:"type:text"`
}

// TableName pins the table name used by the tracking schema.
func (Run) TableName() string { return "runs" }
