package models

// Artifact is a file produced by a run. The table is a log: the same kind
// may appear several times for one run.
type Artifact struct {
	ID    uint   `gorm:"primaryKey;autoIncrement"`
	RunID string `gorm:"column:run_id;size:64;not null;index"`
	Kind  string `gorm:"size:64;not null"`
	Path  string `gorm:"type:text;not null"`
}

func (Artifact) TableName() string { return "artifacts" }
