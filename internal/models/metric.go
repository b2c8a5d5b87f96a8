package models

// Metric is a named scalar result for a run. (run_id, key) is unique;
// re-logging a key replaces its value.
type Metric struct {
	RunID string  `gorm:"column:run_id;primaryKey;size:64"`
	Key   string  `gorm:"column:key;primaryKey;size:128"`
	Value float64 `gorm:"not null"`
}

func (Metric) TableName() string { return "metrics" }
