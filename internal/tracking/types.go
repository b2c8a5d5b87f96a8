package tracking

import (
	"time"
)

// Registry stages. Only StageCurrent is read by consumers; the others are
// accepted so that the closed set can grow without a schema change.
const (
	StageCandidate = "candidate"
	StageCurrent   = "current"
	StageArchived  = "archived"
)

// ValidStages is the closed set of registry stages.
var ValidStages = []string{StageCandidate, StageCurrent, StageArchived}

// DefaultListLimit is used when ListOpts.Limit is not positive.
const DefaultListLimit = 50

// Run is a recorded training or evaluation execution.
type Run struct {
	RunID     string         `json:"run_id"`
	CreatedAt time.Time      `json:"created_at"`
	GitCommit *string        `json:"git_commit"`
	GitBranch *string        `json:"git_branch"`
	GitDirty  bool           `json:"git_dirty"`
	Params    map[string]any `json:"params"`
	Note      *string        `json:"note"`
}

// Kind returns params["kind"] when it is a string.
func (r *Run) Kind() string {
	k, _ := r.Params["kind"].(string)
	return k
}

// ArtifactRecord is one logged artifact row.
type ArtifactRecord struct {
	ID   uint   `json:"id"`
	Kind string `json:"kind"`
	Path string `json:"path"`
}

// RunDetail is a run with its metrics and artifacts.
type RunDetail struct {
	Run
	Metrics   map[string]float64 `json:"metrics"`
	Artifacts []ArtifactRecord   `json:"artifacts"`
}

// RunSummary is one row of ListRuns. Metrics is nil, and omitted from JSON,
// unless ListOpts.IncludeMetrics was set.
type RunSummary struct {
	RunID      string             `json:"run_id"`
	CreatedAt  time.Time          `json:"created_at"`
	Kind       string             `json:"kind,omitempty"`
	GitCommit  *string            `json:"git_commit"`
	GitBranch  *string            `json:"git_branch"`
	GitDirty   bool               `json:"git_dirty"`
	Note       *string            `json:"note"`
	RunDirName string             `json:"run_dir_name,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitzero"`
}

// ListOpts controls ListRuns paging.
type ListOpts struct {
	Limit          int
	Offset         int
	IncludeMetrics bool
}

// RegistryEntry is the (name, stage) promotion slot.
type RegistryEntry struct {
	Name      string             `json:"name"`
	Stage     string             `json:"stage"`
	RunID     string             `json:"run_id"`
	Path      string             `json:"path"`
	CreatedAt time.Time          `json:"created_at"`
	Metrics   map[string]float64 `json:"metrics"`
}
