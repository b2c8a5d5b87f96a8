// Package pipeline runs the built-in training pipelines: each records a
// run, its metrics and artifacts, writes the run manifest and optionally
// promotes the candidate through the promotion policy.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zulandar/modelyard/internal/manifest"
	"github.com/zulandar/modelyard/internal/policy"
	"github.com/zulandar/modelyard/internal/registry"
	"github.com/zulandar/modelyard/internal/tracking"
)

// Artifact kinds logged by the pipelines.
const (
	ArtifactModelCandidate = "model_candidate"
	ArtifactModelCurrent   = "model_current"
	ArtifactDatasetMeta    = "dataset_meta"
)

// ReasonAutoPromoteDisabled is the Result reason when promotion was not
// attempted.
const ReasonAutoPromoteDisabled = "auto_promote disabled"

// Tracker is the write side of the run store.
type Tracker interface {
	CreateRun(ctx context.Context, runID string, params map[string]any, note string) error
	LogMetrics(ctx context.Context, runID string, metrics map[string]float64) error
	LogArtifact(ctx context.Context, runID, kind, path string) error
	GetRun(ctx context.Context, runID string) (*tracking.Run, bool, error)
	Identity() string
}

// Promoter reads and replaces the current model.
type Promoter interface {
	CurrentInfo(ctx context.Context, name string) (*registry.Info, bool, error)
	Promote(ctx context.Context, runID, src string, metrics map[string]float64, name string) (string, error)
}

// Env is everything a pipeline needs.
type Env struct {
	Store        Tracker
	Index        *manifest.Index
	Registry     Promoter
	ArtifactsDir string
	ModelName    string
	Logger       zerolog.Logger

	// NewRunID defaults to a random UUID.
	NewRunID func() string
}

func (e *Env) newRunID() string {
	if e.NewRunID != nil {
		return e.NewRunID()
	}
	return uuid.NewString()
}

func (e *Env) candidatePath(runID, suffix string) string {
	return filepath.Join(e.ArtifactsDir, "models", "candidates", runID+"_"+suffix+".json")
}

// Result summarizes a training run.
type Result struct {
	RunID           string             `json:"run_id"`
	CandidatePath   string             `json:"candidate_path"`
	ManifestPath    string             `json:"manifest_path"`
	DatasetMetaPath string             `json:"dataset_meta_path,omitempty"`
	Metrics         map[string]float64 `json:"metrics"`
	Promoted        bool               `json:"promoted"`
	Reason          string             `json:"reason"`
}

// writeManifest writes the run manifest using the run's recorded
// created_at so the directory name matches the store.
func (e *Env) writeManifest(ctx context.Context, runID, kind, status string, metrics map[string]float64) (string, error) {
	opts := manifest.WriteOpts{
		RunID:         runID,
		Kind:          kind,
		Status:        status,
		Metrics:       metrics,
		StoreLocation: e.Store.Identity(),
	}
	run, ok, err := e.Store.GetRun(ctx, runID)
	if err != nil {
		return "", fmt.Errorf("pipeline: write manifest: %w", err)
	}
	if ok {
		opts.CreatedAt = run.CreatedAt
	}
	return e.Index.Write(opts)
}

// markFailed records a failed manifest for a run whose pipeline broke after
// the run row was created.
func (e *Env) markFailed(ctx context.Context, runID, kind string, cause error) {
	if _, err := e.writeManifest(ctx, runID, kind, manifest.StatusFailed, nil); err != nil {
		e.Logger.Warn().Err(err).Str("run_id", runID).Msg("write failed manifest")
	}
	e.Logger.Error().Err(cause).Str("run_id", runID).Str("kind", kind).Msg("pipeline failed")
}

// maybePromote applies the promotion policy against the current model and
// promotes the candidate when it wins. Failing to log the model_current
// artifact does not undo a promotion.
func (e *Env) maybePromote(ctx context.Context, runID, candidate string, metrics map[string]float64, auto bool) (bool, string, error) {
	if !auto {
		return false, ReasonAutoPromoteDisabled, nil
	}

	var current map[string]float64
	info, ok, err := e.Registry.CurrentInfo(ctx, e.ModelName)
	if err != nil {
		return false, "", fmt.Errorf("pipeline: read current model: %w", err)
	}
	if ok {
		current = info.Metrics
	}

	d := policy.Decide(metrics, current)
	if !d.ShouldPromote {
		e.Logger.Info().Str("run_id", runID).Str("reason", d.Reason).Msg("candidate not promoted")
		return false, d.Reason, nil
	}

	dst, err := e.Registry.Promote(ctx, runID, candidate, metrics, e.ModelName)
	if err != nil {
		return false, d.Reason, fmt.Errorf("pipeline: promote %s: %w", runID, err)
	}
	if err := e.Store.LogArtifact(ctx, runID, ArtifactModelCurrent, dst); err != nil {
		e.Logger.Warn().Err(err).Str("run_id", runID).Msg("log model_current artifact")
	}
	return true, d.Reason, nil
}
