package dashboard

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/zulandar/modelyard/internal/manifest"
	"github.com/zulandar/modelyard/internal/tracking"
)

// RunPage is the body of GET /runs.
type RunPage struct {
	Count int                   `json:"count"`
	Items []tracking.RunSummary `json:"items"`
}

// ListRuns pages through the run store and fills in each run's directory
// name from the pointer index when one exists.
func ListRuns(ctx context.Context, deps Deps, opts tracking.ListOpts) (RunPage, error) {
	items, err := deps.Runs.ListRuns(ctx, opts)
	if err != nil {
		return RunPage{}, fmt.Errorf("dashboard: list runs: %w", err)
	}
	if deps.Index != nil {
		for i := range items {
			if ptr, ok := deps.Index.ReadPointer(items[i].RunID); ok {
				items[i].RunDirName = ptr.RunDirName
			}
		}
	}
	return RunPage{Count: len(items), Items: items}, nil
}

// ArtifactLink is one downloadable artifact of a run.
type ArtifactLink struct {
	tracking.ArtifactRecord
	Index  int    `json:"index"`
	URL    string `json:"url"`
	Exists bool   `json:"exists"`
}

// RunView is the body of GET /runs/:id.
type RunView struct {
	tracking.Run
	Metrics    map[string]float64 `json:"metrics"`
	Artifacts  []ArtifactLink     `json:"artifacts"`
	RunDirName string             `json:"run_dir_name,omitempty"`
	Pointer    *manifest.Pointer  `json:"pointer,omitempty"`
	Manifest   *manifest.Manifest `json:"manifest,omitempty"`
}

// GetRun assembles the detail view of a run. ok=false when the run does
// not exist.
func GetRun(ctx context.Context, deps Deps, runID string) (*RunView, bool, error) {
	detail, ok, err := deps.Runs.GetRunDetail(ctx, runID)
	if err != nil {
		return nil, false, fmt.Errorf("dashboard: get run %s: %w", runID, err)
	}
	if !ok {
		return nil, false, nil
	}

	view := &RunView{
		Run:       detail.Run,
		Metrics:   detail.Metrics,
		Artifacts: make([]ArtifactLink, 0, len(detail.Artifacts)),
	}
	for i, a := range detail.Artifacts {
		_, exists := ArtifactFile(deps.ArtifactsDir, a.Path)
		view.Artifacts = append(view.Artifacts, ArtifactLink{
			ArtifactRecord: a,
			Index:          i,
			URL:            fmt.Sprintf("/runs/%s/artifacts/%d", runID, i),
			Exists:         exists,
		})
	}

	if deps.Index != nil {
		if ptr, ok := deps.Index.ReadPointer(runID); ok {
			view.Pointer = ptr
			view.RunDirName = ptr.RunDirName
			if m, ok := manifest.ReadManifest(ptr.ManifestPath); ok {
				view.Manifest = m
			}
		}
	}
	return view, true, nil
}

func artifactCandidates(artifactsDir, recorded string) []string {
	if recorded == "" {
		return nil
	}
	out := []string{filepath.Clean(recorded)}
	if !filepath.IsAbs(recorded) && artifactsDir != "" {
		out = append(out, filepath.Join(artifactsDir, recorded))
	}
	return out
}
