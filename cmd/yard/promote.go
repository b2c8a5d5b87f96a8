package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/zulandar/modelyard/internal/dashboard"
	"github.com/zulandar/modelyard/internal/pipeline"
	"github.com/zulandar/modelyard/internal/registry"
	"github.com/zulandar/modelyard/internal/tracking"
)

// modelArtifactKinds is the preference order for picking a run's model
// file when --model-path is not given.
var modelArtifactKinds = []string{pipeline.ArtifactModelCandidate, pipeline.ArtifactModelCurrent, "model"}

func newPromoteCmd() *cobra.Command {
	var (
		configPath string
		runID      string
		latest     bool
		modelPath  string
		name       string
	)

	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Promote a run's model to current",
		Long: `Copies a run's model file to the canonical current-model path and records
it in the registry. The promotion policy is not consulted.

Without --model-path the run's artifacts are searched in this order:
model_candidate, model_current, model, then the first artifact.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID != "" && latest || runID == "" && !latest {
				return fmt.Errorf("exactly one of --run-id or --latest is required")
			}
			return runPromote(cmd, configPath, runID, modelPath, name)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&runID, "run-id", "", "run to promote")
	cmd.Flags().BoolVar(&latest, "latest", false, "promote the most recent run")
	cmd.Flags().StringVar(&modelPath, "model-path", "", "model file to promote (default: from the run's artifacts)")
	cmd.Flags().StringVar(&name, "name", "", "model name (default: model_name from config)")
	return cmd
}

func runPromote(cmd *cobra.Command, configPath, runID, modelPath, name string) error {
	a, err := openApp(cmd, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := promoteRun(cmd.Context(), a, runID, modelPath, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Promoted run %s\n  from: %s\n  to:   %s\n", p.runID, p.src, p.dst)
	return nil
}

type promotion struct {
	runID string
	src   string
	dst   string
}

// promoteRun promotes runID, or the latest run when runID is empty, and
// records the promoted file as the run's model_current artifact.
func promoteRun(ctx context.Context, a *app, runID, modelPath, name string) (*promotion, error) {
	if runID == "" {
		id, ok, err := a.store.LatestRunID(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("no runs recorded yet")
		}
		runID = id
	}

	detail, ok, err := a.store.GetRunDetail(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("run %s not found", runID)
	}

	src := modelPath
	if src == "" {
		recorded, ok := pickModelArtifact(detail.Artifacts)
		if !ok {
			return nil, fmt.Errorf("run %s has no model artifact; pass --model-path", runID)
		}
		src = recorded
		if p, ok := dashboard.ArtifactFile(a.cfg.ArtifactsDir, recorded); ok {
			src = p
		}
	}

	dst, err := a.reg.Promote(ctx, runID, src, detail.Metrics, name)
	if errors.Is(err, registry.ErrModelSourceNotFound) {
		return nil, fmt.Errorf("model file for run %s not found: %s", runID, src)
	}
	if err != nil {
		return nil, err
	}
	if err := a.store.LogArtifact(ctx, runID, pipeline.ArtifactModelCurrent, dst); err != nil {
		a.log.Warn().Err(err).Str("run_id", runID).Msg("log model_current artifact")
	}
	return &promotion{runID: runID, src: src, dst: dst}, nil
}

// pickModelArtifact returns the path of the preferred model artifact, or
// the first artifact of any kind.
func pickModelArtifact(artifacts []tracking.ArtifactRecord) (string, bool) {
	for _, kind := range modelArtifactKinds {
		for _, a := range artifacts {
			if a.Kind == kind {
				return a.Path, true
			}
		}
	}
	if len(artifacts) > 0 {
		return artifacts[0].Path, true
	}
	return "", false
}
