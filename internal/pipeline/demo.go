package pipeline

import (
	"context"
	"fmt"
)

// DemoRun inserts a demo run with fixed metrics, for wiring checks.
func DemoRun(ctx context.Context, env *Env) (string, error) {
	runID := env.newRunID()
	params := map[string]any{"kind": "demo", "seed": 42}
	if err := env.Store.CreateRun(ctx, runID, params, "demo run for wiring check"); err != nil {
		return "", fmt.Errorf("pipeline: demo: %w", err)
	}
	metrics := map[string]float64{MetricAcc: 0.90, MetricBalAcc: 0.88}
	if err := env.Store.LogMetrics(ctx, runID, metrics); err != nil {
		return "", fmt.Errorf("pipeline: demo: %w", err)
	}
	env.Logger.Info().Str("run_id", runID).Msg("demo run inserted")
	return runID, nil
}
