package pipeline

import (
	"context"
	"fmt"

	"github.com/zulandar/modelyard/internal/classifier"
	"github.com/zulandar/modelyard/internal/manifest"
)

// KindTrainDummy is params["kind"] of dummy training runs.
const KindTrainDummy = "train_dummy"

// DummyOpts configures TrainDummy.
type DummyOpts struct {
	Seed        int64
	NSamples    int
	NFeatures   int
	AutoPromote bool
}

// DefaultDummyOpts returns the defaults used by `yard train dummy`.
func DefaultDummyOpts() DummyOpts {
	return DummyOpts{Seed: 42, NSamples: 300, NFeatures: 8, AutoPromote: true}
}

// TrainDummy draws a random Linear model, scores it on synthetic data whose
// labels are sampled from the model's own probabilities, and records the
// run.
func TrainDummy(ctx context.Context, env *Env, opts DummyOpts) (*Result, error) {
	if opts.NSamples < 1 || opts.NFeatures < 1 {
		return nil, fmt.Errorf("pipeline: train dummy: n_samples and n_features must be positive")
	}

	r := newRand(opts.Seed)
	model := &classifier.Linear{
		Seed:    opts.Seed,
		Weights: normals(r, opts.NFeatures),
		Bias:    r.NormFloat64(),
	}

	runID := env.newRunID()
	params := map[string]any{
		"kind":       KindTrainDummy,
		"seed":       opts.Seed,
		"n_samples":  opts.NSamples,
		"n_features": opts.NFeatures,
	}
	if err := env.Store.CreateRun(ctx, runID, params, "dummy model training for E2E check"); err != nil {
		return nil, fmt.Errorf("pipeline: train dummy: %w", err)
	}

	res, err := trainDummy(ctx, env, runID, model, opts)
	if err != nil {
		env.markFailed(ctx, runID, KindTrainDummy, err)
		return nil, err
	}
	return res, nil
}

func trainDummy(ctx context.Context, env *Env, runID string, model *classifier.Linear, opts DummyOpts) (*Result, error) {
	metrics, err := dummyMetrics(model, opts)
	if err != nil {
		return nil, err
	}
	if err := env.Store.LogMetrics(ctx, runID, metrics); err != nil {
		return nil, fmt.Errorf("pipeline: train dummy: %w", err)
	}

	candidate := env.candidatePath(runID, "dummy")
	if err := classifier.Save(candidate, model); err != nil {
		return nil, fmt.Errorf("pipeline: train dummy: save candidate: %w", err)
	}
	if err := env.Store.LogArtifact(ctx, runID, ArtifactModelCandidate, candidate); err != nil {
		return nil, fmt.Errorf("pipeline: train dummy: %w", err)
	}

	manifestPath, err := env.writeManifest(ctx, runID, KindTrainDummy, manifest.StatusSuccess, metrics)
	if err != nil {
		return nil, fmt.Errorf("pipeline: train dummy: %w", err)
	}

	promoted, reason, err := env.maybePromote(ctx, runID, candidate, metrics, opts.AutoPromote)
	if err != nil {
		return nil, err
	}

	env.Logger.Info().
		Str("run_id", runID).
		Bool("promoted", promoted).
		Float64("bal_acc", metrics[MetricBalAcc]).
		Msg("dummy training finished")

	return &Result{
		RunID:         runID,
		CandidatePath: candidate,
		ManifestPath:  manifestPath,
		Metrics:       metrics,
		Promoted:      promoted,
		Reason:        reason,
	}, nil
}

// dummyMetrics evaluates model on fresh normal inputs with labels drawn
// from its own predicted probabilities.
func dummyMetrics(model *classifier.Linear, opts DummyOpts) (map[string]float64, error) {
	r := newRand(opts.Seed + 7)
	y := make([]int, opts.NSamples)
	p := make([]float64, opts.NSamples)
	for i := range y {
		prob, err := model.PredictProbability(normals(r, opts.NFeatures))
		if err != nil {
			return nil, fmt.Errorf("pipeline: train dummy: %w", err)
		}
		p[i] = prob
		y[i] = bernoulli(r, prob)
	}
	return BinaryMetrics(y, p)
}
