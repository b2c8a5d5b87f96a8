package pipeline

import (
	"context"
	"fmt"
	"math"
	"path/filepath"

	"github.com/zulandar/modelyard/internal/classifier"
	"github.com/zulandar/modelyard/internal/fsutil"
	"github.com/zulandar/modelyard/internal/manifest"
)

// KindTrainLogistic is params["kind"] of logistic training runs.
const KindTrainLogistic = "train_logistic"

// LogisticOpts configures TrainLogistic.
type LogisticOpts struct {
	Seed         int64
	NSamples     int
	NFeatures    int
	TestSize     float64
	Epochs       int
	LearningRate float64
	L2           float64
	AutoPromote  bool
}

// DefaultLogisticOpts returns the defaults used by `yard train logistic`.
func DefaultLogisticOpts() LogisticOpts {
	return LogisticOpts{
		Seed:         42,
		NSamples:     1000,
		NFeatures:    8,
		TestSize:     0.2,
		Epochs:       300,
		LearningRate: 0.1,
		L2:           1e-3,
		AutoPromote:  true,
	}
}

func (o LogisticOpts) validate() error {
	switch {
	case o.NSamples < 2:
		return fmt.Errorf("n_samples must be at least 2")
	case o.NFeatures < 1:
		return fmt.Errorf("n_features must be positive")
	case o.TestSize <= 0 || o.TestSize >= 1:
		return fmt.Errorf("test_size must be in (0, 1)")
	case o.Epochs < 1:
		return fmt.Errorf("epochs must be positive")
	case o.LearningRate <= 0:
		return fmt.Errorf("learning_rate must be positive")
	case o.L2 < 0:
		return fmt.Errorf("l2 must not be negative")
	}
	return nil
}

// TrainLogistic fits a standard scaler plus logistic regression on a
// synthetic dataset, evaluates it on a held-out split and records the run.
func TrainLogistic(ctx context.Context, env *Env, opts LogisticOpts) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("pipeline: train logistic: %w", err)
	}
	ds, err := Synthetic(opts.Seed, opts.NSamples, opts.NFeatures)
	if err != nil {
		return nil, err
	}

	runID := env.newRunID()
	params := map[string]any{
		"kind":          KindTrainLogistic,
		"seed":          opts.Seed,
		"test_size":     opts.TestSize,
		"epochs":        opts.Epochs,
		"learning_rate": opts.LearningRate,
		"l2":            opts.L2,
		"dataset_meta":  ds.Meta,
		"shape":         map[string]int{"n_samples": opts.NSamples, "n_features": opts.NFeatures},
	}
	if err := env.Store.CreateRun(ctx, runID, params, "logistic baseline training"); err != nil {
		return nil, fmt.Errorf("pipeline: train logistic: %w", err)
	}

	res, err := trainLogistic(ctx, env, runID, ds, opts)
	if err != nil {
		env.markFailed(ctx, runID, KindTrainLogistic, err)
		return nil, err
	}
	return res, nil
}

func trainLogistic(ctx context.Context, env *Env, runID string, ds *Dataset, opts LogisticOpts) (*Result, error) {
	trainX, trainY, testX, testY := ds.Split(opts.Seed, opts.TestSize)
	model := Fit(trainX, trainY, opts.Epochs, opts.LearningRate, opts.L2)
	model.FeatureNames = ds.FeatureNames

	p := make([]float64, len(testX))
	for i, x := range testX {
		prob, err := model.PredictProbability(x)
		if err != nil {
			return nil, fmt.Errorf("pipeline: train logistic: %w", err)
		}
		p[i] = prob
	}
	metrics, err := BinaryMetrics(testY, p)
	if err != nil {
		return nil, err
	}
	if err := env.Store.LogMetrics(ctx, runID, metrics); err != nil {
		return nil, fmt.Errorf("pipeline: train logistic: %w", err)
	}

	candidate := env.candidatePath(runID, "logistic")
	if err := classifier.Save(candidate, model); err != nil {
		return nil, fmt.Errorf("pipeline: train logistic: save candidate: %w", err)
	}
	if err := env.Store.LogArtifact(ctx, runID, ArtifactModelCandidate, candidate); err != nil {
		return nil, fmt.Errorf("pipeline: train logistic: %w", err)
	}

	manifestPath, err := env.writeManifest(ctx, runID, KindTrainLogistic, manifest.StatusSuccess, metrics)
	if err != nil {
		return nil, fmt.Errorf("pipeline: train logistic: %w", err)
	}

	metaPath := filepath.Join(filepath.Dir(manifestPath), "dataset.json")
	meta := map[string]any{
		"feature_names": ds.FeatureNames,
		"meta":          ds.Meta,
		"split":         map[string]int{"train": len(trainX), "test": len(testX)},
	}
	if err := fsutil.WriteJSONAtomic(metaPath, meta); err != nil {
		return nil, fmt.Errorf("pipeline: train logistic: write dataset meta: %w", err)
	}
	if err := env.Store.LogArtifact(ctx, runID, ArtifactDatasetMeta, metaPath); err != nil {
		return nil, fmt.Errorf("pipeline: train logistic: %w", err)
	}

	promoted, reason, err := env.maybePromote(ctx, runID, candidate, metrics, opts.AutoPromote)
	if err != nil {
		return nil, err
	}

	env.Logger.Info().
		Str("run_id", runID).
		Bool("promoted", promoted).
		Float64("bal_acc", metrics[MetricBalAcc]).
		Msg("logistic training finished")

	return &Result{
		RunID:           runID,
		CandidatePath:   candidate,
		ManifestPath:    manifestPath,
		DatasetMetaPath: metaPath,
		Metrics:         metrics,
		Promoted:        promoted,
		Reason:          reason,
	}, nil
}

// Fit standardizes x and runs full-batch gradient descent on the L2
// regularized log loss.
func Fit(x [][]float64, y []int, epochs int, lr, l2 float64) *classifier.Logistic {
	n := len(x)
	d := len(x[0])
	mean, scale := scaler(x)

	xs := make([][]float64, n)
	for i, row := range x {
		xs[i] = make([]float64, d)
		for j, v := range row {
			xs[i][j] = (v - mean[j]) / scale[j]
		}
	}

	w := make([]float64, d)
	var b float64
	grad := make([]float64, d)
	for range epochs {
		clear(grad)
		var gb float64
		for i, row := range xs {
			z := b
			for j, v := range row {
				z += w[j] * v
			}
			diff := 1/(1+math.Exp(-z)) - float64(y[i])
			for j, v := range row {
				grad[j] += diff * v
			}
			gb += diff
		}
		for j := range w {
			w[j] -= lr * (grad[j]/float64(n) + l2*w[j])
		}
		b -= lr * gb / float64(n)
	}
	return &classifier.Logistic{Mean: mean, Scale: scale, Weights: w, Bias: b}
}

// scaler returns per-column mean and population standard deviation; zero
// deviation becomes 1.
func scaler(x [][]float64) (mean, scale []float64) {
	d := len(x[0])
	mean = make([]float64, d)
	scale = make([]float64, d)
	for _, row := range x {
		for j, v := range row {
			mean[j] += v
		}
	}
	for j := range mean {
		mean[j] /= float64(len(x))
	}
	for _, row := range x {
		for j, v := range row {
			scale[j] += (v - mean[j]) * (v - mean[j])
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / float64(len(x)))
		if scale[j] == 0 {
			scale[j] = 1
		}
	}
	return mean, scale
}
