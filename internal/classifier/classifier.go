// Package classifier defines the model contract served by modelyard and the
// two built-in binary classifiers.
package classifier

import (
	"errors"
	"fmt"
	"math"
)

// ErrFeatureMismatch is returned when a feature vector does not have the
// length a model expects.
var ErrFeatureMismatch = errors.New("feature mismatch")

// Classifier predicts the probability of the positive class.
type Classifier interface {
	PredictProbability(features []float64) (float64, error)
}

// FeatureCounter is implemented by classifiers with a fixed input width.
// ok=false means any width is accepted.
type FeatureCounter interface {
	ExpectedFeatureCount() (n int, ok bool)
}

// Check validates the feature vector against c's expected width, if any.
func Check(c Classifier, features []float64) error {
	for i, f := range features {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("classifier: feature %d is not finite", i)
		}
	}
	fc, ok := c.(FeatureCounter)
	if !ok {
		return nil
	}
	n, ok := fc.ExpectedFeatureCount()
	if !ok || n == len(features) {
		return nil
	}
	return fmt.Errorf("classifier: expected %d features, got %d: %w", n, len(features), ErrFeatureMismatch)
}

// Clip bounds for Linear.
const (
	minProb = 1e-6
	maxProb = 1 - 1e-6
)

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func dot(w, x []float64) float64 {
	var s float64
	for i := range w {
		s += w[i] * x[i]
	}
	return s
}
