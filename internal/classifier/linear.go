package classifier

import "fmt"

// Linear is a weights-plus-bias model squashed through a sigmoid. Inputs
// shorter than the weights are zero-padded and longer inputs are
// truncated, so it accepts any width.
type Linear struct {
	Seed    int64     `json:"seed"`
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// PredictProbability implements Classifier. The result is clipped to
// [1e-6, 1-1e-6].
func (m *Linear) PredictProbability(features []float64) (float64, error) {
	if len(m.Weights) == 0 {
		return 0, fmt.Errorf("classifier: linear model has no weights")
	}
	w := m.Weights
	x := features
	if len(x) < len(w) {
		w = w[:len(x)]
	} else if len(x) > len(w) {
		x = x[:len(w)]
	}
	p := sigmoid(dot(w, x) + m.Bias)
	return min(max(p, minProb), maxProb), nil
}

// ExpectedFeatureCount implements FeatureCounter; Linear accepts any width.
func (m *Linear) ExpectedFeatureCount() (int, bool) { return 0, false }
