package classifier

import "fmt"

// Logistic is a standard scaler followed by logistic regression. Its input
// width is fixed.
type Logistic struct {
	FeatureNames []string  `json:"feature_names,omitempty"`
	Mean         []float64 `json:"mean"`
	Scale        []float64 `json:"scale"`
	Weights      []float64 `json:"weights"`
	Bias         float64   `json:"bias"`
}

// PredictProbability implements Classifier.
func (m *Logistic) PredictProbability(features []float64) (float64, error) {
	if err := Check(m, features); err != nil {
		return 0, err
	}
	x := m.Standardize(features)
	return sigmoid(dot(m.Weights, x) + m.Bias), nil
}

// ExpectedFeatureCount implements FeatureCounter.
func (m *Logistic) ExpectedFeatureCount() (int, bool) { return len(m.Weights), true }

// Standardize applies the scaler. A zero scale leaves the centered value
// unscaled.
func (m *Logistic) Standardize(features []float64) []float64 {
	out := make([]float64, len(features))
	for i, f := range features {
		v := f - m.Mean[i]
		if s := m.Scale[i]; s != 0 {
			v /= s
		}
		out[i] = v
	}
	return out
}

func (m *Logistic) validate() error {
	n := len(m.Weights)
	if n == 0 {
		return fmt.Errorf("logistic model has no weights")
	}
	if len(m.Mean) != n || len(m.Scale) != n {
		return fmt.Errorf("logistic model has %d weights but %d means and %d scales", n, len(m.Mean), len(m.Scale))
	}
	if len(m.FeatureNames) != 0 && len(m.FeatureNames) != n {
		return fmt.Errorf("logistic model has %d weights but %d feature names", n, len(m.FeatureNames))
	}
	return nil
}
