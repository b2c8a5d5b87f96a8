package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"math/rand/v2"
)

// newRand returns a deterministic generator for seed.
func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
}

func normals(r *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = r.NormFloat64()
	}
	return out
}

func bernoulli(r *rand.Rand, p float64) int {
	if r.Float64() < p {
		return 1
	}
	return 0
}

// Dataset is a synthetic binary tabular dataset.
type Dataset struct {
	X            [][]float64
	Y            []int
	FeatureNames []string
	Meta         DatasetMeta
}

// DatasetMeta describes where a dataset came from.
type DatasetMeta struct {
	Kind        string `json:"dataset_kind"`
	Name        string `json:"dataset_name"`
	Fingerprint string `json:"fingerprint"`
	NSamples    int    `json:"n_samples"`
	NFeatures   int    `json:"n_features"`
	Positives   int    `json:"positives"`
}

// Synthetic draws a dataset whose labels follow a noisy logistic model
// with random true weights.
func Synthetic(seed int64, nSamples, nFeatures int) (*Dataset, error) {
	if nSamples < 2 || nFeatures < 1 {
		return nil, fmt.Errorf("pipeline: synthetic dataset needs n_samples >= 2 and n_features >= 1, got %d and %d", nSamples, nFeatures)
	}
	r := newRand(seed)
	trueW := normals(r, nFeatures)

	ds := &Dataset{
		X:            make([][]float64, nSamples),
		Y:            make([]int, nSamples),
		FeatureNames: make([]string, nFeatures),
	}
	for j := range ds.FeatureNames {
		ds.FeatureNames[j] = fmt.Sprintf("f%d", j)
	}
	positives := 0
	for i := range ds.X {
		x := normals(r, nFeatures)
		z := 0.5 * r.NormFloat64()
		for j, w := range trueW {
			z += w * x[j]
		}
		ds.X[i] = x
		ds.Y[i] = bernoulli(r, 1/(1+math.Exp(-z)))
		positives += ds.Y[i]
	}

	sum := sha256.Sum256(fmt.Appendf(nil, "synthetic:%d:%d:%d", seed, nSamples, nFeatures))
	ds.Meta = DatasetMeta{
		Kind:        "synthetic",
		Name:        fmt.Sprintf("synthetic_logistic_%dx%d", nSamples, nFeatures),
		Fingerprint: hex.EncodeToString(sum[:8]),
		NSamples:    nSamples,
		NFeatures:   nFeatures,
		Positives:   positives,
	}
	return ds, nil
}

// Split shuffles and splits into train and test sets. Both sides get at
// least one row.
func (d *Dataset) Split(seed int64, testSize float64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	n := len(d.X)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	r := newRand(seed + 1)
	r.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	nTest := int(math.Round(float64(n) * testSize))
	nTest = min(max(nTest, 1), n-1)
	for k, i := range idx {
		if k < nTest {
			testX = append(testX, d.X[i])
			testY = append(testY, d.Y[i])
		} else {
			trainX = append(trainX, d.X[i])
			trainY = append(trainY, d.Y[i])
		}
	}
	return trainX, trainY, testX, testY
}
