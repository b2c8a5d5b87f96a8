package pipeline

import "fmt"

// Metric keys produced by BinaryMetrics.
const (
	MetricAcc     = "acc"
	MetricBalAcc  = "bal_acc"
	MetricRecall1 = "recall_1"
)

// BinaryMetrics scores probabilities p against 0/1 labels y at a 0.5
// threshold. Empty classes count as zero recall rather than an error.
func BinaryMetrics(y []int, p []float64) (map[string]float64, error) {
	if len(y) != len(p) {
		return nil, fmt.Errorf("pipeline: metrics: %d labels vs %d predictions", len(y), len(p))
	}
	var tp, tn, fp, fn int
	for i, label := range y {
		pred := p[i] >= 0.5
		switch {
		case label == 1 && pred:
			tp++
		case label == 1:
			fn++
		case label == 0 && pred:
			fp++
		case label == 0:
			tn++
		default:
			return nil, fmt.Errorf("pipeline: metrics: label %d at %d is not binary", label, i)
		}
	}

	acc := float64(tp+tn) / float64(max(1, tp+tn+fp+fn))
	tpr := float64(tp) / float64(max(1, tp+fn))
	tnr := float64(tn) / float64(max(1, tn+fp))
	return map[string]float64{
		MetricAcc:     acc,
		MetricBalAcc:  0.5 * (tpr + tnr),
		MetricRecall1: tpr,
	}, nil
}
