// Package policy decides whether a candidate model should replace the
// current one.
package policy

import "fmt"

// Thresholds for Decide.
const (
	MinBalAccGain = 0.005
	MaxRecallDrop = 0.01
)

// Metric names compared by Decide.
const (
	MetricBalAcc  = "bal_acc"
	MetricRecall1 = "recall_1"
)

// NoCurrentReason is the reason given when there is nothing to compare to.
const NoCurrentReason = "no current model yet"

// Decision is the outcome of Decide.
type Decision struct {
	ShouldPromote bool   `json:"should_promote"`
	Reason        string `json:"reason"`
}

// Decide promotes when there is no current model, or when the candidate's
// balanced accuracy beats the current one by at least MinBalAccGain and its
// positive-class recall drops by no more than MaxRecallDrop. Missing metrics
// count as zero. A nil or empty current map means no current model.
func Decide(candidate, current map[string]float64) Decision {
	if len(current) == 0 {
		return Decision{ShouldPromote: true, Reason: NoCurrentReason}
	}

	candBal, curBal := candidate[MetricBalAcc], current[MetricBalAcc]
	candRec, curRec := candidate[MetricRecall1], current[MetricRecall1]

	if candBal >= curBal+MinBalAccGain && candRec >= curRec-MaxRecallDrop {
		return Decision{
			ShouldPromote: true,
			Reason: fmt.Sprintf("improved %s %.4f->%.4f, %s %.4f->%.4f",
				MetricBalAcc, curBal, candBal, MetricRecall1, curRec, candRec),
		}
	}
	return Decision{
		ShouldPromote: false,
		Reason: fmt.Sprintf("not enough improvement (%s %.4f->%.4f, %s %.4f->%.4f)",
			MetricBalAcc, curBal, candBal, MetricRecall1, curRec, candRec),
	}
}
