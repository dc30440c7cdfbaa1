// Package metrics derives confusion-matrix statistics from reconciled
// prediction/ground-truth comparisons.
package metrics

import (
	"math"
	"sort"
	"strings"

	"aperture/internal/classify"
	"aperture/internal/groundtruth"
)

// ClassMetrics is the 2x2 contingency for one class plus the rates derived
// from it. Rates are expressed x100; MCC stays in [-1, 1].
type ClassMetrics struct {
	TP int `json:"tp"`
	FP int `json:"fp"`
	FN int `json:"fn"`
	TN int `json:"tn"`

	Support     int     `json:"support"`
	Precision   float64 `json:"precision"`
	Recall      float64 `json:"recall"`
	Specificity float64 `json:"specificity"`
	F1          float64 `json:"f1"`
	Fallout     float64 `json:"fallout"`
	MCC         float64 `json:"mcc"`
}

// Summary aggregates one run's comparisons. Macro and weighted averages
// exclude the Unknown label: abstention is not a classification target.
type Summary struct {
	Total          int     `json:"total"`
	Accuracy       float64 `json:"accuracy"`
	ClassifiedRate float64 `json:"classified_rate"`

	MacroPrecision float64 `json:"macro_precision"`
	MacroRecall    float64 `json:"macro_recall"`
	MacroF1        float64 `json:"macro_f1"`
	MacroMCC       float64 `json:"macro_mcc"`

	WeightedPrecision float64 `json:"weighted_precision"`
	WeightedRecall    float64 `json:"weighted_recall"`
	WeightedF1        float64 `json:"weighted_f1"`

	PerClass map[string]*ClassMetrics `json:"per_class"`
}

// Summarize computes per-class contingencies over every label seen as either
// a prediction or a truth, then the macro and support-weighted averages.
func Summarize(comparisons []groundtruth.Comparison) *Summary {
	summary := &Summary{
		Total:    len(comparisons),
		PerClass: make(map[string]*ClassMetrics),
	}
	if len(comparisons) == 0 {
		return summary
	}

	matches := 0
	classified := 0
	for _, c := range comparisons {
		if c.Match {
			matches++
		}
		if !strings.EqualFold(c.Predicted, classify.Unknown) {
			classified++
		}
	}
	summary.Accuracy = rate(matches, len(comparisons))
	summary.ClassifiedRate = rate(classified, len(comparisons))

	for _, label := range labelUniverse(comparisons) {
		summary.PerClass[label] = contingency(label, comparisons)
	}

	var (
		sumP, sumR, sumF1, sumMCC float64
		wSumP, wSumR, wSumF1      float64
		classes, weight           int
	)
	for label, cm := range summary.PerClass {
		if strings.EqualFold(label, classify.Unknown) {
			continue
		}
		classes++
		sumP += cm.Precision
		sumR += cm.Recall
		sumF1 += cm.F1
		sumMCC += cm.MCC
		weight += cm.Support
		wSumP += cm.Precision * float64(cm.Support)
		wSumR += cm.Recall * float64(cm.Support)
		wSumF1 += cm.F1 * float64(cm.Support)
	}
	if classes > 0 {
		summary.MacroPrecision = sumP / float64(classes)
		summary.MacroRecall = sumR / float64(classes)
		summary.MacroF1 = sumF1 / float64(classes)
		summary.MacroMCC = sumMCC / float64(classes)
	}
	if weight > 0 {
		summary.WeightedPrecision = wSumP / float64(weight)
		summary.WeightedRecall = wSumR / float64(weight)
		summary.WeightedF1 = wSumF1 / float64(weight)
	}
	return summary
}

// contingency fills one class's 2x2 table and derived rates.
func contingency(label string, comparisons []groundtruth.Comparison) *ClassMetrics {
	cm := &ClassMetrics{}
	for _, c := range comparisons {
		predicted := strings.EqualFold(c.Predicted, label)
		truth := strings.EqualFold(c.Truth, label)
		switch {
		case predicted && truth:
			cm.TP++
		case predicted && !truth:
			cm.FP++
		case !predicted && truth:
			cm.FN++
		default:
			cm.TN++
		}
		if truth {
			cm.Support++
		}
	}

	cm.Precision = rate(cm.TP, cm.TP+cm.FP)
	cm.Recall = rate(cm.TP, cm.TP+cm.FN)
	cm.Specificity = rate(cm.TN, cm.TN+cm.FP)
	cm.Fallout = rate(cm.FP, cm.FP+cm.TN)
	if cm.Precision+cm.Recall > 0 {
		cm.F1 = 2 * cm.Precision * cm.Recall / (cm.Precision + cm.Recall)
	}
	cm.MCC = mcc(cm.TP, cm.FP, cm.FN, cm.TN)
	return cm
}

// rate returns num/denom x100, or 0 when the denominator is 0.
func rate(num, denom int) float64 {
	if denom == 0 {
		return 0
	}
	return float64(num) / float64(denom) * 100
}

// mcc is the Matthews correlation coefficient, 0 when any marginal is empty.
func mcc(tp, fp, fn, tn int) float64 {
	denom := math.Sqrt(float64(tp+fp) * float64(tp+fn) * float64(tn+fp) * float64(tn+fn))
	if denom == 0 {
		return 0
	}
	return (float64(tp)*float64(tn) - float64(fp)*float64(fn)) / denom
}

// labelUniverse collects every label seen as a prediction or a truth, sorted
// for deterministic iteration.
func labelUniverse(comparisons []groundtruth.Comparison) []string {
	seen := make(map[string]string)
	for _, c := range comparisons {
		for _, label := range []string{c.Predicted, c.Truth} {
			key := strings.ToLower(label)
			if _, ok := seen[key]; !ok && label != "" {
				seen[key] = label
			}
		}
	}
	labels := make([]string, 0, len(seen))
	for _, label := range seen {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
