package groundtruth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"aperture/internal/classify"
	"aperture/internal/logging"
)

// Comparison pairs one prediction with its ground truth.
type Comparison struct {
	ImageID   string `json:"image_id"`
	Predicted string `json:"predicted_label"`
	Truth     string `json:"ground_truth_label"`
	Match     bool   `json:"match"`
}

// ClassStats accumulates per-ground-truth-class outcomes, including a
// histogram of what the misclassified images were predicted as.
type ClassStats struct {
	Total       int            `json:"total"`
	Correct     int            `json:"correct"`
	Incorrect   int            `json:"incorrect"`
	PredictedAs map[string]int `json:"predicted_as"`
}

// Summary is the serialized comparison report.
type Summary struct {
	TotalPredictions   int                    `json:"total_predictions"`
	MatchCount         int                    `json:"match_count"`
	MismatchCount      int                    `json:"mismatch_count"`
	MissingGroundTruth int                    `json:"missing_ground_truth_count"`
	Accuracy           float64                `json:"accuracy"`
	ClassStats         map[string]*ClassStats `json:"class_stats"`
}

// Compare matches every prediction against the mapping. A prediction without
// ground truth is recorded against the "Unknown" truth label with match=false
// and tallied separately; it is never dropped.
func Compare(results []classify.Result, mapping map[string]Record) ([]Comparison, *Summary) {
	logger := logging.New("groundtruth")

	summary := &Summary{ClassStats: make(map[string]*ClassStats)}
	comparisons := make([]Comparison, 0, len(results))

	for i := range results {
		r := &results[i]
		summary.TotalPredictions++

		truth := classify.Unknown
		record, hasTruth := mapping[r.QueryID]
		if hasTruth {
			truth = record.Label
		} else {
			summary.MissingGroundTruth++
		}

		matched := hasTruth && Match(r.Predicted, truth)
		comparisons = append(comparisons, Comparison{
			ImageID:   r.QueryID,
			Predicted: r.Predicted,
			Truth:     truth,
			Match:     matched,
		})

		if matched {
			summary.MatchCount++
		} else {
			summary.MismatchCount++
		}

		stats, ok := summary.ClassStats[truth]
		if !ok {
			stats = &ClassStats{PredictedAs: make(map[string]int)}
			summary.ClassStats[truth] = stats
		}
		stats.Total++
		if matched {
			stats.Correct++
		} else {
			stats.Incorrect++
			stats.PredictedAs[r.Predicted]++
		}
	}

	if summary.TotalPredictions > 0 {
		summary.Accuracy = float64(summary.MatchCount) / float64(summary.TotalPredictions) * 100
	}

	logger.Info("comparison complete",
		"total", summary.TotalPredictions,
		"matches", summary.MatchCount,
		"mismatches", summary.MismatchCount,
		"missing_ground_truth", summary.MissingGroundTruth)
	return comparisons, summary
}

// WriteSummary persists the comparison summary under
// <dir>/comparison/comparison_summary.json.
func WriteSummary(dir string, summary *Summary) (string, error) {
	outDir := filepath.Join(dir, "comparison")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return "", fmt.Errorf("create comparison dir: %w", err)
	}
	path := filepath.Join(outDir, "comparison_summary.json")
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal summary: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return path, nil
}

// ReadSummary loads a previously written comparison summary.
func ReadSummary(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read summary: %w", err)
	}
	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse summary %s: %w", path, err)
	}
	return &s, nil
}
