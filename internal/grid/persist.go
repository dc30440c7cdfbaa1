package grid

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"aperture/internal/classify"
)

const predictionsFile = "predictions.csv"

// PredictionsPath returns `<root>/shot_<k>/threshold_<t>/predictions.csv`
// for a cell, where root is the model's results directory.
func PredictionsPath(root string, cell Cell) string {
	return filepath.Join(root,
		fmt.Sprintf("shot_%d", cell.Shot),
		fmt.Sprintf("threshold_%.2f", cell.Threshold),
		predictionsFile)
}

// WritePredictions serializes one run's results as CSV. The fixed columns
// are followed by one score_<Class> column per support class, in sorted
// class order so reruns produce byte-stable headers.
func WritePredictions(root string, run *ExperimentRun) (string, error) {
	path := PredictionsPath(root, run.Cell)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create predictions dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	labels := run.Support.Labels()
	header := []string{"image_path", "image_filename", "original_class", "predicted_class", "classification", "similarity"}
	for _, label := range labels {
		header = append(header, "score_"+label)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("write header: %w", err)
	}
	for i := range run.Results {
		r := &run.Results[i]
		row := []string{
			r.Path,
			filepath.Base(r.Path),
			r.Truth,
			r.Predicted,
			string(r.Status),
			strconv.FormatFloat(r.BestScore, 'f', 6, 64),
		}
		for _, label := range labels {
			row = append(row, strconv.FormatFloat(r.Scores[label], 'f', 6, 64))
		}
		if err := w.Write(row); err != nil {
			return "", fmt.Errorf("write row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flush %s: %w", path, err)
	}
	return path, nil
}

// ReadPredictions parses a predictions.csv back into results. Only the
// fields the CSV carries are populated.
func ReadPredictions(path string) ([]classify.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s: empty file", path)
	}

	header := rows[0]
	col := make(map[string]int, len(header))
	scoreLabels := make(map[int]string)
	for i, name := range header {
		col[name] = i
		if label, ok := strings.CutPrefix(name, "score_"); ok {
			scoreLabels[i] = label
		}
	}
	for _, required := range []string{"image_path", "image_filename", "predicted_class", "classification", "similarity"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, required)
		}
	}

	results := make([]classify.Result, 0, len(rows)-1)
	for n, row := range rows[1:] {
		similarity, err := strconv.ParseFloat(row[col["similarity"]], 64)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: similarity: %w", path, n+1, err)
		}
		r := classify.Result{
			QueryID:   row[col["image_filename"]],
			Path:      row[col["image_path"]],
			Predicted: row[col["predicted_class"]],
			BestScore: similarity,
			Status:    classify.Status(row[col["classification"]]),
			Scores:    make(map[string]float64, len(scoreLabels)),
		}
		if i, ok := col["original_class"]; ok {
			r.Truth = row[i]
		}
		for i, label := range scoreLabels {
			score, err := strconv.ParseFloat(row[i], 64)
			if err != nil {
				return nil, fmt.Errorf("%s row %d: %s: %w", path, n+1, header[i], err)
			}
			r.Scores[label] = score
		}
		results = append(results, r)
	}
	return results, nil
}

// WriteSummary persists every run in the summary and returns the written
// file paths keyed by cell.
func WriteSummary(root string, summary *Summary) (map[string]string, error) {
	paths := make(map[string]string, len(summary.Runs))
	for key, run := range summary.Runs {
		path, err := WritePredictions(root, run)
		if err != nil {
			return paths, err
		}
		paths[key] = path
	}
	return paths, nil
}
