// Package groundtruth normalizes folder-derived labels and reconciles
// predictions against them.
package groundtruth

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"aperture/internal/classify"
	"aperture/internal/logging"
)

// Record maps one image to its canonical ground-truth label.
type Record struct {
	ImageID string `json:"image_id"`
	Label   string `json:"label"`
}

// Options controls label normalization.
type Options struct {
	// GroupUnknown collapses every unknown_* folder into the single
	// "Unknown" super-label. Enabled by default in the pipeline.
	GroupUnknown bool
}

var classPattern = regexp.MustCompile(`(?i)^class[_\- ](\d+)$`)

// Normalize canonicalizes a folder-derived label: class_<N> variants become
// Class_<N> regardless of case, and unknown-family labels collapse to
// "Unknown" when grouping is enabled.
func Normalize(label string, opts Options) string {
	label = strings.TrimSpace(label)
	if m := classPattern.FindStringSubmatch(label); m != nil {
		return "Class_" + m[1]
	}
	if opts.GroupUnknown && IsUnknown(label) {
		return classify.Unknown
	}
	if strings.EqualFold(label, classify.Unknown) {
		return classify.Unknown
	}
	return label
}

// IsUnknown reports whether the label belongs to the unknown family:
// "Unknown" itself or any unknown_* subfolder label, case-insensitively.
func IsUnknown(label string) bool {
	lower := strings.ToLower(strings.TrimSpace(label))
	return lower == "unknown" || strings.HasPrefix(lower, "unknown_") ||
		strings.HasPrefix(lower, "unknown-")
}

// Match compares a predicted label against a ground-truth label:
// case-insensitive, class_N-normalized, and two unknown-family labels always
// match even when grouping kept them distinct.
func Match(predicted, truth string) bool {
	if IsUnknown(predicted) && IsUnknown(truth) {
		return true
	}
	p := Normalize(predicted, Options{})
	g := Normalize(truth, Options{})
	return strings.EqualFold(p, g)
}

// CollectQueries walks the ground-truth root and turns every labeled image
// into a query, so a grid run scores exactly the images that have truth.
func CollectQueries(root string, opts Options) ([]classify.Query, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("ground truth root %s: %w", root, err)
	}

	var queries []classify.Query
	seen := make(map[string]bool)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		label := Normalize(entry.Name(), opts)
		dir := filepath.Join(root, entry.Name())
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			id := filepath.Base(path)
			if seen[id] {
				return nil
			}
			seen[id] = true
			queries = append(queries, classify.Query{ID: id, Path: path, Truth: label})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", dir, err)
		}
	}
	sort.Slice(queries, func(i, j int) bool { return queries[i].ID < queries[j].ID })
	return queries, nil
}

// BuildMapping scans the ground-truth root, where each top-level folder is a
// label and its files are image ids. Nested folders are walked so per-class
// subfolders do not hide images.
func BuildMapping(root string, opts Options) (map[string]Record, error) {
	logger := logging.New("groundtruth")

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("ground truth root %s: %w", root, err)
	}

	mapping := make(map[string]Record)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		label := Normalize(entry.Name(), opts)
		dir := filepath.Join(root, entry.Name())
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			id := filepath.Base(path)
			if prior, ok := mapping[id]; ok && prior.Label != label {
				logger.Warn("duplicate image id across labels, keeping first",
					"image", id, "kept", prior.Label, "dropped", label)
				return nil
			}
			mapping[id] = Record{ImageID: id, Label: label}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", dir, err)
		}
	}

	if len(mapping) == 0 {
		logger.Warn("ground truth root has no labeled images", "root", root)
	}
	return mapping, nil
}
