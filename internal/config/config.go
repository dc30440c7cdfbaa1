// Package config holds run configuration and the category folder contract.
//
// A category root follows the numbered dataset convention:
//
//	<root>/<category>/2.support-set/...    reference images
//	<root>/<category>/7.results/...        ground truth and predictions
//
// Configuration errors are fatal and surface before any work starts; they are
// the only error kind in this repo that aborts a whole run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Error is a fatal configuration error (bad category, shot, threshold, or a
// missing root directory). It aborts before any classification work begins.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Run is the full configuration for an experiment grid run.
type Run struct {
	Root     string `yaml:"root"`     // dataset root containing category folders
	Category string `yaml:"category"` // category folder name
	Model    string `yaml:"model"`    // embedding backbone id, used in result paths

	Shots      []int     `yaml:"shots"`
	Thresholds []float64 `yaml:"thresholds"`

	Provider     string `yaml:"provider"`      // "ollama" or "stub"
	ProviderURL  string `yaml:"provider_url"`  // ollama base URL
	EmbedModel   string `yaml:"embed_model"`   // ollama embedding model name
	EmbedTimeout int    `yaml:"embed_timeout"` // per-image timeout in seconds

	Parallel     int    `yaml:"parallel"`      // grid worker pool size
	GroupUnknown *bool  `yaml:"group_unknown"` // collapse unknown_* folders; default true
	DBPath       string `yaml:"db"`            // sqlite path; empty = no run store
}

// Defaults applied by Validate.
const (
	DefaultProviderURL  = "http://localhost:11434"
	DefaultEmbedTimeout = 120
	DefaultParallel     = 4
)

// Load reads a run configuration from a YAML file.
func Load(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var r Run
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &r, nil
}

// Validate fills defaults and checks every field that would otherwise fail
// mid-grid. It returns the first problem found as a *Error.
func (r *Run) Validate() error {
	if r.Category == "" {
		return &Error{Field: "category", Reason: "required"}
	}
	if r.Model == "" {
		return &Error{Field: "model", Reason: "required"}
	}
	if len(r.Shots) == 0 {
		return &Error{Field: "shots", Reason: "at least one shot count required"}
	}
	for _, k := range r.Shots {
		if k < 1 {
			return &Error{Field: "shots", Reason: fmt.Sprintf("shot count %d is not positive", k)}
		}
	}
	if len(r.Thresholds) == 0 {
		return &Error{Field: "thresholds", Reason: "at least one threshold required"}
	}
	for _, t := range r.Thresholds {
		if t < -1 || t > 1 {
			return &Error{Field: "thresholds", Reason: fmt.Sprintf("threshold %.2f outside [-1, 1]", t)}
		}
	}
	// Checked even with a relative or empty root: a bad category must fail
	// here, not mid-grid as a missing support set.
	if _, err := os.Stat(r.CategoryRoot()); err != nil {
		return &Error{Field: "category", Reason: fmt.Sprintf("category root %s not found", r.CategoryRoot())}
	}
	if r.ProviderURL == "" {
		r.ProviderURL = DefaultProviderURL
	}
	if r.EmbedTimeout <= 0 {
		r.EmbedTimeout = DefaultEmbedTimeout
	}
	if r.Parallel <= 0 {
		r.Parallel = DefaultParallel
	}
	sort.Ints(r.Shots)
	sort.Float64s(r.Thresholds)
	return nil
}

// GroupUnknownEnabled reports whether unknown_* ground-truth folders collapse
// into one "Unknown" super-label. Defaults to true when unset.
func (r *Run) GroupUnknownEnabled() bool {
	if r.GroupUnknown == nil {
		return true
	}
	return *r.GroupUnknown
}

// CategoryRoot returns <root>/<category>.
func (r *Run) CategoryRoot() string {
	return filepath.Join(r.Root, r.Category)
}

// SupportRoot returns the support-set root for the category.
func (r *Run) SupportRoot() string {
	return filepath.Join(r.CategoryRoot(), "2.support-set")
}

// ResultsRoot returns the results root for the category.
func (r *Run) ResultsRoot() string {
	return filepath.Join(r.CategoryRoot(), "7.results")
}

// GroundTruthRoot returns the ground-truth folder for the category.
func (r *Run) GroundTruthRoot() string {
	return filepath.Join(r.ResultsRoot(), "ground_truth")
}

// PredictionsRoot returns the per-model predictions root.
func (r *Run) PredictionsRoot() string {
	return filepath.Join(r.ResultsRoot(), r.Model)
}

// ParseShots parses a comma-separated shot list ("1,5,10,30").
func ParseShots(s string) ([]int, error) {
	var shots []int
	for _, part := range splitList(s) {
		k, err := strconv.Atoi(part)
		if err != nil {
			return nil, &Error{Field: "shots", Reason: fmt.Sprintf("%q is not an integer", part)}
		}
		shots = append(shots, k)
	}
	return shots, nil
}

// ParseThresholds parses a comma-separated threshold list ("0.5,0.6,0.7").
func ParseThresholds(s string) ([]float64, error) {
	var ts []float64
	for _, part := range splitList(s) {
		t, err := strconv.ParseFloat(part, 64)
		if err != nil {
			return nil, &Error{Field: "thresholds", Reason: fmt.Sprintf("%q is not a number", part)}
		}
		ts = append(ts, t)
	}
	return ts, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
