// Package grid sweeps the shot x threshold experiment matrix.
package grid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"aperture/internal/classify"
	"aperture/internal/embed"
	"aperture/internal/logging"
	"aperture/internal/support"
)

// Cell identifies one grid position.
type Cell struct {
	Shot      int     `json:"shot"`
	Threshold float64 `json:"threshold"`
}

// Key is the canonical cell identifier used for persistence and lookup.
func (c Cell) Key() string {
	return fmt.Sprintf("shot_%d_threshold_%.2f", c.Shot, c.Threshold)
}

// ExperimentRun is the write-once record of one completed cell.
type ExperimentRun struct {
	Cell      Cell              `json:"cell"`
	Support   *support.Set      `json:"-"`
	Results   []classify.Result `json:"results"`
	Tally     classify.Tally    `json:"tally"`
	StartedAt time.Time         `json:"started_at"`
	Duration  time.Duration     `json:"duration"`
}

// ExecutionSeconds reports the cell's wall-clock time.
func (r *ExperimentRun) ExecutionSeconds() float64 {
	return r.Duration.Seconds()
}

// SkippedShot records a shot value whose support set could not be used.
type SkippedShot struct {
	Shot   int    `json:"shot"`
	Reason string `json:"reason"`
}

// Summary holds every completed run keyed by Cell.Key plus the shots that
// were skipped. Completed runs stay valid even when the sweep stops early.
type Summary struct {
	Runs    map[string]*ExperimentRun `json:"runs"`
	Skipped []SkippedShot             `json:"skipped"`
}

// Runner executes the sweep. Thresholds within one shot share the shot's
// support set and the process-wide embedding cache, so only the decision
// rule reruns per threshold.
type Runner struct {
	Store    *support.Store
	Cache    *embed.Cache
	Parallel int
}

// Run iterates shots in the outer loop and fans thresholds out over a
// bounded worker pool. A shot whose support set cannot be loaded is skipped
// and noted; the sweep fails outright only when no shot produced a usable
// support set or the query set is empty.
func (g *Runner) Run(ctx context.Context, shots []int, thresholds []float64, queries []classify.Query) (*Summary, error) {
	logger := logging.New("grid")

	if len(queries) == 0 {
		return nil, fmt.Errorf("no query images to classify")
	}
	parallel := g.Parallel
	if parallel < 1 {
		parallel = 1
	}

	summary := &Summary{Runs: make(map[string]*ExperimentRun)}
	var mu sync.Mutex

	for _, shot := range shots {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		set, err := g.Store.Load(shot)
		if err != nil {
			logger.Warn("skipping shot", "shot", shot, "error", err)
			summary.Skipped = append(summary.Skipped, SkippedShot{Shot: shot, Reason: err.Error()})
			continue
		}
		if err := g.Store.ExtractFeatures(ctx, set); err != nil {
			return summary, err
		}
		if set.Empty() {
			reason := "no support embeddings extracted"
			logger.Warn("skipping shot", "shot", shot, "reason", reason)
			summary.Skipped = append(summary.Skipped, SkippedShot{Shot: shot, Reason: reason})
			continue
		}

		eg, cellCtx := errgroup.WithContext(ctx)
		eg.SetLimit(parallel)
		for _, threshold := range thresholds {
			cell := Cell{Shot: shot, Threshold: threshold}
			eg.Go(func() error {
				run, err := g.runCell(cellCtx, cell, set, queries)
				if err != nil {
					return err
				}
				mu.Lock()
				summary.Runs[cell.Key()] = run
				mu.Unlock()
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return summary, err
		}
	}

	if len(summary.Runs) == 0 {
		return summary, fmt.Errorf("no usable support set for any shot in %v", shots)
	}

	logger.Info("sweep complete",
		"runs", len(summary.Runs),
		"skipped_shots", len(summary.Skipped))
	return summary, nil
}

func (g *Runner) runCell(ctx context.Context, cell Cell, set *support.Set, queries []classify.Query) (*ExperimentRun, error) {
	logger := logging.New("grid")
	started := time.Now()

	results, tally, err := classify.Batch(ctx, g.Cache, queries, set, cell.Threshold)
	if err != nil {
		return nil, fmt.Errorf("cell %s: %w", cell.Key(), err)
	}

	run := &ExperimentRun{
		Cell:      cell,
		Support:   set,
		Results:   results,
		Tally:     tally,
		StartedAt: started,
		Duration:  time.Since(started),
	}
	logger.Info("cell complete",
		"cell", cell.Key(),
		"accepted", tally.Accepted,
		"unknown", tally.Unknown,
		"errors", tally.Errors,
		"seconds", fmt.Sprintf("%.2f", run.ExecutionSeconds()))
	return run, nil
}
