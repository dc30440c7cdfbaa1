package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"aperture/internal/config"
	"aperture/internal/display"
	"aperture/internal/embed"
	"aperture/internal/grid"
	"aperture/internal/groundtruth"
	"aperture/internal/logging"
	"aperture/internal/store"
	"aperture/internal/support"
)

var runFlags categoryFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sweep the shot x threshold grid over the ground-truth query set",
	Long: `Run loads the category's support sets, embeds the ground-truth query
images, and classifies every query at every shot x threshold cell. Predictions
are written as CSV under the category's results folder; with a run store
configured each cell is also recorded as a write-once run row.

A shot whose support set is missing or empty is skipped and reported; the
sweep fails only when no shot is usable or the query set is empty.`,
	RunE: runRun,
}

func init() {
	registerCategoryFlags(runCmd, &runFlags)
}

func runRun(cmd *cobra.Command, _ []string) error {
	cfg, err := runFlags.load()
	if err != nil {
		return err
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}
	cache := embed.NewCache(provider, time.Duration(cfg.EmbedTimeout)*time.Second)

	opts := groundtruth.Options{GroupUnknown: cfg.GroupUnknownEnabled()}
	queries, err := groundtruth.CollectQueries(cfg.GroundTruthRoot(), opts)
	if err != nil {
		return fmt.Errorf("collect queries: %w", err)
	}

	runner := &grid.Runner{
		Store:    support.NewStore(cfg.SupportRoot(), cache),
		Cache:    cache,
		Parallel: cfg.Parallel,
	}
	summary, err := runner.Run(cmd.Context(), cfg.Shots, cfg.Thresholds, queries)
	if err != nil {
		return err
	}

	paths, err := grid.WriteSummary(cfg.PredictionsRoot(), summary)
	if err != nil {
		return fmt.Errorf("write predictions: %w", err)
	}

	if err := persistRuns(cfg, cache.ID(), summary, paths); err != nil {
		return err
	}

	printSummary(cmd, summary)
	return nil
}

// persistRuns records one store row per completed cell. Runs are write-once:
// a cell already persisted for this category and model is logged and left
// untouched.
func persistRuns(cfg *config.Run, providerID string, summary *grid.Summary, paths map[string]string) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st == nil {
		return nil
	}
	defer st.Close()

	logger := logging.New("run")
	for key, run := range summary.Runs {
		record := &store.Run{
			Category:        cfg.Category,
			Model:           cfg.Model,
			CellKey:         key,
			Shot:            run.Cell.Shot,
			Threshold:       run.Cell.Threshold,
			Provider:        providerID,
			Total:           len(run.Results),
			Accepted:        run.Tally.Accepted,
			Unknown:         run.Tally.Unknown,
			Errors:          run.Tally.Errors,
			DurationSeconds: run.ExecutionSeconds(),
			PredictionsPath: paths[key],
		}
		if _, err := st.SaveRun(record); err != nil {
			if errors.Is(err, store.ErrDuplicateRun) {
				logger.Warn("cell already persisted, keeping existing run", "cell", key)
				continue
			}
			return fmt.Errorf("save run %s: %w", key, err)
		}
	}
	return nil
}

func printSummary(cmd *cobra.Command, summary *grid.Summary) {
	out := cmd.OutOrStdout()

	keys := make([]string, 0, len(summary.Runs))
	for key := range summary.Runs {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := summary.Runs[keys[i]].Cell, summary.Runs[keys[j]].Cell
		if a.Shot != b.Shot {
			return a.Shot < b.Shot
		}
		return a.Threshold < b.Threshold
	})

	fmt.Fprintf(out, "Sweep complete: %d cell(s)\n", len(summary.Runs))
	for _, key := range keys {
		run := summary.Runs[key]
		fmt.Fprintf(out, "  %-16s accepted=%d unknown=%d errors=%d (%.1fs)\n",
			display.CellKey(key),
			run.Tally.Accepted, run.Tally.Unknown, run.Tally.Errors,
			run.ExecutionSeconds())
	}
	for _, skipped := range summary.Skipped {
		fmt.Fprintf(out, "  skipped %d-shot: %s\n", skipped.Shot, skipped.Reason)
	}
}
