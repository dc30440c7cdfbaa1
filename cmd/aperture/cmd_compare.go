package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"aperture/internal/config"
	"aperture/internal/display"
	"aperture/internal/grid"
	"aperture/internal/groundtruth"
	"aperture/internal/logging"
	"aperture/internal/metrics"
	"aperture/internal/store"
)

var compareFlags struct {
	categoryFlags
	shot      int
	threshold float64
	save      bool
}

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Score one grid cell's predictions against ground truth",
	Long: `Compare reads a cell's predictions.csv, reconciles every prediction with
the ground-truth folder labels, and computes the confusion-matrix metrics.
The comparison summary is written next to the predictions; with --save and a
run store configured the metrics are attached to the persisted run.`,
	RunE: runCompare,
}

func init() {
	registerCategoryFlags(compareCmd, &compareFlags.categoryFlags)
	compareCmd.Flags().IntVar(&compareFlags.shot, "shot", 0, "Shot count of the cell (required)")
	compareCmd.Flags().Float64Var(&compareFlags.threshold, "threshold", 0, "Threshold of the cell (required)")
	compareCmd.Flags().BoolVar(&compareFlags.save, "save", false, "Attach metrics to the persisted run")
	_ = compareCmd.MarkFlagRequired("shot")
	_ = compareCmd.MarkFlagRequired("threshold")
}

func runCompare(cmd *cobra.Command, _ []string) error {
	if compareFlags.shots == "" {
		compareFlags.shots = fmt.Sprintf("%d", compareFlags.shot)
	}
	if compareFlags.thresholds == "" {
		compareFlags.thresholds = fmt.Sprintf("%g", compareFlags.threshold)
	}
	cfg, err := compareFlags.load()
	if err != nil {
		return err
	}

	cell := grid.Cell{Shot: compareFlags.shot, Threshold: compareFlags.threshold}
	predictionsPath := grid.PredictionsPath(cfg.PredictionsRoot(), cell)
	results, err := grid.ReadPredictions(predictionsPath)
	if err != nil {
		return err
	}

	opts := groundtruth.Options{GroupUnknown: cfg.GroupUnknownEnabled()}
	mapping, err := groundtruth.BuildMapping(cfg.GroundTruthRoot(), opts)
	if err != nil {
		return err
	}

	comparisons, summary := groundtruth.Compare(results, mapping)
	scored := metrics.Summarize(comparisons)

	summaryPath, err := groundtruth.WriteSummary(filepath.Dir(predictionsPath), summary)
	if err != nil {
		return err
	}

	printComparison(cmd, cell, summary, scored)
	fmt.Fprintf(cmd.OutOrStdout(), "\nSummary: %s\n", summaryPath)

	if compareFlags.save {
		return saveMetrics(cfg, cell, scored)
	}
	return nil
}

// saveMetrics attaches the scored summary to the cell's persisted run row.
func saveMetrics(cfg *config.Run, cell grid.Cell, scored *metrics.Summary) error {
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st == nil {
		return fmt.Errorf("--save requires a run store (set db in the config)")
	}
	defer st.Close()

	run, err := st.GetRun(cfg.Category, cfg.Model, cell.Key())
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("no persisted run for cell %s (run the sweep first)", cell.Key())
	}

	payload, err := json.Marshal(scored)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}
	err = st.SaveMetrics(&store.RunMetrics{
		RunID:          run.ID,
		Accuracy:       scored.Accuracy,
		MacroPrecision: scored.MacroPrecision,
		MacroRecall:    scored.MacroRecall,
		MacroF1:        scored.MacroF1,
		MacroMCC:       scored.MacroMCC,
		ClassifiedRate: scored.ClassifiedRate,
		Payload:        string(payload),
	})
	if errors.Is(err, store.ErrDuplicateRun) {
		logging.New("compare").Warn("metrics already saved for run, keeping existing", "run_id", run.ID)
		return nil
	}
	return err
}

func printComparison(cmd *cobra.Command, cell grid.Cell, summary *groundtruth.Summary, scored *metrics.Summary) {
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Cell: %s\n", display.CellKey(cell.Key()))
	fmt.Fprintf(out, "Predictions: %d (matches=%d mismatches=%d missing_truth=%d)\n",
		summary.TotalPredictions, summary.MatchCount, summary.MismatchCount, summary.MissingGroundTruth)
	fmt.Fprintf(out, "Accuracy:        %6.2f%%\n", scored.Accuracy)
	fmt.Fprintf(out, "Classified rate: %6.2f%%\n", scored.ClassifiedRate)
	fmt.Fprintf(out, "Macro P/R/F1:    %6.2f / %.2f / %.2f (MCC %.3f)\n",
		scored.MacroPrecision, scored.MacroRecall, scored.MacroF1, scored.MacroMCC)
	fmt.Fprintf(out, "Weighted P/R/F1: %6.2f / %.2f / %.2f\n",
		scored.WeightedPrecision, scored.WeightedRecall, scored.WeightedF1)

	labels := make([]string, 0, len(scored.PerClass))
	for label := range scored.PerClass {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	tbl := display.NewTable("CLASS", "SUPPORT", "PRECISION", "RECALL", "F1", "MCC")
	tbl.AlignRight(2, 3, 4, 5, 6)
	for _, label := range labels {
		m := scored.PerClass[label]
		tbl.Row(display.Label(label), m.Support,
			fmt.Sprintf("%.2f", m.Precision), fmt.Sprintf("%.2f", m.Recall),
			fmt.Sprintf("%.2f", m.F1), fmt.Sprintf("%.3f", m.MCC))
	}
	fmt.Fprintf(out, "\n%s\n", tbl.String())
}
