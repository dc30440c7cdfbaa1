package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"aperture/internal/display"
)

var runsFlags categoryFlags

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List persisted experiment runs for the category and model",
	RunE:  runRuns,
}

func init() {
	registerCategoryFlags(runsCmd, &runsFlags)
}

func runRuns(cmd *cobra.Command, _ []string) error {
	cfg, err := runsFlags.load()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	if st == nil {
		return fmt.Errorf("no run store configured (set db in the config)")
	}
	defer st.Close()

	runs, err := st.ListRuns(cfg.Category, cfg.Model)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintf(out, "No runs recorded for %s/%s\n", cfg.Category, cfg.Model)
		return nil
	}

	tbl := display.NewTable("CELL", "PROVIDER", "TOTAL", "ACCEPTED", "UNKNOWN", "ERRORS", "SECONDS", "ACCURACY")
	tbl.AlignRight(3, 4, 5, 6, 7, 8)
	for _, run := range runs {
		accuracy := "-"
		m, err := st.GetMetrics(run.ID)
		if err != nil {
			return err
		}
		if m != nil {
			accuracy = fmt.Sprintf("%.2f%%", m.Accuracy)
		}
		tbl.Row(display.CellKey(run.CellKey), run.Provider,
			run.Total, run.Accepted, run.Unknown, run.Errors,
			fmt.Sprintf("%.1f", run.DurationSeconds), accuracy)
	}
	fmt.Fprintln(out, tbl.String())
	return nil
}
