package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"aperture/internal/classify"
	"aperture/internal/display"
	"aperture/internal/embed"
	"aperture/internal/support"
)

var classifyFlags struct {
	categoryFlags
	shot      int
	threshold float64
}

var classifyCmd = &cobra.Command{
	Use:   "classify <image>",
	Short: "Classify one image against the category's support set",
	Args:  cobra.ExactArgs(1),
	RunE:  runClassify,
}

func init() {
	registerCategoryFlags(classifyCmd, &classifyFlags.categoryFlags)
	classifyCmd.Flags().IntVar(&classifyFlags.shot, "shot", 1, "Support images per class")
	classifyCmd.Flags().Float64Var(&classifyFlags.threshold, "threshold", 0.5, "Minimum accepted similarity")
}

func runClassify(cmd *cobra.Command, args []string) error {
	// A single cell stands in for the grid so the shared validation applies.
	if classifyFlags.shots == "" {
		classifyFlags.shots = fmt.Sprintf("%d", classifyFlags.shot)
	}
	if classifyFlags.thresholds == "" {
		classifyFlags.thresholds = fmt.Sprintf("%g", classifyFlags.threshold)
	}
	cfg, err := classifyFlags.load()
	if err != nil {
		return err
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}
	cache := embed.NewCache(provider, time.Duration(cfg.EmbedTimeout)*time.Second)

	supStore := support.NewStore(cfg.SupportRoot(), cache)
	set, err := supStore.Load(classifyFlags.shot)
	if err != nil {
		return fmt.Errorf("load support set: %w", err)
	}
	ctx := cmd.Context()
	if err := supStore.ExtractFeatures(ctx, set); err != nil {
		return err
	}

	vec, err := cache.Extract(ctx, args[0])
	if err != nil {
		return fmt.Errorf("embed query: %w", err)
	}

	result := classify.Classify(args[0], vec, set, classifyFlags.threshold)
	printResult(cmd, &result)
	return nil
}

func printResult(cmd *cobra.Command, r *classify.Result) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Predicted:  %s\n", display.Label(r.Predicted))
	fmt.Fprintf(out, "Status:     %s\n", display.Status(string(r.Status)))
	fmt.Fprintf(out, "Best score: %.4f\n", r.BestScore)
	fmt.Fprintf(out, "Confidence: %s\n", display.TierWithMargin(string(r.Tier), fmt.Sprintf("%.4f", r.Margin)))
	if r.Reason != "" {
		fmt.Fprintf(out, "Reason:     %s\n", r.Reason)
	}
	if len(r.Top3) > 0 {
		fmt.Fprintf(out, "Top classes:\n")
		for _, ls := range r.Top3 {
			fmt.Fprintf(out, "  %-20s %.4f\n", display.Label(ls.Label), ls.Score)
		}
	}
}
