package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"aperture/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	logLevel  string
	logFormat string
	envFile   string
}

var rootCmd = &cobra.Command{
	Use:   "aperture",
	Short: "Few-shot image classification experiment runner",
	Long: "Aperture classifies images against small per-class support sets by mean\n" +
		"cosine similarity and sweeps the shot x threshold grid to find the\n" +
		"operating point for a category.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage:      true,
	PersistentPreRunE: setupLogging,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format (text, json)")
	pf.StringVar(&rootFlags.envFile, "env-file", "", "Env file to load before running (default .env if present)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(compareCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func setupLogging(_ *cobra.Command, _ []string) error {
	if rootFlags.envFile != "" {
		if err := godotenv.Load(rootFlags.envFile); err != nil {
			return err
		}
	} else if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}

	level, err := logging.ParseLevel(rootFlags.logLevel)
	if err != nil {
		return err
	}
	logging.Init(level, rootFlags.logFormat)
	return nil
}
