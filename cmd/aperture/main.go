// aperture sweeps few-shot image classification experiments: run the
// shot x threshold grid, classify single images, reconcile predictions
// against ground truth, and serve the pipeline as MCP tools.
//
// Usage:
//
//	aperture run      -c config.yaml
//	aperture classify -c config.yaml --shot 5 --threshold 0.7 <image>
//	aperture compare  -c config.yaml --shot 5 --threshold 0.7
//	aperture runs     -c config.yaml
//	aperture serve    -c config.yaml
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
