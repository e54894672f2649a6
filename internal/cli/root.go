// Package cli implements the classifier command-line interface using Cobra.
// Each subcommand maps to one capability (classify, serve, history, config).
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "classifier",
	Short: "Classify batches of images with a served model",
	Long: `classifier sends batches of images to an image classification model
and prints the top-ranked labels for each image.

Small batches run in-process; batches at or above the configured threshold
are spread over a pool of workers, each with its own copy of the model.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.classifier/config.toml)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
