package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tutu-network/classifier/internal/daemon"
)

func init() {
	f := classifyCmd.Flags()
	f.StringArrayVarP(&classifyImages, "image", "i", nil, "image URL or path to classify (repeatable)")
	f.BoolVarP(&classifyDebug, "debug", "d", false, "enable debug logging")
	f.BoolVarP(&classifyTiming, "time", "t", false, "log timings of model load, labels load and inference")
	f.IntVar(&classifyTop, "top", 0, "number of top results per image (overrides config)")
	f.IntVar(&classifyThreshold, "threshold", -1, "batch size at which a worker pool is used (overrides config)")
	f.IntVar(&classifyWorkers, "workers", 0, "worker pool size (overrides config)")
	f.StringVar(&classifyFormat, "format", formatText, "output format: text, table or json")
	rootCmd.AddCommand(classifyCmd)
}

var (
	classifyImages    []string
	classifyDebug     bool
	classifyTiming    bool
	classifyTop       int
	classifyThreshold int
	classifyWorkers   int
	classifyFormat    string
)

var classifyCmd = &cobra.Command{
	Use:   "classify [FILE...]",
	Short: "Classify images",
	Long: `Classify images and print the top-ranked labels for each.

Images are read, in order, from standard input (when piped), from each FILE
(one image URL or path per line) and from each --image flag.`,
	Example: `  classifier classify -i https://example.com/robin.jpg
  classifier classify urls.txt
  cat urls.txt | classifier classify --format table`,
	RunE: runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	if err := validFormat(classifyFormat); err != nil {
		return err
	}

	items, err := collectItems(cmd.InOrStdin(), args, classifyImages)
	if err != nil {
		return err
	}

	cfg, err := daemon.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	if classifyDebug {
		cfg.Logging.Level = slog.LevelDebug.String()
	}
	if classifyTop > 0 {
		cfg.Classifier.TopResults = classifyTop
	}
	if classifyThreshold >= 0 {
		cfg.Classifier.Threshold = classifyThreshold
	}
	if classifyWorkers > 0 {
		cfg.Classifier.Workers = classifyWorkers
	}

	d, err := daemon.NewWithConfig(cfg, daemon.Options{
		Timing:    classifyTiming,
		LogWriter: cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer d.Close()

	b, err := d.Classify(cmd.Context(), items)
	if err != nil {
		return err
	}
	if classifyTiming {
		d.Logger.Info("batch finished", "batch", b.ID, "mode", b.Mode,
			"workers", b.Workers, "items", len(b.Responses), "elapsed", b.Elapsed)
	}

	if err := renderResponses(cmd.OutOrStdout(), classifyFormat, b); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
