package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tutu-network/classifier/internal/daemon"
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of batches to list (0 = all)")
	historyCmd.Flags().StringVar(&historyFormat, "format", formatText, "output format: text, table or json")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "delete batches older than this age (e.g. 720h)")
	rootCmd.AddCommand(historyCmd)
}

var (
	historyLimit  int
	historyFormat string
	historyPrune  time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history [BATCH_ID]",
	Short: "List past batches or show one batch",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	if err := validFormat(historyFormat); err != nil {
		return err
	}
	cfg, err := daemon.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	db, err := daemon.OpenHistory(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if historyPrune > 0 {
		n, err := db.DeleteBatchesBefore(ctx, time.Now().Add(-historyPrune))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Deleted %d batch(es) older than %s\n", n, historyPrune)
		return nil
	}

	if len(args) == 1 {
		rec, err := db.GetBatch(ctx, args[0])
		if err != nil {
			return err
		}
		return renderBatchRecord(out, historyFormat, rec)
	}

	batches, err := db.ListBatches(ctx, historyLimit)
	if err != nil {
		return err
	}
	return renderBatchList(out, historyFormat, batches)
}
