package cli

import (
	"github.com/spf13/cobra"

	"github.com/tutu-network/classifier/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().BoolVarP(&serveTiming, "time", "t", false, "log per-batch timings")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost   string
	servePort   int
	serveTiming bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the classifier API server",
	Long:  `Start the HTTP API server (POST /api/classify) at localhost:7860.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := daemon.LoadConfig(cfgPath)
	if err != nil {
		return err
	}

	// Override config from flags
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}

	d, err := daemon.NewWithConfig(cfg, daemon.Options{Timing: serveTiming, LogWriter: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Serve(cmd.Context())
}
