package daemon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tutu-network/classifier/internal/api"
	"github.com/tutu-network/classifier/internal/app/dispatch"
	"github.com/tutu-network/classifier/internal/domain"
	"github.com/tutu-network/classifier/internal/health"
	"github.com/tutu-network/classifier/internal/infra/engine"
	"github.com/tutu-network/classifier/internal/infra/fetch"
	"github.com/tutu-network/classifier/internal/infra/metrics"
	"github.com/tutu-network/classifier/internal/infra/sqlite"
	"github.com/tutu-network/classifier/internal/logging"
)

// labelCacheTTL bounds how long a cached label file is trusted.
const labelCacheTTL = 24 * time.Hour

// Options adjusts daemon construction for a single run.
type Options struct {
	Timing    bool           // log per-phase timings
	LogWriter io.Writer      // console log writer (default stderr)
	Backend   engine.Backend // model backend (default REST)
}

// Daemon is the classifier runtime. It wires together all services.
type Daemon struct {
	Config     Config
	Logger     *logging.Logger
	DB         *sqlite.DB // nil when history is disabled
	Classifier *engine.Classifier
	Dispatcher *dispatch.Dispatcher
	Server     *api.Server
	Health     *health.Checker
	cancel     context.CancelFunc
}

// New creates and initializes a Daemon from the config file at cfgPath
// (the default location when empty).
func New(cfgPath string, opts Options) (*Daemon, error) {
	cfg, err := LoadConfig(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg, opts)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config, opts Options) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ValidateModel(); err != nil {
		return nil, err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
		Writer: opts.LogWriter,
	})
	if err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	log := logger.With(logging.FieldComponent, "daemon")

	d := &Daemon{Config: cfg, Logger: logger}

	// Open SQLite
	if cfg.History.Enabled {
		dir := cfg.History.Dir
		if dir == "" {
			dir = classifierHome()
		}
		db, err := sqlite.Open(dir)
		if err != nil {
			logger.Close()
			return nil, fmt.Errorf("open database: %w", err)
		}
		d.DB = db
		if err := db.SetNodeInfo(context.Background(), "model_url", cfg.Model.URL); err != nil {
			log.Warn("failed to record model URL", "error", err)
		}
	}

	// Content fetcher with retry, plus an on-disk cache for the label file
	fetchCfg := fetch.DefaultConfig()
	fetchCfg.MaxAttempts = cfg.Fetch.MaxAttempts
	fetchCfg.RetryWait = cfg.Fetch.RetryWait.Duration
	fetchCfg.Timeout = cfg.Fetch.Timeout.Duration
	fetcher := fetch.New(fetchCfg, nil, logger.With(logging.FieldComponent, "fetch"))

	backend := opts.Backend
	if backend == nil {
		backend = engine.NewRESTBackend(nil)
	}

	d.Classifier = engine.NewClassifier(engine.ClassifierConfig{
		ModelURL:  cfg.Model.URL,
		LabelsURL: cfg.Model.LabelsURL,
		Load: engine.LoadOptions{
			InputSize: cfg.Model.InputSize,
			Timeout:   cfg.Model.Timeout.Duration,
		},
		MaxPixels: cfg.Model.MaxPixels,
		Timing:    opts.Timing,
	}, backend, fetcher, logger.With(logging.FieldComponent, "classifier"))
	if cfg.Classifier.CacheDir != "" {
		d.Classifier.SetLabelFetcher(fetch.NewCache(cfg.Classifier.CacheDir, labelCacheTTL, fetcher, logger.Logger))
	}

	// Dispatcher
	dispatchOpts := []dispatch.Option{
		dispatch.WithLogger(logger.With(logging.FieldComponent, "dispatch")),
		dispatch.WithTiming(opts.Timing),
	}
	if cfg.Telemetry.Prometheus {
		dispatchOpts = append(dispatchOpts, dispatch.WithRecorder(metrics.NewRecorder()))
	}
	d.Dispatcher = dispatch.New(d.Classifier, dispatch.Config{
		Threshold:   cfg.Classifier.Threshold,
		TopN:        cfg.Classifier.TopResults,
		Parallelism: cfg.Classifier.Workers,
	}, dispatchOpts...)

	// Health checker
	checks := []health.Check{health.ModelCheck(d.Classifier, cfg.Model.Timeout.Duration)}
	if d.DB != nil {
		checks = append(checks, health.SQLiteCheck(d.DB))
	}
	if cfg.Classifier.CacheDir != "" {
		checks = append(checks, health.DirCheck("cache_dir", cfg.Classifier.CacheDir))
	}
	d.Health = health.NewChecker(0, checks...)

	// API server
	srv := api.NewServer(d, cfg.API.MaxBatch, logger.With(logging.FieldComponent, "api"))
	srv.SetHealth(d.Health)
	srv.SetCORSOrigins(cfg.API.CORSOrigins)
	if d.DB != nil {
		srv.SetHistory(d.DB)
	}
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}
	d.Server = srv

	return d, nil
}

// Classify runs one batch and records it in history. A history failure is
// logged; the batch result is still returned.
func (d *Daemon) Classify(ctx context.Context, items []domain.Item) (dispatch.Batch, error) {
	if len(items) == 0 {
		return dispatch.Batch{}, domain.ErrNoItems
	}
	b := d.Dispatcher.Run(ctx, items)

	if d.DB != nil {
		if err := d.DB.RecordBatch(ctx, b.Record()); err != nil {
			d.Logger.Warn("failed to record batch history", "batch", b.ID, "error", err)
		}
	}
	return b, nil
}

// Serve starts the HTTP server and blocks until shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	defer cancel()

	go d.Health.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute, // Large batches
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	d.Logger.Info("classifier serving", "addr", "http://"+addr)
	fmt.Printf("Classifier serving on http://%s\n", addr)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
	if d.Logger != nil {
		_ = d.Logger.Close()
	}
}

// OpenHistory opens the history database named by cfg without building the
// rest of the daemon.
func OpenHistory(cfg Config) (*sqlite.DB, error) {
	if !cfg.History.Enabled {
		return nil, fmt.Errorf("%w: history is disabled", domain.ErrInvalidConfig)
	}
	dir := cfg.History.Dir
	if dir == "" {
		dir = classifierHome()
	}
	return sqlite.Open(dir)
}
