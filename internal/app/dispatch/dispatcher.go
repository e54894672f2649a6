// Package dispatch is the batch classification engine.
// It picks an execution mode per batch (inline below the threshold, a
// bounded worker pool at or above it), contains failures to the task or the
// unit that caused them, and returns exactly one response per item in
// input order.
//
//	Dispatch(items) → NewTasks → RunInline | RunPool → Aggregate → []Response
package dispatch

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/tutu-network/classifier/internal/domain"
)

// ─── Configuration ──────────────────────────────────────────────────────────

// Config controls mode selection and result shaping.
type Config struct {
	Threshold   int // batches with N >= Threshold run pooled
	TopN        int // results kept per item
	Parallelism int // upper bound on pool workers; 0 = runtime.NumCPU()
}

// DefaultConfig mirrors the shipped config.toml defaults.
func DefaultConfig() Config {
	return Config{
		Threshold: 10,
		TopN:      5,
	}
}

// ─── Recorder ───────────────────────────────────────────────────────────────

// Recorder receives batch outcomes. The metrics package implements it;
// the engine itself stays free of any telemetry dependency.
type Recorder interface {
	ObserveBatch(mode domain.Mode, workers int, elapsed time.Duration, ok, failed int)
	ObserveItemFailure(kind string)
	ObserveLoadFailure(stage string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveBatch(domain.Mode, int, time.Duration, int, int) {}
func (nopRecorder) ObserveItemFailure(string)                              {}
func (nopRecorder) ObserveLoadFailure(string)                              {}

// ─── Dispatcher ─────────────────────────────────────────────────────────────

// Dispatcher is the single entry point of the engine. It holds no state
// between calls and is safe for concurrent use.
type Dispatcher struct {
	cfg        Config
	classifier domain.Classifier
	logger     *slog.Logger
	recorder   Recorder
	timing     bool
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used by the dispatcher and its workers.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRecorder sets the outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}

// WithTiming logs load and classification durations at debug level.
func WithTiming(enabled bool) Option {
	return func(d *Dispatcher) { d.timing = enabled }
}

// New creates a dispatcher over c.
func New(c domain.Classifier, cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:        cfg,
		classifier: c,
		logger:     slog.Default(),
		recorder:   nopRecorder{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the dispatcher configuration.
func (d *Dispatcher) Config() Config { return d.cfg }

// Batch is the outcome of one Run.
type Batch struct {
	ID        string
	Mode      domain.Mode
	Workers   int
	StartedAt time.Time
	Elapsed   time.Duration
	Responses []domain.Response
}

// Record converts b into its persisted form.
func (b Batch) Record() domain.BatchRecord {
	return domain.BatchRecord{
		BatchSummary: domain.BatchSummary{
			ID:        b.ID,
			StartedAt: b.StartedAt,
			Mode:      b.Mode,
			Workers:   b.Workers,
			Items:     len(b.Responses),
			Failed:    domain.CountFailed(b.Responses),
			Duration:  b.Elapsed,
		},
		Responses: b.Responses,
	}
}

// Dispatch classifies items and returns one response per item, in input order.
func (d *Dispatcher) Dispatch(ctx context.Context, items []domain.Item) []domain.Response {
	return d.Run(ctx, items).Responses
}

// Run is Dispatch with the execution details of the batch.
func (d *Dispatcher) Run(ctx context.Context, items []domain.Item) Batch {
	started := time.Now()
	tasks := domain.NewTasks(items)
	mode, workers := d.SelectMode(len(tasks))

	b := Batch{
		ID:        uuid.NewString(),
		Mode:      mode,
		Workers:   workers,
		StartedAt: started,
	}
	logger := d.logger.With("batch", b.ID)

	switch {
	case len(tasks) == 0:
		b.Responses = []domain.Response{}
	case mode == domain.ModeInline:
		logger.Debug("running in main goroutine",
			"tasks", len(tasks), "threshold", d.cfg.Threshold)
		b.Responses = d.runInline(ctx, logger, tasks)
	default:
		logger.Debug("starting worker pool",
			"tasks", len(tasks), "threshold", d.cfg.Threshold, "workers", workers)
		b.Responses = d.runPool(ctx, logger, tasks, workers)
	}

	b.Elapsed = time.Since(started)
	failed := domain.CountFailed(b.Responses)
	d.recorder.ObserveBatch(mode, workers, b.Elapsed, len(b.Responses)-failed, failed)
	if d.timing {
		logger.Debug("time taken for batch", "elapsed", b.Elapsed)
	}
	return b
}

// SelectMode picks the execution mode for a batch of n items and the
// number of workers it will use. An empty batch runs nothing: inline with
// no workers, whatever the threshold.
func (d *Dispatcher) SelectMode(n int) (domain.Mode, int) {
	if n <= 0 {
		return domain.ModeInline, 0
	}
	if n < d.cfg.Threshold {
		return domain.ModeInline, 1
	}
	return domain.ModePool, min(n, d.parallelism())
}

func (d *Dispatcher) parallelism() int {
	if d.cfg.Parallelism > 0 {
		return d.cfg.Parallelism
	}
	return max(1, runtime.NumCPU())
}

// Dispatch is a one-shot helper: it classifies items with c using the given
// threshold and top-N and the default logger.
func Dispatch(ctx context.Context, c domain.Classifier, items []domain.Item, threshold, topN int) []domain.Response {
	return New(c, Config{Threshold: threshold, TopN: topN}).Dispatch(ctx, items)
}
