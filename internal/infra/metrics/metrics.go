// Package metrics provides Prometheus metrics for the classifier.
// Counters, gauges and histograms for batches, items, model loads,
// the HTTP API and health checks.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tutu-network/classifier/internal/domain"
)

// ─── Batches ────────────────────────────────────────────────────────────────

// BatchesTotal counts dispatched batches by execution mode.
var BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "classifier",
	Name:      "batches_total",
	Help:      "Total dispatched batches.",
}, []string{"mode"})

// BatchDuration tracks wall-clock batch duration in seconds.
var BatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "classifier",
	Name:      "batch_duration_seconds",
	Help:      "Batch duration in seconds.",
	Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
}, []string{"mode"})

// Workers reports the worker count of the most recent batch.
var Workers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "classifier",
	Name:      "workers",
	Help:      "Units of execution used by the most recent batch.",
})

// ─── Items ──────────────────────────────────────────────────────────────────

// ItemsTotal counts classified items by outcome (ok, failed).
var ItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "classifier",
	Name:      "items_total",
	Help:      "Total items classified, by outcome.",
}, []string{"outcome"})

// ItemFailures counts item failures by step (fetch, decode, inference, unexpected).
var ItemFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "classifier",
	Name:      "item_failures_total",
	Help:      "Total item failures, by failing step.",
}, []string{"kind"})

// LoadFailures counts fatal classifier loads by stage (model, labels).
var LoadFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "classifier",
	Name:      "load_failures_total",
	Help:      "Total fatal classifier load failures, by stage.",
}, []string{"stage"})

// ─── API ────────────────────────────────────────────────────────────────────

// APIRequests counts HTTP API requests by route and status code.
var APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "classifier",
	Name:      "api_requests_total",
	Help:      "Total HTTP API requests.",
}, []string{"route", "code"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "classifier",
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "classifier",
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})

// ─── Recorder ───────────────────────────────────────────────────────────────

// Recorder feeds dispatcher outcomes into the package metrics.
type Recorder struct{}

// NewRecorder returns a recorder bound to the default registry.
func NewRecorder() *Recorder { return &Recorder{} }

func (Recorder) ObserveBatch(mode domain.Mode, workers int, elapsed time.Duration, ok, failed int) {
	BatchesTotal.WithLabelValues(string(mode)).Inc()
	BatchDuration.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
	Workers.Set(float64(workers))
	ItemsTotal.WithLabelValues("ok").Add(float64(ok))
	ItemsTotal.WithLabelValues("failed").Add(float64(failed))
}

func (Recorder) ObserveItemFailure(kind string) {
	ItemFailures.WithLabelValues(kind).Inc()
}

func (Recorder) ObserveLoadFailure(stage string) {
	LoadFailures.WithLabelValues(stage).Inc()
}
