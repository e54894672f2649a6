package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tutu-network/classifier/internal/domain"
)

// A unit is whatever owns one loaded model: the calling goroutine in inline
// mode, one worker goroutine in pool mode. load and handle are the only two
// places the engine calls the classifier.

// load loads the classifier once for a unit. A panic inside Load is
// reported as a fatal model load.
func (d *Dispatcher) load(ctx context.Context, logger *slog.Logger) (m domain.Model, err error) {
	defer func() {
		if r := recover(); r != nil {
			m = nil
			err = &domain.FatalLoadError{Stage: domain.StageModel, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			d.recorder.ObserveLoadFailure(domain.FailureKind(err))
			logger.Error("failed to load classifier - stopping", "error", err)
		}
	}()

	start := time.Now()
	m, err = d.classifier.Load(ctx)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &domain.FatalLoadError{Stage: domain.StageModel, Err: domain.ErrModelUnavailable}
	}
	if d.timing {
		logger.Debug("time taken for classifier load", "elapsed", time.Since(start))
	}
	return m, nil
}

// handle classifies one task. It never fails: item errors, unexpected
// errors and panics all become a response with absent results.
func (d *Dispatcher) handle(ctx context.Context, logger *slog.Logger, m domain.Model, task domain.Task) (resp domain.Response) {
	defer func() {
		if r := recover(); r != nil {
			d.recorder.ObserveItemFailure("unexpected")
			logger.Error("unexpected error when handling task", "task", task.String(), "panic", r)
			resp = domain.FailedResponse(task)
		}
	}()

	if err := ctx.Err(); err != nil {
		logger.Debug("skipping task", "task", task.String(), "error", err)
		return domain.FailedResponse(task)
	}

	start := time.Now()
	scores, err := d.classifier.ClassifyOne(ctx, m, task.Item)
	if err != nil {
		kind := domain.FailureKind(err)
		d.recorder.ObserveItemFailure(kind)
		if domain.IsItemError(err) {
			logger.Debug("stopping task", "task", task.String(), "kind", kind, "error", err)
		} else {
			logger.Error("unexpected error when handling task", "task", task.String(), "error", err)
		}
		return domain.FailedResponse(task)
	}
	if d.timing {
		logger.Debug("time taken for classification", "task", task.String(), "elapsed", time.Since(start))
	}

	return domain.NewResponse(task, TopN(m.Labels(), scores, d.cfg.TopN))
}
