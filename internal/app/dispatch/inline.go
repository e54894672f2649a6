package dispatch

import (
	"context"
	"log/slog"

	"github.com/tutu-network/classifier/internal/domain"
)

// RunInline classifies tasks sequentially in the calling goroutine.
// If the classifier cannot be loaded, no task is attempted and every
// response has absent results.
func (d *Dispatcher) RunInline(ctx context.Context, tasks []domain.Task) []domain.Response {
	return d.runInline(ctx, d.logger, tasks)
}

func (d *Dispatcher) runInline(ctx context.Context, logger *slog.Logger, tasks []domain.Task) []domain.Response {
	responses := make([]domain.Response, 0, len(tasks))

	m, err := d.load(ctx, logger)
	if err != nil {
		for _, t := range tasks {
			responses = append(responses, domain.FailedResponse(t))
		}
		return Aggregate(tasks, responses)
	}
	defer m.Close()

	for _, t := range tasks {
		responses = append(responses, d.handle(ctx, logger, m, t))
	}

	// Already in index order when tasks came from NewTasks; Aggregate keeps
	// the ordering guarantee identical to the pooled path either way.
	return Aggregate(tasks, responses)
}
