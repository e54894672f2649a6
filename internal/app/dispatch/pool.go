package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tutu-network/classifier/internal/domain"
)

// ─── Worker Pool ────────────────────────────────────────────────────────────
// The task channel is filled with every task and closed before any worker
// starts, so a worker exits exactly when nothing is left to claim. Each
// worker loads its own model and never shares it. The result channel is
// sized to the task count: a send can never block.

// RunPool classifies tasks on up to workers goroutines and returns the
// responses ordered by index, whatever order they completed in.
func (d *Dispatcher) RunPool(ctx context.Context, tasks []domain.Task, workers int) []domain.Response {
	return d.runPool(ctx, d.logger, tasks, workers)
}

func (d *Dispatcher) runPool(ctx context.Context, logger *slog.Logger, tasks []domain.Task, workers int) []domain.Response {
	if len(tasks) == 0 {
		return []domain.Response{}
	}
	workers = max(1, min(workers, len(tasks)))

	queue := make(chan domain.Task, len(tasks))
	for _, t := range tasks {
		queue <- t
	}
	close(queue)
	logger.Debug("all tasks put to queue", "tasks", len(tasks))

	results := make(chan domain.Response, len(tasks))

	var wg sync.WaitGroup
	logger.Debug("creating workers", "workers", workers)
	for i := range workers {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			d.worker(ctx, logger.With("worker", workerName(id)), queue, results)
		}(i)
	}
	wg.Wait()

	// Tasks still queued were never claimed: every worker that could have
	// taken them failed to load. They fail with the worker that owned them.
	unclaimed := 0
	for t := range queue {
		results <- domain.FailedResponse(t)
		unclaimed++
	}
	if unclaimed > 0 {
		logger.Warn("tasks left unclaimed after all workers exited", "tasks", unclaimed)
	}
	close(results)

	responses := make([]domain.Response, 0, len(tasks))
	for r := range results {
		logger.Debug("got response", "index", r.Index, "ok", r.OK())
		responses = append(responses, r)
	}
	return Aggregate(tasks, responses)
}

// worker drains the queue with its own loaded model. A worker that cannot
// load exits immediately; the remaining workers keep draining.
func (d *Dispatcher) worker(ctx context.Context, logger *slog.Logger, queue <-chan domain.Task, results chan<- domain.Response) {
	logger.Debug("running")

	m, err := d.load(ctx, logger)
	if err != nil {
		return
	}
	defer m.Close()

	for task := range queue {
		logger.Debug("got task", "task", task.String())
		results <- d.handle(ctx, logger, m, task)
	}
	logger.Debug("exiting")
}

func workerName(id int) string {
	return fmt.Sprintf("ClassifierWorker-%d", id)
}
