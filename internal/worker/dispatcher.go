// Package worker runs analysis requests through a bounded pool. The pool
// caps total in-flight runs; per-branch ordering comes solely from the lock
// service inside the orchestrator.
package worker

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/rostilos/codecrow/internal/analysis"
	"github.com/rostilos/codecrow/internal/events"
)

// Processor is what the dispatcher runs; satisfied by the orchestrator.
type Processor interface {
	Process(ctx context.Context, req analysis.ProcessRequest, sink events.Sink) (*analysis.ProcessResult, error)
}

// Outcome pairs a request with what happened to it.
type Outcome struct {
	Request analysis.ProcessRequest
	Result  *analysis.ProcessResult
	Err     error
}

// Dispatcher fans analysis requests out to a bounded number of workers.
type Dispatcher struct {
	processor Processor
	slots     *semaphore.Weighted
	logger    *slog.Logger

	mu       sync.Mutex
	wg       sync.WaitGroup
	outcomes []Outcome
}

// NewDispatcher builds a pool running at most workers concurrent analyses.
func NewDispatcher(processor Processor, workers int, logger *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		processor: processor,
		slots:     semaphore.NewWeighted(int64(workers)),
		logger:    logger,
	}
}

// Submit queues one request. It blocks only while the pool is saturated and
// returns the context error when ctx ends before a slot frees up.
func (d *Dispatcher) Submit(ctx context.Context, req analysis.ProcessRequest, sink events.Sink) error {
	if err := d.slots.Acquire(ctx, 1); err != nil {
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.slots.Release(1)

		result, err := d.processor.Process(ctx, req, sink)
		if err != nil {
			d.logger.Error("analysis run failed",
				"project_id", req.ProjectID, "branch", req.TargetBranchName, "error", err)
		}

		d.mu.Lock()
		d.outcomes = append(d.outcomes, Outcome{Request: req, Result: result, Err: err})
		d.mu.Unlock()
	}()
	return nil
}

// Wait blocks until all submitted runs finish and returns their outcomes.
func (d *Dispatcher) Wait() []Outcome {
	d.wg.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Outcome, len(d.outcomes))
	copy(out, d.outcomes)
	return out
}
