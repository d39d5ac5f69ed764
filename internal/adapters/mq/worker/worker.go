// Package worker drains the observation queue into the pipeline.
package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/pipeline"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

// Queue defines how workers receive observations.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Observation
}

// Observer handles one observation. *pipeline.Pipeline satisfies it.
type Observer interface {
	Observe(ctx context.Context, obs model.Observation) (pipeline.Outcome, error)
}

// Worker processes observations until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled, Shutdown is called
	// or the queue is closed and drained.
	Run(ctx context.Context)

	// Shutdown stops the worker after the observation in progress.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker is the single consumer of the observation queue. One
// consumer keeps observations in emission order.
type InMemoryWorker struct {
	queue    Queue
	observer Observer
	name     string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, observer Observer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		observer: observer,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	ch := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case obs, ok := <-ch:
			if !ok {
				return
			}
			w.process(ctx, obs)
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

// process runs one observation. A panic is logged and the loop continues
// with the next observation.
func (w *InMemoryWorker) process(ctx context.Context, obs model.Observation) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("worker", "panic")
			w.logger.Error(ctx, "observation handler panicked",
				logger.Any("seq", obs.Seq), logger.Any("panic", r))
		}
	}()

	if _, err := w.observer.Observe(ctx, obs); err != nil {
		metrics.RecordErrorByComponent("worker", "observe_error")
		w.logger.Error(ctx, "observation rejected",
			logger.Any("seq", obs.Seq),
			logger.Int("players", len(obs.Players)),
			logger.Error(err))
	}
}
