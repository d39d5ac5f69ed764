// Package queue buffers roster observations between the store subscription
// and the pipeline worker.
package queue

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Observation is the payload flowing through the queue.
type Observation = model.Observation

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds an observation. It never blocks; a full or closed queue
	// returns ErrFull or ErrClosed and the observation is dropped.
	Enqueue(ctx context.Context, o Observation) error

	// Dequeue returns a channel that receives observations in enqueue order.
	// The channel is closed when the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Observation

	// Len returns the number of pending observations.
	Len(ctx context.Context) int

	// Close stops accepting observations.
	Close() error

	// IsClosed reports whether Close was called.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	items    chan Observation
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.items = make(chan Observation, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0.0)
	return q
}

// Enqueue adds an observation to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, o Observation) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}

	select {
	case q.items <- o:
		metrics.RecordQueueEnqueue()
		q.updateGauges()
		return nil
	case <-ctx.Done():
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return ctx.Err()
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return fmt.Errorf("%w: observation %d dropped", ErrFull, o.Seq)
	}
}

// Dequeue returns a channel that will receive observations as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Observation {
	out := make(chan Observation)
	go func() {
		defer close(out)
		for o := range q.items {
			select {
			case out <- o:
				metrics.RecordQueueDequeue()
				q.updateGauges()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the current number of queued observations.
func (q *InMemoryQueue) Len(_ context.Context) int {
	return q.updateGauges()
}

func (q *InMemoryQueue) updateGauges() int {
	size := len(q.items)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
	return size
}

// Close gracefully shuts down the queue. Pending observations stay readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}

var _ Queue = (*InMemoryQueue)(nil)
