package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/podium/internal/domain/model"
)

func observation(seq uint64) Observation {
	return Observation{Seq: seq, Players: []model.Participant{{ID: "p1", Score: int64(seq)}}, At: time.Now()}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}

	if err := q.Enqueue(ctx, observation(1)); err != nil {
		t.Errorf("expected enqueue to succeed, got %v", err)
	}
	if l := q.Len(ctx); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	o := <-q.Dequeue(ctx)
	if o.Seq != 1 {
		t.Errorf("expected seq 1, got %d", o.Seq)
	}
	if l := q.Len(ctx); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	for seq := uint64(1); seq <= 2; seq++ {
		if err := q.Enqueue(ctx, observation(seq)); err != nil {
			t.Fatalf("expected enqueue %d to succeed, got %v", seq, err)
		}
	}
	if err := q.Enqueue(ctx, observation(3)); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull when full, got %v", err)
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_PreservesOrder(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(100))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for seq := uint64(1); seq <= 50; seq++ {
		if err := q.Enqueue(ctx, observation(seq)); err != nil {
			t.Fatalf("enqueue %d: %v", seq, err)
		}
	}
	_ = q.Close()

	var want uint64 = 1
	for o := range q.Dequeue(ctx) {
		if o.Seq != want {
			t.Fatalf("expected seq %d, got %d", want, o.Seq)
		}
		want++
	}
	if want != 51 {
		t.Errorf("expected 50 observations, got %d", want-1)
	}
}

func TestInMemoryQueue_ConcurrentProducers(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1000))
	ctx := context.Background()
	var wg sync.WaitGroup

	for p := 0; p < 10; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if err := q.Enqueue(ctx, observation(uint64(p*100+i))); err != nil {
					t.Errorf("enqueue: %v", err)
				}
			}
		}(p)
	}
	wg.Wait()

	if l := q.Len(ctx); l != 1000 {
		t.Errorf("expected 1000 queued, got %d", l)
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if err := q.Enqueue(ctx, observation(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Errorf("expected close to succeed, got error: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if err := q.Enqueue(ctx, observation(2)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after closing, got %v", err)
	}

	ch := q.Dequeue(ctx)
	if o, ok := <-ch; !ok || o.Seq != 1 {
		t.Fatalf("expected pending observation to drain, got %v %v", o.Seq, ok)
	}
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("expected dequeue channel to be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("expected dequeue channel to be closed within timeout")
	}

	if err := q.Close(); err != nil {
		t.Errorf("expected second close to succeed, got error: %v", err)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = q.Enqueue(context.Background(), observation(1))
	if err := q.Enqueue(ctx, observation(2)); err == nil {
		t.Error("expected enqueue to fail")
	}
}
