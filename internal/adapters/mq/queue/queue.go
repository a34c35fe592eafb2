// Package queue provides the bounded in-memory queue that carries attendance
// records between producers (the recognition loop, the relay endpoint) and
// their consumers (delivery workers, relay clients).
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/okian/facecheck/internal/domain/model"
	"github.com/okian/facecheck/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Record is the payload type flowing through the queue.
type Record = model.AttendanceRecord

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a record. It returns false if the queue is full or closed.
	Enqueue(ctx context.Context, r Record) bool

	// Offer is Enqueue reporting why a record was refused.
	Offer(ctx context.Context, r Record) error

	// Dequeue returns a channel that receives records as they become
	// available. The channel is closed when the queue is closed.
	Dequeue(ctx context.Context) <-chan Record

	// TryDequeue pops the oldest record without waiting.
	TryDequeue(ctx context.Context) (Record, bool)

	// Len returns the current number of queued records.
	Len(ctx context.Context) int

	// Close stops accepting records and closes the dequeue channel once drained.
	Close() error

	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	name     string
	records  chan Record
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		name:     "default",
		capacity: defaultQueueCapacity,
	}
	for _, opt := range opts {
		opt(q)
	}
	q.records = make(chan Record, q.capacity)

	metrics.UpdateQueueCapacity(q.name, q.capacity)
	metrics.UpdateQueueSize(q.name, 0, q.capacity)
	return q
}

// Name returns the queue label.
func (q *InMemoryQueue) Name() string {
	return q.name
}

// Enqueue adds a record to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, r Record) bool { //nolint:gocritic // hugeParam: records travel by value
	return q.Offer(ctx, r) == nil
}

// Offer adds a record without blocking. It fails with ErrClosed, ErrFull or
// the context error.
func (q *InMemoryQueue) Offer(ctx context.Context, r Record) error { //nolint:gocritic // hugeParam: records travel by value
	start := time.Now()
	defer func() {
		metrics.RecordQueueProcessingLatency(q.name, float64(time.Since(start).Milliseconds()))
	}()

	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError(q.name)
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError(q.name)
		metrics.RecordErrorByComponent("queue", "context_cancelled")
		return err
	}

	select {
	case q.records <- r:
		metrics.RecordQueueEnqueue(q.name)
		metrics.UpdateQueueSize(q.name, len(q.records), q.capacity)
		return nil
	default:
		metrics.RecordQueueEnqueueError(q.name)
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns a channel that will receive records as they become available.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Record {
	out := make(chan Record)
	go func() {
		defer close(out)
		for r := range q.records {
			select {
			case out <- r:
				metrics.RecordQueueDequeue(q.name)
				metrics.UpdateQueueSize(q.name, len(q.records), q.capacity)
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// TryDequeue pops the oldest record, if any.
func (q *InMemoryQueue) TryDequeue(_ context.Context) (Record, bool) {
	select {
	case r, ok := <-q.records:
		if !ok {
			return Record{}, false
		}
		metrics.RecordQueueDequeue(q.name)
		metrics.UpdateQueueSize(q.name, len(q.records), q.capacity)
		return r, true
	default:
		return Record{}, false
	}
}

// Len returns the current number of queued records.
func (q *InMemoryQueue) Len(_ context.Context) int {
	size := len(q.records)
	metrics.UpdateQueueSize(q.name, size, q.capacity)
	return size
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.records)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
