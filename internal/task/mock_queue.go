package task

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MockQueue implements the Queue interface for testing. Each method has
// an injectable Fn field; the defaults delegate to an in-memory FIFO
// without visibility-timeout behavior.
type MockQueue struct {
	mu      sync.Mutex
	pending []Descriptor
	acked   []uuid.UUID
	notify  chan struct{}

	EnqueueFn func(ctx context.Context, descriptor Descriptor) error
	DequeueFn func(ctx context.Context) (Descriptor, error)
	AckFn     func(ctx context.Context, id uuid.UUID) error
}

// NewMockQueue creates a MockQueue with default in-memory behavior.
func NewMockQueue() *MockQueue {
	return &MockQueue{
		notify: make(chan struct{}, 64),
	}
}

// Enqueue adds a descriptor to the in-memory FIFO.
func (q *MockQueue) Enqueue(ctx context.Context, descriptor Descriptor) error {
	if q.EnqueueFn != nil {
		return q.EnqueueFn(ctx, descriptor)
	}

	q.mu.Lock()
	q.pending = append(q.pending, descriptor)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

// Dequeue pops the oldest descriptor, blocking until one is available.
func (q *MockQueue) Dequeue(ctx context.Context) (Descriptor, error) {
	if q.DequeueFn != nil {
		return q.DequeueFn(ctx)
	}

	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			descriptor := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return descriptor, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Descriptor{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Ack records the acked task ID.
func (q *MockQueue) Ack(ctx context.Context, id uuid.UUID) error {
	if q.AckFn != nil {
		return q.AckFn(ctx, id)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.acked = append(q.acked, id)
	return nil
}

// Close is a no-op for the mock.
func (q *MockQueue) Close() error { return nil }

// Acked returns a copy of the acked task IDs.
func (q *MockQueue) Acked() []uuid.UUID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]uuid.UUID(nil), q.acked...)
}

// PendingCount returns the number of descriptors not yet dequeued.
func (q *MockQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
