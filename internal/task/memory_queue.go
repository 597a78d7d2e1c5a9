package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Common errors returned by queue implementations
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// MemoryQueueConfig holds configuration for the in-memory queue.
type MemoryQueueConfig struct {
	// BufferSize is the channel capacity for queued descriptors.
	BufferSize int

	// VisibilityTimeout is how long a dequeued descriptor may stay
	// unacked before it becomes deliverable again.
	VisibilityTimeout time.Duration

	// ReapInterval is how often expired leases are checked. Defaults to
	// a tenth of the visibility timeout.
	ReapInterval time.Duration
}

// DefaultMemoryQueueConfig returns a MemoryQueueConfig with reasonable defaults.
func DefaultMemoryQueueConfig() MemoryQueueConfig {
	return MemoryQueueConfig{
		BufferSize:        100,
		VisibilityTimeout: 5 * time.Minute,
	}
}

type lease struct {
	descriptor Descriptor
	expiresAt  time.Time
}

// MemoryQueue is an in-process Queue built on a buffered channel plus a
// lease table. Dequeued descriptors are tracked in the lease table until
// acked; a reaper goroutine requeues descriptors whose lease expired, so
// a crashed worker's delivery is picked up by another consumer.
type MemoryQueue struct {
	mu      sync.Mutex
	tasks   chan Descriptor
	leases  map[uuid.UUID]lease
	config  MemoryQueueConfig
	logger  *slog.Logger
	closed  bool
	done    chan struct{}
	reaping sync.WaitGroup
}

// NewMemoryQueue creates a new in-memory queue and starts its lease reaper.
func NewMemoryQueue(config MemoryQueueConfig, logger *slog.Logger) *MemoryQueue {
	if config.BufferSize <= 0 {
		config.BufferSize = 100
	}
	if config.VisibilityTimeout <= 0 {
		config.VisibilityTimeout = 5 * time.Minute
	}
	if config.ReapInterval <= 0 {
		config.ReapInterval = config.VisibilityTimeout / 10
	}

	q := &MemoryQueue{
		tasks:  make(chan Descriptor, config.BufferSize),
		leases: make(map[uuid.UUID]lease),
		config: config,
		logger: logger.With("component", "memory_queue"),
		done:   make(chan struct{}),
	}

	q.reaping.Add(1)
	go q.reapExpiredLeases()

	return q
}

// Enqueue adds a descriptor to the queue. Returns ErrQueueFull when the
// buffer is at capacity and ErrQueueClosed after Close.
func (q *MemoryQueue) Enqueue(ctx context.Context, descriptor Descriptor) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- descriptor:
		q.logger.Debug("task enqueued",
			"task_id", descriptor.ID,
			"task_type", descriptor.Type,
			"queue_len", len(q.tasks),
			"queue_cap", cap(q.tasks))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.tasks))
	}
}

// Dequeue blocks until a descriptor is available, the context is
// cancelled, or the queue is closed. The returned descriptor holds a
// lease until Ack is called.
func (q *MemoryQueue) Dequeue(ctx context.Context) (Descriptor, error) {
	select {
	case <-ctx.Done():
		return Descriptor{}, ctx.Err()
	case <-q.done:
		return Descriptor{}, ErrQueueClosed
	case descriptor := <-q.tasks:
		q.mu.Lock()
		q.leases[descriptor.ID] = lease{
			descriptor: descriptor,
			expiresAt:  time.Now().Add(q.config.VisibilityTimeout),
		}
		q.mu.Unlock()
		return descriptor, nil
	}
}

// Ack releases the lease for a delivered descriptor. Unknown IDs are a
// no-op so duplicate acks after redelivery are harmless.
func (q *MemoryQueue) Ack(ctx context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.leases, id)
	return nil
}

// Close stops the reaper and unblocks pending Dequeue calls.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	close(q.done)
	q.reaping.Wait()
	q.logger.Info("task queue closed")
	return nil
}

// reapExpiredLeases periodically requeues descriptors whose visibility
// timeout elapsed without an ack.
func (q *MemoryQueue) reapExpiredLeases() {
	defer q.reaping.Done()

	ticker := time.NewTicker(q.config.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.done:
			return
		case <-ticker.C:
			q.requeueExpired()
		}
	}
}

func (q *MemoryQueue) requeueExpired() {
	now := time.Now()

	q.mu.Lock()
	var expired []Descriptor
	for id, l := range q.leases {
		if now.After(l.expiresAt) {
			expired = append(expired, l.descriptor)
			delete(q.leases, id)
		}
	}
	q.mu.Unlock()

	for _, descriptor := range expired {
		select {
		case q.tasks <- descriptor:
			q.logger.Warn("requeued task after visibility timeout",
				"task_id", descriptor.ID,
				"task_type", descriptor.Type)
		default:
			// Queue full: restore the lease so the descriptor is not lost.
			q.mu.Lock()
			q.leases[descriptor.ID] = lease{
				descriptor: descriptor,
				expiresAt:  now.Add(q.config.ReapInterval),
			}
			q.mu.Unlock()
			q.logger.Error("failed to requeue expired task, queue is full",
				"task_id", descriptor.ID,
				"task_type", descriptor.Type)
		}
	}
}
