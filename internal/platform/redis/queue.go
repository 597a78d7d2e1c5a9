package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/adscribe-api/internal/task"
)

// Queue key layout. The pending list holds serialized descriptors; a
// blocking pop moves one onto the processing list, and the lease hash
// tracks its redelivery deadline until the worker acks.
const (
	pendingKey    = "queue:tasks"
	processingKey = "queue:processing"
	leaseKey      = "queue:leases"
	payloadKey    = "queue:payloads"
)

// dequeueBlock is how long one blocking pop waits before re-checking
// the caller's context.
const dequeueBlock = time.Second

// QueueConfig holds configuration for the Redis-backed queue.
type QueueConfig struct {
	// VisibilityTimeout is how long a dequeued descriptor may stay
	// unacked before the reaper makes it deliverable again.
	VisibilityTimeout time.Duration

	// ReapInterval is how often expired leases are swept. Defaults to a
	// tenth of the visibility timeout.
	ReapInterval time.Duration
}

// Queue implements task.Queue on Redis lists. Descriptors survive
// process crashes: an enqueued descriptor stays in Redis until a
// consumer both dequeues and acks it, and a consumer crash surfaces the
// descriptor again after the visibility timeout.
type Queue struct {
	client  *redis.Client
	config  QueueConfig
	logger  *slog.Logger
	done    chan struct{}
	closed  sync.Once
	reaping sync.WaitGroup
}

// NewQueue creates a Redis-backed queue and starts its lease reaper.
func NewQueue(client *redis.Client, config QueueConfig, logger *slog.Logger) *Queue {
	if config.VisibilityTimeout <= 0 {
		config.VisibilityTimeout = 5 * time.Minute
	}
	if config.ReapInterval <= 0 {
		config.ReapInterval = config.VisibilityTimeout / 10
	}

	q := &Queue{
		client: client,
		config: config,
		logger: logger.With("component", "redis_queue"),
		done:   make(chan struct{}),
	}

	q.reaping.Add(1)
	go q.reapExpiredLeases()

	return q
}

// Enqueue pushes a descriptor onto the pending list and records its
// serialized form for later ack/requeue bookkeeping.
func (q *Queue) Enqueue(ctx context.Context, descriptor task.Descriptor) error {
	data, err := json.Marshal(descriptor)
	if err != nil {
		return fmt.Errorf("failed to marshal descriptor: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, payloadKey, descriptor.ID.String(), data)
		pipe.LPush(ctx, pendingKey, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", task.ErrQueueUnavailable, err)
	}

	q.logger.Debug("task enqueued",
		"task_id", descriptor.ID,
		"task_type", descriptor.Type)
	return nil
}

// Dequeue blocks until a descriptor is available, moving it onto the
// processing list and opening a lease.
func (q *Queue) Dequeue(ctx context.Context) (task.Descriptor, error) {
	for {
		select {
		case <-ctx.Done():
			return task.Descriptor{}, ctx.Err()
		case <-q.done:
			return task.Descriptor{}, task.ErrQueueClosed
		default:
		}

		data, err := q.client.BRPopLPush(ctx, pendingKey, processingKey, dequeueBlock).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return task.Descriptor{}, ctx.Err()
			}
			return task.Descriptor{}, fmt.Errorf("failed to dequeue: %w", err)
		}

		var descriptor task.Descriptor
		if err := json.Unmarshal(data, &descriptor); err != nil {
			// Unparseable entry: drop it from processing so it cannot wedge
			// the queue.
			q.logger.Error("dropping malformed queue entry", "error", err)
			q.client.LRem(ctx, processingKey, 1, data)
			continue
		}

		deadline := time.Now().Add(q.config.VisibilityTimeout).UnixMilli()
		if err := q.client.HSet(ctx, leaseKey, descriptor.ID.String(), deadline).Err(); err != nil {
			// Without a lease the reaper cannot see this delivery, so hand
			// it back rather than deliver it untracked.
			q.logger.Error("failed to record lease, returning delivery to the queue",
				"task_id", descriptor.ID,
				"error", err)
			if _, rqErr := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.LRem(ctx, processingKey, 1, data)
				pipe.LPush(ctx, pendingKey, data)
				return nil
			}); rqErr != nil {
				q.logger.Error("failed to return delivery to the queue",
					"task_id", descriptor.ID,
					"error", rqErr)
			}
			continue
		}

		return descriptor, nil
	}
}

// Ack removes an in-flight descriptor permanently.
func (q *Queue) Ack(ctx context.Context, id uuid.UUID) error {
	field := id.String()

	data, err := q.client.HGet(ctx, payloadKey, field).Bytes()
	if errors.Is(err, redis.Nil) {
		// Already acked (duplicate delivery); nothing to do.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read delivery payload: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, processingKey, 1, data)
		pipe.HDel(ctx, leaseKey, field)
		pipe.HDel(ctx, payloadKey, field)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to ack delivery: %w", err)
	}
	return nil
}

// Close stops the reaper and unblocks pending Dequeue calls. Queued
// descriptors stay in Redis for the next process.
func (q *Queue) Close() error {
	q.closed.Do(func() {
		close(q.done)
		q.reaping.Wait()
		q.logger.Info("task queue closed")
	})
	return nil
}

// reapExpiredLeases periodically returns timed-out deliveries to the
// pending list and sweeps processing entries that lost their lease.
func (q *Queue) reapExpiredLeases() {
	defer q.reaping.Done()

	ticker := time.NewTicker(q.config.ReapInterval)
	defer ticker.Stop()

	suspects := make(map[string]struct{})

	for {
		select {
		case <-q.done:
			return
		case <-ticker.C:
			ctx := context.Background()
			q.requeueExpired(ctx)
			suspects = q.requeueOrphans(ctx, suspects)
		}
	}
}

// requeueOrphans returns processing entries with no lease to the
// pending list. A consumer that crashed between the pop and the lease
// write leaves such an entry behind, invisible to the expiry scan. An
// entry is only requeued once it has been seen leaseless on two
// consecutive sweeps, so a delivery whose lease write is merely in
// flight is left alone.
func (q *Queue) requeueOrphans(ctx context.Context, suspects map[string]struct{}) map[string]struct{} {
	entries, err := q.client.LRange(ctx, processingKey, 0, -1).Result()
	if err != nil {
		q.logger.Error("failed to scan processing list", "error", err)
		return suspects
	}

	next := make(map[string]struct{})
	for _, raw := range entries {
		var descriptor task.Descriptor
		if err := json.Unmarshal([]byte(raw), &descriptor); err != nil {
			continue
		}
		field := descriptor.ID.String()

		leased, err := q.client.HExists(ctx, leaseKey, field).Result()
		if err != nil || leased {
			continue
		}

		if _, seen := suspects[field]; !seen {
			next[field] = struct{}{}
			continue
		}

		_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, processingKey, 1, raw)
			pipe.LPush(ctx, pendingKey, raw)
			return nil
		})
		if err != nil {
			q.logger.Error("failed to requeue orphaned delivery",
				"task_id", field,
				"error", err)
			next[field] = struct{}{}
			continue
		}

		q.logger.Warn("requeued delivery with no lease", "task_id", field)
	}
	return next
}

func (q *Queue) requeueExpired(ctx context.Context) {
	leases, err := q.client.HGetAll(ctx, leaseKey).Result()
	if err != nil {
		q.logger.Error("failed to read leases", "error", err)
		return
	}

	now := time.Now().UnixMilli()
	for field, rawDeadline := range leases {
		deadline, err := strconv.ParseInt(rawDeadline, 10, 64)
		if err != nil || deadline > now {
			continue
		}

		data, err := q.client.HGet(ctx, payloadKey, field).Bytes()
		if errors.Is(err, redis.Nil) {
			// Acked between the scan and now; drop the stale lease.
			q.client.HDel(ctx, leaseKey, field)
			continue
		}
		if err != nil {
			q.logger.Error("failed to read payload for expired lease",
				"task_id", field,
				"error", err)
			continue
		}

		_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, processingKey, 1, data)
			pipe.LPush(ctx, pendingKey, data)
			pipe.HDel(ctx, leaseKey, field)
			return nil
		})
		if err != nil {
			q.logger.Error("failed to requeue expired delivery",
				"task_id", field,
				"error", err)
			continue
		}

		q.logger.Warn("requeued task after visibility timeout", "task_id", field)
	}
}
