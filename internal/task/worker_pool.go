package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// WorkerPoolConfig holds configuration for the worker pool.
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent workers consume the
	// queue. Bounds concurrency against the rate-limited analysis APIs.
	WorkerCount int

	// MaxAttempts is the total number of execution attempts per
	// delivery before the task is marked failed.
	MaxAttempts int

	// RetryBaseDelay is the initial backoff between attempts; each
	// subsequent attempt doubles it.
	RetryBaseDelay time.Duration
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:    2,
		MaxAttempts:    3,
		RetryBaseDelay: 2 * time.Second,
	}
}

// WorkerPool runs a fixed number of workers that dequeue descriptors,
// execute the registered handler for the task type, and record the
// outcome on the task record. Each worker processes one descriptor at a
// time; a delivery is acked only after its terminal decision has been
// written to the record store.
type WorkerPool struct {
	store    RecordStore
	queue    Queue
	handlers map[TaskType]Handler
	config   WorkerPoolConfig
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewWorkerPool creates a worker pool over the given store, queue, and
// handler set.
func NewWorkerPool(
	store RecordStore,
	queue Queue,
	handlers []Handler,
	config WorkerPoolConfig,
	logger *slog.Logger,
) *WorkerPool {
	if config.WorkerCount <= 0 {
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
		config.WorkerCount = 1
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = 2 * time.Second
	}

	byType := make(map[TaskType]Handler, len(handlers))
	for _, h := range handlers {
		byType[h.Type()] = h
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		store:    store,
		queue:    queue,
		handlers: byType,
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
	}
}

// Start launches the worker goroutines.
func (p *WorkerPool) Start() {
	for i := 0; i < p.config.WorkerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Info("worker pool started", "worker_count", p.config.WorkerCount)
}

// Stop signals the workers to stop and waits for in-flight tasks to
// finish. Running tasks are not cancelled; they run to their own
// resolution.
func (p *WorkerPool) Stop() {
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// worker consumes descriptors until the pool context is cancelled.
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)

	for {
		descriptor, err := p.queue.Dequeue(p.ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrQueueClosed) {
				p.logger.Debug("stopping worker", "worker_id", id)
				return
			}
			p.logger.Error("dequeue failed", "worker_id", id, "error", err)
			continue
		}

		p.processDescriptor(descriptor, id)
	}
}

// processDescriptor handles one delivery end to end. Execution uses a
// background context so graceful shutdown never tears a record write.
func (p *WorkerPool) processDescriptor(descriptor Descriptor, workerID int) {
	ctx := context.Background()
	logger := p.logger.With(
		"task_id", descriptor.ID,
		"task_type", descriptor.Type,
		"worker_id", workerID,
	)

	if err := p.store.UpdateRecord(ctx, descriptor.ID, func(r *Record) error {
		return r.MarkRunning()
	}); err != nil {
		switch {
		case errors.Is(err, ErrInvalidTransition):
			// Duplicate delivery of an already-finished task. The record
			// is terminal, so the only correct move is to drop it.
			logger.Warn("dropping duplicate delivery of terminal task")
			p.ack(ctx, descriptor, logger)
		case errors.Is(err, ErrTaskNotFound):
			logger.Warn("dropping delivery for unknown task record")
			p.ack(ctx, descriptor, logger)
		default:
			// Transient store failure: leave the delivery unacked so the
			// visibility timeout redelivers it.
			logger.Error("failed to mark task running", "error", err)
		}
		return
	}

	handler, ok := p.handlers[descriptor.Type]
	if !ok {
		logger.Error("no handler registered for task type")
		p.finish(ctx, descriptor, nil, Failure{
			Code:    FailureCodeUnknownTaskType,
			Message: fmt.Sprintf("no handler registered for task type %q", descriptor.Type),
		}, logger)
		return
	}

	logger.Info("processing task")

	report := func(progress string) {
		if err := p.store.UpdateRecord(ctx, descriptor.ID, func(r *Record) error {
			return r.SetProgress(progress)
		}); err != nil {
			logger.Debug("progress update dropped", "progress", progress, "error", err)
		}
	}

	result, execErr := p.executeWithRetry(ctx, handler, descriptor, report, logger)
	if execErr != nil {
		logger.Error("task failed",
			"max_attempts", p.config.MaxAttempts,
			"error", execErr)
		p.finish(ctx, descriptor, nil, Failure{
			Code:    FailureCodeAnalysisError,
			Message: execErr.Error(),
		}, logger)
		return
	}

	logger.Info("task completed successfully")
	p.finish(ctx, descriptor, result, Failure{}, logger)
}

// executeWithRetry invokes the handler with exponential backoff between
// failed attempts. Attempt failures surface as progress updates on the
// record, never as a failed status, until attempts are exhausted or an
// attempt fails with a Permanent error.
func (p *WorkerPool) executeWithRetry(
	ctx context.Context,
	handler Handler,
	descriptor Descriptor,
	report ProgressFunc,
	logger *slog.Logger,
) ([]byte, error) {
	var result []byte
	attempt := 0

	backoff := retry.WithMaxRetries(
		uint64(p.config.MaxAttempts-1),
		retry.NewExponential(p.config.RetryBaseDelay),
	)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		res, err := handler.Execute(ctx, descriptor.Payload, report)
		if err != nil {
			report(fmt.Sprintf("attempt %d/%d failed: %v", attempt, p.config.MaxAttempts, err))

			// A permanent error cannot succeed on a later attempt; returning
			// it unwrapped stops the retry loop.
			if IsPermanent(err) {
				logger.Warn("task attempt failed permanently",
					"attempt", attempt,
					"error", err)
				return err
			}

			logger.Warn("task attempt failed",
				"attempt", attempt,
				"max_attempts", p.config.MaxAttempts,
				"error", err)
			return retry.RetryableError(err)
		}

		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// finish writes the terminal state and acks the delivery. A failure
// carries a non-empty code; otherwise the task completed with result.
func (p *WorkerPool) finish(
	ctx context.Context,
	descriptor Descriptor,
	result []byte,
	failure Failure,
	logger *slog.Logger,
) {
	err := p.store.UpdateRecord(ctx, descriptor.ID, func(r *Record) error {
		if failure.Code != "" {
			return r.MarkFailed(failure)
		}
		return r.MarkCompleted(result)
	})
	if err != nil && !errors.Is(err, ErrInvalidTransition) {
		// The terminal write did not land; keep the delivery leased so it
		// is retried after the visibility timeout.
		logger.Error("failed to record terminal task state", "error", err)
		return
	}

	p.ack(ctx, descriptor, logger)
}

func (p *WorkerPool) ack(ctx context.Context, descriptor Descriptor, logger *slog.Logger) {
	if err := p.queue.Ack(ctx, descriptor.ID); err != nil {
		logger.Error("failed to ack delivery", "error", err)
	}
}
