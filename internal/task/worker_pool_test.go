package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubHandler implements Handler with an injectable execute function.
type stubHandler struct {
	taskType TaskType
	execute  func(ctx context.Context, payload json.RawMessage, report ProgressFunc) (json.RawMessage, error)
}

func (h *stubHandler) Type() TaskType { return h.taskType }

func (h *stubHandler) Execute(ctx context.Context, payload json.RawMessage, report ProgressFunc) (json.RawMessage, error) {
	return h.execute(ctx, payload, report)
}

func fastPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount:    2,
		MaxAttempts:    3,
		RetryBaseDelay: time.Millisecond,
	}
}

// enqueuePending creates a pending record and enqueues its descriptor,
// mirroring what the Submitter does.
func enqueuePending(t *testing.T, store RecordStore, queue Queue, taskType TaskType) Descriptor {
	t.Helper()

	now := time.Now().UTC()
	record := &Record{
		ID:        newDescriptor(taskType).ID,
		Type:      taskType,
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.CreateRecord(context.Background(), record))

	descriptor := Descriptor{
		ID:        record.ID,
		Type:      taskType,
		Payload:   json.RawMessage(`{"image_url":"https://x/1.jpg"}`),
		CreatedAt: now,
	}
	require.NoError(t, queue.Enqueue(context.Background(), descriptor))
	return descriptor
}

func waitForStatus(t *testing.T, store RecordStore, descriptor Descriptor, status TaskStatus) *Record {
	t.Helper()

	var record *Record
	require.Eventually(t, func() bool {
		r, err := store.GetRecord(context.Background(), descriptor.ID)
		if err != nil {
			return false
		}
		record = r
		return r.Status == status
	}, 5*time.Second, 5*time.Millisecond)
	return record
}

func TestWorkerPool_SuccessFirstAttempt(t *testing.T) {
	t.Parallel()

	store := NewMemoryRecordStore()
	queue := NewMockQueue()

	var calls atomic.Int32
	handler := &stubHandler{
		taskType: TaskTypeExtractAdConcept,
		execute: func(ctx context.Context, payload json.RawMessage, report ProgressFunc) (json.RawMessage, error) {
			calls.Add(1)
			report("fetching image")
			return json.RawMessage(`{"title":"Premium Product Showcase"}`), nil
		},
	}

	pool := NewWorkerPool(store, queue, []Handler{handler}, fastPoolConfig(), testLogger())
	pool.Start()
	defer pool.Stop()

	descriptor := enqueuePending(t, store, queue, TaskTypeExtractAdConcept)

	record := waitForStatus(t, store, descriptor, TaskStatusCompleted)
	assert.JSONEq(t, `{"title":"Premium Product Showcase"}`, string(record.Result))
	assert.Nil(t, record.Error)
	assert.Equal(t, int32(1), calls.Load())

	require.Eventually(t, func() bool {
		return len(queue.Acked()) == 1
	}, time.Second, 5*time.Millisecond, "delivery must be acked after the terminal write")
}

func TestWorkerPool_ProgressVisibleWhileRunning(t *testing.T) {
	t.Parallel()

	store := NewMemoryRecordStore()
	queue := NewMockQueue()

	release := make(chan struct{})
	handler := &stubHandler{
		taskType: TaskTypeExtractAdConcept,
		execute: func(ctx context.Context, payload json.RawMessage, report ProgressFunc) (json.RawMessage, error) {
			report("fetching image")
			<-release
			return json.RawMessage(`{}`), nil
		},
	}

	pool := NewWorkerPool(store, queue, []Handler{handler}, fastPoolConfig(), testLogger())
	pool.Start()
	defer pool.Stop()

	descriptor := enqueuePending(t, store, queue, TaskTypeExtractAdConcept)

	require.Eventually(t, func() bool {
		r, err := store.GetRecord(context.Background(), descriptor.ID)
		return err == nil && r.Status == TaskStatusRunning && r.Progress == "fetching image"
	}, 5*time.Second, 5*time.Millisecond)

	close(release)
	waitForStatus(t, store, descriptor, TaskStatusCompleted)
}

func TestWorkerPool_ExhaustedRetriesMarkFailed(t *testing.T) {
	t.Parallel()

	store := NewMemoryRecordStore()
	queue := NewMockQueue()

	var calls atomic.Int32
	handler := &stubHandler{
		taskType: TaskTypeExtractAdConcept,
		execute: func(ctx context.Context, payload json.RawMessage, report ProgressFunc) (json.RawMessage, error) {
			calls.Add(1)
			return nil, errors.New("model returned garbage")
		},
	}

	config := fastPoolConfig()
	config.MaxAttempts = 3

	pool := NewWorkerPool(store, queue, []Handler{handler}, config, testLogger())
	pool.Start()
	defer pool.Stop()

	descriptor := enqueuePending(t, store, queue, TaskTypeExtractAdConcept)

	record := waitForStatus(t, store, descriptor, TaskStatusFailed)
	require.NotNil(t, record.Error)
	assert.Equal(t, FailureCodeAnalysisError, record.Error.Code)
	assert.Contains(t, record.Error.Message, "model returned garbage")
	assert.Nil(t, record.Result)
	assert.Equal(t, int32(3), calls.Load(), "exactly MaxAttempts executions")
}

func TestWorkerPool_PermanentErrorFailsWithoutRetry(t *testing.T) {
	t.Parallel()

	store := NewMemoryRecordStore()
	queue := NewMockQueue()

	var calls atomic.Int32
	handler := &stubHandler{
		taskType: TaskTypeExtractAdConcept,
		execute: func(ctx context.Context, payload json.RawMessage, report ProgressFunc) (json.RawMessage, error) {
			calls.Add(1)
			return nil, Permanent(errors.New("content blocked by safety filters"))
		},
	}

	config := fastPoolConfig()
	config.MaxAttempts = 3

	pool := NewWorkerPool(store, queue, []Handler{handler}, config, testLogger())
	pool.Start()
	defer pool.Stop()

	descriptor := enqueuePending(t, store, queue, TaskTypeExtractAdConcept)

	record := waitForStatus(t, store, descriptor, TaskStatusFailed)
	require.NotNil(t, record.Error)
	assert.Equal(t, FailureCodeAnalysisError, record.Error.Code)
	assert.Contains(t, record.Error.Message, "content blocked")
	assert.Equal(t, int32(1), calls.Load(), "a permanent error must not be retried")
}

func TestIsPermanent(t *testing.T) {
	t.Parallel()

	base := errors.New("rejected input")

	assert.False(t, IsPermanent(base))
	assert.True(t, IsPermanent(Permanent(base)))
	assert.True(t, IsPermanent(fmt.Errorf("attempt context: %w", Permanent(base))),
		"the mark must survive wrapping")
	assert.ErrorIs(t, Permanent(base), base)
	assert.Nil(t, Permanent(nil))
}

func TestWorkerPool_RecoversAfterTransientFailures(t *testing.T) {
	t.Parallel()

	store := NewMemoryRecordStore()
	queue := NewMockQueue()

	var calls atomic.Int32
	handler := &stubHandler{
		taskType: TaskTypeExtractSalesPage,
		execute: func(ctx context.Context, payload json.RawMessage, report ProgressFunc) (json.RawMessage, error) {
			if calls.Add(1) < 3 {
				return nil, errors.New("transient upstream error")
			}
			return json.RawMessage(`{"product_name":"Widget"}`), nil
		},
	}

	pool := NewWorkerPool(store, queue, []Handler{handler}, fastPoolConfig(), testLogger())
	pool.Start()
	defer pool.Stop()

	descriptor := enqueuePending(t, store, queue, TaskTypeExtractSalesPage)

	record := waitForStatus(t, store, descriptor, TaskStatusCompleted)
	assert.JSONEq(t, `{"product_name":"Widget"}`, string(record.Result))
	assert.Equal(t, int32(3), calls.Load())
}

func TestWorkerPool_UnknownTaskType(t *testing.T) {
	t.Parallel()

	store := NewMemoryRecordStore()
	queue := NewMockQueue()

	pool := NewWorkerPool(store, queue, nil, fastPoolConfig(), testLogger())
	pool.Start()
	defer pool.Stop()

	descriptor := enqueuePending(t, store, queue, TaskType("never-registered"))

	record := waitForStatus(t, store, descriptor, TaskStatusFailed)
	require.NotNil(t, record.Error)
	assert.Equal(t, FailureCodeUnknownTaskType, record.Error.Code)

	require.Eventually(t, func() bool {
		return len(queue.Acked()) == 1
	}, time.Second, 5*time.Millisecond, "poison deliveries must be acked, not redelivered forever")
}

func TestWorkerPool_DuplicateDeliveryOfTerminalTask(t *testing.T) {
	t.Parallel()

	store := NewMemoryRecordStore()
	queue := NewMockQueue()

	var calls atomic.Int32
	handler := &stubHandler{
		taskType: TaskTypeExtractAdConcept,
		execute: func(ctx context.Context, payload json.RawMessage, report ProgressFunc) (json.RawMessage, error) {
			calls.Add(1)
			return json.RawMessage(`{}`), nil
		},
	}

	pool := NewWorkerPool(store, queue, []Handler{handler}, fastPoolConfig(), testLogger())
	pool.Start()
	defer pool.Stop()

	descriptor := enqueuePending(t, store, queue, TaskTypeExtractAdConcept)
	record := waitForStatus(t, store, descriptor, TaskStatusCompleted)
	completedAt := record.UpdatedAt

	// Redeliver the same descriptor, as a crashed-then-recovered queue
	// would after a visibility timeout.
	require.NoError(t, queue.Enqueue(context.Background(), descriptor))

	require.Eventually(t, func() bool {
		return len(queue.Acked()) == 2
	}, 5*time.Second, 5*time.Millisecond)

	final, err := store.GetRecord(context.Background(), descriptor.ID)
	require.NoError(t, err)
	assert.Equal(t, TaskStatusCompleted, final.Status)
	assert.Equal(t, completedAt, final.UpdatedAt, "terminal record must not be touched by a duplicate")
	assert.Equal(t, int32(1), calls.Load(), "duplicate delivery must not re-execute the handler")
}
