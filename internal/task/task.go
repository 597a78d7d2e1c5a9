package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskType identifies one of the supported analysis operations.
type TaskType string

// Supported task types
const (
	TaskTypeExtractAdConcept TaskType = "extract-ad-concept"
	TaskTypeExtractSalesPage TaskType = "extract-sales-page"
	TaskTypeGenerateAdRecipe TaskType = "generate-ad-recipe"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// IsTerminal reports whether the status admits no further transitions.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Common errors returned by the orchestration layer
var (
	// ErrInvalidTaskType is returned by Submit when the task type is not
	// one of the registered types.
	ErrInvalidTaskType = errors.New("invalid task type")

	// ErrInvalidPayload is returned by Submit when the payload fails
	// shape validation for its task type.
	ErrInvalidPayload = errors.New("invalid task payload")

	// ErrQueueUnavailable indicates the record was created but the
	// descriptor could not be enqueued.
	ErrQueueUnavailable = errors.New("task queue unavailable")

	// ErrTaskNotFound is returned when no record exists for a task ID.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned when a status update would move a
	// record backwards or out of a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// permanentError marks a handler error that cannot succeed on a later
// attempt.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the worker pool fails the task immediately
// instead of retrying. Handlers use it for errors a retry cannot cure,
// such as rejected or malformed input.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, anywhere in its chain, was marked
// with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Failure codes recorded on failed tasks
const (
	FailureCodeQueueUnavailable = "queue_unavailable"
	FailureCodeUnknownTaskType  = "unknown_task_type"
	FailureCodeAnalysisError    = "analysis_error"
)

// Failure is the structured error captured on a failed task record.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Descriptor identifies one unit of work carried by the queue. It holds
// only enough identity to look up the record; the record store remains
// the single source of truth for status.
type Descriptor struct {
	ID        uuid.UUID       `json:"id"`
	Type      TaskType        `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

// Record is the mutable state tracked for a task ID.
type Record struct {
	ID        uuid.UUID       `json:"id"`
	Type      TaskType        `json:"type"`
	Status    TaskStatus      `json:"status"`
	Progress  string          `json:"progress,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *Failure        `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Clone returns a deep copy of the record so readers never share
// mutable state with the store.
func (r *Record) Clone() *Record {
	cp := *r
	if r.Result != nil {
		cp.Result = append(json.RawMessage(nil), r.Result...)
	}
	if r.Error != nil {
		e := *r.Error
		cp.Error = &e
	}
	return &cp
}

// MarkRunning transitions the record from pending to running.
func (r *Record) MarkRunning() error {
	if r.Status.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, TaskStatusRunning)
	}
	r.Status = TaskStatusRunning
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// SetProgress updates the human-readable stage descriptor. Progress on a
// terminal record is rejected so late worker writes cannot disturb it.
func (r *Record) SetProgress(progress string) error {
	if r.Status.IsTerminal() {
		return fmt.Errorf("%w: progress update on %s record", ErrInvalidTransition, r.Status)
	}
	r.Progress = progress
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkCompleted transitions the record into the completed terminal state
// with the given result. Result and error are mutually exclusive.
func (r *Record) MarkCompleted(result json.RawMessage) error {
	if r.Status.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, TaskStatusCompleted)
	}
	if result == nil {
		result = json.RawMessage(`{}`)
	}
	r.Status = TaskStatusCompleted
	r.Result = result
	r.Error = nil
	r.Progress = ""
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkFailed transitions the record into the failed terminal state with
// the given failure.
func (r *Record) MarkFailed(failure Failure) error {
	if r.Status.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, TaskStatusFailed)
	}
	r.Status = TaskStatusFailed
	r.Error = &failure
	r.Result = nil
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordStore defines the persistence contract for task records.
// Implementations must serialize updates to a single record and must
// never expose a partially-written record to readers.
// Version: 1.0
type RecordStore interface {
	// CreateRecord persists a new record. The record must not already exist.
	CreateRecord(ctx context.Context, record *Record) error

	// GetRecord returns a copy of the record for the given task ID, or
	// ErrTaskNotFound.
	GetRecord(ctx context.Context, id uuid.UUID) (*Record, error)

	// UpdateRecord applies mutate to the stored record atomically. If
	// mutate returns an error the record is left unchanged and the error
	// is returned. Returns ErrTaskNotFound for unknown IDs.
	UpdateRecord(ctx context.Context, id uuid.UUID, mutate func(*Record) error) error
}

// Queue defines the durable work queue contract. Delivery is
// at-least-once: a dequeued descriptor that is not acked within the
// implementation's visibility timeout becomes deliverable again.
// Version: 1.0
type Queue interface {
	// Enqueue adds a descriptor to the queue.
	Enqueue(ctx context.Context, descriptor Descriptor) error

	// Dequeue blocks until a descriptor is available or the context is
	// cancelled.
	Dequeue(ctx context.Context) (Descriptor, error)

	// Ack removes a previously dequeued descriptor permanently. Called
	// only after the worker has durably recorded a terminal decision.
	Ack(ctx context.Context, id uuid.UUID) error

	// Close releases queue resources. Blocked Dequeue calls return an
	// error after Close.
	Close() error
}

// ProgressFunc reports a milestone reached during task execution.
type ProgressFunc func(progress string)

// Handler executes the task logic for one task type.
//
// Delivery is at-least-once, so Execute may be invoked more than once
// for the same task ID after a worker crash. Implementations must
// tolerate duplicate execution without corrupting external side effects
// (e.g. by making archive writes upserts).
// Version: 1.0
type Handler interface {
	// Type returns the task type this handler executes.
	Type() TaskType

	// Execute runs the task logic and returns the result payload. The
	// report callback publishes intermediate progress to the record.
	Execute(ctx context.Context, payload json.RawMessage, report ProgressFunc) (json.RawMessage, error)
}
