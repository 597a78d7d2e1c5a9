package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// PayloadPrototype returns a fresh, empty payload struct for a task
// type. Submit unmarshals the raw payload into it and validates the
// struct's `validate` tags.
type PayloadPrototype func() interface{}

// Submitter accepts task submissions: it validates the type and
// payload, creates the pending record, and enqueues the descriptor.
type Submitter struct {
	store     RecordStore
	queue     Queue
	payloads  map[TaskType]PayloadPrototype
	validator *validator.Validate
	logger    *slog.Logger
}

// NewSubmitter creates a Submitter. The payloads map defines the set of
// known task types; submissions for any other type are rejected with
// ErrInvalidTaskType.
func NewSubmitter(
	store RecordStore,
	queue Queue,
	payloads map[TaskType]PayloadPrototype,
	logger *slog.Logger,
) *Submitter {
	return &Submitter{
		store:     store,
		queue:     queue,
		payloads:  payloads,
		validator: validator.New(),
		logger:    logger.With("component", "task_submitter"),
	}
}

// Submit validates and accepts a task, returning its ID before any
// execution begins. The record is created before the descriptor is
// enqueued, so a queued task always has a readable record. If the
// enqueue fails the record is forced into failed with a
// queue_unavailable error rather than left pending forever.
func (s *Submitter) Submit(ctx context.Context, taskType TaskType, payload json.RawMessage) (uuid.UUID, error) {
	prototype, known := s.payloads[taskType]
	if !known {
		return uuid.Nil, fmt.Errorf("%w: %q", ErrInvalidTaskType, taskType)
	}

	target := prototype()
	if err := json.Unmarshal(payload, target); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := s.validator.Struct(target); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	now := time.Now().UTC()
	record := &Record{
		ID:        uuid.New(),
		Type:      taskType,
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateRecord(ctx, record); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create task record: %w", err)
	}

	descriptor := Descriptor{
		ID:        record.ID,
		Type:      taskType,
		Payload:   payload,
		CreatedAt: now,
	}

	if err := s.queue.Enqueue(ctx, descriptor); err != nil {
		s.logger.Error("enqueue failed after record creation",
			"task_id", record.ID,
			"task_type", taskType,
			"error", err)

		if markErr := s.store.UpdateRecord(ctx, record.ID, func(r *Record) error {
			return r.MarkFailed(Failure{
				Code:    FailureCodeQueueUnavailable,
				Message: err.Error(),
			})
		}); markErr != nil {
			s.logger.Error("failed to mark record failed after enqueue error",
				"task_id", record.ID,
				"error", markErr)
		}

		return uuid.Nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	s.logger.Info("task submitted",
		"task_id", record.ID,
		"task_type", taskType)
	return record.ID, nil
}
