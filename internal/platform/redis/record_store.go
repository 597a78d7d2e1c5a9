package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/adscribe-api/internal/task"
)

// recordKeyPrefix matches the key layout the status API reads:
// one JSON document per task at task:{task_id}.
const recordKeyPrefix = "task:"

// maxUpdateRetries bounds optimistic-lock retries on contended records.
const maxUpdateRetries = 5

// RecordStore implements task.RecordStore on Redis. Records are stored
// as JSON documents; updates use WATCH/MULTI so concurrent writers
// never interleave a read-modify-write. Terminal records get a TTL so
// finished state ages out after the retention window.
type RecordStore struct {
	client    *redis.Client
	recordTTL time.Duration
}

// NewRecordStore creates a RecordStore. recordTTL is applied to records
// on their terminal transition; zero disables expiry.
func NewRecordStore(client *redis.Client, recordTTL time.Duration) *RecordStore {
	return &RecordStore{
		client:    client,
		recordTTL: recordTTL,
	}
}

func recordKey(id uuid.UUID) string {
	return recordKeyPrefix + id.String()
}

// CreateRecord persists a new record, failing if one already exists.
func (s *RecordStore) CreateRecord(ctx context.Context, record *task.Record) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal task record: %w", err)
	}

	created, err := s.client.SetNX(ctx, recordKey(record.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to create task record: %w", err)
	}
	if !created {
		return fmt.Errorf("record %s already exists", record.ID)
	}
	return nil
}

// GetRecord returns the record for the given task ID.
func (s *RecordStore) GetRecord(ctx context.Context, id uuid.UUID) (*task.Record, error) {
	data, err := s.client.Get(ctx, recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, task.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read task record: %w", err)
	}

	var record task.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task record: %w", err)
	}
	return &record, nil
}

// UpdateRecord applies mutate atomically via an optimistic WATCH
// transaction, retrying a bounded number of times on contention.
func (s *RecordStore) UpdateRecord(ctx context.Context, id uuid.UUID, mutate func(*task.Record) error) error {
	key := recordKey(id)

	apply := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return task.ErrTaskNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read task record: %w", err)
		}

		var record task.Record
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("failed to unmarshal task record: %w", err)
		}

		if err := mutate(&record); err != nil {
			return err
		}

		updated, err := json.Marshal(&record)
		if err != nil {
			return fmt.Errorf("failed to marshal task record: %w", err)
		}

		expiry := time.Duration(0)
		if record.Status.IsTerminal() && s.recordTTL > 0 {
			expiry = s.recordTTL
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, expiry)
			return nil
		})
		return err
	}

	var err error
	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		err = s.client.Watch(ctx, apply, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("record update contention on %s: %w", id, err)
}
