package task

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRecordStore is an in-process RecordStore backed by a map. It is
// used in tests and in single-process deployments where durability
// beyond the process lifetime is not required.
type MemoryRecordStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
}

// NewMemoryRecordStore creates an empty in-memory record store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		records: make(map[uuid.UUID]*Record),
	}
}

// CreateRecord persists a new record.
func (s *MemoryRecordStore) CreateRecord(ctx context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return fmt.Errorf("record %s already exists", record.ID)
	}
	s.records[record.ID] = record.Clone()
	return nil
}

// GetRecord returns a copy of the record for the given task ID.
func (s *MemoryRecordStore) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return record.Clone(), nil
}

// UpdateRecord applies mutate to the stored record under the store lock,
// so readers observe either the old or the new record, never a partial
// write.
func (s *MemoryRecordStore) UpdateRecord(ctx context.Context, id uuid.UUID, mutate func(*Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return ErrTaskNotFound
	}

	updated := record.Clone()
	if err := mutate(updated); err != nil {
		return err
	}
	s.records[id] = updated
	return nil
}

// PurgeTerminalBefore removes terminal records not updated since the
// cutoff. It backs the retention sweep for in-memory deployments.
func (s *MemoryRecordStore) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, record := range s.records {
		if record.Status.IsTerminal() && record.UpdatedAt.Before(cutoff) {
			delete(s.records, id)
			purged++
		}
	}
	return purged
}
