package task

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPendingRecord() *Record {
	now := time.Now().UTC()
	return &Record{
		ID:        uuid.New(),
		Type:      TaskTypeExtractAdConcept,
		Status:    TaskStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRecordTransitions(t *testing.T) {
	t.Parallel()

	t.Run("pending to running to completed", func(t *testing.T) {
		t.Parallel()

		record := newPendingRecord()
		require.NoError(t, record.MarkRunning())
		assert.Equal(t, TaskStatusRunning, record.Status)

		result := json.RawMessage(`{"title":"t"}`)
		require.NoError(t, record.MarkCompleted(result))
		assert.Equal(t, TaskStatusCompleted, record.Status)
		assert.Equal(t, result, record.Result)
		assert.Nil(t, record.Error)
	})

	t.Run("pending to running to failed", func(t *testing.T) {
		t.Parallel()

		record := newPendingRecord()
		require.NoError(t, record.MarkRunning())
		require.NoError(t, record.MarkFailed(Failure{Code: FailureCodeAnalysisError, Message: "boom"}))

		assert.Equal(t, TaskStatusFailed, record.Status)
		require.NotNil(t, record.Error)
		assert.Equal(t, FailureCodeAnalysisError, record.Error.Code)
		assert.Nil(t, record.Result)
	})

	t.Run("no transition out of completed", func(t *testing.T) {
		t.Parallel()

		record := newPendingRecord()
		require.NoError(t, record.MarkCompleted(json.RawMessage(`{}`)))

		assert.ErrorIs(t, record.MarkRunning(), ErrInvalidTransition)
		assert.ErrorIs(t, record.MarkFailed(Failure{Code: "x"}), ErrInvalidTransition)
		assert.ErrorIs(t, record.SetProgress("late"), ErrInvalidTransition)
		assert.Equal(t, TaskStatusCompleted, record.Status)
	})

	t.Run("no transition out of failed", func(t *testing.T) {
		t.Parallel()

		record := newPendingRecord()
		require.NoError(t, record.MarkFailed(Failure{Code: "x", Message: "boom"}))

		assert.ErrorIs(t, record.MarkCompleted(nil), ErrInvalidTransition)
		assert.ErrorIs(t, record.MarkRunning(), ErrInvalidTransition)
		assert.Equal(t, TaskStatusFailed, record.Status)
	})

	t.Run("nil result completes with empty object", func(t *testing.T) {
		t.Parallel()

		record := newPendingRecord()
		require.NoError(t, record.MarkCompleted(nil))
		assert.JSONEq(t, `{}`, string(record.Result))
	})

	t.Run("progress updates bump updated_at", func(t *testing.T) {
		t.Parallel()

		record := newPendingRecord()
		require.NoError(t, record.MarkRunning())
		before := record.UpdatedAt

		time.Sleep(time.Millisecond)
		require.NoError(t, record.SetProgress("fetching image"))
		assert.Equal(t, "fetching image", record.Progress)
		assert.True(t, record.UpdatedAt.After(before))
	})
}

func TestRecordClone(t *testing.T) {
	t.Parallel()

	record := newPendingRecord()
	require.NoError(t, record.MarkCompleted(json.RawMessage(`{"a":1}`)))

	clone := record.Clone()
	clone.Result[len(clone.Result)-2] = '2'

	assert.JSONEq(t, `{"a":1}`, string(record.Result), "mutating a clone must not touch the original")
}

func TestStatusIsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, TaskStatusPending.IsTerminal())
	assert.False(t, TaskStatusRunning.IsTerminal())
	assert.True(t, TaskStatusCompleted.IsTerminal())
	assert.True(t, TaskStatusFailed.IsTerminal())
}
