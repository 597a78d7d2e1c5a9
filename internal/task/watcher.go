package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// StatusEventKind names the events a subscription can receive.
type StatusEventKind string

// Subscription event kinds
const (
	// StatusEventUpdate carries a record snapshot after a change.
	StatusEventUpdate StatusEventKind = "update"

	// StatusEventTimeout ends a stream whose task reached no terminal
	// state within the maximum subscription duration. The task itself
	// keeps running.
	StatusEventTimeout StatusEventKind = "timeout"
)

// StatusEvent is one element of a subscription's delta stream.
type StatusEvent struct {
	Kind   StatusEventKind
	Record *Record
}

// WatcherConfig holds configuration for status subscriptions.
type WatcherConfig struct {
	// PollInterval is how often the record is re-read for changes.
	PollInterval time.Duration

	// MaxDuration bounds the lifetime of one subscription.
	MaxDuration time.Duration
}

// DefaultWatcherConfig returns a WatcherConfig with reasonable defaults.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		PollInterval: 500 * time.Millisecond,
		MaxDuration:  60 * time.Second,
	}
}

// Watcher turns point-in-time record reads into per-subscription delta
// streams. Each subscription runs its own poll loop over the record
// store; the worker pool never knows subscribers exist.
type Watcher struct {
	store  RecordStore
	config WatcherConfig
	logger *slog.Logger
}

// NewWatcher creates a Watcher over the given record store.
func NewWatcher(store RecordStore, config WatcherConfig, logger *slog.Logger) *Watcher {
	if config.PollInterval <= 0 {
		config.PollInterval = 500 * time.Millisecond
	}
	if config.MaxDuration <= 0 {
		config.MaxDuration = 60 * time.Second
	}
	return &Watcher{
		store:  store,
		config: config,
		logger: logger.With("component", "task_watcher"),
	}
}

// Watch subscribes to status changes for one task. The returned channel
// first carries a snapshot of the current record, then an update event
// for every observed change, and closes after a terminal update, after
// a single timeout event, or when ctx is cancelled. Returns
// ErrTaskNotFound if no record exists at subscription time.
func (w *Watcher) Watch(ctx context.Context, id uuid.UUID) (<-chan StatusEvent, error) {
	snapshot, err := w.store.GetRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	events := make(chan StatusEvent)

	go w.watchLoop(ctx, id, snapshot, events)

	return events, nil
}

func (w *Watcher) watchLoop(ctx context.Context, id uuid.UUID, snapshot *Record, events chan<- StatusEvent) {
	defer close(events)

	logger := w.logger.With("task_id", id)

	// Connection-time snapshot. A subscriber that connects after the
	// task finished receives only the terminal event.
	if !w.emit(ctx, events, StatusEvent{Kind: StatusEventUpdate, Record: snapshot}) {
		return
	}
	if snapshot.Status.IsTerminal() {
		return
	}

	last := snapshot
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	deadline := time.NewTimer(w.config.MaxDuration)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("subscription cancelled by client")
			return

		case <-deadline.C:
			logger.Debug("subscription reached maximum duration")
			w.emit(ctx, events, StatusEvent{Kind: StatusEventTimeout})
			return

		case <-ticker.C:
			record, err := w.store.GetRecord(ctx, id)
			if err != nil {
				// Record purged mid-subscription or store hiccup; keep
				// polling until timeout rather than erroring the stream.
				logger.Debug("record read failed during subscription", "error", err)
				continue
			}

			if !changed(last, record) {
				continue
			}

			if !w.emit(ctx, events, StatusEvent{Kind: StatusEventUpdate, Record: record}) {
				return
			}
			if record.Status.IsTerminal() {
				return
			}
			last = record
		}
	}
}

// emit delivers an event unless the subscriber is gone. Reports whether
// delivery happened.
func (w *Watcher) emit(ctx context.Context, events chan<- StatusEvent, event StatusEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

func changed(prev, next *Record) bool {
	return next.Status != prev.Status ||
		next.Progress != prev.Progress ||
		next.UpdatedAt.After(prev.UpdatedAt)
}
