package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/phrazzld/adscribe-api/internal/api/shared"
	"github.com/phrazzld/adscribe-api/internal/task"
)

// maxSubmissionBytes bounds the size of a task submission body.
const maxSubmissionBytes = 1 << 20

// TaskHandler handles task submission, status, and streaming requests.
type TaskHandler struct {
	submitter *task.Submitter
	store     task.RecordStore
	watcher   *task.Watcher
	logger    *slog.Logger
}

// NewTaskHandler creates a TaskHandler over the orchestration
// collaborators.
func NewTaskHandler(
	submitter *task.Submitter,
	store task.RecordStore,
	watcher *task.Watcher,
	logger *slog.Logger,
) *TaskHandler {
	return &TaskHandler{
		submitter: submitter,
		store:     store,
		watcher:   watcher,
		logger:    logger.With("component", "task_handler"),
	}
}

// ExtractAdConcept handles POST /api/v1/extract-ad-concept requests.
func (h *TaskHandler) ExtractAdConcept(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, task.TaskTypeExtractAdConcept,
		"Ad concept extraction task started. Use the task_id to check the status.")
}

// ExtractSalesPage handles POST /api/v1/extract-sales-page requests.
func (h *TaskHandler) ExtractSalesPage(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, task.TaskTypeExtractSalesPage,
		"Sales page extraction task started. Use the task_id to check the status.")
}

// GenerateAdRecipe handles POST /api/v1/generate-ad-recipe requests.
func (h *TaskHandler) GenerateAdRecipe(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, task.TaskTypeGenerateAdRecipe,
		"Ad recipe generation task started. Use the task_id to check the status.")
}

// submit accepts one task submission. Payload validation happens in the
// submitter, which owns the per-type payload schemas.
func (h *TaskHandler) submit(w http.ResponseWriter, r *http.Request, taskType task.TaskType, message string) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSubmissionBytes))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Failed to read request body")
		return
	}

	taskID, err := h.submitter.Submit(r.Context(), taskType, payload)
	if err != nil {
		switch {
		case errors.Is(err, task.ErrInvalidPayload), errors.Is(err, task.ErrInvalidTaskType):
			shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		case errors.Is(err, task.ErrQueueUnavailable):
			shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable,
				"Task queue unavailable", err)
		default:
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
				"Failed to submit task", err)
		}
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, TaskAcceptedResponse{
		TaskID:  taskID.String(),
		Message: message,
	})
}

// GetTask handles GET /api/v1/tasks/{task_id} requests.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.taskIDParam(w, r)
	if !ok {
		return
	}

	record, err := h.store.GetRecord(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to read task", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, recordToResponse(record))
}

// StreamTask handles GET /api/v1/tasks/{task_id}/stream requests. It
// emits the task's status as named SSE events: "update" for each
// record change and a final "timeout" if the task reaches no terminal
// state before the stream's maximum duration.
func (h *TaskHandler) StreamTask(w http.ResponseWriter, r *http.Request) {
	taskID, ok := h.taskIDParam(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		shared.RespondWithError(w, r, http.StatusInternalServerError,
			"Streaming not supported")
		return
	}

	events, err := h.watcher.Watch(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Task not found")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to subscribe to task", err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		if err := writeSSEEvent(w, event); err != nil {
			h.logger.Debug("stream write failed, client likely gone",
				"task_id", taskID,
				"error", err)
			return
		}
		flusher.Flush()
	}
}

// writeSSEEvent serializes one watcher event in SSE wire format.
func writeSSEEvent(w io.Writer, event task.StatusEvent) error {
	var data []byte
	var err error

	switch event.Kind {
	case task.StatusEventTimeout:
		data, err = json.Marshal(map[string]string{
			"status": "timeout",
			"error":  "Task processing timed out",
		})
	default:
		data, err = json.Marshal(recordToResponse(event.Record))
	}
	if err != nil {
		return err
	}

	_, err = io.WriteString(w, "event: "+string(event.Kind)+"\ndata: "+string(data)+"\n\n")
	return err
}

// taskIDParam parses the task_id path parameter, responding 400 itself
// on malformed IDs.
func (h *TaskHandler) taskIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := chi.URLParam(r, "task_id")

	taskID, err := uuid.Parse(raw)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task ID")
		return uuid.Nil, false
	}
	return taskID, true
}
