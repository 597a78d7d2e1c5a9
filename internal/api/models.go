package api

import (
	"encoding/json"
	"time"

	"github.com/phrazzld/adscribe-api/internal/task"
)

// TaskAcceptedResponse is returned on task submission.
type TaskAcceptedResponse struct {
	TaskID  string `json:"task_id"`
	Message string `json:"message"`
}

// TaskStatusResponse is the task record as exposed over HTTP.
type TaskStatusResponse struct {
	TaskID    string          `json:"task_id"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	Progress  string          `json:"progress,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     *TaskError      `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// TaskError is the failure detail exposed on failed tasks.
type TaskError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// recordToResponse converts a task.Record to its HTTP representation.
func recordToResponse(record *task.Record) TaskStatusResponse {
	response := TaskStatusResponse{
		TaskID:    record.ID.String(),
		Type:      string(record.Type),
		Status:    string(record.Status),
		Progress:  record.Progress,
		Result:    record.Result,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	if record.Error != nil {
		response.Error = &TaskError{
			Code:    record.Error.Code,
			Message: record.Error.Message,
		}
	}
	return response
}
