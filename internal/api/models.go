package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/coursework-jobs/internal/task"
)

// CreateTaskRequest is the payload of POST /tasks.
type CreateTaskRequest struct {
	TaskType   string          `json:"task_type"  validate:"required,max=64"`
	Parameters json.RawMessage `json:"parameters"`
}

// CreateTaskResponse acknowledges an accepted task.
type CreateTaskResponse struct {
	TaskID uuid.UUID   `json:"task_id"`
	Status task.Status `json:"status"`
}

// TaskResponse is the externally visible view of a task record.
type TaskResponse struct {
	ID         uuid.UUID       `json:"id"`
	TaskType   task.Type       `json:"task_type"`
	Status     task.Status     `json:"status"`
	Parameters json.RawMessage `json:"parameters"`
	Result     string          `json:"result,omitempty"`
	Retries    int             `json:"retries"`
	MaxRetries int             `json:"max_retries"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	NextRunAt  *time.Time      `json:"next_run_at,omitempty"`
}

func newTaskResponse(r *task.Record) TaskResponse {
	return TaskResponse{
		ID:         r.ID,
		TaskType:   r.Type,
		Status:     r.Status,
		Parameters: r.Parameters,
		Result:     r.Result,
		Retries:    r.Retries,
		MaxRetries: r.MaxRetries,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		StartedAt:  r.StartedAt,
		NextRunAt:  r.NextRunAt,
	}
}
