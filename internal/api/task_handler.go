package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/coursework-jobs/internal/api/shared"
	"github.com/phrazzld/coursework-jobs/internal/platform/logger"
	"github.com/phrazzld/coursework-jobs/internal/task"
)

// TaskService is the part of the task engine the handlers use.
// *task.Dispatcher satisfies it.
type TaskService interface {
	Submit(ctx context.Context, typ task.Type, params json.RawMessage) (uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (*task.Record, error)
	Cancel(ctx context.Context, id uuid.UUID) (*task.Record, error)
}

// TaskHandler handles the task HTTP endpoints.
type TaskHandler struct {
	tasks  TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a TaskHandler.
func NewTaskHandler(tasks TaskService, logger *slog.Logger) *TaskHandler {
	if tasks == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("task service cannot be nil for TaskHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for TaskHandler")
	}
	return &TaskHandler{
		tasks:  tasks,
		logger: logger.With(slog.String("component", "task_handler")),
	}
}

// CreateTask handles POST /tasks. The task is accepted once its record is
// persisted; execution happens asynchronously.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	var req CreateTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}
	if len(req.Parameters) == 0 {
		req.Parameters = json.RawMessage(`{}`)
	}

	id, err := h.tasks.Submit(r.Context(), task.Type(req.TaskType), req.Parameters)
	if err != nil {
		if id == uuid.Nil {
			HandleAPIError(w, r, err, "Failed to create task")
			return
		}
		// The record is durable; the pending sweep will queue it.
		log.Warn("task created but not queued",
			slog.String("task_id", id.String()),
			slog.String("error", err.Error()))
	}

	log.Info("task accepted",
		slog.String("task_id", id.String()),
		slog.String("task_type", req.TaskType))
	shared.RespondWithJSON(w, r, http.StatusAccepted, CreateTaskResponse{
		TaskID: id,
		Status: task.StatusPending,
	})
}

// GetTask handles GET /tasks/{id}.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	record, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get task")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, newTaskResponse(record))
}

// CancelTask handles POST /tasks/{id}/cancel. Only pending tasks can be
// cancelled; anything else is a 409.
func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	record, err := h.tasks.Cancel(r.Context(), id)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to cancel task")
		return
	}

	logger.FromContextOrDefault(r.Context(), h.logger).Info("task cancelled",
		slog.String("task_id", id.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, newTaskResponse(record))
}
