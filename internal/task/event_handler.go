package task

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/coursework-jobs/internal/events"
)

// Submitter creates and queues tasks. *Dispatcher satisfies it.
type Submitter interface {
	Submit(ctx context.Context, typ Type, params json.RawMessage) (uuid.UUID, error)
}

// SubmitEventHandler implements events.EventHandler by turning task request
// events into submitted tasks.
type SubmitEventHandler struct {
	submitter Submitter
	logger    *slog.Logger
}

// NewSubmitEventHandler creates a new event handler that submits requested
// tasks through submitter.
func NewSubmitEventHandler(submitter Submitter, logger *slog.Logger) *SubmitEventHandler {
	return &SubmitEventHandler{
		submitter: submitter,
		logger:    logger.With("component", "submit_event_handler"),
	}
}

// HandleEvent submits the task described by event.
func (h *SubmitEventHandler) HandleEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	id, err := h.submitter.Submit(ctx, Type(event.Type), event.Parameters)
	if err != nil {
		h.logger.Error("failed to submit requested task",
			"error", err,
			"event_id", event.ID,
			"task_type", event.Type)
		return fmt.Errorf("failed to submit task: %w", err)
	}

	h.logger.Info("task submitted from event",
		"task_id", id,
		"task_type", event.Type,
		"event_id", event.ID)
	return nil
}

var _ events.EventHandler = (*SubmitEventHandler)(nil)
