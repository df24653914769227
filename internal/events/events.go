package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskRequestEvent asks for a background task to be created. Producers such
// as the maintenance scheduler publish it without depending on the task package.
type TaskRequestEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type is the task type to create, e.g. "data_cleanup"
	Type string `json:"type"`

	// Parameters is the task payload serialized as JSON
	Parameters json.RawMessage `json:"parameters"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalParameters decodes the event parameters into v.
func (e *TaskRequestEvent) UnmarshalParameters(v interface{}) error {
	return json.Unmarshal(e.Parameters, v)
}

// NewTaskRequestEvent creates a TaskRequestEvent for taskType with params
// serialized to JSON.
func NewTaskRequestEvent(taskType string, params interface{}) (*TaskRequestEvent, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	return &TaskRequestEvent{
		ID:         uuid.New(),
		Type:       taskType,
		Parameters: data,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *TaskRequestEvent) error
}

// EventEmitter defines an interface for components that can emit events.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *TaskRequestEvent) error
}
