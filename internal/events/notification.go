package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Notification types emitted by the task engine and its jobs.
const (
	NotificationPlagiarismDetected = "plagiarism_detected"
	NotificationTaskFailed         = "task_failed"
	NotificationEnrollment         = "enrollment"
	NotificationGradePosted        = "grade_posted"
	NotificationAssignmentReminder = "assignment_reminder"
)

// Notification is a user-facing alert handed to a Sink for delivery.
type Notification struct {
	UserID    uuid.UUID      `json:"user_id"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewNotification builds a Notification stamped with the current time.
func NewNotification(userID uuid.UUID, typ, message string, metadata map[string]any) Notification {
	return Notification{
		UserID:    userID,
		Type:      typ,
		Message:   message,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
}

// Sink receives notifications. Delivery guarantees belong to the sink; the
// task engine treats Emit as fire-and-forget and never rolls back on error.
type Sink interface {
	Emit(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, n Notification) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Fanout delivers each notification to every registered sink.
type Fanout struct {
	sinks  []Sink
	mu     sync.RWMutex
	logger *slog.Logger
}

// NewFanout creates a Fanout over the given sinks.
func NewFanout(logger *slog.Logger, sinks ...Sink) *Fanout {
	return &Fanout{
		sinks:  sinks,
		logger: logger.With("component", "notification_fanout"),
	}
}

// Register adds a sink.
func (f *Fanout) Register(sink Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks = append(f.sinks, sink)
}

// Emit attempts every sink and returns the first error encountered.
func (f *Fanout) Emit(ctx context.Context, n Notification) error {
	f.mu.RLock()
	sinks := make([]Sink, len(f.sinks))
	copy(sinks, f.sinks)
	f.mu.RUnlock()

	var firstErr error
	for i, sink := range sinks {
		if err := sink.Emit(ctx, n); err != nil {
			f.logger.Error("sink failed to deliver notification",
				"error", err,
				"sink_index", i,
				"user_id", n.UserID,
				"notification_type", n.Type)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// LogSink writes notifications to a structured logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger.With("component", "notification_log")}
}

// Emit logs n at info level.
func (s *LogSink) Emit(ctx context.Context, n Notification) error {
	s.logger.InfoContext(ctx, "notification",
		"user_id", n.UserID,
		"notification_type", n.Type,
		"message", n.Message,
		"metadata", n.Metadata)
	return nil
}

var (
	_ Sink = (*Fanout)(nil)
	_ Sink = (*LogSink)(nil)
	_ Sink = SinkFunc(nil)
)
