// Package scheduler enqueues periodic maintenance tasks on cron schedules.
// It only emits task request events; creating and running the task is left
// to whichever handler the emitter dispatches to.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/phrazzld/coursework-jobs/internal/events"
	"github.com/robfig/cron/v3"
)

// DefaultCleanupSpec runs data_cleanup every Sunday at 04:00 UTC.
const DefaultCleanupSpec = "0 4 * * 0"

// emitTimeout bounds a single scheduled emission.
const emitTimeout = 30 * time.Second

// Entry is one scheduled task request.
type Entry struct {
	Spec     string
	TaskType string
	Params   any
}

// Scheduler triggers task request events on cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	emitter events.EventEmitter
	logger  *slog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a Scheduler that emits through emitter. Schedules are
// evaluated in UTC.
func New(emitter events.EventEmitter, logger *slog.Logger) (*Scheduler, error) {
	if emitter == nil {
		return nil, errors.New("event emitter cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	logger = logger.With("component", "scheduler")
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger{logger: logger}),
			cron.WithChain(cron.Recover(cronLogger{logger: logger})),
		),
		emitter: emitter,
		logger:  logger,
	}, nil
}

// Add registers e. Params are encoded once so a bad payload fails here
// rather than at trigger time.
func (s *Scheduler) Add(e Entry) error {
	if _, err := events.NewTaskRequestEvent(e.TaskType, e.Params); err != nil {
		return fmt.Errorf("invalid parameters for %s: %w", e.TaskType, err)
	}
	if _, err := s.cron.AddFunc(e.Spec, func() { s.trigger(e) }); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", e.Spec, e.TaskType, err)
	}
	s.logger.Info("task scheduled", "task_type", e.TaskType, "spec", e.Spec)
	return nil
}

// Len returns the number of registered entries.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start begins evaluating schedules in the background.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
	s.logger.Info("scheduler started", "entries", s.Len())
}

// Stop halts scheduling and waits for running triggers or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out", "error", ctx.Err())
	}
}

func (s *Scheduler) trigger(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
	defer cancel()

	event, err := events.NewTaskRequestEvent(e.TaskType, e.Params)
	if err != nil {
		s.logger.Error("failed to build scheduled event", "task_type", e.TaskType, "error", err)
		return
	}
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		s.logger.Error("failed to emit scheduled task", "task_type", e.TaskType, "error", err)
		return
	}
	s.logger.Info("scheduled task emitted", "task_type", e.TaskType, "event_id", event.ID)
}

// cronLogger adapts cron's logger interface to slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
