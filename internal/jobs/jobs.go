package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/phrazzld/coursework-jobs/internal/events"
	"github.com/phrazzld/coursework-jobs/internal/similarity"
	"github.com/phrazzld/coursework-jobs/internal/store"
	"github.com/phrazzld/coursework-jobs/internal/task"
)

// Dependencies are the collaborators the job handlers need.
type Dependencies struct {
	Submissions store.SubmissionStore
	Courses     store.CourseStore
	Enrollments store.EnrollmentStore
	Transactor  store.Transactor
	Sink        events.Sink
	Engine      *similarity.Engine
	Purger      Purger

	// RetentionDays is used by data_cleanup when the task does not set one.
	RetentionDays int

	// MaxRetries is the retry budget of the coursework jobs. Negative keeps
	// task.DefaultMaxRetries.
	MaxRetries int

	Logger *slog.Logger
}

// RegisterAll registers the job handlers whose dependencies are present.
func RegisterAll(registry *task.Registry, deps Dependencies) error {
	if deps.Logger == nil {
		return task.ErrNilLogger
	}
	if deps.Sink == nil {
		deps.Sink = events.NewLogSink(deps.Logger)
	}
	if deps.Engine == nil {
		deps.Engine = similarity.NewEngine(similarity.DefaultOptions())
	}

	// Jobs backed by platform entities need the coursework stores; without
	// them (in-memory development mode) only the maintenance job is served.
	retries := task.WithMaxRetries(deps.MaxRetries)
	if deps.Submissions != nil && deps.Courses != nil {
		checker := NewPlagiarismChecker(deps.Submissions, deps.Courses, deps.Engine, deps.Sink, deps.Logger)
		if err := task.Register(registry, TypePlagiarismCheck, checker.Run, retries); err != nil {
			return err
		}
		grades := NewGradeNotifier(deps.Submissions, deps.Courses, deps.Sink, deps.Logger)
		if err := task.Register(registry, TypeGradeNotification, grades.Run, retries); err != nil {
			return err
		}
	}
	if deps.Courses != nil {
		reminders := NewReminderSender(deps.Courses, deps.Sink, deps.Logger)
		if err := task.Register(registry, TypeAssignmentReminders, reminders.Run, retries); err != nil {
			return err
		}
	}
	if deps.Courses != nil && deps.Enrollments != nil && deps.Transactor != nil {
		enroller := NewBulkEnroller(deps.Courses, deps.Enrollments, deps.Transactor, deps.Sink, deps.Logger)
		if err := task.Register(registry, TypeBulkEnrollment, enroller.Run, retries); err != nil {
			return err
		}
	}

	// Cleanup is idempotent and reruns on the next schedule anyway.
	cleaner := NewDataCleaner(deps.Purger, deps.RetentionDays, deps.Logger)
	return task.Register(registry, TypeDataCleanup, cleaner.Run, task.WithMaxRetries(1))
}

func encodeResult(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", task.Permanent(fmt.Errorf("failed to encode result: %w", err))
	}
	return string(data), nil
}

// lookupError makes a missing entity permanent and leaves other failures retryable.
func lookupError(entity string, err error) error {
	if store.IsNotFoundError(err) {
		return task.Permanent(fmt.Errorf("%s lookup: %w", entity, err))
	}
	return fmt.Errorf("failed to load %s: %w", entity, err)
}

// emitAll hands each notification to sink and returns how many were rejected.
func emitAll(ctx context.Context, log *slog.Logger, sink events.Sink, notifications []events.Notification) int {
	failed := 0
	for _, n := range notifications {
		if err := sink.Emit(ctx, n); err != nil {
			failed++
			log.Error("failed to emit notification",
				"notification_type", n.Type,
				"user_id", n.UserID,
				"error", err)
		}
	}
	return failed
}
