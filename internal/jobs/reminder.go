package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/coursework-jobs/internal/events"
	"github.com/phrazzld/coursework-jobs/internal/platform/logger"
	"github.com/phrazzld/coursework-jobs/internal/store"
	"github.com/phrazzld/coursework-jobs/internal/task"
)

// TypeAssignmentReminders warns students about assignments that close soon.
const TypeAssignmentReminders = task.TypeAssignmentReminders

// DefaultReminderWindowHours matches a daily schedule, so each assignment is
// reminded about once.
const DefaultReminderWindowHours = 24

// AssignmentReminderParams is the payload of an assignment_reminders task.
type AssignmentReminderParams struct {
	WindowHours int `json:"window_hours,omitempty" validate:"gte=0,lte=720"`
}

// AssignmentReminderResult is stored as the task result.
type AssignmentReminderResult struct {
	WindowHours         int `json:"window_hours"`
	Assignments         int `json:"assignments"`
	Reminded            int `json:"reminded"`
	NotificationsFailed int `json:"notifications_failed,omitempty"`
}

// ReminderSender notifies enrolled students who have not yet submitted an
// assignment that is due within the window.
type ReminderSender struct {
	courses store.CourseStore
	sink    events.Sink
	logger  *slog.Logger
	now     func() time.Time
}

// NewReminderSender creates a ReminderSender.
func NewReminderSender(courses store.CourseStore, sink events.Sink, log *slog.Logger) *ReminderSender {
	return &ReminderSender{
		courses: courses,
		sink:    sink,
		logger:  log.With("job", string(TypeAssignmentReminders)),
		now:     time.Now,
	}
}

// Run sends the reminders.
func (r *ReminderSender) Run(ctx context.Context, p AssignmentReminderParams) (string, error) {
	log := logger.FromContextOrDefault(ctx, r.logger)

	hours := p.WindowHours
	if hours == 0 {
		hours = DefaultReminderWindowHours
	}
	now := r.now().UTC()

	due, err := r.courses.ListAssignmentsDue(ctx, now, now.Add(time.Duration(hours)*time.Hour))
	if err != nil {
		return "", fmt.Errorf("failed to load due assignments: %w", err)
	}

	result := AssignmentReminderResult{WindowHours: hours, Assignments: len(due)}
	var notifications []events.Notification
	for _, assignment := range due {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		course, err := r.courses.GetCourse(ctx, assignment.CourseID)
		if err != nil {
			if store.IsNotFoundError(err) {
				log.Warn("skipping assignment of a missing course",
					"assignment_id", assignment.ID,
					"course_id", assignment.CourseID)
				continue
			}
			return "", lookupError("course", err)
		}

		students, err := r.courses.ListStudentsWithoutSubmission(ctx, assignment.ID)
		if err != nil {
			return "", fmt.Errorf("failed to load students of assignment %s: %w", assignment.ID, err)
		}

		meta := map[string]any{
			"assignment_id": assignment.ID.String(),
			"course_id":     course.ID.String(),
		}
		if assignment.DueDate != nil {
			meta["due_date"] = assignment.DueDate.Format(time.RFC3339)
		}
		for _, student := range students {
			notifications = append(notifications, events.NewNotification(
				student.UserID,
				events.NotificationAssignmentReminder,
				fmt.Sprintf("Reminder: your assignment '%s' for course '%s' is due soon", assignment.Title, course.Title),
				meta,
			))
		}
	}

	result.NotificationsFailed = emitAll(ctx, log, r.sink, notifications)
	result.Reminded = len(notifications) - result.NotificationsFailed

	log.Info("assignment reminders sent",
		"window_hours", hours,
		"assignments", result.Assignments,
		"reminded", result.Reminded)

	return encodeResult(result)
}
