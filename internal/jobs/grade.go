package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/coursework-jobs/internal/events"
	"github.com/phrazzld/coursework-jobs/internal/platform/logger"
	"github.com/phrazzld/coursework-jobs/internal/store"
	"github.com/phrazzld/coursework-jobs/internal/task"
)

// TypeGradeNotification tells students their grade was posted.
const TypeGradeNotification = task.TypeGradeNotification

// GradeNotificationParams is the payload of a grade_notification task.
type GradeNotificationParams struct {
	AssignmentID uuid.UUID `json:"assignment_id" validate:"required"`
}

// GradeNotificationResult is stored as the task result.
type GradeNotificationResult struct {
	AssignmentID        uuid.UUID `json:"assignment_id"`
	Notified            int       `json:"notified"`
	Ungraded            int       `json:"ungraded"`
	NotificationsFailed int       `json:"notifications_failed,omitempty"`
}

// GradeNotifier notifies the student of every graded submission of an assignment.
type GradeNotifier struct {
	submissions store.SubmissionStore
	courses     store.CourseStore
	sink        events.Sink
	logger      *slog.Logger
}

// NewGradeNotifier creates a GradeNotifier.
func NewGradeNotifier(
	submissions store.SubmissionStore,
	courses store.CourseStore,
	sink events.Sink,
	log *slog.Logger,
) *GradeNotifier {
	return &GradeNotifier{
		submissions: submissions,
		courses:     courses,
		sink:        sink,
		logger:      log.With("job", string(TypeGradeNotification)),
	}
}

// Run sends the notifications.
func (g *GradeNotifier) Run(ctx context.Context, p GradeNotificationParams) (string, error) {
	log := logger.FromContextOrDefault(ctx, g.logger).With("assignment_id", p.AssignmentID)

	assignment, err := g.courses.GetAssignment(ctx, p.AssignmentID)
	if err != nil {
		return "", lookupError("assignment", err)
	}

	submissions, err := g.submissions.ListByAssignment(ctx, assignment.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load submissions: %w", err)
	}

	result := GradeNotificationResult{AssignmentID: assignment.ID}
	var notifications []events.Notification
	for _, s := range submissions {
		if !s.IsGraded() {
			result.Ungraded++
			continue
		}
		student, err := g.courses.GetStudent(ctx, s.StudentID)
		if err != nil {
			return "", fmt.Errorf("failed to load student %s: %w", s.StudentID, err)
		}
		notifications = append(notifications, events.NewNotification(
			student.UserID,
			events.NotificationGradePosted,
			fmt.Sprintf("Grade posted for %s: %g%%", assignment.Title, *s.Grade),
			map[string]any{
				"assignment_id": assignment.ID.String(),
				"submission_id": s.ID.String(),
				"grade":         *s.Grade,
				"status":        string(s.Status()),
			},
		))
	}

	result.NotificationsFailed = emitAll(ctx, log, g.sink, notifications)
	result.Notified = len(notifications) - result.NotificationsFailed

	log.Info("grade notifications sent",
		"notified", result.Notified,
		"ungraded", result.Ungraded)

	return encodeResult(result)
}
