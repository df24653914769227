package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/coursework-jobs/internal/domain"
	"github.com/phrazzld/coursework-jobs/internal/events"
	"github.com/phrazzld/coursework-jobs/internal/platform/logger"
	"github.com/phrazzld/coursework-jobs/internal/store"
	"github.com/phrazzld/coursework-jobs/internal/task"
)

// TypeBulkEnrollment enrolls a list of users in a course.
const TypeBulkEnrollment = task.TypeBulkEnrollment

// BulkEnrollmentParams is the payload of a bulk_enrollment task.
type BulkEnrollmentParams struct {
	CourseID uuid.UUID `json:"course_id" validate:"required"`
	Emails   []string  `json:"emails" validate:"required,min=1,dive,required,email"`
}

// BulkEnrollmentResult is stored as the task result.
type BulkEnrollmentResult struct {
	CourseID            uuid.UUID `json:"course_id"`
	Enrolled            int       `json:"enrolled"`
	AlreadyEnrolled     int       `json:"already_enrolled"`
	NotStudents         int       `json:"not_students"`
	Unpaid              int       `json:"unpaid"`
	NotificationsFailed int       `json:"notifications_failed,omitempty"`
}

// BulkEnroller enrolls students who paid for a course, or any student when
// the course is free. Addresses already enrolled are skipped.
type BulkEnroller struct {
	courses     store.CourseStore
	enrollments store.EnrollmentStore
	tx          store.Transactor
	sink        events.Sink
	logger      *slog.Logger
}

// NewBulkEnroller creates a BulkEnroller.
func NewBulkEnroller(
	courses store.CourseStore,
	enrollments store.EnrollmentStore,
	tx store.Transactor,
	sink events.Sink,
	log *slog.Logger,
) *BulkEnroller {
	return &BulkEnroller{
		courses:     courses,
		enrollments: enrollments,
		tx:          tx,
		sink:        sink,
		logger:      log.With("job", string(TypeBulkEnrollment)),
	}
}

// Run executes the enrollment.
func (e *BulkEnroller) Run(ctx context.Context, p BulkEnrollmentParams) (string, error) {
	log := logger.FromContextOrDefault(ctx, e.logger).With("course_id", p.CourseID)

	course, err := e.courses.GetCourse(ctx, p.CourseID)
	if err != nil {
		return "", lookupError("course", err)
	}

	existing, err := e.enrollments.EnrolledEmails(ctx, course.ID)
	if err != nil {
		return "", fmt.Errorf("failed to load enrollments: %w", err)
	}
	seen := make(map[string]struct{}, len(existing)+len(p.Emails))
	for _, email := range existing {
		seen[normalizeEmail(email)] = struct{}{}
	}

	result := BulkEnrollmentResult{CourseID: course.ID}
	var admitted []*domain.Student
	for _, email := range p.Emails {
		key := normalizeEmail(email)
		if _, ok := seen[key]; ok {
			result.AlreadyEnrolled++
			continue
		}
		seen[key] = struct{}{}

		student, err := e.courses.FindStudentByEmail(ctx, key)
		if store.IsNotFoundError(err) {
			result.NotStudents++
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to look up student: %w", err)
		}

		if !course.IsFree {
			paid, err := e.courses.HasCompletedPayment(ctx, course.ID, student.UserID)
			if err != nil {
				return "", fmt.Errorf("failed to check payment: %w", err)
			}
			if !paid {
				result.Unpaid++
				continue
			}
		}
		admitted = append(admitted, student)
	}

	var enrolled []*domain.Student
	err = e.tx.InTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		enrolled = enrolled[:0]
		txStore := e.enrollments.WithTx(tx)
		for _, student := range admitted {
			enrollment, err := domain.NewEnrollment(course.ID, student.ID)
			if err != nil {
				return task.Permanent(err)
			}
			if err := txStore.Create(ctx, enrollment); err != nil {
				// A concurrent enrollment got there first.
				if store.IsDuplicateError(err) {
					continue
				}
				return fmt.Errorf("failed to create enrollment: %w", err)
			}
			enrolled = append(enrolled, student)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	result.Enrolled = len(enrolled)
	result.AlreadyEnrolled += len(admitted) - len(enrolled)

	notifications := make([]events.Notification, 0, len(enrolled))
	for _, student := range enrolled {
		notifications = append(notifications, events.NewNotification(
			student.UserID,
			events.NotificationEnrollment,
			fmt.Sprintf("You've been enrolled in %s", course.Title),
			map[string]any{"course_id": course.ID.String()},
		))
	}
	result.NotificationsFailed = emitAll(ctx, log, e.sink, notifications)

	log.Info("bulk enrollment finished",
		"enrolled", result.Enrolled,
		"already_enrolled", result.AlreadyEnrolled,
		"not_students", result.NotStudents,
		"unpaid", result.Unpaid)

	return encodeResult(result)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
