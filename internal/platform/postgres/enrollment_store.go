package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/coursework-jobs/internal/domain"
	"github.com/phrazzld/coursework-jobs/internal/platform/logger"
	"github.com/phrazzld/coursework-jobs/internal/store"
)

// EnrollmentStore implements store.EnrollmentStore.
type EnrollmentStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewEnrollmentStore creates an EnrollmentStore. If logger is nil, slog.Default is used.
func NewEnrollmentStore(db store.DBTX, logger *slog.Logger) *EnrollmentStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EnrollmentStore{
		db:     db,
		logger: logger.With(slog.String("component", "enrollment_store")),
	}
}

var _ store.EnrollmentStore = (*EnrollmentStore)(nil)

// EnrolledEmails returns the e-mail addresses of the students enrolled in a course.
func (s *EnrollmentStore) EnrolledEmails(ctx context.Context, courseID uuid.UUID) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.email
		FROM enrollments e
		JOIN students s ON s.id = e.student_id
		JOIN users u ON u.id = s.user_id
		WHERE e.course_id = $1
	`, courseID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enrolled emails: %w", MapError(err))
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.Error("failed to close rows", slog.String("error", cerr.Error()))
		}
	}()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating emails: %w", err)
	}
	return emails, nil
}

// Create saves a new enrollment. An existing (course_id, student_id) pair
// is skipped by ON CONFLICT and reported as store.ErrEnrollmentExists, so a
// surrounding transaction stays usable.
func (s *EnrollmentStore) Create(ctx context.Context, e *domain.Enrollment) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO enrollments (id, course_id, student_id, enrolled_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (course_id, student_id) DO NOTHING
	`, e.ID, e.CourseID, e.StudentID, e.EnrolledAt)
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to create enrollment",
			slog.String("course_id", e.CourseID.String()),
			slog.String("student_id", e.StudentID.String()),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create enrollment: %w", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrEnrollmentExists)
}

// WithTx returns an EnrollmentStore that runs its statements in tx.
func (s *EnrollmentStore) WithTx(tx *sql.Tx) store.EnrollmentStore {
	return &EnrollmentStore{
		db:     tx,
		logger: s.logger,
	}
}
