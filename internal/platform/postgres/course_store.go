package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/coursework-jobs/internal/domain"
	"github.com/phrazzld/coursework-jobs/internal/store"
)

// paymentCompleted is the payments.payment_status of a settled payment.
const paymentCompleted = "completed"

// CourseStore implements store.CourseStore over the platform's courses,
// assignments, students and payments tables.
type CourseStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewCourseStore creates a CourseStore. If logger is nil, slog.Default is used.
func NewCourseStore(db store.DBTX, logger *slog.Logger) *CourseStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CourseStore{
		db:     db,
		logger: logger.With(slog.String("component", "course_store")),
	}
}

var _ store.CourseStore = (*CourseStore)(nil)

// GetCourse returns the course with its instructor user IDs.
func (s *CourseStore) GetCourse(ctx context.Context, id uuid.UUID) (*domain.Course, error) {
	var c domain.Course
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, is_free FROM courses WHERE id = $1`, id).
		Scan(&c.ID, &c.Title, &c.IsFree)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrCourseNotFound
		}
		return nil, fmt.Errorf("failed to get course: %w", MapError(err))
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id FROM course_instructors
		WHERE course_id = $1
		ORDER BY user_id
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list course instructors: %w", MapError(err))
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.Error("failed to close rows", slog.String("error", cerr.Error()))
		}
	}()

	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan instructor: %w", err)
		}
		c.InstructorIDs = append(c.InstructorIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instructors: %w", err)
	}
	return &c, nil
}

// GetAssignment returns store.ErrAssignmentNotFound if the assignment does not exist.
func (s *CourseStore) GetAssignment(ctx context.Context, id uuid.UUID) (*domain.Assignment, error) {
	a, err := scanAssignment(s.db.QueryRowContext(ctx,
		`SELECT id, course_id, title, due_date FROM assignments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("failed to get assignment: %w", MapError(err))
	}
	return a, nil
}

// ListAssignmentsDue returns the assignments due in (from, to], soonest first.
func (s *CourseStore) ListAssignmentsDue(ctx context.Context, from, to time.Time) ([]*domain.Assignment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, course_id, title, due_date
		FROM assignments
		WHERE due_date > $1 AND due_date <= $2
		ORDER BY due_date, id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list due assignments: %w", MapError(err))
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.Error("failed to close rows", slog.String("error", cerr.Error()))
		}
	}()

	var assignments []*domain.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}
	return assignments, nil
}

func scanAssignment(row rowScanner) (*domain.Assignment, error) {
	var (
		a   domain.Assignment
		due sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.CourseID, &a.Title, &due); err != nil {
		return nil, err
	}
	if due.Valid {
		t := due.Time.UTC()
		a.DueDate = &t
	}
	return &a, nil
}

// ListStudentsWithoutSubmission returns the enrolled students of the
// assignment's course with no submission for it, ordered by e-mail.
func (s *CourseStore) ListStudentsWithoutSubmission(ctx context.Context, assignmentID uuid.UUID) ([]*domain.Student, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.user_id, u.email
		FROM assignments a
		JOIN enrollments e ON e.course_id = a.course_id
		JOIN students s ON s.id = e.student_id
		JOIN users u ON u.id = s.user_id
		WHERE a.id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM submissions sub
			WHERE sub.assignment_id = a.id AND sub.student_id = s.id
		  )
		ORDER BY u.email
	`, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list students without submission: %w", MapError(err))
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.Error("failed to close rows", slog.String("error", cerr.Error()))
		}
	}()

	var students []*domain.Student
	for rows.Next() {
		var st domain.Student
		if err := rows.Scan(&st.ID, &st.UserID, &st.Email); err != nil {
			return nil, fmt.Errorf("failed to scan student: %w", err)
		}
		students = append(students, &st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating students: %w", err)
	}
	return students, nil
}

// GetStudent returns store.ErrStudentNotFound if the student does not exist.
func (s *CourseStore) GetStudent(ctx context.Context, id uuid.UUID) (*domain.Student, error) {
	return s.queryStudent(ctx, `
		SELECT s.id, s.user_id, u.email
		FROM students s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = $1
	`, id)
}

// FindStudentByEmail matches the address case-insensitively.
func (s *CourseStore) FindStudentByEmail(ctx context.Context, email string) (*domain.Student, error) {
	return s.queryStudent(ctx, `
		SELECT s.id, s.user_id, u.email
		FROM students s
		JOIN users u ON u.id = s.user_id
		WHERE lower(u.email) = lower($1)
	`, email)
}

func (s *CourseStore) queryStudent(ctx context.Context, query string, arg any) (*domain.Student, error) {
	var st domain.Student
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&st.ID, &st.UserID, &st.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to get student: %w", MapError(err))
	}
	return &st, nil
}

// HasCompletedPayment reports whether the user paid for the course.
func (s *CourseStore) HasCompletedPayment(ctx context.Context, courseID, userID uuid.UUID) (bool, error) {
	var paid bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM payments
			WHERE course_id = $1 AND user_id = $2 AND payment_status = $3
		)
	`, courseID, userID, paymentCompleted).Scan(&paid)
	if err != nil {
		return false, fmt.Errorf("failed to check payment: %w", MapError(err))
	}
	return paid, nil
}
