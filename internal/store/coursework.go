package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/coursework-jobs/internal/domain"
)

// SubmissionStore defines the submission persistence the jobs rely on.
type SubmissionStore interface {
	// GetByID retrieves a submission by its unique ID.
	// Returns ErrSubmissionNotFound if the submission does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error)

	// ListByAssignment returns every submission of an assignment, oldest first.
	ListByAssignment(ctx context.Context, assignmentID uuid.UUID) ([]*domain.Submission, error)

	// UpdatePlagiarismResult stores the similarity score and report.
	// Returns ErrSubmissionNotFound if the submission does not exist.
	UpdatePlagiarismResult(ctx context.Context, id uuid.UUID, score float64, report json.RawMessage) error
}

// CourseStore reads courses, assignments and students.
type CourseStore interface {
	// GetCourse returns the course with its instructor user IDs.
	// Returns ErrCourseNotFound if the course does not exist.
	GetCourse(ctx context.Context, id uuid.UUID) (*domain.Course, error)

	// GetAssignment returns ErrAssignmentNotFound if the assignment does not exist.
	GetAssignment(ctx context.Context, id uuid.UUID) (*domain.Assignment, error)

	// GetStudent returns ErrStudentNotFound if the student does not exist.
	GetStudent(ctx context.Context, id uuid.UUID) (*domain.Student, error)

	// FindStudentByEmail returns the student profile of the user with email.
	// Returns ErrStudentNotFound if no such user or profile exists.
	FindStudentByEmail(ctx context.Context, email string) (*domain.Student, error)

	// HasCompletedPayment reports whether the user paid for the course.
	HasCompletedPayment(ctx context.Context, courseID, userID uuid.UUID) (bool, error)

	// ListAssignmentsDue returns the assignments due in (from, to], soonest first.
	ListAssignmentsDue(ctx context.Context, from, to time.Time) ([]*domain.Assignment, error)

	// ListStudentsWithoutSubmission returns the students enrolled in the
	// assignment's course who have not submitted it yet.
	ListStudentsWithoutSubmission(ctx context.Context, assignmentID uuid.UUID) ([]*domain.Student, error)
}

// EnrollmentStore persists course enrollments.
type EnrollmentStore interface {
	// EnrolledEmails returns the e-mail addresses of the students enrolled in a course.
	EnrolledEmails(ctx context.Context, courseID uuid.UUID) ([]string, error)

	// Create saves a new enrollment.
	// Returns ErrEnrollmentExists if the student is already enrolled.
	Create(ctx context.Context, enrollment *domain.Enrollment) error

	// WithTx returns an EnrollmentStore that runs its statements in tx.
	WithTx(tx *sql.Tx) EnrollmentStore
}
