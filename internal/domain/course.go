package domain

import (
	"time"

	"github.com/google/uuid"
)

// Course groups assignments and enrolled students. Instructors are
// identified by their user IDs so they can be notified directly.
type Course struct {
	ID            uuid.UUID   `json:"id"`
	Title         string      `json:"title"`
	IsFree        bool        `json:"is_free"`
	InstructorIDs []uuid.UUID `json:"instructor_ids"`
}

// Assignment belongs to exactly one course. DueDate is nil for assignments
// without a deadline.
type Assignment struct {
	ID       uuid.UUID  `json:"id"`
	CourseID uuid.UUID  `json:"course_id"`
	Title    string     `json:"title"`
	DueDate  *time.Time `json:"due_date,omitempty"`
}

// Student is the learner profile of a user.
type Student struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

// Enrollment links a student to a course.
type Enrollment struct {
	ID         uuid.UUID `json:"id"`
	CourseID   uuid.UUID `json:"course_id"`
	StudentID  uuid.UUID `json:"student_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// NewEnrollment creates an Enrollment stamped with the current time.
func NewEnrollment(courseID, studentID uuid.UUID) (*Enrollment, error) {
	if courseID == uuid.Nil || studentID == uuid.Nil {
		return nil, ErrInvalidID
	}
	return &Enrollment{
		ID:         uuid.New(),
		CourseID:   courseID,
		StudentID:  studentID,
		EnrolledAt: time.Now().UTC(),
	}, nil
}
