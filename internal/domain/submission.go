package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PassingGrade is the lowest grade reported as passed.
const PassingGrade = 50.0

// SubmissionStatus is derived from the grade of a submission.
type SubmissionStatus string

// Possible submission status values
const (
	SubmissionStatusPending SubmissionStatus = "pending"
	SubmissionStatusPassed  SubmissionStatus = "passed"
	SubmissionStatusFailed  SubmissionStatus = "failed"
)

// Submission is a student's answer to an assignment. Grade and the
// plagiarism fields stay nil until grading and analysis have run.
type Submission struct {
	ID               uuid.UUID       `json:"id"`
	AssignmentID     uuid.UUID       `json:"assignment_id"`
	StudentID        uuid.UUID       `json:"student_id"`
	Content          string          `json:"content"`
	Grade            *float64        `json:"grade,omitempty"`
	PlagiarismScore  *float64        `json:"plagiarism_score,omitempty"`
	PlagiarismReport json.RawMessage `json:"plagiarism_report,omitempty"`
	SubmittedAt      time.Time       `json:"submitted_at"`
}

// NewSubmission creates a new ungraded Submission.
// Returns an error if validation fails.
func NewSubmission(assignmentID, studentID uuid.UUID, content string) (*Submission, error) {
	s := &Submission{
		ID:           uuid.New(),
		AssignmentID: assignmentID,
		StudentID:    studentID,
		Content:      content,
		SubmittedAt:  time.Now().UTC(),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Validate checks if the Submission has valid data.
func (s *Submission) Validate() error {
	if s.ID == uuid.Nil || s.AssignmentID == uuid.Nil || s.StudentID == uuid.Nil {
		return fmt.Errorf("%w: submission, assignment and student IDs are required", ErrInvalidID)
	}
	if s.Content == "" {
		return ErrEmptyContent
	}
	if s.Grade != nil && (*s.Grade < 0 || *s.Grade > 100) {
		return ErrInvalidGrade
	}
	if s.PlagiarismScore != nil && (*s.PlagiarismScore < 0 || *s.PlagiarismScore > 1) {
		return ErrInvalidScore
	}
	return nil
}

// Status reports whether the submission is still ungraded, passed or failed.
func (s *Submission) Status() SubmissionStatus {
	switch {
	case s.Grade == nil:
		return SubmissionStatusPending
	case *s.Grade >= PassingGrade:
		return SubmissionStatusPassed
	default:
		return SubmissionStatusFailed
	}
}

// IsGraded reports whether a grade has been posted.
func (s *Submission) IsGraded() bool {
	return s.Grade != nil
}

// SetPlagiarismResult stores the outcome of a similarity analysis.
func (s *Submission) SetPlagiarismResult(score float64, report json.RawMessage) error {
	if score < 0 || score > 1 {
		return ErrInvalidScore
	}
	s.PlagiarismScore = &score
	s.PlagiarismReport = report
	return nil
}
