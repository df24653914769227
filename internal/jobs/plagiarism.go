package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/coursework-jobs/internal/domain"
	"github.com/phrazzld/coursework-jobs/internal/events"
	"github.com/phrazzld/coursework-jobs/internal/platform/logger"
	"github.com/phrazzld/coursework-jobs/internal/similarity"
	"github.com/phrazzld/coursework-jobs/internal/store"
	"github.com/phrazzld/coursework-jobs/internal/task"
)

// TypePlagiarismCheck compares a submission against its assignment siblings.
const TypePlagiarismCheck = task.TypePlagiarismCheck

// PlagiarismParams is the payload of a plagiarism_check task.
type PlagiarismParams struct {
	SubmissionID uuid.UUID `json:"submission_id" validate:"required"`
}

// PlagiarismResult is stored as the task result.
type PlagiarismResult struct {
	SubmissionID        uuid.UUID `json:"submission_id"`
	MaxScore            float64   `json:"max_score"`
	MostSimilarID       string    `json:"most_similar_id,omitempty"`
	CandidatesCompared  int       `json:"candidates_compared"`
	Alerted             bool      `json:"alerted"`
	NotificationsFailed int       `json:"notifications_failed,omitempty"`
}

// PlagiarismChecker runs the similarity engine for one submission, persists
// the score and alerts instructors and the student above the threshold.
type PlagiarismChecker struct {
	submissions store.SubmissionStore
	courses     store.CourseStore
	engine      *similarity.Engine
	sink        events.Sink
	logger      *slog.Logger
}

// NewPlagiarismChecker creates a PlagiarismChecker.
func NewPlagiarismChecker(
	submissions store.SubmissionStore,
	courses store.CourseStore,
	engine *similarity.Engine,
	sink events.Sink,
	log *slog.Logger,
) *PlagiarismChecker {
	return &PlagiarismChecker{
		submissions: submissions,
		courses:     courses,
		engine:      engine,
		sink:        sink,
		logger:      log.With("job", string(TypePlagiarismCheck)),
	}
}

// Run executes the check.
func (c *PlagiarismChecker) Run(ctx context.Context, p PlagiarismParams) (string, error) {
	log := logger.FromContextOrDefault(ctx, c.logger).With("submission_id", p.SubmissionID)

	subject, err := c.submissions.GetByID(ctx, p.SubmissionID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return "", task.Permanent(fmt.Errorf("submission %s: %w", p.SubmissionID, err))
		}
		return "", fmt.Errorf("failed to load submission: %w", err)
	}

	siblings, err := c.submissions.ListByAssignment(ctx, subject.AssignmentID)
	if err != nil {
		return "", fmt.Errorf("failed to load assignment submissions: %w", err)
	}

	candidates := make([]similarity.Candidate, 0, len(siblings))
	for _, s := range siblings {
		if s.ID == subject.ID {
			continue
		}
		candidates = append(candidates, similarity.Candidate{ID: s.ID.String(), Text: s.Content})
	}

	report, err := c.engine.AnalyzeContext(ctx, subject.Content, candidates)
	if err != nil {
		return "", fmt.Errorf("similarity analysis interrupted: %w", err)
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return "", task.Permanent(fmt.Errorf("failed to encode similarity report: %w", err))
	}

	if err := c.submissions.UpdatePlagiarismResult(ctx, subject.ID, report.MaxScore, reportJSON); err != nil {
		if store.IsNotFoundError(err) {
			return "", task.Permanent(fmt.Errorf("submission %s: %w", subject.ID, err))
		}
		return "", fmt.Errorf("failed to store plagiarism result: %w", err)
	}

	result := PlagiarismResult{
		SubmissionID:       subject.ID,
		MaxScore:           report.MaxScore,
		MostSimilarID:      report.MostSimilarID,
		CandidatesCompared: len(candidates),
	}

	log.Info("similarity analysis finished",
		"max_score", report.MaxScore,
		"candidates", len(candidates))

	if report.Exceeds() {
		result.Alerted = true
		failed, err := c.alert(ctx, log, subject, report.MaxScore)
		if err != nil {
			return "", err
		}
		result.NotificationsFailed = failed
	}

	return encodeResult(result)
}

// alert notifies every instructor of the course and the submitting student.
// It returns how many notifications the sink rejected.
func (c *PlagiarismChecker) alert(ctx context.Context, log *slog.Logger, s *domain.Submission, score float64) (int, error) {
	assignment, err := c.courses.GetAssignment(ctx, s.AssignmentID)
	if err != nil {
		return 0, lookupError("assignment", err)
	}
	course, err := c.courses.GetCourse(ctx, assignment.CourseID)
	if err != nil {
		return 0, lookupError("course", err)
	}
	student, err := c.courses.GetStudent(ctx, s.StudentID)
	if err != nil {
		return 0, lookupError("student", err)
	}

	metadata := map[string]any{
		"submission_id": s.ID.String(),
		"student_id":    s.StudentID.String(),
		"score":         score,
		"assignment_id": s.AssignmentID.String(),
	}

	var notifications []events.Notification
	for _, instructorID := range course.InstructorIDs {
		notifications = append(notifications, events.NewNotification(
			instructorID,
			events.NotificationPlagiarismDetected,
			fmt.Sprintf("Possible plagiarism detected in %s (similarity %.0f%%)", assignment.Title, score*100),
			metadata,
		))
	}
	notifications = append(notifications, events.NewNotification(
		student.UserID,
		events.NotificationPlagiarismDetected,
		fmt.Sprintf("Your submission for %s was flagged for review", assignment.Title),
		metadata,
	))

	return emitAll(ctx, log, c.sink, notifications), nil
}
