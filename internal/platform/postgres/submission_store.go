package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/coursework-jobs/internal/domain"
	"github.com/phrazzld/coursework-jobs/internal/platform/logger"
	"github.com/phrazzld/coursework-jobs/internal/store"
)

const submissionColumns = `id, assignment_id, student_id, content, grade,
		plagiarism_score, plagiarism_report, submitted_at`

// SubmissionStore implements store.SubmissionStore.
type SubmissionStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewSubmissionStore creates a SubmissionStore. If logger is nil, slog.Default is used.
func NewSubmissionStore(db store.DBTX, logger *slog.Logger) *SubmissionStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmissionStore{
		db:     db,
		logger: logger.With(slog.String("component", "submission_store")),
	}
}

var _ store.SubmissionStore = (*SubmissionStore)(nil)

func scanSubmission(row rowScanner) (*domain.Submission, error) {
	var (
		s      domain.Submission
		grade  sql.NullFloat64
		score  sql.NullFloat64
		report []byte
	)
	if err := row.Scan(
		&s.ID,
		&s.AssignmentID,
		&s.StudentID,
		&s.Content,
		&grade,
		&score,
		&report,
		&s.SubmittedAt,
	); err != nil {
		return nil, err
	}
	if grade.Valid {
		g := grade.Float64
		s.Grade = &g
	}
	if score.Valid {
		v := score.Float64
		s.PlagiarismScore = &v
	}
	if len(report) > 0 {
		s.PlagiarismReport = report
	}
	return &s, nil
}

// GetByID retrieves a submission or store.ErrSubmissionNotFound.
func (s *SubmissionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`

	sub, err := scanSubmission(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrSubmissionNotFound
		}
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to get submission",
			slog.String("submission_id", id.String()),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to get submission: %w", MapError(err))
	}
	return sub, nil
}

// ListByAssignment returns every submission of an assignment, oldest first.
func (s *SubmissionStore) ListByAssignment(ctx context.Context, assignmentID uuid.UUID) ([]*domain.Submission, error) {
	query := `SELECT ` + submissionColumns + `
		FROM submissions
		WHERE assignment_id = $1
		ORDER BY submitted_at ASC`

	rows, err := s.db.QueryContext(ctx, query, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", MapError(err))
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.Error("failed to close rows", slog.String("error", cerr.Error()))
		}
	}()

	var subs []*domain.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating submissions: %w", err)
	}
	return subs, nil
}

// UpdatePlagiarismResult stores the similarity score and report.
func (s *SubmissionStore) UpdatePlagiarismResult(
	ctx context.Context,
	id uuid.UUID,
	score float64,
	report json.RawMessage,
) error {
	if score < 0 || score > 1 {
		return fmt.Errorf("%w: %v", domain.ErrInvalidScore, score)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET plagiarism_score = $2, plagiarism_report = $3
		WHERE id = $1
	`, id, score, []byte(report))
	if err != nil {
		return fmt.Errorf("failed to update plagiarism result: %w", MapError(err))
	}
	return CheckRowsAffected(result, store.ErrSubmissionNotFound)
}
