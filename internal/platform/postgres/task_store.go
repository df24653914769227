package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/coursework-jobs/internal/platform/logger"
	"github.com/phrazzld/coursework-jobs/internal/store"
	"github.com/phrazzld/coursework-jobs/internal/task"
)

const taskColumns = `id, task_type, status, parameters, result, retries, max_retries,
		created_at, updated_at, started_at, next_run_at`

// TaskStore implements task.Store on the tasks table.
type TaskStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewTaskStore creates a TaskStore. If logger is nil, slog.Default is used.
func NewTaskStore(db store.DBTX, logger *slog.Logger) *TaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

var _ task.Store = (*TaskStore)(nil)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*task.Record, error) {
	var (
		r         task.Record
		params    []byte
		startedAt sql.NullTime
		nextRunAt sql.NullTime
	)
	if err := row.Scan(
		&r.ID,
		&r.Type,
		&r.Status,
		&params,
		&r.Result,
		&r.Retries,
		&r.MaxRetries,
		&r.CreatedAt,
		&r.UpdatedAt,
		&startedAt,
		&nextRunAt,
	); err != nil {
		return nil, err
	}
	r.Parameters = params
	if startedAt.Valid {
		t := startedAt.Time
		r.StartedAt = &t
	}
	if nextRunAt.Valid {
		t := nextRunAt.Time
		r.NextRunAt = &t
	}
	return &r, nil
}

// Insert persists a new record. A reused id returns task.ErrDuplicateID.
func (s *TaskStore) Insert(ctx context.Context, r *task.Record) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID,
		r.Type,
		r.Status,
		[]byte(r.Parameters),
		r.Result,
		r.Retries,
		r.MaxRetries,
		r.CreatedAt,
		r.UpdatedAt,
		r.StartedAt,
		r.NextRunAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", task.ErrDuplicateID, r.ID)
		}
		log.Error("failed to insert task",
			slog.String("task_id", r.ID.String()),
			slog.String("task_type", string(r.Type)),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to insert task: %w", MapError(err))
	}

	log.Debug("task inserted",
		slog.String("task_id", r.ID.String()),
		slog.String("task_type", string(r.Type)))
	return nil
}

// Get returns the record with the given id or task.ErrNotFound.
func (s *TaskStore) Get(ctx context.Context, id uuid.UUID) (*task.Record, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`

	r, err := scanRecord(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", task.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get task: %w", MapError(err))
	}
	return r, nil
}

// Transition applies t in a single conditional UPDATE. When no row matches,
// a follow-up existence check tells an unknown id from a rejected transition.
func (s *TaskStore) Transition(ctx context.Context, t task.Transition) (*task.Record, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query, args := buildTransition(t)
	r, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		log.Error("failed to transition task",
			slog.String("task_id", t.ID.String()),
			slog.String("from", string(t.From)),
			slog.String("to", string(t.To)),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to transition task: %w", MapError(err))
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM tasks WHERE id = $1)`, t.ID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check task existence: %w", MapError(err))
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", task.ErrNotFound, t.ID)
	}
	return nil, fmt.Errorf("%w: %s -> %s for task %s", task.ErrInvalidTransition, t.From, t.To, t.ID)
}

// buildTransition renders the conditional UPDATE for t. The first five
// arguments are always id, from, to, at and next_run_at.
func buildTransition(t task.Transition) (string, []any) {
	args := []any{t.ID, t.From, t.To, t.At, t.NextRunAt}
	set := []string{"status = $3", "updated_at = $4", "next_run_at = $5"}

	if t.To == task.StatusProcessing {
		set = append(set, "started_at = $4")
	}
	if t.Result != nil {
		args = append(args, *t.Result)
		set = append(set, fmt.Sprintf("result = $%d", len(args)))
	}
	switch {
	case t.ExhaustRetries:
		set = append(set, "retries = max_retries")
	case t.IncrementRetries:
		set = append(set, "retries = retries + 1")
	}

	where := "id = $1 AND status = $2"
	if t.RequireRetriesLeft {
		where += " AND retries < max_retries"
	}

	query := `UPDATE tasks SET ` + strings.Join(set, ", ") +
		` WHERE ` + where +
		` RETURNING ` + taskColumns
	return query, args
}

// ListByStatus returns records with status, oldest first. A positive
// olderThan keeps only records not updated within that window.
func (s *TaskStore) ListByStatus(ctx context.Context, status task.Status, olderThan time.Duration) ([]*task.Record, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE status = $1`
	args := []any{status}
	if olderThan > 0 {
		query += ` AND updated_at < $2`
		args = append(args, time.Now().UTC().Add(-olderThan))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", MapError(err))
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			s.logger.Error("failed to close rows", slog.String("error", cerr.Error()))
		}
	}()

	var records []*task.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return records, nil
}

// DeleteTerminalBefore removes completed and failed records last updated
// before cutoff.
func (s *TaskStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM tasks
		WHERE status IN ($1, $2) AND updated_at < $3
	`, task.StatusCompleted, task.StatusFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete tasks: %w", MapError(err))
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	log.Info("terminal tasks deleted",
		slog.Int64("deleted", deleted),
		slog.Time("cutoff", cutoff))
	return deleted, nil
}
