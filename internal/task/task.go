package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status represents the current state of a task
type Status string

// Possible task status values
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no automatic transition leaves this status.
// A failed record with retries left is still re-queued by the Manager.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Type identifies the kind of work a task performs. Each type maps to
// exactly one registered handler.
type Type string

// Task type constants
const (
	// TypePlagiarismCheck compares a submission against its assignment siblings
	TypePlagiarismCheck Type = "plagiarism_check"

	// TypeBulkEnrollment enrolls a list of students into a course
	TypeBulkEnrollment Type = "bulk_enrollment"

	// TypeGradeNotification tells students their submission was graded
	TypeGradeNotification Type = "grade_notification"

	// TypeDataCleanup purges old terminal task records
	TypeDataCleanup Type = "data_cleanup"

	// TypeAssignmentReminders warns students about assignments due soon
	TypeAssignmentReminders Type = "assignment_reminders"
)

// Record is the persisted unit of trackable background work.
type Record struct {
	ID         uuid.UUID       `json:"id"`
	Type       Type            `json:"task_type"`
	Status     Status          `json:"status"`
	Parameters json.RawMessage `json:"parameters"`
	Result     string          `json:"result"`
	Retries    int             `json:"retries"`
	MaxRetries int             `json:"max_retries"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`

	// StartedAt is set every time the record enters processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// NextRunAt is the earliest time a re-queued record should run again.
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

// RetriesLeft reports whether another attempt is allowed.
func (r *Record) RetriesLeft() bool {
	return r.Retries < r.MaxRetries
}

// Transition describes one conditional status change. A store applies it
// only if the record is currently in From, and applies every field change in
// the same atomic step.
type Transition struct {
	ID   uuid.UUID
	From Status
	To   Status
	At   time.Time

	// Result replaces the stored result when non-nil.
	Result *string

	// IncrementRetries adds one to the retry counter.
	IncrementRetries bool

	// ExhaustRetries sets retries to max_retries so no further attempt happens.
	ExhaustRetries bool

	// RequireRetriesLeft rejects the transition unless retries < max_retries.
	RequireRetriesLeft bool

	// NextRunAt is stored as-is; nil clears it.
	NextRunAt *time.Time
}

// Store defines the interface for persisting task records.
// All status changes go through Transition so the state machine stays
// authoritative even when several dispatchers share one store.
type Store interface {
	// Insert persists a new record
	Insert(ctx context.Context, record *Record) error

	// Get returns the record with the given id or ErrNotFound
	Get(ctx context.Context, id uuid.UUID) (*Record, error)

	// Transition applies t atomically and returns the updated record.
	// It returns ErrNotFound for an unknown id and ErrInvalidTransition when
	// the record is not in t.From or the retry guard rejects it.
	Transition(ctx context.Context, t Transition) (*Record, error)

	// ListByStatus returns records with the given status, oldest first.
	// If olderThan is non-zero, only records whose updated_at is older than
	// that duration are returned.
	ListByStatus(ctx context.Context, status Status, olderThan time.Duration) ([]*Record, error)

	// DeleteTerminalBefore removes completed and failed records last updated
	// before cutoff and returns how many were removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
