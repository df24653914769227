package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/coursework-jobs/internal/platform/logger"
	"github.com/phrazzld/coursework-jobs/internal/redact"
)

// ResultCancelled is stored on records cancelled before they ran.
const ResultCancelled = "cancelled"

// Outcome describes what Fail decided for a record.
type Outcome struct {
	// Record is the record after all transitions were applied.
	Record *Record

	// Retry is true when the record went back to pending.
	Retry bool

	// Delay is how long the record should be parked before it runs again.
	Delay time.Duration

	// Terminal is true when the record stays failed for good.
	Terminal bool
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithClock replaces the time source, mainly for tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRetryPolicy replaces the default backoff curve.
func WithRetryPolicy(policy RetryPolicy) ManagerOption {
	return func(m *Manager) {
		m.policy = policy
	}
}

// Manager owns the task state machine. Every status change goes through one
// of its methods, which translate into conditional store transitions.
type Manager struct {
	store    Store
	registry *Registry
	policy   RetryPolicy
	now      func() time.Time
	logger   *slog.Logger
}

// NewManager creates a Manager backed by store, validating parameters with registry.
func NewManager(store Store, registry *Registry, log *slog.Logger, opts ...ManagerOption) (*Manager, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}
	if log == nil {
		return nil, ErrNilLogger
	}

	m := &Manager{
		store:    store,
		registry: registry,
		policy:   DefaultRetryPolicy(),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   log.With("component", "task_manager"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Registry returns the handler registry the manager validates against.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// RetryPolicy returns the backoff curve in use.
func (m *Manager) RetryPolicy() RetryPolicy {
	return m.policy
}

// Create allocates a pending record after checking params against the
// shape registered for typ.
func (m *Manager) Create(ctx context.Context, typ Type, params json.RawMessage) (uuid.UUID, error) {
	maxRetries, err := m.registry.MaxRetries(typ)
	if err != nil {
		return uuid.Nil, err
	}
	if err := m.registry.Validate(typ, params); err != nil {
		return uuid.Nil, err
	}
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}

	now := m.now()
	record := &Record{
		ID:         uuid.New(),
		Type:       typ,
		Status:     StatusPending,
		Parameters: params,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := m.store.Insert(ctx, record); err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert task: %w", err)
	}

	logger.FromContextOrDefault(ctx, m.logger).Info("task created",
		"task_id", record.ID,
		"task_type", typ,
		"max_retries", maxRetries)
	return record.ID, nil
}

// Get returns the current record for id.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return m.store.Get(ctx, id)
}

// Run claims a pending record for execution. Only one caller can claim a
// given record; the others get claimed=false and no error, along with the
// record as they found it.
func (m *Manager) Run(ctx context.Context, id uuid.UUID) (*Record, bool, error) {
	record, err := m.store.Transition(ctx, Transition{
		ID:   id,
		From: StatusPending,
		To:   StatusProcessing,
		At:   m.now(),
	})
	if err == nil {
		return record, true, nil
	}
	if !errors.Is(err, ErrInvalidTransition) {
		return nil, false, err
	}

	current, getErr := m.store.Get(ctx, id)
	if getErr != nil {
		return nil, false, getErr
	}
	return current, false, nil
}

// Complete records a successful run.
func (m *Manager) Complete(ctx context.Context, id uuid.UUID, result string) (*Record, error) {
	return m.store.Transition(ctx, Transition{
		ID:     id,
		From:   StatusProcessing,
		To:     StatusCompleted,
		At:     m.now(),
		Result: &result,
	})
}

// Fail records a failed run. Permanent errors exhaust the retry budget; any
// other error spends one retry. If retries remain the record is moved back to
// pending with NextRunAt set from the retry policy.
func (m *Manager) Fail(ctx context.Context, id uuid.UUID, cause error) (Outcome, error) {
	if cause == nil {
		cause = errors.New("unknown failure")
	}
	message := redact.Error(cause)
	permanent := IsPermanent(cause)

	record, err := m.store.Transition(ctx, Transition{
		ID:               id,
		From:             StatusProcessing,
		To:               StatusFailed,
		At:               m.now(),
		Result:           &message,
		IncrementRetries: !permanent,
		ExhaustRetries:   permanent,
	})
	if err != nil {
		return Outcome{}, err
	}

	if !record.RetriesLeft() {
		return Outcome{Record: record, Terminal: true}, nil
	}

	delay := m.policy.Delay(record.Retries)
	requeued, err := m.requeue(ctx, record.ID, delay)
	if errors.Is(err, ErrInvalidTransition) {
		// A recovery sweep may have requeued it first.
		current, getErr := m.store.Get(ctx, id)
		if getErr != nil {
			return Outcome{Record: record}, getErr
		}
		if current.Status == StatusPending {
			return Outcome{Record: current, Retry: true, Delay: delay}, nil
		}
		return Outcome{Record: current, Terminal: current.Status == StatusFailed}, nil
	}
	if err != nil {
		return Outcome{Record: record}, fmt.Errorf("failed to requeue task: %w", err)
	}
	return Outcome{Record: requeued, Retry: true, Delay: delay}, nil
}

// Resume moves a failed record that still has retries left back to pending.
// It is used when recovering records whose requeue step was interrupted.
func (m *Manager) Resume(ctx context.Context, id uuid.UUID) (*Record, time.Duration, error) {
	record, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	delay := m.policy.Delay(record.Retries)
	requeued, err := m.requeue(ctx, id, delay)
	if err != nil {
		return nil, 0, err
	}
	return requeued, delay, nil
}

// Cancel fails a record that has not started yet. Records already
// processing are left to finish.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) (*Record, error) {
	result := ResultCancelled
	return m.store.Transition(ctx, Transition{
		ID:             id,
		From:           StatusPending,
		To:             StatusFailed,
		At:             m.now(),
		Result:         &result,
		ExhaustRetries: true,
	})
}

// Purge deletes terminal records last updated more than olderThan ago.
func (m *Manager) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := m.now().Add(-olderThan)
	n, err := m.store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge tasks: %w", err)
	}
	return n, nil
}

func (m *Manager) requeue(ctx context.Context, id uuid.UUID, delay time.Duration) (*Record, error) {
	now := m.now()
	next := now.Add(delay)
	return m.store.Transition(ctx, Transition{
		ID:                 id,
		From:               StatusFailed,
		To:                 StatusPending,
		At:                 now,
		RequireRetriesLeft: true,
		NextRunAt:          &next,
	})
}
