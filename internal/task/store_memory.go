package task

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a mutex-guarded Store for tests and single-process
// development. Records are copied on the way in and out so callers can never
// mutate stored state directly.
type MemoryStore struct {
	mutex   sync.RWMutex
	records map[uuid.UUID]*Record
	now     func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[uuid.UUID]*Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Insert persists a new record
func (s *MemoryStore) Insert(ctx context.Context, record *Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.records[record.ID]; exists {
		return ErrDuplicateID
	}
	s.records[record.ID] = cloneRecord(record)
	return nil
}

// Get returns a copy of the record with the given id
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(record), nil
}

// Transition applies t under the store lock, which makes the status check
// and the update a single atomic step.
func (s *MemoryStore) Transition(ctx context.Context, t Transition) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	record, ok := s.records[t.ID]
	if !ok {
		return nil, ErrNotFound
	}
	if record.Status != t.From {
		return nil, ErrInvalidTransition
	}
	if t.RequireRetriesLeft && !record.RetriesLeft() {
		return nil, ErrInvalidTransition
	}

	at := t.At
	if at.IsZero() {
		at = s.now()
	}

	record.Status = t.To
	record.UpdatedAt = at
	if t.To == StatusProcessing {
		started := at
		record.StartedAt = &started
	}
	if t.Result != nil {
		record.Result = *t.Result
	}
	switch {
	case t.ExhaustRetries:
		record.Retries = record.MaxRetries
	case t.IncrementRetries:
		record.Retries++
	}
	record.NextRunAt = copyTime(t.NextRunAt)

	return cloneRecord(record), nil
}

// ListByStatus returns records with the given status, oldest first
func (s *MemoryStore) ListByStatus(ctx context.Context, status Status, olderThan time.Duration) ([]*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	now := s.now()
	var out []*Record
	for _, record := range s.records {
		if record.Status != status {
			continue
		}
		// If olderThan is zero, include all records in this status
		if olderThan > 0 && now.Sub(record.UpdatedAt) <= olderThan {
			continue
		}
		out = append(out, cloneRecord(record))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// DeleteTerminalBefore removes completed and failed records updated before cutoff
func (s *MemoryStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	var deleted int64
	for id, record := range s.records {
		if record.Status.IsTerminal() && record.UpdatedAt.Before(cutoff) {
			delete(s.records, id)
			deleted++
		}
	}
	return deleted, nil
}

func cloneRecord(r *Record) *Record {
	c := *r
	if r.Parameters != nil {
		c.Parameters = append(json.RawMessage(nil), r.Parameters...)
	}
	c.StartedAt = copyTime(r.StartedAt)
	c.NextRunAt = copyTime(r.NextRunAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

var _ Store = (*MemoryStore)(nil)
