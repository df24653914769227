package task

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/coursework-jobs/internal/events"
	"github.com/stretchr/testify/require"
)

const (
	typeEcho Type = "test_echo"
	typeFlaky Type = "test_flaky"
)

type echoParams struct {
	Message string `json:"message" validate:"required"`
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// echoRegistry registers a handler that returns its message.
func echoRegistry(t *testing.T, opts ...RegisterOption) *Registry {
	t.Helper()

	registry := NewRegistry()
	require.NoError(t, Register(registry, typeEcho, func(ctx context.Context, p echoParams) (string, error) {
		return "echo: " + p.Message, nil
	}, opts...))
	return registry
}

func newTestManager(t *testing.T, registry *Registry, opts ...ManagerOption) (*Manager, *MemoryStore) {
	t.Helper()

	store := NewMemoryStore()
	manager, err := NewManager(store, registry, discardLogger(), opts...)
	require.NoError(t, err)
	return manager, store
}

func echoParamsJSON(msg string) json.RawMessage {
	data, _ := json.Marshal(echoParams{Message: msg})
	return data
}

// createProcessing creates a record and claims it.
func createProcessing(t *testing.T, m *Manager, typ Type, params json.RawMessage) *Record {
	t.Helper()

	id, err := m.Create(context.Background(), typ, params)
	require.NoError(t, err)
	record, claimed, err := m.Run(context.Background(), id)
	require.NoError(t, err)
	require.True(t, claimed)
	return record
}

// recordingSink captures notifications.
type recordingSink struct {
	mu       sync.Mutex
	received []events.Notification
	err      error
	notify   chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{notify: make(chan struct{}, 16)}
}

func (s *recordingSink) Emit(_ context.Context, n events.Notification) error {
	s.mu.Lock()
	s.received = append(s.received, n)
	s.mu.Unlock()
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return s.err
}

func (s *recordingSink) Received() []events.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Notification(nil), s.received...)
}

// waitForStatus polls the store until the record reaches status.
func waitForStatus(t *testing.T, store Store, id uuid.UUID, status Status) *Record {
	t.Helper()

	var record *Record
	require.Eventually(t, func() bool {
		r, err := store.Get(context.Background(), id)
		if err != nil {
			return false
		}
		record = r
		return r.Status == status
	}, 5*time.Second, 10*time.Millisecond, "task %s never reached %s", id, status)
	return record
}
