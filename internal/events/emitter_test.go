package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInMemoryEventEmitter(t *testing.T) {
	logger := discardLogger()

	t.Run("emit event with no handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		event, err := NewTaskRequestEvent("data_cleanup", map[string]int{"older_than_days": 7})
		require.NoError(t, err)

		assert.NoError(t, emitter.EmitEvent(context.Background(), event))
	})

	t.Run("emit event with successful handlers", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		handler1 := &MockEventHandler{}
		handler2 := &MockEventHandler{}
		emitter.RegisterHandler(handler1)
		emitter.RegisterHandler(handler2)

		event, err := NewTaskRequestEvent("data_cleanup", map[string]int{"older_than_days": 7})
		require.NoError(t, err)

		assert.NoError(t, emitter.EmitEvent(context.Background(), event))
		assert.Equal(t, 1, handler1.HandledCount)
		assert.Equal(t, 1, handler2.HandledCount)
		assert.Equal(t, event, handler1.LastEvent)
		assert.Equal(t, event, handler2.LastEvent)
	})

	t.Run("emit event with failing handler", func(t *testing.T) {
		emitter := NewInMemoryEventEmitter(logger)
		failingHandler := &MockEventHandler{HandlerError: errors.New("handler error")}
		successHandler := &MockEventHandler{}
		emitter.RegisterHandler(failingHandler)
		emitter.RegisterHandler(successHandler)

		event, err := NewTaskRequestEvent("data_cleanup", map[string]int{"older_than_days": 7})
		require.NoError(t, err)

		err = emitter.EmitEvent(context.Background(), event)
		require.Error(t, err)
		assert.Equal(t, "handler error", err.Error())
		assert.Equal(t, 1, failingHandler.HandledCount)
		assert.Equal(t, 1, successHandler.HandledCount)
	})
}

type recordingSink struct {
	mu       sync.Mutex
	received []Notification
	err      error
}

func (s *recordingSink) Emit(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received = append(s.received, n)
	return s.err
}

func TestFanout(t *testing.T) {
	t.Parallel()

	n := NewNotification(uuid.New(), NotificationTaskFailed, "task failed", map[string]any{"task_id": "x"})

	t.Run("no sinks", func(t *testing.T) {
		assert.NoError(t, NewFanout(discardLogger()).Emit(context.Background(), n))
	})

	t.Run("all sinks attempted and first error returned", func(t *testing.T) {
		first := &recordingSink{err: errors.New("first")}
		second := &recordingSink{err: errors.New("second")}
		third := &recordingSink{}

		fanout := NewFanout(discardLogger(), first, second)
		fanout.Register(third)

		err := fanout.Emit(context.Background(), n)
		require.Error(t, err)
		assert.Equal(t, "first", err.Error())
		for _, sink := range []*recordingSink{first, second, third} {
			require.Len(t, sink.received, 1)
			assert.Equal(t, n, sink.received[0])
		}
	})

	t.Run("sink func", func(t *testing.T) {
		var got Notification
		fanout := NewFanout(discardLogger(), SinkFunc(func(_ context.Context, n Notification) error {
			got = n
			return nil
		}))

		require.NoError(t, fanout.Emit(context.Background(), n))
		assert.Equal(t, n.UserID, got.UserID)
	})
}

func TestLogSink(t *testing.T) {
	t.Parallel()

	var buf syncBuffer
	sink := NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	userID := uuid.New()

	err := sink.Emit(context.Background(), NewNotification(userID, NotificationGradePosted, "graded", nil))

	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"notification_type":"grade_posted"`)
	assert.Contains(t, buf.String(), userID.String())
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
