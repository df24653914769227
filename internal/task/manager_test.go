package task

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManager_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewManager(nil, NewRegistry(), discardLogger())
	assert.ErrorIs(t, err, ErrNilStore)

	_, err = NewManager(NewMemoryStore(), nil, discardLogger())
	assert.ErrorIs(t, err, ErrNilRegistry)

	_, err = NewManager(NewMemoryStore(), NewRegistry(), nil)
	assert.ErrorIs(t, err, ErrNilLogger)
}

func TestManager_Create(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	manager, store := newTestManager(t, echoRegistry(t, WithMaxRetries(5)), WithClock(clock.Now))
	ctx := context.Background()

	t.Run("new record is pending with no retries", func(t *testing.T) {
		id, err := manager.Create(ctx, typeEcho, echoParamsJSON("hi"))
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, id)

		record, err := store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusPending, record.Status)
		assert.Equal(t, 0, record.Retries)
		assert.Equal(t, 5, record.MaxRetries)
		assert.Equal(t, typeEcho, record.Type)
		assert.Equal(t, clock.Now(), record.CreatedAt)
		assert.Equal(t, clock.Now(), record.UpdatedAt)
		assert.Nil(t, record.StartedAt)
		assert.JSONEq(t, `{"message":"hi"}`, string(record.Parameters))
	})

	t.Run("unknown task type", func(t *testing.T) {
		_, err := manager.Create(ctx, Type("nope"), json.RawMessage(`{}`))
		assert.ErrorIs(t, err, ErrUnknownTaskType)
	})

	invalid := []struct {
		name   string
		params string
	}{
		{name: "missing required field", params: `{}`},
		{name: "unknown field", params: `{"message":"x","extra":1}`},
		{name: "wrong type", params: `{"message":42}`},
		{name: "not an object", params: `[1,2]`},
		{name: "trailing data", params: `{"message":"x"} {}`},
		{name: "empty", params: ``},
	}
	for _, tc := range invalid {
		t.Run("validation: "+tc.name, func(t *testing.T) {
			_, err := manager.Create(ctx, typeEcho, json.RawMessage(tc.params))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.True(t, IsPermanent(err))
		})
	}
}

func TestManager_RunIsExclusive(t *testing.T) {
	t.Parallel()

	manager, _ := newTestManager(t, echoRegistry(t))
	ctx := context.Background()

	id, err := manager.Create(ctx, typeEcho, echoParamsJSON("once"))
	require.NoError(t, err)

	const callers = 16
	var (
		claims atomic.Int32
		wg     sync.WaitGroup
		start  = make(chan struct{})
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			record, claimed, err := manager.Run(ctx, id)
			assert.NoError(t, err)
			assert.Equal(t, StatusProcessing, record.Status)
			if claimed {
				claims.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), claims.Load())
}

func TestManager_Run(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	manager, _ := newTestManager(t, echoRegistry(t), WithClock(clock.Now))
	ctx := context.Background()

	t.Run("sets started_at", func(t *testing.T) {
		id, err := manager.Create(ctx, typeEcho, echoParamsJSON("x"))
		require.NoError(t, err)
		clock.Advance(time.Second)

		record, claimed, err := manager.Run(ctx, id)
		require.NoError(t, err)
		assert.True(t, claimed)
		require.NotNil(t, record.StartedAt)
		assert.Equal(t, clock.Now(), *record.StartedAt)
		assert.Equal(t, clock.Now(), record.UpdatedAt)
	})

	t.Run("completed record is a no-op", func(t *testing.T) {
		record := createProcessing(t, manager, typeEcho, echoParamsJSON("x"))
		_, err := manager.Complete(ctx, record.ID, "done")
		require.NoError(t, err)

		again, claimed, err := manager.Run(ctx, record.ID)
		require.NoError(t, err)
		assert.False(t, claimed)
		assert.Equal(t, StatusCompleted, again.Status)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, _, err := manager.Run(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestManager_Complete(t *testing.T) {
	t.Parallel()

	manager, _ := newTestManager(t, echoRegistry(t))
	ctx := context.Background()

	t.Run("stores result", func(t *testing.T) {
		record := createProcessing(t, manager, typeEcho, echoParamsJSON("x"))

		done, err := manager.Complete(ctx, record.ID, "all good")
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, done.Status)
		assert.Equal(t, "all good", done.Result)
		assert.Equal(t, 0, done.Retries)
	})

	t.Run("not processing", func(t *testing.T) {
		id, err := manager.Create(ctx, typeEcho, echoParamsJSON("x"))
		require.NoError(t, err)

		_, err = manager.Complete(ctx, id, "too early")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := manager.Complete(ctx, uuid.New(), "x")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestManager_Fail(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	manager, _ := newTestManager(t, echoRegistry(t, WithMaxRetries(3)), WithClock(clock.Now))
	ctx := context.Background()

	t.Run("transient failure requeues with backoff", func(t *testing.T) {
		record := createProcessing(t, manager, typeEcho, echoParamsJSON("x"))

		outcome, err := manager.Fail(ctx, record.ID, errors.New("storage blip"))
		require.NoError(t, err)
		assert.True(t, outcome.Retry)
		assert.False(t, outcome.Terminal)
		assert.Equal(t, 10*time.Second, outcome.Delay)
		assert.Equal(t, StatusPending, outcome.Record.Status)
		assert.Equal(t, 1, outcome.Record.Retries)
		assert.Equal(t, "storage blip", outcome.Record.Result)
		require.NotNil(t, outcome.Record.NextRunAt)
		assert.Equal(t, clock.Now().Add(10*time.Second), *outcome.Record.NextRunAt)
	})

	t.Run("retries exhaust after max_retries failures", func(t *testing.T) {
		id, err := manager.Create(ctx, typeEcho, echoParamsJSON("x"))
		require.NoError(t, err)

		var delays []time.Duration
		var outcome Outcome
		for attempt := 1; attempt <= 3; attempt++ {
			_, claimed, err := manager.Run(ctx, id)
			require.NoError(t, err)
			require.True(t, claimed, "attempt %d", attempt)

			outcome, err = manager.Fail(ctx, id, Transient(errors.New("boom")))
			require.NoError(t, err)
			delays = append(delays, outcome.Delay)
		}

		assert.True(t, outcome.Terminal)
		assert.False(t, outcome.Retry)
		assert.Equal(t, StatusFailed, outcome.Record.Status)
		assert.Equal(t, 3, outcome.Record.Retries)
		assert.Equal(t, []time.Duration{10 * time.Second, 20 * time.Second, 0}, delays)

		// No automatic way back once retries are spent.
		_, _, err = manager.Resume(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		_, claimed, err := manager.Run(ctx, id)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("permanent failure exhausts retries immediately", func(t *testing.T) {
		record := createProcessing(t, manager, typeEcho, echoParamsJSON("x"))

		outcome, err := manager.Fail(ctx, record.ID, Permanent(errors.New("submission gone")))
		require.NoError(t, err)
		assert.True(t, outcome.Terminal)
		assert.Equal(t, StatusFailed, outcome.Record.Status)
		assert.Equal(t, outcome.Record.MaxRetries, outcome.Record.Retries)
		assert.Equal(t, "permanent failure: submission gone", outcome.Record.Result)
	})

	t.Run("timeout is retried", func(t *testing.T) {
		record := createProcessing(t, manager, typeEcho, echoParamsJSON("x"))

		outcome, err := manager.Fail(ctx, record.ID, ErrTimeout)
		require.NoError(t, err)
		assert.True(t, outcome.Retry)
		assert.Equal(t, 1, outcome.Record.Retries)
	})

	t.Run("error text is redacted", func(t *testing.T) {
		record := createProcessing(t, manager, typeEcho, echoParamsJSON("x"))

		outcome, err := manager.Fail(ctx, record.ID, errors.New("dial postgres://app:s3cret@db:5432/jobs"))
		require.NoError(t, err)
		assert.NotContains(t, outcome.Record.Result, "s3cret")
	})

	t.Run("not processing", func(t *testing.T) {
		id, err := manager.Create(ctx, typeEcho, echoParamsJSON("x"))
		require.NoError(t, err)

		_, err = manager.Fail(ctx, id, errors.New("x"))
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := manager.Fail(ctx, uuid.New(), errors.New("x"))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestManager_FailWithZeroRetries(t *testing.T) {
	t.Parallel()

	manager, _ := newTestManager(t, echoRegistry(t, WithMaxRetries(0)))
	record := createProcessing(t, manager, typeEcho, echoParamsJSON("x"))

	outcome, err := manager.Fail(context.Background(), record.ID, errors.New("boom"))
	require.NoError(t, err)
	assert.True(t, outcome.Terminal)
	assert.Equal(t, StatusFailed, outcome.Record.Status)
}

func TestManager_Cancel(t *testing.T) {
	t.Parallel()

	manager, _ := newTestManager(t, echoRegistry(t))
	ctx := context.Background()

	t.Run("pending record", func(t *testing.T) {
		id, err := manager.Create(ctx, typeEcho, echoParamsJSON("x"))
		require.NoError(t, err)

		record, err := manager.Cancel(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, record.Status)
		assert.Equal(t, ResultCancelled, record.Result)
		assert.Equal(t, record.MaxRetries, record.Retries)

		// A stale queue entry no longer runs it.
		_, claimed, err := manager.Run(ctx, id)
		require.NoError(t, err)
		assert.False(t, claimed)
	})

	t.Run("processing record is left alone", func(t *testing.T) {
		record := createProcessing(t, manager, typeEcho, echoParamsJSON("x"))

		_, err := manager.Cancel(ctx, record.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)

		current, err := manager.Get(ctx, record.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusProcessing, current.Status)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := manager.Cancel(ctx, uuid.New())
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestManager_Resume(t *testing.T) {
	t.Parallel()

	manager, store := newTestManager(t, echoRegistry(t))
	ctx := context.Background()

	record := createProcessing(t, manager, typeEcho, echoParamsJSON("x"))
	// Simulate a crash between the failure and the requeue.
	msg := "crashed"
	_, err := store.Transition(ctx, Transition{
		ID: record.ID, From: StatusProcessing, To: StatusFailed,
		At: time.Now(), Result: &msg, IncrementRetries: true,
	})
	require.NoError(t, err)

	resumed, delay, err := manager.Resume(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, resumed.Status)
	assert.Equal(t, 10*time.Second, delay)
	assert.Equal(t, 1, resumed.Retries)
}

func TestManager_Purge(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	manager, store := newTestManager(t, echoRegistry(t), WithClock(clock.Now))
	ctx := context.Background()

	old := createProcessing(t, manager, typeEcho, echoParamsJSON("old"))
	_, err := manager.Complete(ctx, old.ID, "done")
	require.NoError(t, err)
	pendingOld, err := manager.Create(ctx, typeEcho, echoParamsJSON("pending"))
	require.NoError(t, err)

	clock.Advance(48 * time.Hour)
	recent := createProcessing(t, manager, typeEcho, echoParamsJSON("recent"))
	_, err = manager.Complete(ctx, recent.ID, "done")
	require.NoError(t, err)

	deleted, err := manager.Purge(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = store.Get(ctx, old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Get(ctx, pendingOld)
	assert.NoError(t, err, "non-terminal records are never purged")
	_, err = store.Get(ctx, recent.ID)
	assert.NoError(t, err)
}

func TestStatusNeverRegresses(t *testing.T) {
	t.Parallel()

	manager, store := newTestManager(t, echoRegistry(t))
	ctx := context.Background()
	record := createProcessing(t, manager, typeEcho, echoParamsJSON("x"))
	_, err := manager.Complete(ctx, record.ID, "done")
	require.NoError(t, err)

	for _, from := range []Status{StatusPending, StatusProcessing, StatusFailed} {
		_, err := store.Transition(ctx, Transition{ID: record.ID, From: from, To: StatusPending})
		assert.ErrorIs(t, err, ErrInvalidTransition, "from %s", from)
	}
	current, err := store.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, current.Status)
}
