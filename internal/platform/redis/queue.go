// Package redis provides a task.Queue shared by every dispatcher process
// pointed at the same Redis instance. Ready ids live in a LIST consumed with
// BLPOP; delayed ids wait in a ZSET scored by their due time and are promoted
// atomically by a Lua script.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/coursework-jobs/internal/task"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultPollInterval = time.Second
	promoteBatch        = 100
)

// promoteScript moves due members of the delayed set to the ready list.
// KEYS[1] delayed zset, KEYS[2] ready list, ARGV[1] now in ms, ARGV[2] limit.
var promoteScript = goredis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(due) do
	redis.call('ZREM', KEYS[1], id)
	redis.call('RPUSH', KEYS[2], id)
end
return #due
`)

// ReadyKey is the LIST holding ids ready for workers.
func ReadyKey(prefix string) string {
	return prefix + ":ready"
}

// DelayedKey is the ZSET holding parked ids scored by due time in milliseconds.
func DelayedKey(prefix string) string {
	return prefix + ":delayed"
}

// Queue implements task.Queue on Redis.
type Queue struct {
	client       goredis.UniversalClient
	ready        string
	delayed      string
	pollInterval time.Duration
	logger       *slog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// NewQueue creates a Queue on client under prefix. pollInterval bounds how
// long a consumer blocks before promoting delayed ids again.
func NewQueue(client goredis.UniversalClient, prefix string, pollInterval time.Duration, logger *slog.Logger) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	if prefix == "" {
		return nil, errors.New("redis queue prefix cannot be empty")
	}
	if logger == nil {
		return nil, task.ErrNilLogger
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &Queue{
		client:       client,
		ready:        ReadyKey(prefix),
		delayed:      DelayedKey(prefix),
		pollInterval: pollInterval,
		logger:       logger.With("component", "redis_queue"),
		done:         make(chan struct{}),
	}, nil
}

var _ task.Queue = (*Queue)(nil)

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Enqueue pushes id to the tail of the ready list.
func (q *Queue) Enqueue(ctx context.Context, id uuid.UUID) error {
	if q.isClosed() {
		return task.ErrQueueClosed
	}
	if err := q.client.RPush(ctx, q.ready, id.String()).Err(); err != nil {
		return fmt.Errorf("failed to enqueue task %s: %w", id, err)
	}
	return nil
}

// EnqueueAfter parks id in the delayed set until delay has elapsed.
func (q *Queue) EnqueueAfter(ctx context.Context, id uuid.UUID, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, id)
	}
	if q.isClosed() {
		return task.ErrQueueClosed
	}
	due := time.Now().Add(delay).UnixMilli()
	if err := q.client.ZAdd(ctx, q.delayed, goredis.Z{
		Score:  float64(due),
		Member: id.String(),
	}).Err(); err != nil {
		return fmt.Errorf("failed to park task %s: %w", id, err)
	}
	return nil
}

// Promote moves due delayed ids to the ready list and returns how many moved.
func (q *Queue) Promote(ctx context.Context) (int, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	moved, err := promoteScript.Run(ctx, q.client,
		[]string{q.delayed, q.ready}, now, promoteBatch).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to promote delayed tasks: %w", err)
	}
	if moved > 0 {
		q.logger.Debug("delayed tasks promoted", "count", moved)
	}
	return moved, nil
}

// Dequeue blocks until an id is ready, ctx is done or the queue is closed.
func (q *Queue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-q.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if q.isClosed() {
			return uuid.Nil, task.ErrQueueClosed
		}
		if err := ctx.Err(); err != nil {
			return uuid.Nil, err
		}

		if _, err := q.Promote(ctx); err != nil && ctx.Err() == nil {
			q.logger.Warn("delayed promotion failed", "error", err)
		}

		res, err := q.client.BLPop(ctx, q.pollInterval, q.ready).Result()
		switch {
		case errors.Is(err, goredis.Nil):
			continue
		case err != nil:
			if q.isClosed() {
				return uuid.Nil, task.ErrQueueClosed
			}
			if ctx.Err() != nil {
				return uuid.Nil, ctx.Err()
			}
			q.logger.Error("blpop failed", "error", err)
			sleepCtx(ctx, q.pollInterval)
			continue
		}

		// res is [key, value]
		if len(res) != 2 {
			continue
		}
		id, err := uuid.Parse(res[1])
		if err != nil {
			q.logger.Warn("dropping malformed queue entry", "entry", res[1])
			continue
		}
		return id, nil
	}
}

// Len returns the number of ids in the ready list.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.ready).Result()
}

// Close stops accepting ids and releases blocked consumers. Parked and
// ready ids stay in Redis for the next process. The client is not closed.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	q.logger.Info("task queue closed")
	return nil
}

// sleepCtx waits for d and reports whether it elapsed before ctx ended.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// Connect parses url, creates a client and verifies it with PING.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opt, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := goredis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}
