package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Common errors returned by queues
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// Queue hands task ids to workers. Entries are hints, not state: the store
// stays authoritative, so a duplicate or stale id only costs a no-op Run.
type Queue interface {
	// Enqueue makes id available to workers immediately.
	Enqueue(ctx context.Context, id uuid.UUID) error

	// EnqueueAfter parks id for delay without occupying a worker.
	EnqueueAfter(ctx context.Context, id uuid.UUID, delay time.Duration) error

	// Dequeue blocks until an id is available, ctx is done or the queue is closed.
	Dequeue(ctx context.Context) (uuid.UUID, error)

	// Close stops accepting ids and releases blocked consumers.
	Close() error
}

// MemoryQueue is a buffered, in-process Queue. Delayed entries are held by
// timers and pushed to the buffer when they fire.
type MemoryQueue struct {
	ids    chan uuid.UUID
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	timers map[*time.Timer]struct{}
}

// NewMemoryQueue creates a new queue with the specified buffer size
func NewMemoryQueue(size int, logger *slog.Logger) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	return &MemoryQueue{
		ids:    make(chan uuid.UUID, size),
		logger: logger.With("component", "memory_queue"),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Enqueue adds an id to the queue for processing.
// Returns an error if the queue is full or closed.
func (q *MemoryQueue) Enqueue(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.ids <- id:
		q.logger.Debug("task enqueued",
			"task_id", id,
			"queue_len", len(q.ids),
			"queue_cap", cap(q.ids))
		return nil
	default:
		return fmt.Errorf("%w: queue capacity %d reached", ErrQueueFull, cap(q.ids))
	}
}

// EnqueueAfter schedules id to be enqueued once delay has elapsed.
func (q *MemoryQueue) EnqueueAfter(ctx context.Context, id uuid.UUID, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, id)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		delete(q.timers, timer)
		q.mu.Unlock()

		if err := q.Enqueue(context.Background(), id); err != nil {
			// The pending sweep picks the record up later.
			q.logger.Warn("failed to enqueue delayed task",
				"task_id", id,
				"error", err)
		}
	})
	q.timers[timer] = struct{}{}
	return nil
}

// Dequeue blocks until an id is available.
func (q *MemoryQueue) Dequeue(ctx context.Context) (uuid.UUID, error) {
	select {
	case <-ctx.Done():
		return uuid.Nil, ctx.Err()
	case id, ok := <-q.ids:
		if !ok {
			return uuid.Nil, ErrQueueClosed
		}
		return id, nil
	}
}

// Len returns the number of ids ready for workers.
func (q *MemoryQueue) Len() int {
	return len(q.ids)
}

// Close closes the queue, preventing further submission and dropping any
// parked entries.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	for timer := range q.timers {
		timer.Stop()
	}
	q.timers = nil
	close(q.ids)
	q.logger.Info("task queue closed")
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
