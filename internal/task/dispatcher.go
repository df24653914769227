package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/coursework-jobs/internal/events"
	"github.com/phrazzld/coursework-jobs/internal/platform/logger"
)

// ErrDispatcherStarted is returned when Start is called twice.
var ErrDispatcherStarted = errors.New("dispatcher already started")

// StuckAgeMargin is the minimum gap kept between the longest handler timeout
// and StuckTaskAge.
const StuckAgeMargin = time.Minute

// DispatcherConfig holds configuration for the dispatcher
type DispatcherConfig struct {
	// WorkerCount determines how many tasks run concurrently
	WorkerCount int

	// TaskTimeout is the execution ceiling for a handler unless its
	// registration sets its own
	TaskTimeout time.Duration

	// StuckTaskAge defines how long a record can sit in processing before it
	// is considered lost. Pending and failed records untouched for this long
	// are also re-queued by the monitor. It is raised to the longest handler
	// timeout plus StuckAgeMargin when set lower.
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often the monitor runs
	StuckTaskCheckInterval time.Duration

	// FailureRecipient receives task_failed notifications
	FailureRecipient uuid.UUID
}

// DefaultDispatcherConfig returns a DispatcherConfig with reasonable defaults
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		WorkerCount:            4,
		TaskTimeout:            300 * time.Second,
		StuckTaskAge:           10 * time.Minute,
		StuckTaskCheckInterval: time.Minute,
	}
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithSink sets where terminal failure notifications go.
func WithSink(sink events.Sink) DispatcherOption {
	return func(d *Dispatcher) {
		d.sink = sink
	}
}

// WithMetrics sets the instruments the dispatcher records to.
func WithMetrics(m *Metrics) DispatcherOption {
	return func(d *Dispatcher) {
		if m != nil {
			d.metrics = m
		}
	}
}

// Dispatcher runs a fixed pool of workers that pull task ids from a Queue,
// claim them through the Manager and execute the registered handler.
type Dispatcher struct {
	manager *Manager
	queue   Queue
	sink    events.Sink
	metrics *Metrics
	config  DispatcherConfig
	logger  *slog.Logger

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup

	// runCtx parents every handler run. It is only cancelled when Stop gives
	// up waiting.
	runCtx  context.Context
	abandon context.CancelFunc

	mu      sync.Mutex
	started bool
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(
	manager *Manager,
	queue Queue,
	config DispatcherConfig,
	log *slog.Logger,
	opts ...DispatcherOption,
) (*Dispatcher, error) {
	if manager == nil {
		return nil, ErrNilManager
	}
	if queue == nil {
		return nil, ErrNilQueue
	}
	if log == nil {
		return nil, ErrNilLogger
	}

	defaults := DefaultDispatcherConfig()
	if config.WorkerCount <= 0 {
		log.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", defaults.WorkerCount)
		config.WorkerCount = defaults.WorkerCount
	}
	if config.TaskTimeout <= 0 {
		config.TaskTimeout = defaults.TaskTimeout
	}
	if config.StuckTaskAge <= 0 {
		config.StuckTaskAge = defaults.StuckTaskAge
	}
	if config.StuckTaskCheckInterval <= 0 {
		config.StuckTaskCheckInterval = defaults.StuckTaskCheckInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	runCtx, abandon := context.WithCancel(context.Background())
	d := &Dispatcher{
		manager:    manager,
		queue:      queue,
		config:     config,
		logger:     log.With("component", "dispatcher"),
		ctx:        ctx,
		cancelFunc: cancel,
		runCtx:     runCtx,
		abandon:    abandon,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.metrics == nil {
		m, err := NewMetrics(nil)
		if err != nil {
			cancel()
			abandon()
			return nil, err
		}
		d.metrics = m
	}
	d.guardStuckAge()
	return d, nil
}

// guardStuckAge keeps StuckTaskAge above every handler timeout, so the
// monitor never fails a record whose handler can still be running.
func (d *Dispatcher) guardStuckAge() {
	longest := d.config.TaskTimeout
	for _, typ := range d.manager.registry.Types() {
		longest = max(longest, d.manager.registry.Timeout(typ))
	}

	floor := longest + StuckAgeMargin
	if d.config.StuckTaskAge >= floor {
		return
	}
	d.logger.Warn("stuck task age below the longest task timeout, raising it",
		"configured", d.config.StuckTaskAge,
		"longest_timeout", longest,
		"stuck_task_age", floor)
	d.config.StuckTaskAge = floor
}

// StuckTaskAge returns the effective stuck threshold.
func (d *Dispatcher) StuckTaskAge() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config.StuckTaskAge
}

// Manager returns the lifecycle manager the dispatcher reports to.
func (d *Dispatcher) Manager() *Manager {
	return d.manager
}

// Submit creates a pending record and queues it. A full queue is not an
// error: the record is durable and the monitor picks it up later.
func (d *Dispatcher) Submit(ctx context.Context, typ Type, params json.RawMessage) (uuid.UUID, error) {
	id, err := d.manager.Create(ctx, typ, params)
	if err != nil {
		return uuid.Nil, err
	}

	if err := d.queue.Enqueue(ctx, id); err != nil {
		if errors.Is(err, ErrQueueFull) {
			d.logger.Warn("queue full, task left pending for the monitor",
				"task_id", id,
				"task_type", typ)
			return id, nil
		}
		return id, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return id, nil
}

// Get returns the current record for id.
func (d *Dispatcher) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return d.manager.Get(ctx, id)
}

// Cancel fails a pending record. Its queue entry becomes a no-op.
func (d *Dispatcher) Cancel(ctx context.Context, id uuid.UUID) (*Record, error) {
	return d.manager.Cancel(ctx, id)
}

// Start recovers unfinished records and launches the workers and the monitor.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return ErrDispatcherStarted
	}

	// Handlers may have been registered after NewDispatcher.
	d.guardStuckAge()

	if err := d.Recover(ctx); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	for i := 0; i < d.config.WorkerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}

	d.wg.Add(1)
	go d.stuckTaskMonitor()

	d.started = true
	d.logger.Info("dispatcher started", "worker_count", d.config.WorkerCount)
	return nil
}

// Stop signals the workers to exit and waits for in-flight tasks until ctx
// is done. On expiry the remaining handler contexts are cancelled and
// ctx.Err() is returned; their records stay in processing for the monitor of
// the next run. The queue is closed either way.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.cancelFunc()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		d.logger.Warn("shutdown deadline reached, abandoning in-flight tasks", "error", err)
	}
	d.abandon()

	if cerr := d.queue.Close(); cerr != nil {
		d.logger.Error("failed to close queue", "error", cerr)
	}
	d.logger.Info("dispatcher stopped")
	return err
}

// Recover re-queues every pending record, fails processing records that have
// been stuck longer than StuckTaskAge and resumes failed records that still
// have retries left.
func (d *Dispatcher) Recover(ctx context.Context) error {
	return d.sweep(ctx, 0)
}

// sweep re-queues records the queue may have lost. Pending and failed records
// are only considered once untouched for pendingAge.
func (d *Dispatcher) sweep(ctx context.Context, pendingAge time.Duration) error {
	store := d.manager.store
	now := d.manager.now()

	pending, err := store.ListByStatus(ctx, StatusPending, pendingAge)
	if err != nil {
		return fmt.Errorf("failed to get pending tasks: %w", err)
	}
	stuck, err := store.ListByStatus(ctx, StatusProcessing, d.config.StuckTaskAge)
	if err != nil {
		return fmt.Errorf("failed to get processing tasks: %w", err)
	}
	failed, err := store.ListByStatus(ctx, StatusFailed, pendingAge)
	if err != nil {
		return fmt.Errorf("failed to get failed tasks: %w", err)
	}

	if len(pending)+len(stuck)+len(failed) > 0 {
		d.logger.Info("recovering unfinished tasks",
			"pending_count", len(pending),
			"processing_count", len(stuck),
			"failed_count", len(failed))
	}

	for _, record := range pending {
		var delay time.Duration
		if record.NextRunAt != nil && record.NextRunAt.After(now) {
			delay = record.NextRunAt.Sub(now)
		}
		d.park(ctx, record.ID, record.Type, delay)
	}

	for _, record := range stuck {
		log := d.logger.With("task_id", record.ID, "task_type", record.Type)
		log.Warn("task stuck in processing, failing it", "started_at", record.StartedAt)
		outcome, err := d.manager.Fail(ctx, record.ID, Transient(ErrWorkerLost))
		if err != nil {
			log.Error("failed to fail stuck task", "error", err)
			continue
		}
		d.handleOutcome(ctx, log, outcome, 0)
	}

	for _, record := range failed {
		if !record.RetriesLeft() {
			continue
		}
		_, delay, err := d.manager.Resume(ctx, record.ID)
		if err != nil {
			d.logger.Error("failed to resume task",
				"task_id", record.ID,
				"task_type", record.Type,
				"error", err)
			continue
		}
		d.park(ctx, record.ID, record.Type, delay)
	}
	return nil
}

// worker processes tasks from the queue
func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()

	d.logger.Debug("starting worker", "worker_id", id)
	for {
		taskID, err := d.queue.Dequeue(d.ctx)
		if err != nil {
			if d.ctx.Err() != nil || errors.Is(err, ErrQueueClosed) {
				d.logger.Debug("stopping worker", "worker_id", id)
				return
			}
			d.logger.Error("failed to dequeue task", "worker_id", id, "error", err)
			select {
			case <-d.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		d.process(taskID, id)
	}
}

// process claims and executes a single task. It runs on runCtx rather than
// the worker context so shutdown lets in-flight tasks finish.
func (d *Dispatcher) process(id uuid.UUID, workerID int) {
	ctx := d.runCtx
	log := d.logger.With("task_id", id, "worker_id", workerID)

	record, claimed, err := d.manager.Run(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			log.Warn("dropping unknown task id")
			return
		}
		log.Error("failed to claim task", "error", err)
		return
	}
	if !claimed {
		log.Debug("task not pending, skipping", "status", record.Status)
		return
	}

	log = log.With("task_type", record.Type)
	log.Info("processing task", "attempt", record.Retries+1)
	d.metrics.recordStarted(ctx, record.Type)

	start := time.Now()
	result, execErr := d.execute(ctx, log, record)
	elapsed := time.Since(start)

	if execErr == nil {
		if _, err := d.manager.Complete(ctx, id, result); err != nil {
			log.Error("failed to update task status to completed", "error", err)
			return
		}
		d.metrics.recordFinished(ctx, record.Type, elapsed, outcomeCompleted)
		log.Info("task completed successfully", "duration", elapsed)
		return
	}

	log.Error("task execution failed", "error", execErr, "duration", elapsed)
	outcome, err := d.manager.Fail(ctx, id, execErr)
	if err != nil {
		log.Error("failed to update task status to failed", "error", err)
		return
	}
	d.handleOutcome(ctx, log, outcome, elapsed)
}

type execResult struct {
	result string
	err    error
}

// execute is the single tracking wrapper every handler runs through. It
// enforces the timeout even if the handler ignores its context and turns
// panics into failures.
func (d *Dispatcher) execute(ctx context.Context, log *slog.Logger, record *Record) (string, error) {
	timeout := d.manager.registry.Timeout(record.Type)
	if timeout <= 0 {
		timeout = d.config.TaskTimeout
	}

	runCtx, cancel := context.WithTimeout(logger.WithLogger(ctx, log), timeout)
	defer cancel()

	done := make(chan execResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- execResult{err: fmt.Errorf("handler panicked: %v", r)}
			}
		}()
		result, err := d.manager.registry.Execute(runCtx, record.Type, record.Parameters)
		done <- execResult{result: result, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s: %v", ErrTimeout, timeout, res.err)
		}
		return res.result, res.err
	case <-runCtx.Done():
		return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}

// handleOutcome parks retries and announces terminal failures.
func (d *Dispatcher) handleOutcome(ctx context.Context, log *slog.Logger, outcome Outcome, elapsed time.Duration) {
	record := outcome.Record
	switch {
	case outcome.Retry:
		d.metrics.recordFinished(ctx, record.Type, elapsed, outcomeRetried)
		log.Info("task scheduled for retry",
			"retries", record.Retries,
			"max_retries", record.MaxRetries,
			"delay", outcome.Delay)
		d.park(ctx, record.ID, record.Type, outcome.Delay)

	case outcome.Terminal:
		d.metrics.recordFinished(ctx, record.Type, elapsed, outcomeFailed)
		log.Error("task failed permanently",
			"retries", record.Retries,
			"max_retries", record.MaxRetries)
		d.notifyFailure(ctx, log, record)
	}
}

func (d *Dispatcher) park(ctx context.Context, id uuid.UUID, typ Type, delay time.Duration) {
	var err error
	if delay > 0 {
		err = d.queue.EnqueueAfter(ctx, id, delay)
	} else {
		err = d.queue.Enqueue(ctx, id)
	}
	if err != nil {
		d.logger.Error("failed to requeue task, leaving it for the monitor",
			"task_id", id,
			"task_type", typ,
			"error", err)
	}
}

// notifyFailure is best effort; a sink error never changes the record.
func (d *Dispatcher) notifyFailure(ctx context.Context, log *slog.Logger, record *Record) {
	if d.sink == nil {
		return
	}
	n := events.NewNotification(
		d.config.FailureRecipient,
		events.NotificationTaskFailed,
		fmt.Sprintf("Task %s of type %s failed after %d attempts", record.ID, record.Type, record.Retries),
		map[string]any{
			"task_id":   record.ID.String(),
			"task_type": string(record.Type),
			"retries":   record.Retries,
			"error":     record.Result,
		},
	)
	if err := d.sink.Emit(ctx, n); err != nil {
		log.Error("failed to emit task failure notification", "error", err)
	}
}

// stuckTaskMonitor periodically sweeps for records the queue has lost track of
func (d *Dispatcher) stuckTaskMonitor() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			if err := d.sweep(context.Background(), d.config.StuckTaskAge); err != nil {
				d.logger.Error("failed to check for stuck tasks", "error", err)
			}
		}
	}
}
