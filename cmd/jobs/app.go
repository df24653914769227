package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/coursework-jobs/internal/api"
	"github.com/phrazzld/coursework-jobs/internal/config"
	"github.com/phrazzld/coursework-jobs/internal/events"
	"github.com/phrazzld/coursework-jobs/internal/jobs"
	"github.com/phrazzld/coursework-jobs/internal/platform/postgres"
	"github.com/phrazzld/coursework-jobs/internal/platform/redis"
	"github.com/phrazzld/coursework-jobs/internal/platform/telemetry"
	"github.com/phrazzld/coursework-jobs/internal/scheduler"
	"github.com/phrazzld/coursework-jobs/internal/similarity"
	"github.com/phrazzld/coursework-jobs/internal/store"
	"github.com/phrazzld/coursework-jobs/internal/task"
	goredis "github.com/redis/go-redis/v9"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	// Connections, nil when the matching backend is in-memory
	db    *sql.DB
	redis *goredis.Client

	metrics    *telemetry.Provider
	dispatcher *task.Dispatcher
	emitter    *events.InMemoryEventEmitter
	scheduler  *scheduler.Scheduler
}

// newApplication creates a new application instance with all dependencies initialized.
// Connections opened before a failure are released.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}
	if err := app.init(ctx); err != nil {
		app.cleanup(ctx)
		return nil, err
	}
	logger.Info("application initialized",
		"task_store", cfg.Task.Store,
		"task_queue", cfg.Task.Queue,
		"worker_count", cfg.Task.WorkerCount)
	return app, nil
}

func (app *application) init(ctx context.Context) error {
	cfg := app.config
	var err error

	app.metrics, err = telemetry.InitMetrics()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	taskStore, err := app.openTaskStore(ctx)
	if err != nil {
		return err
	}
	queue, err := app.openQueue(ctx)
	if err != nil {
		return err
	}

	// Every notification is logged; with a database it is also persisted.
	sink := events.NewFanout(app.logger, events.NewLogSink(app.logger))
	if app.db != nil {
		sink.Register(postgres.NewNotificationStore(app.db, app.logger))
	}

	registry := task.NewRegistry()
	manager, err := task.NewManager(taskStore, registry, app.logger,
		task.WithRetryPolicy(task.RetryPolicy{
			BaseDelay: cfg.Task.RetryBaseDelay,
			Step:      cfg.Task.RetryStep,
			MaxDelay:  cfg.Task.RetryMaxDelay,
		}))
	if err != nil {
		return fmt.Errorf("failed to create task manager: %w", err)
	}

	deps := jobs.Dependencies{
		Sink: sink,
		Engine: similarity.NewEngine(similarity.Options{
			MinBlockLength:    cfg.Similarity.MinBlockLength,
			Threshold:         cfg.Similarity.Threshold,
			NGramMin:          cfg.Similarity.NGramMin,
			NGramMax:          cfg.Similarity.NGramMax,
			MaxSequenceLength: cfg.Similarity.MaxSequenceLength,
		}),
		Purger:        manager,
		RetentionDays: cfg.Scheduler.RetentionDays,
		MaxRetries:    cfg.Task.MaxRetries,
		Logger:        app.logger,
	}
	if app.db != nil {
		deps.Submissions = postgres.NewSubmissionStore(app.db, app.logger)
		deps.Courses = postgres.NewCourseStore(app.db, app.logger)
		deps.Enrollments = postgres.NewEnrollmentStore(app.db, app.logger)
		deps.Transactor = store.DBTransactor{DB: app.db}
	}
	if err := jobs.RegisterAll(registry, deps); err != nil {
		return fmt.Errorf("failed to register jobs: %w", err)
	}
	app.logger.Info("task types registered", "types", registry.Types())

	taskMetrics, err := task.NewMetrics(app.metrics.Meter())
	if err != nil {
		return fmt.Errorf("failed to create task metrics: %w", err)
	}

	dispatcherConfig := task.DispatcherConfig{
		WorkerCount:            cfg.Task.WorkerCount,
		TaskTimeout:            cfg.Task.Timeout,
		StuckTaskAge:           cfg.Task.StuckAge,
		StuckTaskCheckInterval: cfg.Task.StuckCheckInterval,
	}
	if cfg.Notify.FailureRecipient != "" {
		recipient, err := uuid.Parse(cfg.Notify.FailureRecipient)
		if err != nil {
			return fmt.Errorf("invalid notify.failure_recipient: %w", err)
		}
		dispatcherConfig.FailureRecipient = recipient
	}

	app.dispatcher, err = task.NewDispatcher(manager, queue, dispatcherConfig, app.logger,
		task.WithSink(sink),
		task.WithMetrics(taskMetrics))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	app.emitter = events.NewInMemoryEventEmitter(app.logger)
	app.emitter.RegisterHandler(task.NewSubmitEventHandler(app.dispatcher, app.logger))

	if cfg.Scheduler.Enabled {
		app.scheduler, err = scheduler.New(app.emitter, app.logger)
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		err = app.scheduler.Add(scheduler.Entry{
			Spec:     cfg.Scheduler.CleanupSpec,
			TaskType: string(task.TypeDataCleanup),
			Params:   jobs.DataCleanupParams{OlderThanDays: cfg.Scheduler.RetentionDays},
		})
		if err != nil {
			return fmt.Errorf("failed to schedule data cleanup: %w", err)
		}

		// Reminders need the coursework database.
		if cfg.Scheduler.ReminderSpec != "" && registry.Has(task.TypeAssignmentReminders) {
			err = app.scheduler.Add(scheduler.Entry{
				Spec:     cfg.Scheduler.ReminderSpec,
				TaskType: string(task.TypeAssignmentReminders),
				Params:   jobs.AssignmentReminderParams{WindowHours: cfg.Scheduler.ReminderWindowHours},
			})
			if err != nil {
				return fmt.Errorf("failed to schedule assignment reminders: %w", err)
			}
		}
	}
	return nil
}

func (app *application) openTaskStore(ctx context.Context) (task.Store, error) {
	if app.config.Task.Store != config.BackendPostgres {
		app.logger.Warn("using in-memory task store, tasks do not survive a restart")
		return task.NewMemoryStore(), nil
	}

	db, err := postgres.Open(ctx, app.config.Database, app.logger)
	if err != nil {
		return nil, err
	}
	app.db = db
	return postgres.NewTaskStore(db, app.logger), nil
}

func (app *application) openQueue(ctx context.Context) (task.Queue, error) {
	if app.config.Task.Queue != config.BackendRedis {
		return task.NewMemoryQueue(app.config.Task.QueueSize, app.logger), nil
	}

	client, err := redis.Connect(ctx, app.config.Redis.URL)
	if err != nil {
		return nil, err
	}
	app.redis = client

	queue, err := redis.NewQueue(client, app.config.Redis.Prefix, app.config.Redis.PollInterval, app.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis queue: %w", err)
	}
	return queue, nil
}

// router builds the HTTP handler of the running service.
func (app *application) router() http.Handler {
	checks := map[string]api.HealthCheck{}
	if app.db != nil {
		checks["database"] = app.db.PingContext
	}
	if app.redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return app.redis.Ping(ctx).Err()
		}
	}

	return api.NewRouter(api.RouterConfig{
		Tasks:   app.dispatcher,
		Metrics: app.metrics.Handler(),
		Checks:  checks,
		Logger:  app.logger,
	})
}

// Run starts the workers, the scheduler and the HTTP server and blocks until
// ctx is cancelled or the server fails.
func (app *application) Run(ctx context.Context) error {
	if err := app.dispatcher.Start(ctx); err != nil {
		app.cleanup(context.Background())
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}
	if app.scheduler != nil {
		app.scheduler.Start()
	}

	if err := app.startHTTPServer(ctx, app.router()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup(ctx context.Context) {
	if app.scheduler != nil {
		app.scheduler.Stop(ctx)
	}

	if app.dispatcher != nil {
		if err := app.dispatcher.Stop(ctx); err != nil {
			app.logger.Error("dispatcher did not drain before the shutdown timeout", "error", err)
		}
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis connection", "error", err)
		}
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	if app.metrics != nil {
		if err := app.metrics.Shutdown(ctx); err != nil {
			app.logger.Error("error shutting down metrics", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}
