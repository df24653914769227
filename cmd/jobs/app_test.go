package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/coursework-jobs/internal/config"
	"github.com/phrazzld/coursework-jobs/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, LogLevel: "info", ShutdownTimeout: 5 * time.Second},
		Redis:  config.RedisConfig{Prefix: "jobs", PollInterval: time.Second},
		Task: config.TaskConfig{
			Store:              config.BackendMemory,
			Queue:              config.BackendMemory,
			WorkerCount:        2,
			QueueSize:          10,
			Timeout:            time.Minute,
			MaxRetries:         3,
			RetryBaseDelay:     10 * time.Second,
			RetryStep:          10 * time.Second,
			RetryMaxDelay:      time.Minute,
			StuckAge:           10 * time.Minute,
			StuckCheckInterval: time.Minute,
		},
		Similarity: config.SimilarityConfig{
			Threshold: 0.75, MinBlockLength: 50, NGramMin: 3, NGramMax: 5, MaxSequenceLength: 50000,
		},
		Scheduler: config.SchedulerConfig{
			Enabled: true, CleanupSpec: "0 4 * * 0", RetentionDays: 30,
			ReminderSpec: "0 8 * * *", ReminderWindowHours: 24,
		},
	}
}

func TestNewApplication_MemoryBackends(t *testing.T) {
	require.NoError(t, config.Validate(memoryConfig()))

	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	app, err := newApplication(ctx, memoryConfig(), log)
	require.NoError(t, err)
	defer app.cleanup(ctx)

	assert.Nil(t, app.db)
	assert.Nil(t, app.redis)
	require.NotNil(t, app.scheduler)
	assert.Equal(t, 1, app.scheduler.Len(), "reminders are not scheduled without the coursework database")
	assert.Equal(t, []task.Type{task.TypeDataCleanup}, app.dispatcher.Manager().Registry().Types())

	h := app.router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{"task_type":"data_cleanup"}`))
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/api/tasks", strings.NewReader(`{"task_type":"plagiarism_check","parameters":{}}`))
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNewApplication_InvalidRecipient(t *testing.T) {
	cfg := memoryConfig()
	cfg.Notify.FailureRecipient = "not-a-uuid"

	_, err := newApplication(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.ErrorContains(t, err, "notify.failure_recipient")
}
