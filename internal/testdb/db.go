//go:build integration

package testdb

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/phrazzld/coursework-jobs/internal/config"
	"github.com/phrazzld/coursework-jobs/internal/platform/postgres"
	"github.com/stretchr/testify/require"
)

// TestTimeout bounds connection and migration in tests.
const TestTimeout = 10 * time.Second

var migrateOnce sync.Once

// DatabaseURL returns the integration database URL, checking
// JOBS_DATABASE_URL then DATABASE_URL.
func DatabaseURL() string {
	if url := os.Getenv(config.EnvPrefix + "_DATABASE_URL"); url != "" {
		return url
	}
	return os.Getenv("DATABASE_URL")
}

// Open connects to the integration database, migrates it to the latest
// version and closes the connection when the test ends. The test is skipped
// when no database is configured.
func Open(t *testing.T) *sql.DB {
	t.Helper()

	url := DatabaseURL()
	if url == "" {
		t.Skip("DATABASE_URL not set - skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := postgres.Open(ctx, config.DatabaseConfig{URL: url, MaxOpenConns: 5, MaxIdleConns: 2}, log)
	require.NoError(t, err, "Failed to open test database")
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: failed to close database: %v", err)
		}
	})

	var migrateErr error
	migrateOnce.Do(func() {
		migrateErr = postgres.Migrate(ctx, db, postgres.MigrateUp, log)
	})
	require.NoError(t, migrateErr, "Failed to run migrations")
	return db
}

// WithTx executes a test function within a transaction, automatically rolling back
// after the test completes. This ensures test isolation and prevents side effects.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.Begin()
	require.NoError(t, err, "Failed to begin transaction")

	defer func() {
		// sql.ErrTxDone is expected if fn already finished the transaction
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("Warning: failed to rollback transaction: %v", err)
		}
	}()

	fn(t, tx)
}
