//go:build integration

// Package testdb provides database helpers for integration tests.
//
// Tests run against the database named by JOBS_DATABASE_URL (or
// DATABASE_URL) and are skipped when neither is set. The schema is
// migrated once per connection and each test runs in its own transaction,
// which is rolled back when the test completes:
//
//	func TestTaskStore(t *testing.T) {
//	    db := testdb.Open(t)
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        s := postgres.NewTaskStore(tx, logger)
//	        ...
//	    })
//	}
package testdb
