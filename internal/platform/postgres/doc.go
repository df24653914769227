// Package postgres provides the PostgreSQL implementations of the task
// record store and of the coursework stores defined in internal/store.
// It owns the goose migrations for the tasks table, maps driver errors onto
// the store sentinels and persists notifications for the platform's inbox.
//
// All stores accept a store.DBTX so they run equally against a *sql.DB or
// inside a transaction.
package postgres
