// Package store defines the persistence contracts the background jobs use
// for platform entities, plus shared primitives: the DBTX abstraction over
// *sql.DB and *sql.Tx, transaction helpers and error sentinels.
// Implementations live in internal/platform/postgres.
package store
