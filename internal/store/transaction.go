package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/phrazzld/coursework-jobs/internal/platform/logger"
)

// TxFn is the body of a transaction. Returning an error rolls it back.
type TxFn func(ctx context.Context, tx *sql.Tx) error

// Transactor runs a function inside a transaction. Jobs depend on it rather
// than on *sql.DB so they can be exercised without a database.
type Transactor interface {
	InTx(ctx context.Context, fn TxFn) error
}

// DBTransactor implements Transactor on a database handle.
type DBTransactor struct {
	DB *sql.DB

	// Opts is passed to BeginTx. Nil keeps the driver defaults.
	Opts *sql.TxOptions
}

// InTx commits when fn returns nil and rolls back otherwise. A panic in fn
// rolls back and is re-raised to the caller. A failed rollback is joined to
// the error from fn.
func (t DBTransactor) InTx(ctx context.Context, fn TxFn) (err error) {
	tx, err := t.DB.BeginTx(ctx, t.Opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	done := false
	defer func() {
		if done {
			return
		}
		p := recover()
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.FromContext(ctx).Error("transaction rollback failed",
				"error", rbErr,
				"panicked", p != nil)
			err = errors.Join(err, fmt.Errorf("failed to roll back transaction: %w", rbErr))
		}
		if p != nil {
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	done = true
	return nil
}
