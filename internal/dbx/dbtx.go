// Package dbx holds what the replica, session and quota repositories share:
// the DBTX handle, transactional execution of reconciliation steps and
// mapping of PostgreSQL constraint violations onto the sentinel errors in
// internal/common.
//
// Repositories wrap every driver error with MapError before returning it so
// services can match common.ErrAlreadyExists and common.ErrInvalidReference
// with errors.Is without importing pgconn.
package dbx

import (
	"context"
	"database/sql"
	"fmt"
)

// DBTX is implemented by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction and commits when fn returns nil.
// An error or panic from fn rolls back; the panic is rethrown and fn's error
// is returned as is, since repositories have already mapped it.
//
// PostgreSQL reports deferrable constraint violations at COMMIT, so a
// commit failure goes through MapError as well.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("commit tx: %w", MapError(cerr))
		}
	}()

	return fn(ctx, tx)
}
