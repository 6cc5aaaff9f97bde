package dbx

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophsync/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes for the constraints the schema declares.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// MapError converts constraint violations reported by PostgreSQL into
// common.ErrAlreadyExists or common.ErrInvalidReference, keeping the
// driver error in the chain. Other errors are returned unchanged.
func MapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%w: %s: %w", common.ErrAlreadyExists, pgErr.ConstraintName, err)
	case pgForeignKeyViolation:
		return fmt.Errorf("%w: %s: %w", common.ErrInvalidReference, pgErr.ConstraintName, err)
	default:
		return err
	}
}
