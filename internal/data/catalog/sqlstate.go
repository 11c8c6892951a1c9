package catalog

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the engines branch on.
const (
	StateUndefinedTable                = "42P01"
	StateLockNotAvailable              = "55P03"
	StateFeatureNotSupported           = "0A000"
	StateObjectInUse                   = "55006"
	StateObjectNotInPrerequisiteState = "55000"
)

// SQLState extracts the Postgres SQLSTATE from an error chain, or "".
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUndefinedTable reports whether err is Postgres undefined_table.
func IsUndefinedTable(err error) bool {
	return SQLState(err) == StateUndefinedTable
}

// IsLockNotAvailable reports whether err is a bounded lock-wait timeout.
func IsLockNotAvailable(err error) bool {
	code := SQLState(err)
	return code == StateLockNotAvailable || code == StateObjectInUse
}
