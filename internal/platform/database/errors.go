package database

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// AsPgError unwraps the Postgres server error carried by err, if any.
func AsPgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
