package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// foreignKeyViolationCode is the PostgreSQL error code for a foreign
// key constraint violation.
const foreignKeyViolationCode = "23503"

// IsForeignKeyViolation checks if the given error is a PostgreSQL
// foreign key constraint violation.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolationCode
}
