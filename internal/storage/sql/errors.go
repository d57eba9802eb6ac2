package storagesql

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openkcm/age-gate/internal/serviceerr"
)

const pgCodeUniqueViolation = "23505"

// handlePgError maps known postgres errors to service errors.
func handlePgError(err error) (error, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgCodeUniqueViolation {
		return errors.Join(serviceerr.ErrConflict, err), true
	}

	return err, false
}
