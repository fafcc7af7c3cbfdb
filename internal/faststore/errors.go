package faststore

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrSessionNotFound  = errors.New("faststore: session not found")
	ErrBookingNotFound  = errors.New("faststore: booking not found")
	ErrContactNotFound  = errors.New("faststore: contact not found")
	ErrDuplicateBooking = errors.New("faststore: duplicate booking")
)

// uniqueViolationCode is the Postgres SQLSTATE for a unique constraint
// violation (23505).
const uniqueViolationCode = "23505"

// IsUniqueViolationError reports whether err wraps a Postgres unique
// constraint violation, the signal a duplicate-booking insert surfaces
// as instead of an application-level pre-check.
func IsUniqueViolationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
