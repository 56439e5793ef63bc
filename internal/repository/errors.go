package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	errNoIDs             = errors.New("no deposit ids given")
	errMissingSweepTx    = errors.New("swept outcome requires a sweep transaction hash")
	errUnexpectedSweepTx = errors.New("empty outcome must not carry a sweep transaction hash")
	errUnknownOutcome    = errors.New("unknown sweep outcome")
)

const pgUniqueViolation = "23505"

// uniqueViolation returns the violated constraint name, if err is a unique violation
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}
