package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a unique constraint violation, usually a duplicate email.
	ErrConflict = errors.New("record already exists")
	// ErrConstraint indicates a CHECK constraint violation.
	ErrConstraint = errors.New("record violates a constraint")
)

const (
	pgUniqueViolation = "23505"
	pgCheckViolation  = "23514"
)

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return ErrConflict
		case pgCheckViolation:
			return ErrConstraint
		}
	}
	return err
}
