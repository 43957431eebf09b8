package store

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a write violates a uniqueness or
	// referential constraint.
	ErrConflict = errors.New("conflict")
)

const (
	pqUniqueViolation     = pq.ErrorCode("23505")
	pqForeignKeyViolation = pq.ErrorCode("23503")
)

// translate maps driver constraint errors onto ErrConflict and leaves
// everything else untouched.
func translate(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation, pqForeignKeyViolation:
			return &ConflictError{Constraint: pqErr.Constraint, err: err}
		}
	}
	return err
}

// ConflictError carries the violated constraint name. It matches ErrConflict
// under errors.Is.
type ConflictError struct {
	Constraint string
	err        error
}

func (e *ConflictError) Error() string {
	if e.Constraint == "" {
		return "conflict"
	}
	return "conflict on " + e.Constraint
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

func (e *ConflictError) Unwrap() error { return e.err }

// expectAffected returns ErrNotFound when a write touched no rows.
func expectAffected(n int64, err error) error {
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
