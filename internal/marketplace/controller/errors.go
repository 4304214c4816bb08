package controller

import (
	"errors"
	"fmt"
)

// ErrValidation covers malformed or incomplete requests. These are rejected
// before anything touches the ledger or the projection.
var ErrValidation = errors.New("validation failed")

// ErrStateConflict covers requests that are well-formed but illegal for the
// job's current state: wrong status, wrong actor, expired deadline, or losing
// a conditional update race.
var ErrStateConflict = errors.New("state conflict")

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func conflictError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrStateConflict, fmt.Sprintf(format, args...))
}
