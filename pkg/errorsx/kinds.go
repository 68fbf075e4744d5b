package errorsx

import (
	"errors"
	"fmt"
)

// Error kinds surfaced to callers. Compare with errors.Is.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")

	// ErrInvalidTransition is a Conflict raised by illegal status changes.
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", ErrConflict)

	// ErrCallEnded is the Conflict returned when a turn targets a session that no longer accepts turns.
	ErrCallEnded = fmt.Errorf("%w: call has ended", ErrConflict)
)

// Validation builds a validation error with a formatted message.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound builds a not-found error naming the missing entity.
func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}
