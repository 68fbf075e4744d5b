package errorsx

import (
	"errors"
	"fmt"
)

// Error tags a failure with the reason code logged for it and, optionally,
// the operation that was running.
type Error struct {
	Reason ReasonCode
	Op     string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Err == nil:
		return string(e.Reason)
	case e.Op == "":
		return e.Err.Error()
	default:
		return e.Op + ": " + e.Err.Error()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with reason. The innermost reason wins, so a provider's
// rate-limit code survives callers wrapping it again.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	if Reason(err) != ReasonUnknown {
		return err
	}
	return &Error{Reason: reason, Err: err}
}

// Wrapf is Wrap with an operation prefix on the message.
func Wrapf(err error, reason ReasonCode, format string, args ...any) error {
	if err == nil {
		return nil
	}
	op := fmt.Sprintf(format, args...)
	if Reason(err) != ReasonUnknown {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &Error{Reason: reason, Op: op, Err: err}
}

// Reason returns the innermost reason code on err's chain.
func Reason(err error) ReasonCode {
	var e *Error
	if errors.As(err, &e) && e.Reason != "" {
		return e.Reason
	}
	return ReasonUnknown
}

func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

// kinds is ordered by precedence when a chain matches several.
var kinds = []error{ErrValidation, ErrUnauthorized, ErrForbidden, ErrNotFound, ErrConflict}

// Kind returns the caller-facing sentinel err belongs to, or nil when err
// is an internal failure.
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
