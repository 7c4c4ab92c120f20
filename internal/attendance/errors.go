package attendance

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for an empty scan code or actor.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when no registration carries the scanned code.
	ErrNotFound = errors.New("registration not found")
	// ErrRegistrationCancelled is returned when the code belongs to a cancelled registration.
	ErrRegistrationCancelled = errors.New("registration cancelled")
	// ErrPersistence wraps any store failure. The scan can be retried as-is.
	ErrPersistence = errors.New("persistence failure")
)

// IsRejection reports whether err is a final answer for the scanned code
// (as opposed to a transient failure worth re-scanning).
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrRegistrationCancelled)
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}
