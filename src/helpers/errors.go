package helpers

import (
	"errors"
	"fmt"
)

// -----------------------------------------------------------------------------
// Error Taxonomy
// -----------------------------------------------------------------------------

// Sentinel errors for the failure classes surfaced to callers. Wrapped errors
// carry context; callers classify with errors.Is.
var (
	// Validation (never retried, surfaced immediately)
	ErrInvalidIdentifier = errors.New("invalid identifier")
	ErrInvalidTimeframe  = errors.New("invalid timeframe")
	ErrInvalidInput      = errors.New("invalid input")

	// Resource exhaustion (caller may retry shortly)
	ErrPoolExhausted = errors.New("connection pool exhausted")

	// Contention (retried internally, surfaced after attempts run out)
	ErrStorageContention = errors.New("storage contention")

	// Unavailable (fatal for the request, process keeps serving)
	ErrStorageUnavailable = errors.New("storage unavailable")

	ErrNotFound = errors.New("not found")
)

// -----------------------------------------------------------------------------

// ViewerError wraps a cause with a message while preserving the sentinel chain.
type ViewerError struct {
	Message  string
	Sentinel error
	Cause    error
}

func (e *ViewerError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ViewerError) Unwrap() error {
	return e.Sentinel
}

// -----------------------------------------------------------------------------

// WrapError attaches a message and optional cause to a sentinel so that
// errors.Is(err, sentinel) holds on the result.
func WrapError(sentinel error, cause error, format string, args ...interface{}) error {
	return &ViewerError{
		Message:  fmt.Sprintf(format, args...),
		Sentinel: sentinel,
		Cause:    cause,
	}
}

// -----------------------------------------------------------------------------

// IsValidation reports whether err belongs to the validation class.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidIdentifier) ||
		errors.Is(err, ErrInvalidTimeframe) ||
		errors.Is(err, ErrInvalidInput)
}

// -----------------------------------------------------------------------------

// IsRetryable reports whether the caller may usefully retry the request
// after a short delay.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrPoolExhausted) || errors.Is(err, ErrStorageContention)
}
