package retry

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
)

var (
	ErrExhausted = errors.New("retry attempts exhausted")
	ErrCancelled = errors.New("retry cancelled")
)

// ExhaustedError is returned when every attempt failed transiently. Errors
// holds one entry per attempt, in attempt order.
type ExhaustedError struct {
	Op     string
	Errors []error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s %s after %d attempts: %v", ErrExhausted, e.Op, len(e.Errors), multierr.Combine(e.Errors...))
}

func (e *ExhaustedError) Unwrap() []error {
	return append([]error(nil), e.Errors...)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// CancelledError is returned when the context ends during a backoff wait.
// Errors holds the attempts made before the wait.
type CancelledError struct {
	Op     string
	Cause  error
	Errors []error
}

func (e *CancelledError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("%s %s: %v", ErrCancelled, e.Op, e.Cause)
	}
	return fmt.Sprintf("%s %s after %d attempts: %v: %v", ErrCancelled, e.Op, len(e.Errors), e.Cause, multierr.Combine(e.Errors...))
}

func (e *CancelledError) Unwrap() []error {
	return append([]error{e.Cause}, e.Errors...)
}

func (e *CancelledError) Is(target error) bool {
	return target == ErrCancelled
}

// Attempts returns the per attempt failures carried by an ExhaustedError or
// CancelledError anywhere in err's chain.
func Attempts(err error) []error {
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Errors
	}
	var cancelled *CancelledError
	if errors.As(err, &cancelled) {
		return cancelled.Errors
	}
	return nil
}
