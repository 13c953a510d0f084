// Package errhandling marks errors as worth retrying or not. The marks
// survive further wrapping with %w.
package errhandling

import (
	"errors"
	"fmt"
)

// Kind is the retry disposition of an error. A Kind is itself usable as an
// errors.Is target, so IsTransient(err) is errors.Is(err, Transient).
type Kind int

const (
	Unmarked Kind = iota
	Transient
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Fatal:
		return "fatal"
	default:
		return "unmarked"
	}
}

func (k Kind) Error() string {
	return k.String() + " error"
}

type markedError struct {
	kind Kind
	err  error
}

func (e *markedError) Error() string {
	return e.kind.Error() + ": " + e.err.Error()
}

func (e *markedError) Unwrap() error {
	return e.err
}

func (e *markedError) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k != Unmarked && k == e.kind
}

// Mark wraps err with kind. Marking with Unmarked, or marking nil, returns
// err unchanged.
func Mark(kind Kind, err error) error {
	if err == nil || kind == Unmarked {
		return err
	}
	return &markedError{kind: kind, err: err}
}

// KindOf returns the outermost mark on err.
func KindOf(err error) Kind {
	var m *markedError
	if errors.As(err, &m) {
		return m.kind
	}
	return Unmarked
}

// NewTransientError indicates a retry is appropriate. It is up to the
// consumer to decide whether to retry.
func NewTransientError(err error) error {
	return Mark(Transient, err)
}

func NewTransientErrorf(format string, a ...any) error {
	return Mark(Transient, fmt.Errorf(format, a...))
}

// NewFatalError marks err as one that will not resolve on retry. Retry loops
// stop at the first fatal error regardless of any classifier.
func NewFatalError(err error) error {
	return Mark(Fatal, err)
}

func NewFatalErrorf(format string, a ...any) error {
	return Mark(Fatal, fmt.Errorf(format, a...))
}

// IsTransient reports whether any error in the chain was marked transient.
func IsTransient(err error) bool {
	return errors.Is(err, Transient)
}

// IsFatal reports whether any error in the chain was marked fatal.
func IsFatal(err error) bool {
	return errors.Is(err, Fatal)
}
