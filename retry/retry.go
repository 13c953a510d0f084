// Package retry runs an operation until it succeeds, fails fatally or the
// attempt budget is spent. Which failures are worth retrying is decided by a
// caller supplied Classifier.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/tradecore/go-marketstore-common/errhandling"
)

// Classifier reports whether err is transient, i.e. may succeed on retry.
type Classifier func(err error) bool

// SleepFunc waits for d or until ctx is done, returning ctx.Err() in the
// latter case.
type SleepFunc func(ctx context.Context, d time.Duration) error

type Option func(*Executor)

// WithSleep replaces the backoff wait. Tests use it to observe the schedule
// without waiting.
func WithSleep(sleep SleepFunc) Option {
	return func(e *Executor) {
		e.sleep = sleep
	}
}

// WithSchedule replaces the policy derived backoff schedule.
func WithSchedule(newSchedule func() Schedule) Option {
	return func(e *Executor) {
		e.newSchedule = newSchedule
	}
}

type Executor struct {
	log         Logger
	policy      Policy
	isTransient Classifier
	sleep       SleepFunc
	newSchedule func() Schedule
}

func New(log Logger, policy Policy, isTransient Classifier, opts ...Option) *Executor {
	e := &Executor{
		log:         log,
		policy:      policy,
		isTransient: isTransient,
		sleep:       sleepContext,
		newSchedule: policy.NewSchedule,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.policy.MaxAttempts < 1 {
		e.policy.MaxAttempts = 1
	}
	return e
}

func (e *Executor) Policy() Policy {
	return e.policy
}

// retryable: explicit fatal marks and caller cancellation win over the
// classifier, explicit transient marks win over a classifier that does not
// know them.
func (e *Executor) retryable(err error) bool {
	switch {
	case errhandling.IsFatal(err):
		return false
	case errors.Is(err, context.Canceled):
		return false
	case errhandling.IsTransient(err):
		return true
	case e.isTransient == nil:
		return false
	default:
		return e.isTransient(err)
	}
}

// Run invokes f until it succeeds or fails with a non transient error, at most
// policy.MaxAttempts times. A fatal failure is returned as is. When every
// attempt fails transiently an *ExhaustedError listing all of them is
// returned. If ctx ends during a backoff wait a *CancelledError is returned.
func (e *Executor) Run(ctx context.Context, op string, f func(context.Context) error) error {
	log := e.log.FromContext(ctx)
	defer log.Close()

	schedule := e.newSchedule()
	var failures []error

	for attempt := 1; ; attempt++ {
		err := f(ctx)
		if err == nil {
			if attempt > 1 {
				log.Debugf("%s succeeded on attempt %d", op, attempt)
			}
			return nil
		}

		if !e.retryable(err) {
			log.Debugf("%s failed on attempt %d, not retrying: %v", op, attempt, err)
			return err
		}

		failures = append(failures, err)
		if attempt >= e.policy.MaxAttempts {
			break
		}

		delay := schedule.Duration()
		log.Debugf("%s attempt %d/%d failed, retrying in %v: %v", op, attempt, e.policy.MaxAttempts, delay, err)
		if serr := e.sleep(ctx, delay); serr != nil {
			return &CancelledError{Op: op, Cause: serr, Errors: failures}
		}
	}

	log.Infof("%s exhausted %d attempts: %v", op, len(failures), failures[len(failures)-1])
	return &ExhaustedError{Op: op, Errors: failures}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
