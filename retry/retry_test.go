package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecore/go-marketstore-common/errhandling"
	"github.com/tradecore/go-marketstore-common/logger"
)

var (
	errDropped   = errors.New("connection dropped")
	errMalformed = errors.New("ERR wrong number of arguments")
)

func isDropped(err error) bool {
	return errors.Is(err, errDropped)
}

// sleepRecorder captures the backoff schedule without waiting
type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func testPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:  attempts,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     30 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestRunExhaustedListsEveryAttemptInOrder(t *testing.T) {
	logger.New(logger.NoopLevel)
	defer logger.OnExit()

	rec := &sleepRecorder{}
	e := New(logger.Sugar, testPolicy(4), isDropped, WithSleep(rec.sleep))

	calls := 0
	err := e.Run(context.Background(), "put", func(context.Context) error {
		calls++
		return fmt.Errorf("attempt %d: %w", calls, errDropped)
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errDropped)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "put", exhausted.Op)
	require.Len(t, exhausted.Errors, 4)
	for i, attemptErr := range exhausted.Errors {
		assert.EqualError(t, attemptErr, fmt.Sprintf("attempt %d: connection dropped", i+1))
	}
	assert.Equal(t, exhausted.Errors, Attempts(err))
	assert.Equal(t, 4, calls)

	// no wait after the final attempt, capped at MaxDelay
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond}, rec.delays)
}

func TestRunFatalAbortsImmediately(t *testing.T) {
	logger.New(logger.NoopLevel)
	defer logger.OnExit()

	rec := &sleepRecorder{}
	e := New(logger.Sugar, testPolicy(5), isDropped, WithSleep(rec.sleep))

	calls := 0
	err := e.Run(context.Background(), "put", func(context.Context) error {
		calls++
		return errMalformed
	})

	assert.Equal(t, errMalformed, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestRunFatalAfterTransient(t *testing.T) {
	logger.New(logger.NoopLevel)
	defer logger.OnExit()

	e := New(logger.Sugar, testPolicy(5), isDropped, WithSleep((&sleepRecorder{}).sleep))

	calls := 0
	err := e.Run(context.Background(), "put", func(context.Context) error {
		calls++
		if calls == 1 {
			return errDropped
		}
		return errMalformed
	})

	assert.Equal(t, errMalformed, err)
	assert.Equal(t, 2, calls)
}

func TestRunSucceedsAfterTransient(t *testing.T) {
	logger.New(logger.NoopLevel)
	defer logger.OnExit()

	rec := &sleepRecorder{}
	e := New(logger.Sugar, testPolicy(3), isDropped, WithSleep(rec.sleep))

	calls := 0
	err := e.Run(context.Background(), "hset", func(context.Context) error {
		calls++
		if calls == 1 {
			return errDropped
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, rec.delays, 1)
}

func TestRunMarkedErrorsOverrideClassifier(t *testing.T) {
	logger.New(logger.NoopLevel)
	defer logger.OnExit()

	alwaysTransient := func(error) bool { return true }
	e := New(logger.Sugar, testPolicy(3), alwaysTransient, WithSleep((&sleepRecorder{}).sleep))

	calls := 0
	err := e.Run(context.Background(), "subscribe", func(context.Context) error {
		calls++
		return errhandling.NewFatalError(errDropped)
	})
	assert.True(t, errhandling.IsFatal(err))
	assert.Equal(t, 1, calls)

	neverTransient := func(error) bool { return false }
	e = New(logger.Sugar, testPolicy(3), neverTransient, WithSleep((&sleepRecorder{}).sleep))

	calls = 0
	err = e.Run(context.Background(), "subscribe", func(context.Context) error {
		calls++
		return errhandling.NewTransientError(errMalformed)
	})
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 3, calls)
}

func TestRunCancelledDuringBackoff(t *testing.T) {
	logger.New(logger.NoopLevel)
	defer logger.OnExit()

	ctx, cancel := context.WithCancel(context.Background())
	policy := testPolicy(5)
	policy.InitialDelay = time.Hour
	policy.MaxDelay = time.Hour
	e := New(logger.Sugar, policy, isDropped)

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx, "put", func(context.Context) error {
			calls++
			return errDropped
		})
	}()

	// the first attempt fails and the executor parks in an hour long wait
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, errDropped)
		assert.Len(t, Attempts(err), 1)
		assert.Equal(t, 1, calls)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestRunCallerCancellationIsNotRetried(t *testing.T) {
	logger.New(logger.NoopLevel)
	defer logger.OnExit()

	alwaysTransient := func(error) bool { return true }
	e := New(logger.Sugar, testPolicy(3), alwaysTransient, WithSleep((&sleepRecorder{}).sleep))

	calls := 0
	err := e.Run(context.Background(), "get", func(context.Context) error {
		calls++
		return fmt.Errorf("acquire: %w", context.Canceled)
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPolicyValidate(t *testing.T) {
	table := []struct {
		name   string
		policy Policy
		valid  bool
	}{
		{"default", DefaultPolicy(), true},
		{"zero attempts", Policy{MaxAttempts: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}, false},
		{"zero delay", Policy{MaxAttempts: 1, MaxDelay: time.Millisecond, Multiplier: 1}, false},
		{"max below initial", Policy{MaxAttempts: 1, InitialDelay: time.Second, MaxDelay: time.Millisecond, Multiplier: 1}, false},
		{"shrinking", Policy{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Second, Multiplier: 0.5}, false},
	}
	for _, test := range table {
		t.Run(test.name, func(t *testing.T) {
			err := test.policy.Validate()
			if test.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidPolicy)
		})
	}
}

// jittered delays stay within [InitialDelay, MaxDelay]
func TestPolicyScheduleJitterBounds(t *testing.T) {
	policy := Policy{
		MaxAttempts:  10,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Multiplier:   2,
		Jitter:       true,
	}
	schedule := policy.NewSchedule()
	for i := 0; i < 10; i++ {
		d := schedule.Duration()
		assert.GreaterOrEqual(t, d, policy.InitialDelay)
		assert.LessOrEqual(t, d, policy.MaxDelay)
	}
}
