package retry

import (
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
)

const (
	DefaultMaxAttempts  = 3
	DefaultInitialDelay = 100 * time.Millisecond
	DefaultMaxDelay     = 2 * time.Second
	DefaultMultiplier   = 2.0
)

var (
	ErrInvalidPolicy = errors.New("invalid retry policy")
)

// Schedule yields the delay before each successive retry. *backoff.Backoff
// satisfies it.
type Schedule interface {
	Duration() time.Duration
}

// Policy bounds a retried operation. The delay before retry n is
// InitialDelay * Multiplier^(n-1), capped at MaxDelay. With Jitter set the
// delay is drawn uniformly between InitialDelay and that value.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  DefaultMaxAttempts,
		InitialDelay: DefaultInitialDelay,
		MaxDelay:     DefaultMaxDelay,
		Multiplier:   DefaultMultiplier,
		Jitter:       true,
	}
}

func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be >= 1, got %d", ErrInvalidPolicy, p.MaxAttempts)
	}
	if p.InitialDelay <= 0 {
		return fmt.Errorf("%w: initial delay must be > 0, got %v", ErrInvalidPolicy, p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("%w: max delay (%v) cannot be less than initial delay (%v)", ErrInvalidPolicy, p.MaxDelay, p.InitialDelay)
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("%w: multiplier must be >= 1, got %v", ErrInvalidPolicy, p.Multiplier)
	}
	return nil
}

// NewSchedule returns a fresh schedule; schedules are stateful so each
// retried operation needs its own.
func (p Policy) NewSchedule() Schedule {
	return &backoff.Backoff{
		Min:    p.InitialDelay,
		Max:    p.MaxDelay,
		Factor: p.Multiplier,
		Jitter: p.Jitter,
	}
}
