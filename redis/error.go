package redis

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrPoolClosed          = errors.New("redis pool closed")
	ErrPoolExhausted       = errors.New("redis pool exhausted")
	ErrRedisClose          = errors.New("redis close error")
	ErrRedisDial           = errors.New("redis dial error")
	ErrIntegrity           = errors.New("redis write not confirmed")
	ErrUnconfirmedWrite    = errors.New("redis write unacknowledged")
	ErrInvalidKey          = errors.New("invalid key")
	ErrInvalidSubscription = errors.New("invalid subscription")
	ErrSubscriptionScript  = errors.New("subscription script rejected")
)

func CloseError(err error, name string) error {
	return fmt.Errorf("%w %s: %w", ErrRedisClose, name, err)
}

func DialError(err error, name string) error {
	return fmt.Errorf("%w %s: %w", ErrRedisDial, name, err)
}

// PoolExhaustedError is returned when no connection became available within
// the acquire timeout.
type PoolExhaustedError struct {
	MaxSize int
	Waited  time.Duration
}

func (e *PoolExhaustedError) Error() string {
	return fmt.Sprintf("%s: no connection within %v (max size %d)", ErrPoolExhausted, e.Waited, e.MaxSize)
}

func (e *PoolExhaustedError) Is(target error) bool {
	return target == ErrPoolExhausted
}

// IntegrityError is the only error a write returns. Err carries the final
// cause, which for retried writes is a *retry.ExhaustedError listing every
// attempt.
type IntegrityError struct {
	Op  string
	Key string
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrIntegrity, e.Op, e.Key, e.Err)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}

func integrityError(op, key string, err error) error {
	return &IntegrityError{Op: op, Key: key, Err: err}
}
