package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	otrace "github.com/opentracing/opentracing-go"

	"github.com/tradecore/go-marketstore-common/cbor"
	"github.com/tradecore/go-marketstore-common/errhandling"
	"github.com/tradecore/go-marketstore-common/retry"
)

const (
	opGet         = "get"
	opGetHash     = "get_hash"
	opPut         = "put"
	opPutHash     = "put_hash"
	opSubscribe   = "subscribe"
	opUnsubscribe = "unsubscribe"
	opHealth      = "health"

	outcomeOK     = "ok"
	outcomeAbsent = "absent"
	outcomeError  = "error"
)

// OperationObserver receives the outcome of every store operation.
// metrics.StoreObservers implements it.
type OperationObserver interface {
	ObserveOperation(op, outcome string, elapsed time.Duration)
}

// ValueCodec encodes the structured values written with PutValue.
type ValueCodec interface {
	Marshal(value any) ([]byte, error)
	Unmarshal(b []byte, target any) error
}

// Store is the shared market data store. Reads never fail: when a value
// cannot be read for any reason the caller gets the absence result and the
// cause is logged. Writes either succeed or return an *IntegrityError.
// Every server interaction runs on a pooled connection under the retry
// policy.
type Store struct {
	log           Logger
	cfg           StoreConfig
	pool          *Pool
	ownsPool      bool
	retrier       *retry.Executor
	retryOpts     []retry.Option
	subscriptions *SubscriptionManager
	codec         ValueCodec
	observer      OperationObserver
}

type StoreOption func(*Store)

// WithPool shares an existing pool. The store will not close it.
func WithPool(pool *Pool) StoreOption {
	return func(s *Store) {
		s.pool = pool
	}
}

func WithRetryOptions(opts ...retry.Option) StoreOption {
	return func(s *Store) {
		s.retryOpts = append(s.retryOpts, opts...)
	}
}

func WithObserver(o OperationObserver) StoreOption {
	return func(s *Store) {
		s.observer = o
	}
}

func WithCodec(c ValueCodec) StoreOption {
	return func(s *Store) {
		s.codec = c
	}
}

// NewStore validates cfg and returns a store. Unless WithPool is given the
// store creates and owns a pool dialing cfg.Address. No connection is made
// until the first operation.
func NewStore(log Logger, cfg StoreConfig, opts ...StoreOption) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Store{
		log: log,
		cfg: cfg,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.pool == nil {
		pool, err := NewPool(log, NewDialer(cfg), cfg.MaxPoolSize, cfg.AcquireTimeout)
		if err != nil {
			return nil, err
		}
		s.pool = pool
		s.ownsPool = true
	}
	if s.codec == nil {
		s.codec = cbor.NewDeterministicCodec()
	}
	s.retrier = retry.New(log, cfg.Retry, IsTransient, s.retryOpts...)
	s.subscriptions = NewSubscriptionManager(log, cfg.Namespace, cfg.UpdateChannel)

	log.Debugf("Store: namespace %s address %s", cfg.Namespace, cfg.URL())
	return s, nil
}

func (s *Store) Namespace() string     { return s.cfg.Namespace }
func (s *Store) RegistryKey() string   { return s.subscriptions.RegistryKey() }
func (s *Store) UpdateChannel() string { return s.subscriptions.UpdateChannel() }

// withConn runs f on a pooled connection under the retry policy. Each
// attempt leases its own connection, and a connection that fails at the
// transport level is discarded rather than reused.
func (s *Store) withConn(ctx context.Context, op string, f func(context.Context, Conn) error) error {
	return s.retrier.Run(ctx, op, func(ctx context.Context) error {
		conn, err := s.pool.Acquire(ctx)
		if err != nil {
			return err
		}
		defer s.pool.Release(conn)

		err = f(ctx, conn.Client())
		if IsConnectionFailure(err) {
			conn.MarkBroken()
			s.pool.RecordConnectionError()
		}
		return err
	})
}

func (s *Store) observe(op, outcome string, start time.Time) {
	if s.observer != nil {
		s.observer.ObserveOperation(op, outcome, time.Since(start))
	}
}

// Get returns the value stored at key. ok is false when the key does not
// exist or the value could not be read.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	span, ctx := otrace.StartSpanFromContext(ctx, "redis.store.Get")
	defer span.Finish()
	log := s.log.FromContext(ctx)
	defer log.Close()

	start := time.Now()
	var value []byte
	err := s.withConn(ctx, opGet, func(ctx context.Context, c Conn) error {
		var err error
		value, err = c.Get(ctx, key).Bytes()
		return err
	})
	switch {
	case err == nil:
		s.observe(opGet, outcomeOK, start)
		return value, true
	case errors.Is(err, redis.Nil):
		s.observe(opGet, outcomeAbsent, start)
		return nil, false
	default:
		s.observe(opGet, outcomeError, start)
		span.SetTag("error", true)
		log.WithOperation(opGet, key).Infof("reading as absent: %v", err)
		return nil, false
	}
}

// GetHash returns all fields of the hash at key. A key that does not exist
// yields an empty, non nil map and ok true. ok is false only when the hash
// could not be read, so the caller can tell "empty" from "unknown".
func (s *Store) GetHash(ctx context.Context, key string) (map[string]string, bool) {
	span, ctx := otrace.StartSpanFromContext(ctx, "redis.store.GetHash")
	defer span.Finish()
	log := s.log.FromContext(ctx)
	defer log.Close()

	start := time.Now()
	var fields map[string]string
	err := s.withConn(ctx, opGetHash, func(ctx context.Context, c Conn) error {
		var err error
		fields, err = c.HGetAll(ctx, key).Result()
		return err
	})
	if err != nil {
		s.observe(opGetHash, outcomeError, start)
		span.SetTag("error", true)
		log.WithOperation(opGetHash, key).Infof("reading as absent: %v", err)
		return nil, false
	}
	if fields == nil {
		fields = map[string]string{}
	}
	s.observe(opGetHash, outcomeOK, start)
	return fields, true
}

// GetValue decodes the value at key into target. It returns false if the
// value is absent, unreadable or does not decode.
func (s *Store) GetValue(ctx context.Context, key string, target any) bool {
	b, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := s.codec.Unmarshal(b, target); err != nil {
		s.log.Infof("GetValue %s: cannot decode: %v", key, err)
		return false
	}
	return true
}

// Subscriptions returns the registry of subscription name to channel.
func (s *Store) Subscriptions(ctx context.Context) (map[string]string, bool) {
	return s.GetHash(ctx, s.subscriptions.RegistryKey())
}

// Put stores value at key. A ttl of zero keeps the value until it is
// overwritten.
//
// Once a command is sent it is not abandoned if ctx is cancelled, so the
// caller never has to guess whether a cancelled write was applied.
func (s *Store) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	span, ctx := otrace.StartSpanFromContext(ctx, "redis.store.Put")
	defer span.Finish()

	err := s.write(ctx, opPut, key, func(ctx context.Context, c Conn) error {
		return putScalar(ctx, c, key, value, ttl)
	})
	if err != nil {
		span.SetTag("error", true)
	}
	return err
}

// PutHash sets fields on the hash at key. When ttl is positive the key
// expiry is set in the same transaction.
func (s *Store) PutHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	span, ctx := otrace.StartSpanFromContext(ctx, "redis.store.PutHash")
	defer span.Finish()

	err := s.write(ctx, opPutHash, key, func(ctx context.Context, c Conn) error {
		return putHash(ctx, c, key, fields, ttl)
	})
	if err != nil {
		span.SetTag("error", true)
	}
	return err
}

// PutValue encodes value and stores it at key.
func (s *Store) PutValue(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := s.codec.Marshal(value)
	if err != nil {
		return integrityError(opPut, key, errhandling.NewFatalError(err))
	}
	return s.Put(ctx, key, b, ttl)
}

// Subscribe registers name against channel and announces it on the update
// channel. Subscribing an existing name replaces its channel.
func (s *Store) Subscribe(ctx context.Context, name, channel string) error {
	span, ctx := otrace.StartSpanFromContext(ctx, "redis.store.Subscribe")
	defer span.Finish()

	err := s.write(ctx, opSubscribe, name, func(ctx context.Context, c Conn) error {
		return s.subscriptions.Add(ctx, c, name, channel)
	})
	if err != nil {
		span.SetTag("error", true)
	}
	return err
}

// Unsubscribe removes name from the registry, deletes cleanupKey if it is
// not empty, and announces the removal. Removing an unknown name succeeds.
func (s *Store) Unsubscribe(ctx context.Context, name, cleanupKey string) error {
	span, ctx := otrace.StartSpanFromContext(ctx, "redis.store.Unsubscribe")
	defer span.Finish()

	err := s.write(ctx, opUnsubscribe, name, func(ctx context.Context, c Conn) error {
		return s.subscriptions.Remove(ctx, c, name, cleanupKey)
	})
	if err != nil {
		span.SetTag("error", true)
	}
	return err
}

func (s *Store) write(ctx context.Context, op, key string, f func(context.Context, Conn) error) error {
	log := s.log.FromContext(ctx)
	defer log.Close()

	start := time.Now()
	err := s.withConn(ctx, op, func(ctx context.Context, c Conn) error {
		return f(context.WithoutCancel(ctx), c)
	})
	if err != nil {
		s.observe(op, outcomeError, start)
		log.WithOperation(op, key).Errorf("write failed: %v", err)
		return integrityError(op, key, err)
	}
	s.observe(op, outcomeOK, start)
	return nil
}

func putScalar(ctx context.Context, c Conn, key string, value []byte, ttl time.Duration) error {
	if key == "" {
		return errhandling.NewFatalError(ErrInvalidKey)
	}
	status, err := c.Set(ctx, key, value, ttl).Result()
	if err != nil {
		return err
	}
	if status != "OK" {
		return errhandling.NewFatalError(
			fmt.Errorf("%w: SET %s replied %q", ErrUnconfirmedWrite, key, status))
	}
	return nil
}

func putHash(ctx context.Context, c Conn, key string, fields map[string]string, ttl time.Duration) error {
	if key == "" {
		return errhandling.NewFatalError(ErrInvalidKey)
	}
	if len(fields) == 0 {
		return errhandling.NewFatalError(fmt.Errorf("%w: no fields for %s", ErrInvalidKey, key))
	}
	args := make([]any, 0, 2*len(fields))
	for field, value := range fields {
		args = append(args, field, value)
	}
	_, err := c.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, args...)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	return err
}

// PoolMetrics returns a snapshot of the underlying pool.
func (s *Store) PoolMetrics() PoolMetrics {
	return s.pool.Metrics()
}

// Pool is the pool backing this store.
func (s *Store) Pool() *Pool {
	return s.pool
}

// Close releases the pool if the store created it.
func (s *Store) Close() error {
	if !s.ownsPool {
		return nil
	}
	return s.pool.Close()
}
