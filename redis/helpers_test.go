package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tradecore/go-marketstore-common/logger"
	"github.com/tradecore/go-marketstore-common/retry"
)

const testNamespace = "marketdata"

var mockAny = mock.Anything

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func testConfig(addr string) StoreConfig {
	cfg := DefaultConfig(addr, testNamespace)
	cfg.MaxPoolSize = 4
	cfg.AcquireTimeout = 500 * time.Millisecond
	cfg.DialTimeout = 500 * time.Millisecond
	cfg.ReadTimeout = 500 * time.Millisecond
	cfg.WriteTimeout = 500 * time.Millisecond
	cfg.Retry = retry.Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2,
	}
	return cfg
}

// newTestStore sets up a fresh instance of miniredis and returns a store
// using it. Backoff waits are skipped.
func newTestStore(t *testing.T, opts ...StoreOption) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	opts = append([]StoreOption{WithRetryOptions(retry.WithSleep(noSleep))}, opts...)
	s, err := NewStore(logger.Sugar, testConfig(mr.Addr()), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

// newMockStore returns a store whose pool dials mock connections.
func newMockStore(t *testing.T, d *fakeDialer, opts ...StoreOption) *Store {
	t.Helper()
	cfg := testConfig("mock:6379")
	pool, err := NewPool(logger.Sugar, d.dial, cfg.MaxPoolSize, cfg.AcquireTimeout)
	require.NoError(t, err)
	opts = append([]StoreOption{WithPool(pool), WithRetryOptions(retry.WithSleep(noSleep))}, opts...)
	s, err := NewStore(logger.Sugar, cfg, opts...)
	require.NoError(t, err)
	return s
}

// mockConn is a mock Conn. Methods that are not overridden panic.
type mockConn struct {
	mock.Mock
	Conn
}

func (mc *mockConn) Get(ctx context.Context, key string) *redis.StringCmd {
	arguments := mc.Called(ctx, key)
	return arguments.Get(0).(*redis.StringCmd)
}

func (mc *mockConn) Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	arguments := mc.Called(ctx, key, value, expiration)
	return arguments.Get(0).(*redis.StatusCmd)
}

func (mc *mockConn) Ping(ctx context.Context) *redis.StatusCmd {
	arguments := mc.Called(ctx)
	return arguments.Get(0).(*redis.StatusCmd)
}

func (mc *mockConn) Close() error {
	arguments := mc.Called()
	return arguments.Error(0)
}

// fakeDialer hands out mock connections, or fails with err when set.
type fakeDialer struct {
	mu     sync.Mutex
	err    error
	setup  func(*mockConn)
	dialed []*mockConn
}

func (d *fakeDialer) dial(_ context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	mc := &mockConn{}
	mc.On("Close").Return(nil).Maybe()
	if d.setup != nil {
		d.setup(mc)
	}
	d.dialed = append(d.dialed, mc)
	return mc, nil
}

func (d *fakeDialer) setErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *fakeDialer) conn(i int) *mockConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialed[i]
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dialed)
}

// replyError is a server error reply.
type replyError string

func (e replyError) Error() string { return string(e) }
func (replyError) RedisError()     {}

// recordingObserver collects operation outcomes.
type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveOperation(op, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, op+":"+outcome)
}

func (o *recordingObserver) seen() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.outcomes...)
}
