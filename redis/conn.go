package redis

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

type Scripter interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
	EvalSha(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd
	ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd
	ScriptLoad(ctx context.Context, script string) *redis.StringCmd
}

// Conn is the command surface the store needs from a single server
// connection. *redis.Client satisfies it.
type Conn interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.StringStringMapCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
	Scripter
}

// Dialer opens a new, ready to use connection.
type Dialer func(ctx context.Context) (Conn, error)

// NewDialer returns a Dialer which opens a single socket client per
// connection and checks it with PING before handing it over.
func NewDialer(cfg StoreConfig) Dialer {
	return func(ctx context.Context) (Conn, error) {
		client := redis.NewClient(cfg.Options())
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, DialError(err, cfg.URL())
		}
		return client, nil
	}
}

type ConnState int32

const (
	StateIdle ConnState = iota
	StateInUse
	StateBroken
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInUse:
		return "in-use"
	case StateBroken:
		return "broken"
	default:
		return "unknown"
	}
}

// Connection is a pooled connection leased to one holder at a time. It is
// only ever reused within the execution context that created it.
type Connection struct {
	id        string
	contextID ExecContextID
	client    Conn
	created   time.Time
	lastUsed  time.Time
	state     atomic.Int32

	// guarded by the owning pool's mutex
	leased bool
}

func newConnection(contextID ExecContextID, client Conn) *Connection {
	now := time.Now()
	c := &Connection{
		id:        uuid.NewString(),
		contextID: contextID,
		client:    client,
		created:   now,
		lastUsed:  now,
	}
	c.setState(StateInUse)
	return c
}

func (c *Connection) ID() string                 { return c.id }
func (c *Connection) ExecContext() ExecContextID { return c.contextID }
func (c *Connection) Client() Conn               { return c.client }
func (c *Connection) Created() time.Time         { return c.created }

func (c *Connection) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Connection) setState(s ConnState) {
	c.state.Store(int32(s))
}

// MarkBroken flags the connection so Release discards it instead of
// returning it to the idle set.
func (c *Connection) MarkBroken() {
	c.setState(StateBroken)
}

// ExecContextID names a unit of execution, typically a goroutine tree
// servicing one caller. Connections never cross execution contexts.
type ExecContextID string

const DefaultExecContext ExecContextID = "default"

type execContextKey struct{}

// WithExecContext binds id to ctx for pool acquisition.
func WithExecContext(ctx context.Context, id ExecContextID) context.Context {
	return context.WithValue(ctx, execContextKey{}, id)
}

// NewExecContext binds a fresh random execution context id to ctx.
func NewExecContext(ctx context.Context) (context.Context, ExecContextID) {
	id := ExecContextID(uuid.NewString())
	return WithExecContext(ctx, id), id
}

// ExecContextFrom returns the id bound to ctx or DefaultExecContext.
func ExecContextFrom(ctx context.Context) ExecContextID {
	if id, ok := ctx.Value(execContextKey{}).(ExecContextID); ok && id != "" {
		return id
	}
	return DefaultExecContext
}
