package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"

	"github.com/tradecore/go-marketstore-common/errhandling"
)

var errPoolAccounting = errors.New("redis pool accounting: no idle connection to evict")

// Pool bounds the number of live connections shared by every store in the
// process. A connection is reused only by the execution context that opened
// it. When the pool is at capacity and the caller has no idle connection of
// its own, an idle connection belonging to another context is closed to make
// room.
//
// The semaphore is held for as long as a connection is leased, so the number
// of leased connections can never exceed maxSize. Everything else is
// guarded by mu.
type Pool struct {
	log            Logger
	dial           Dialer
	maxSize        int
	acquireTimeout time.Duration
	slots          *semaphore.Weighted

	mu     sync.Mutex
	closed bool
	idle   map[ExecContextID][]*Connection
	size   int
	inUse  int

	created    int64
	reused     int64
	acquires   int64
	releases   int64
	discarded  int64
	connErrors int64
	exhausted  int64
}

// NewPool creates an empty pool. No connection is opened until the first
// Acquire.
func NewPool(log Logger, dial Dialer, maxSize int, acquireTimeout time.Duration) (*Pool, error) {
	if dial == nil {
		return nil, fmt.Errorf("%w: dialer is required", ErrInvalidConfig)
	}
	if maxSize < 1 {
		return nil, fmt.Errorf("%w: max pool size must be >= 1, got %d", ErrInvalidConfig, maxSize)
	}
	if acquireTimeout <= 0 {
		return nil, fmt.Errorf("%w: acquire timeout must be > 0, got %v", ErrInvalidConfig, acquireTimeout)
	}
	return &Pool{
		log:            log,
		dial:           dial,
		maxSize:        maxSize,
		acquireTimeout: acquireTimeout,
		slots:          semaphore.NewWeighted(int64(maxSize)),
		idle:           map[ExecContextID][]*Connection{},
	}, nil
}

func (p *Pool) MaxSize() int {
	return p.maxSize
}

// Acquire leases a connection for the execution context bound to ctx,
// waiting up to the acquire timeout for one to become available. The caller
// must Release it.
func (p *Pool) Acquire(ctx context.Context) (*Connection, error) {
	id := ExecContextFrom(ctx)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("redis pool acquire: %w", err)
	}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, errhandling.NewFatalError(ErrPoolClosed)
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.acquireTimeout)
	defer cancel()
	if err := p.slots.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("redis pool acquire: %w", ctx.Err())
		}
		p.mu.Lock()
		p.exhausted++
		p.mu.Unlock()
		p.log.Infof("Acquire: pool exhausted for %s after %v", id, p.acquireTimeout)
		return nil, &PoolExhaustedError{MaxSize: p.maxSize, Waited: p.acquireTimeout}
	}

	conn, evicted, err := p.take(id)
	if evicted != nil {
		p.closeConn(evicted)
	}
	if err != nil {
		p.slots.Release(1)
		return nil, err
	}
	if conn != nil {
		return conn, nil
	}

	// a slot in size is reserved for us, dial outside the lock
	client, err := p.dial(ctx)
	if err != nil {
		p.mu.Lock()
		p.size--
		p.inUse--
		p.connErrors++
		p.mu.Unlock()
		p.slots.Release(1)
		return nil, err
	}

	conn = newConnection(id, client)
	p.mu.Lock()
	conn.leased = true
	p.created++
	p.mu.Unlock()
	p.log.Debugf("Acquire: new connection %s for %s", conn.id, id)
	return conn, nil
}

// take returns an idle connection for id, or reserves room for a new one.
// The caller holds a semaphore slot, so when size has reached maxSize at
// least one idle connection exists and none of them belong to id.
func (p *Pool) take(id ExecContextID) (*Connection, *Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, nil, errhandling.NewFatalError(ErrPoolClosed)
	}
	p.acquires++

	if idle := p.idle[id]; len(idle) > 0 {
		conn := idle[len(idle)-1]
		if len(idle) == 1 {
			delete(p.idle, id)
		} else {
			p.idle[id] = idle[:len(idle)-1]
		}
		conn.setState(StateInUse)
		conn.leased = true
		conn.lastUsed = time.Now()
		p.inUse++
		p.reused++
		return conn, nil, nil
	}

	var evicted *Connection
	if p.size >= p.maxSize {
		evicted = p.evictIdle()
		if evicted == nil {
			return nil, nil, errPoolAccounting
		}
		p.size--
		p.discarded++
	}
	p.size++
	p.inUse++
	return nil, evicted, nil
}

// evictIdle removes the least recently used idle connection. mu must be held.
func (p *Pool) evictIdle() *Connection {
	var victimID ExecContextID
	var victim *Connection
	for id, idle := range p.idle {
		if len(idle) == 0 {
			continue
		}
		if victim == nil || idle[0].lastUsed.Before(victim.lastUsed) {
			victim, victimID = idle[0], id
		}
	}
	if victim == nil {
		return nil
	}
	if rest := p.idle[victimID][1:]; len(rest) > 0 {
		p.idle[victimID] = rest
	} else {
		delete(p.idle, victimID)
	}
	victim.setState(StateBroken)
	return victim
}

// Release returns conn to its execution context's idle set, or closes it if
// it was marked broken or the pool is closed. Releasing a connection that is
// not leased is a no-op.
func (p *Pool) Release(conn *Connection) {
	if conn == nil {
		return
	}

	p.mu.Lock()
	if !conn.leased {
		p.mu.Unlock()
		p.log.Infof("Release: connection %s is not leased", conn.id)
		return
	}
	conn.leased = false
	p.releases++
	p.inUse--

	discard := p.closed || conn.State() == StateBroken
	if discard {
		p.size--
		p.discarded++
		conn.setState(StateBroken)
	} else {
		conn.setState(StateIdle)
		conn.lastUsed = time.Now()
		p.idle[conn.contextID] = append(p.idle[conn.contextID], conn)
	}
	p.mu.Unlock()
	p.slots.Release(1)

	if discard {
		p.closeConn(conn)
	}
}

// Probe checks conn with PING, marking it broken if the server does not
// answer.
func (p *Pool) Probe(ctx context.Context, conn *Connection) bool {
	if err := conn.client.Ping(ctx).Err(); err != nil {
		p.log.Infof("Probe: connection %s failed: %v", conn.id, err)
		conn.MarkBroken()
		p.RecordConnectionError()
		return false
	}
	return true
}

// RecordConnectionError counts a connection level failure seen by a holder.
func (p *Pool) RecordConnectionError() {
	p.mu.Lock()
	p.connErrors++
	p.mu.Unlock()
}

// DrainContext closes the idle connections owned by id, typically when the
// execution context finishes. It returns the number closed.
func (p *Pool) DrainContext(id ExecContextID) int {
	p.mu.Lock()
	idle := p.idle[id]
	delete(p.idle, id)
	p.size -= len(idle)
	p.discarded += int64(len(idle))
	p.mu.Unlock()

	for _, conn := range idle {
		conn.setState(StateBroken)
		p.closeConn(conn)
	}
	return len(idle)
}

// Close closes every idle connection and rejects further acquires. Leased
// connections are closed as they are released.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	var idle []*Connection
	for id, conns := range p.idle {
		idle = append(idle, conns...)
		delete(p.idle, id)
	}
	p.size -= len(idle)
	p.discarded += int64(len(idle))
	p.mu.Unlock()

	var err error
	for _, conn := range idle {
		conn.setState(StateBroken)
		if cerr := conn.client.Close(); cerr != nil {
			err = multierr.Append(err, CloseError(cerr, conn.id))
		}
	}
	return err
}

func (p *Pool) closeConn(conn *Connection) {
	if err := conn.client.Close(); err != nil {
		p.log.Debugf("closeConn: %v", CloseError(err, conn.id))
	}
}

// Metrics returns a consistent snapshot of the pool counters.
func (p *Pool) Metrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()

	idle := 0
	for _, conns := range p.idle {
		idle += len(conns)
	}
	return PoolMetrics{
		CreatedTotal:     p.created,
		ReusedTotal:      p.reused,
		CurrentSize:      p.size,
		MaxSize:          p.maxSize,
		InUse:            p.inUse,
		Idle:             idle,
		Acquires:         p.acquires,
		Releases:         p.releases,
		Discarded:        p.discarded,
		ConnectionErrors: p.connErrors,
		Exhausted:        p.exhausted,
	}
}
