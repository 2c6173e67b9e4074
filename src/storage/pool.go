package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"trading-data-viewer/src/helpers"
	"trading-data-viewer/src/logger"
	"trading-data-viewer/src/models"
)

// -----------------------------------------------------------------------------
// Connection Pool
// -----------------------------------------------------------------------------

// ConnectionPool manages a bounded set of dedicated connection handles over
// one database. A handle is owned by exactly one in-flight operation between
// Acquire and Release. Excess Acquire calls wait in FIFO order up to the
// configured timeout. Idle handles past the staleness threshold are recycled.
type ConnectionPool struct {
	db     *sql.DB
	Logger *logger.Logger

	maxConns       int
	acquireTimeout time.Duration
	idleTimeout    time.Duration

	mu      sync.Mutex
	free    []idleConn
	waiters []chan *sql.Conn
	opened  int
	closed  bool
}

type idleConn struct {
	conn  *sql.Conn
	since time.Time
}

// PoolStats is a point-in-time snapshot for health reporting.
type PoolStats struct {
	Open    int `json:"open"`
	Idle    int `json:"idle"`
	InUse   int `json:"in_use"`
	Waiting int `json:"waiting"`
}

// -----------------------------------------------------------------------------

func NewConnectionPool(db *sql.DB, cfg models.MPoolConfig, log *logger.Logger) *ConnectionPool {
	return &ConnectionPool{
		db:             db,
		Logger:         log,
		maxConns:       cfg.MaxConnections,
		acquireTimeout: time.Duration(cfg.AcquireTimeoutSeconds) * time.Second,
		idleTimeout:    time.Duration(cfg.IdleTimeoutSeconds) * time.Second,
	}
}

// -----------------------------------------------------------------------------

// Acquire returns a pooled handle, waiting up to the acquire timeout when all
// handles are checked out. A timeout yields ErrPoolExhausted (retryable by the
// caller); a failure to open a fresh handle yields ErrStorageUnavailable
// (fatal for this request, the pool keeps serving); caller cancellation
// surfaces the context error, never the retryable exhaustion class.
func (p *ConnectionPool) Acquire(ctx context.Context) (*PooledConn, error) {
	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, helpers.WrapError(helpers.ErrStorageUnavailable, nil, "connection pool closed")
	}

	// Reuse the most recently returned handle, recycling stale ones.
	for len(p.free) > 0 {
		ic := p.free[len(p.free)-1]
		p.free = p.free[:len(p.free)-1]
		if p.idleTimeout > 0 && time.Since(ic.since) > p.idleTimeout {
			p.opened--
			p.mu.Unlock()
			ic.conn.Close()
			p.mu.Lock()
			continue
		}
		p.mu.Unlock()
		return &PooledConn{pool: p, conn: ic.conn}, nil
	}

	if p.opened < p.maxConns {
		p.opened++
		p.mu.Unlock()

		conn, err := p.db.Conn(ctx)
		if err != nil {
			p.mu.Lock()
			p.opened--
			p.mu.Unlock()
			return nil, helpers.WrapError(helpers.ErrStorageUnavailable, err, "failed to open storage handle")
		}
		return &PooledConn{pool: p, conn: conn}, nil
	}

	// All handles checked out: join the FIFO wait queue.
	ch := make(chan *sql.Conn, 1)
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	select {
	case conn := <-ch:
		return &PooledConn{pool: p, conn: conn}, nil
	case <-timer.C:
		if conn, ok := p.cancelWait(ch); ok {
			return &PooledConn{pool: p, conn: conn}, nil
		}
		return nil, helpers.WrapError(helpers.ErrPoolExhausted, nil,
			"no free handle within %s", p.acquireTimeout)
	case <-ctx.Done():
		if conn, ok := p.cancelWait(ch); ok {
			return &PooledConn{pool: p, conn: conn}, nil
		}
		// Caller cancellation is not saturation: keep ctx.Err() in the
		// chain so nobody treats a dead request as retryable.
		return nil, fmt.Errorf("storage handle acquire canceled: %w", ctx.Err())
	}
}

// -----------------------------------------------------------------------------

// cancelWait removes ch from the wait queue. When a handle was already
// delivered concurrently it is drained and handed to the caller instead.
func (p *ConnectionPool) cancelWait(ch chan *sql.Conn) (*sql.Conn, bool) {
	p.mu.Lock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			p.mu.Unlock()
			return nil, false
		}
	}
	p.mu.Unlock()
	return <-ch, true
}

// -----------------------------------------------------------------------------

// put returns a physical handle to the pool, preferring the oldest waiter.
func (p *ConnectionPool) put(conn *sql.Conn) {
	p.mu.Lock()
	if p.closed {
		p.opened--
		p.mu.Unlock()
		conn.Close()
		return
	}
	if len(p.waiters) > 0 {
		ch := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		ch <- conn
		return
	}
	p.free = append(p.free, idleConn{conn: conn, since: time.Now()})
	p.mu.Unlock()
}

// -----------------------------------------------------------------------------

// SweepIdle closes free handles idle beyond the staleness threshold and
// returns how many were recycled. Invoked periodically by the scheduler.
func (p *ConnectionPool) SweepIdle() int {
	if p.idleTimeout <= 0 {
		return 0
	}

	p.mu.Lock()
	var keep []idleConn
	var drop []*sql.Conn
	for _, ic := range p.free {
		if time.Since(ic.since) > p.idleTimeout {
			drop = append(drop, ic.conn)
			p.opened--
		} else {
			keep = append(keep, ic)
		}
	}
	p.free = keep
	p.mu.Unlock()

	for _, c := range drop {
		c.Close()
	}
	if len(drop) > 0 {
		p.Logger.Debug("Recycled %d idle handles", len(drop))
	}
	return len(drop)
}

// -----------------------------------------------------------------------------

// Stats returns a snapshot of pool occupancy.
func (p *ConnectionPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Open:    p.opened,
		Idle:    len(p.free),
		InUse:   p.opened - len(p.free),
		Waiting: len(p.waiters),
	}
}

// -----------------------------------------------------------------------------

// Close marks the pool closed and releases idle handles. Handles still in
// use are closed as they are released.
func (p *ConnectionPool) Close() {
	p.mu.Lock()
	p.closed = true
	free := p.free
	p.free = nil
	p.opened -= len(free)
	p.mu.Unlock()

	for _, ic := range free {
		ic.conn.Close()
	}
}

// -----------------------------------------------------------------------------
// PooledConn
// -----------------------------------------------------------------------------

// PooledConn is a per-acquisition wrapper around a physical handle.
// Release is idempotent, safe to call on every exit path.
type PooledConn struct {
	pool     *ConnectionPool
	conn     *sql.Conn
	mu       sync.Mutex
	released bool
}

// Conn exposes the underlying handle for the duration of the acquisition.
func (h *PooledConn) Conn() *sql.Conn {
	return h.conn
}

// Release returns the handle to the pool. Calling it more than once per
// Acquire has no effect.
func (h *PooledConn) Release() {
	h.mu.Lock()
	if h.released {
		h.mu.Unlock()
		return
	}
	h.released = true
	h.mu.Unlock()

	h.pool.put(h.conn)
}
