package nntp

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrPoolClosed is returned by Acquire once the pool has been disposed.
var ErrPoolClosed = errors.New("nntp: pool closed")

type reservedKey struct{}

// WithReservedConnections attaches a reserved-connections budget to ctx: any
// Acquire made with this context treats the pool's effective maximum as
// (cfg.MaxConnections - r), leaving headroom for other callers (typically
// keeping a background repair loop from starving the foreground read path).
func WithReservedConnections(ctx context.Context, r int) context.Context {
	return context.WithValue(ctx, reservedKey{}, r)
}

func reservedFrom(ctx context.Context) int {
	if v, ok := ctx.Value(reservedKey{}).(int); ok {
		return v
	}
	return 0
}

// ReservedConnections returns the reserved-connections budget attached to ctx
// via WithReservedConnections, or 0 if none was attached.
func ReservedConnections(ctx context.Context) int {
	return reservedFrom(ctx)
}

// DialFunc opens a new connection to the given server config. Tests supply a
// fake to avoid real network I/O.
type DialFunc func(ctx context.Context, cfg ServerConfig) (*Client, error)

// Pool is a bounded, per-server connection pool with idle reuse and FIFO-fair
// acquisition, built around an idle slice, a live-connection count and a
// FIFO queue of waiter channels woken one at a time, with context-aware
// Acquire and reserved-budget gating.
type Pool struct {
	cfg  ServerConfig
	dial DialFunc

	mu      sync.Mutex
	idle    []*Client
	live    int
	closed  bool
	waiters []chan struct{}

	idleTimeout time.Duration
	stopReaper  chan struct{}
}

// New creates a pool for cfg. dial defaults to Dial if nil.
func New(cfg ServerConfig, dial DialFunc) *Pool {
	if dial == nil {
		dial = Dial
	}
	p := &Pool{
		cfg:         cfg,
		dial:        dial,
		idleTimeout: 30 * time.Second,
		stopReaper:  make(chan struct{}),
	}
	go p.reaperLoop()
	return p
}

func (p *Pool) enqueueWaiterLocked() chan struct{} {
	ch := make(chan struct{}, 1)
	p.waiters = append(p.waiters, ch)
	return ch
}

func (p *Pool) wakeNextLocked() {
	if len(p.waiters) == 0 {
		return
	}
	ch := p.waiters[0]
	p.waiters = p.waiters[1:]
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (p *Pool) removeWaiterLocked(target chan struct{}) {
	for i, w := range p.waiters {
		if w == target {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

// Acquire suspends until a connection is available or ctx is cancelled. A
// reserved-connections budget attached via WithReservedConnections reduces
// the effective pool max for this call only.
func (p *Pool) Acquire(ctx context.Context) (*Client, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}
		if n := len(p.idle); n > 0 {
			c := p.idle[n-1]
			p.idle = p.idle[:n-1]
			p.mu.Unlock()
			return c, nil
		}

		effectiveMax := p.cfg.MaxConnections - reservedFrom(ctx)
		if effectiveMax < 1 {
			effectiveMax = 1
		}
		if p.live < effectiveMax {
			p.live++
			p.mu.Unlock()
			c, err := p.dial(ctx, p.cfg)
			if err != nil {
				p.mu.Lock()
				p.live--
				p.wakeNextLocked()
				p.mu.Unlock()
				return nil, err
			}
			return c, nil
		}

		wait := p.enqueueWaiterLocked()
		p.mu.Unlock()

		select {
		case <-wait:
			continue
		case <-ctx.Done():
			p.mu.Lock()
			p.removeWaiterLocked(wait)
			p.mu.Unlock()
			return nil, ctx.Err()
		}
	}
}

// Release returns c to the pool. healthy must be false if c raised a fatal
// protocol/transport error, in which case the connection is closed and
// discarded instead of reused.
func (p *Pool) Release(c *Client, healthy bool) {
	if c == nil {
		return
	}
	p.mu.Lock()
	if p.closed || !healthy {
		p.live--
		p.wakeNextLocked()
		p.mu.Unlock()
		c.Close()
		return
	}
	c.LastUsed = time.Now()
	p.idle = append(p.idle, c)
	p.wakeNextLocked()
	p.mu.Unlock()
}

// State returns a point-in-time PoolState snapshot.
func (p *Pool) State(reserved int) PoolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	permitted := p.cfg.MaxConnections - reserved
	if permitted < 1 {
		permitted = 1
	}
	return PoolState{
		Live:         p.live,
		Idle:         len(p.idle),
		Reserved:     reserved,
		PermittedMax: permitted,
	}
}

func (p *Pool) reaperLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.reapIdle()
		case <-p.stopReaper:
			return
		}
	}
}

func (p *Pool) reapIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	kept := p.idle[:0]
	for _, c := range p.idle {
		if time.Since(c.LastUsed) > p.idleTimeout {
			c.Close()
			p.live--
		} else {
			kept = append(kept, c)
		}
	}
	p.idle = kept
}

// Dispose drains idle connections synchronously, cancels in-flight acquires,
// and causes any subsequent Release to close the returned connection
// instead of reusing it. Emits no event itself; callers (internal/nntp
// health tracking) observe the closure through Acquire/Release errors.
func (p *Pool) Dispose() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, c := range idle {
		c.Close()
	}
	for _, w := range waiters {
		close(w)
	}
	close(p.stopReaper)
}
