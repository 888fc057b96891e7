/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpcore

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/badu/httpcore/internal/corelog"
)

// ConnState represents the state of a server-side connection, mirroring
// net/http's ConnState so a Server.ConnStateHook callback can drive the
// same idle/active accounting external tooling expects.
type ConnState int

const (
	StateNew ConnState = iota
	StateActive
	StateIdle
	StateHijacked
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateActive:
		return "active"
	case StateIdle:
		return "idle"
	case StateHijacked:
		return "hijacked"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ServerOptions configures a Server. The zero value is usable: no
// keep-alive, default buffer/header limits, no idle timeout.
type ServerOptions struct {
	ConnOptions ConnOptions
	Dispatcher  DispatcherOptions

	// ReadHeaderTimeout bounds how long PollReadHead may block reading the
	// next request's head. Zero means no deadline.
	ReadHeaderTimeout time.Duration

	// IdleTimeout bounds how long a keep-alive connection may sit between
	// exchanges waiting for the next pipelined or fresh request. Zero
	// means no deadline.
	IdleTimeout time.Duration

	// ShutdownGracePeriod bounds how long Shutdown waits for in-flight
	// connections to finish their current exchange before it force-closes
	// the remaining ones. Zero disables the grace window; Shutdown still
	// honors ctx's own deadline.
	ShutdownGracePeriod time.Duration

	// ConnStateHook, if set, is called on every connection state
	// transition, the same hook net/http's Server.ConnState exposes.
	ConnStateHook func(net.Conn, ConnState)

	Logger corelog.Logger
}

// Server accepts connections on a net.Listener and drives each one through
// a Dispatcher against a Service, in the style of net/http's Server.Serve
// accept loop, translated from sync.WaitGroup/activeConn bookkeeping into
// an errgroup.Group plus context cancellation.
type Server struct {
	Svc  Service
	Opts ServerOptions

	mu         sync.Mutex
	listeners  map[net.Listener]struct{}
	activeConn map[*Conn]net.Conn
	inShutdown bool

	log corelog.Logger
}

func NewServer(svc Service, opts ServerOptions) *Server {
	lg := opts.Logger
	if lg == nil {
		lg = corelog.Noop()
	}
	return &Server{
		Svc:        svc,
		Opts:       opts,
		listeners:  make(map[net.Listener]struct{}),
		activeConn: make(map[*Conn]net.Conn),
		log:        lg,
	}
}

// ErrServerClosed is returned by Serve after a call to Shutdown or Close.
var ErrServerClosed = NewError(KindClosed, "httpcore: Server closed")

// Serve accepts connections from l until ctx is canceled or Shutdown is
// called, running each connection's Dispatcher loop on its own goroutine.
// It always returns a non-nil error: ErrServerClosed on a clean shutdown.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.trackListener(l, true)
	defer s.trackListener(l, false)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		_ = l.Close()
		return nil
	})

	var tempDelay time.Duration
	for {
		rawConn, err := l.Accept()
		if err != nil {
			if s.shuttingDown() {
				_ = g.Wait()
				return ErrServerClosed
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				tempDelay = backoff(tempDelay)
				s.log.Warnf("httpcore: Accept error: %v; retrying in %v", err, tempDelay)
				select {
				case <-time.After(tempDelay):
				case <-gctx.Done():
				}
				continue
			}
			_ = g.Wait()
			return WrapError(KindIO, "accept", err)
		}
		tempDelay = 0

		if tc, ok := rawConn.(*net.TCPConn); ok {
			_ = tc.SetKeepAlive(true)
			_ = tc.SetKeepAlivePeriod(3 * time.Minute)
		}

		conn := NewConn(rawConn, RoleServer, s.Opts.ConnOptions)
		s.trackConn(conn, rawConn, true)
		s.notifyState(rawConn, StateNew)

		g.Go(func() error {
			defer s.trackConn(conn, rawConn, false)
			s.serveConn(gctx, conn, rawConn)
			return nil
		})
	}
}

// serveConn runs ServeOne in a loop until the connection can no longer be
// reused: poll a head, dispatch, commit, repeat, with a best-effort error
// response for failures observed before any response bytes went out.
func (s *Server) serveConn(ctx context.Context, conn *Conn, rawConn net.Conn) {
	defer func() {
		s.notifyState(rawConn, StateClosed)
		_ = conn.Close()
	}()

	d := NewDispatcher(conn, s.Svc, s.Opts.Dispatcher)

	for {
		if ctx.Err() != nil {
			return
		}
		if s.Opts.ReadHeaderTimeout > 0 {
			_ = rawConn.SetReadDeadline(time.Now().Add(s.Opts.ReadHeaderTimeout))
		}

		s.notifyState(rawConn, StateActive)
		reuse, err := d.ServeOne(ctx)
		if err != nil {
			if conn.IsHijacked() {
				s.notifyState(rawConn, StateHijacked)
				return
			}
			s.writeBestEffort(conn, err)
			return
		}
		if conn.IsHijacked() {
			s.notifyState(rawConn, StateHijacked)
			return
		}
		if !reuse {
			return
		}

		s.notifyState(rawConn, StateIdle)
		if s.Opts.IdleTimeout > 0 {
			_ = rawConn.SetReadDeadline(time.Now().Add(s.Opts.IdleTimeout))
		} else {
			_ = rawConn.SetReadDeadline(time.Time{})
		}
		if err := conn.DrainIdleByte(); err != nil {
			return
		}
	}
}

// writeBestEffort answers a failed exchange with a minimal status line
// when the failure happened early enough that no response has gone out
// yet, for a request that never parsed into a usable head.
func (s *Server) writeBestEffort(conn *Conn, err error) {
	if conn.State().Writing != WriteInit {
		return
	}
	status := 400
	switch {
	case IsKind(err, KindParseTooLarge):
		status = 431
	case IsKind(err, KindCanceled), err == context.DeadlineExceeded:
		status = 408
	case IsKind(err, KindUserManualUpgrade):
		return
	}
	_ = conn.WriteBestEffortError(status, err.Error())
}

func (s *Server) trackListener(l net.Listener, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.listeners[l] = struct{}{}
	} else {
		delete(s.listeners, l)
	}
}

func (s *Server) trackConn(c *Conn, raw net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.activeConn[c] = raw
	} else {
		delete(s.activeConn, c)
	}
}

func (s *Server) notifyState(raw net.Conn, state ConnState) {
	if s.Opts.ConnStateHook != nil {
		s.Opts.ConnStateHook(raw, state)
	}
}

func (s *Server) shuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inShutdown
}

// Shutdown stops accepting new connections and waits for active ones to
// finish their current exchange, honoring ctx's deadline as the forced
// cutoff, in the style of net/http's Server.Shutdown/doneChan/
// closeIdleConns trio: it polls closeIdleConns every
// shutdownPollInterval until no connections remain or ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.inShutdown = true
	for l := range s.listeners {
		_ = l.Close()
	}
	s.mu.Unlock()

	if s.Opts.ShutdownGracePeriod > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Opts.ShutdownGracePeriod)
		defer cancel()
	}

	ticker := time.NewTicker(shutdownPollInterval)
	defer ticker.Stop()
	for {
		if s.closeIdleConns() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			s.forceCloseActive()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

const shutdownPollInterval = 200 * time.Millisecond

// closeIdleConns returns the number of connections still tracked as
// active (idle ones have already fully drained via CommitExchange's
// reuse=false path closing them, so this is a coarse liveness count
// rather than a distinct idle-only pass).
func (s *Server) closeIdleConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConn)
}

func (s *Server) forceCloseActive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c, raw := range s.activeConn {
		_ = c.Close()
		_ = raw.Close()
	}
}

// Close immediately tears down the listener and every active connection,
// without waiting for in-flight exchanges to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	s.inShutdown = true
	for l := range s.listeners {
		_ = l.Close()
	}
	s.mu.Unlock()
	s.forceCloseActive()
	return nil
}

func backoff(prev time.Duration) time.Duration {
	if prev == 0 {
		return 5 * time.Millisecond
	}
	prev *= 2
	if max := time.Second; prev > max {
		return max
	}
	return prev
}
