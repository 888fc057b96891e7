/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpcore

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"strings"
	"time"

	"github.com/badu/httpcore/header"
	"github.com/badu/httpcore/pool"
	"github.com/badu/httpcore/wire"
)

// Dialer is the network-dialing capability a Client needs. It matches
// net.Dialer.DialContext's signature exactly so *net.Dialer satisfies it
// without an adapter; tests substitute an in-memory implementation.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// ClientOptions configures a Client.
type ClientOptions struct {
	Dialer          Dialer
	TLSClientConfig *tls.Config
	ConnOptions     ConnOptions
	Pool            pool.Options

	// RetryIdleFailurePtr, when non-nil, overrides the default-on
	// retry-once-on-a-dead-pooled-connection policy; see retryIdleFailure.
	RetryIdleFailurePtr *bool
	// SetHostHeaderPtr, when non-nil, overrides the default-on Host
	// header insertion; see setHostHeader.
	SetHostHeaderPtr *bool

	ResponseHeaderTimeout time.Duration
}

func (o ClientOptions) retryIdleFailure() bool {
	if o.RetryIdleFailurePtr != nil {
		return *o.RetryIdleFailurePtr
	}
	return true
}

func (o ClientOptions) setHostHeader() bool {
	if o.SetHostHeaderPtr != nil {
		return *o.SetHostHeaderPtr
	}
	return true
}

// pooledConn is the pool.Value a Client's pool holds: a dialed net.Conn
// plus the Conn state machine driving it in RoleClient, and a broken flag
// a failed write or a non-keep-alive commit sets so Pooled.Close knows
// not to reinsert it.
type pooledConn struct {
	raw    net.Conn
	conn   *Conn
	broken bool
}

func (p *pooledConn) IsClosed() bool { return p.broken }

func (p *pooledConn) Close() error {
	p.broken = true
	return p.conn.Close()
}

// dialConnector is the pool.Connector a Client wires in: it dials
// Destination.Origin, negotiates TLS when the scheme calls for it, and
// wraps the result in a RoleClient Conn.
type dialConnector struct {
	dialer    Dialer
	tlsConfig *tls.Config
	connOpts  ConnOptions
}

func (d *dialConnector) Connect(ctx context.Context, dest pool.Destination) (*pooledConn, pool.Connected, error) {
	scheme, authority, err := splitOrigin(dest.Origin)
	if err != nil {
		return nil, pool.Connected{}, err
	}
	addr := authority
	if !strings.Contains(addr, ":") {
		if scheme == "https" {
			addr += ":443"
		} else {
			addr += ":80"
		}
	}

	raw, err := d.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, pool.Connected{}, WrapError(KindConnectError, "dial", err)
	}

	alpn := "http/1.1"
	if scheme == "https" {
		cfg := d.tlsConfig
		if cfg == nil {
			cfg = &tls.Config{}
		}
		if cfg.ServerName == "" {
			cfg = cfg.Clone()
			cfg.ServerName = hostOnly(authority)
		}
		tlsConn := tls.Client(raw, cfg)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = raw.Close()
			return nil, pool.Connected{}, WrapError(KindConnectError, "tls handshake", err)
		}
		raw = tlsConn
	}

	conn := NewConn(raw, RoleClient, d.connOpts)
	return &pooledConn{raw: raw, conn: conn}, pool.Connected{ALPN: alpn}, nil
}

func splitOrigin(origin string) (scheme, authority string, err error) {
	scheme, authority, ok := strings.Cut(origin, "://")
	if !ok {
		return "", "", NewError(KindUserAbsoluteURIRequired, "origin must be \"scheme://authority\": "+origin)
	}
	return scheme, authority, nil
}

func hostOnly(authority string) string {
	host, _, err := net.SplitHostPort(authority)
	if err != nil {
		return authority
	}
	return host
}

// Client is the client half of the dual-role engine: it checks out a
// pooled connection, writes the request, reads the response, and decides
// reuse the same way Dispatcher does on the server side, via
// Conn.CommitExchange.
type Client struct {
	opts ClientOptions
	pool *pool.Pool[*pooledConn]
}

// NewClient builds a Client. A nil Dialer defaults to *net.Dialer with a
// 30s connect timeout; a nil TLSClientConfig defaults to an empty
// *tls.Config.
func NewClient(opts ClientOptions) *Client {
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{Timeout: 30 * time.Second}
	}
	connector := &dialConnector{dialer: opts.Dialer, tlsConfig: opts.TLSClientConfig, connOpts: opts.ConnOptions}
	return &Client{opts: opts, pool: pool.New[*pooledConn](connector, opts.Pool)}
}

// Close stops the pool's background evictor and closes every idle
// connection. In-flight requests are unaffected.
func (c *Client) Close() error { return c.pool.Close() }

// Do sends req to origin ("scheme://host[:port]") and returns the
// response. On a reused pooled connection whose first write fails before
// any request bytes reached the wire, Do discards that connection and
// retries exactly once with a new checkout from the pool (which may hand
// out another idle connection or dial one), per the default-on retry
// policy; a freshly dialed connection's failure is never retried.
func (c *Client) Do(ctx context.Context, origin string, req *Request) (*Response, error) {
	dest := pool.Destination{Origin: origin, Proto: "HTTP/1.1"}

	h, err := c.pool.Checkout(ctx, dest)
	if err != nil {
		return nil, err
	}

	resp, wroteAny, err := c.roundTrip(ctx, h, origin, req)
	if err == nil {
		return resp, nil
	}

	if h.IsReused() && !wroteAny && c.opts.retryIdleFailure() {
		_ = h.Discard()
		h2, err2 := c.pool.Checkout(ctx, dest)
		if err2 != nil {
			return nil, err2
		}
		resp, _, err = c.roundTrip(ctx, h2, origin, req)
		if err != nil {
			_ = h2.Discard()
			return nil, err
		}
		return resp, nil
	}

	_ = h.Discard()
	return nil, err
}

// roundTrip drives one request/response exchange on h's connection and
// reports whether any request bytes were written, the signal Do needs to
// decide retry eligibility. On success with a body-less response it
// commits the exchange and releases h immediately; a response with a
// body instead wraps h in a clientBodySource that releases it only once
// the body reaches EOF or errors, so the connection is not returned to
// the pool while the caller is still reading the body.
func (c *Client) roundTrip(ctx context.Context, h *pool.Pooled[*pooledConn], origin string, req *Request) (resp *Response, wroteAny bool, err error) {
	conn := h.Value().conn
	if c.opts.setHostHeader() && req.Header().Get(wire.HeaderHost) == "" {
		req.Header().Set(wire.HeaderHost, hostOnly(strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")))
	}

	reqHead := wire.NewRequestHead(req.Method(), req.Target(), wire.HTTP11)
	reqHead.Header = req.Header()

	method := req.Method()
	bodyLen := req.Body.Length()

	if req.Body.IsFull() {
		full := req.Body.FullBytes()
		if werr := conn.WriteFullMessage(reqHead, method, full); werr != nil {
			return nil, conn.State().Writing != WriteInit, WrapError(KindIO, "write request", werr)
		}
		wroteAny = true
	} else {
		if werr := conn.WriteHead(reqHead, bodyLen, method); werr != nil {
			return nil, false, WrapError(KindIO, "write request head", werr)
		}
		wroteAny = true
		for {
			chunk, berr := req.Body.Next(ctx)
			if berr != nil && berr != io.EOF {
				return nil, wroteAny, WrapError(KindBody, "reading request body", berr)
			}
			if len(chunk) > 0 {
				if werr := conn.WriteBodyChunk(chunk); werr != nil {
					return nil, wroteAny, WrapError(KindIO, "write request body", werr)
				}
			}
			if berr == io.EOF {
				break
			}
		}
		if werr := conn.EndBody(); werr != nil {
			return nil, wroteAny, WrapError(KindIO, "finalize request body", werr)
		}
	}

	if ferr := conn.Flush(); ferr != nil {
		return nil, wroteAny, WrapError(KindIO, "flush request", ferr)
	}

	respCtx := ctx
	if c.opts.ResponseHeaderTimeout > 0 {
		var cancel context.CancelFunc
		respCtx, cancel = context.WithTimeout(ctx, c.opts.ResponseHeaderTimeout)
		defer cancel()
	}

	head, decoded, wantsUpgrade, rerr := conn.PollReadHead(respCtx, method)
	if rerr != nil {
		return nil, wroteAny, WrapError(KindIO, "read response head", rerr)
	}

	r := &Response{Status: head.Status.Code, Reason: head.Status.Reason, Header: head.Header, ctx: ctx}
	r.Request = req

	if wantsUpgrade {
		// The raw I/O is handed off via Conn.TakeUpgrade, not returned to
		// the pool: release neither closes nor reinserts h here.
		r.Body = EmptyBody()
		return r, wroteAny, nil
	}
	if decoded.Kind == wire.LengthZero {
		releasePooled(conn, h)
		r.Body = EmptyBody()
	} else {
		src := &clientBodySource{inner: &connBodySource{conn: conn, ctx: ctx}, conn: conn, pooled: h}
		r.Body = StreamBody(src, bodyLengthFromDecoded(decoded))
	}
	return r, wroteAny, nil
}

// releasePooled applies the keep-alive decision and either reinserts h
// into the pool or discards it, the client-side analog of Dispatcher's
// post-response CommitExchange call.
func releasePooled(conn *Conn, h *pool.Pooled[*pooledConn]) {
	if conn.CommitExchange() {
		_ = h.Close()
	} else {
		_ = h.Discard()
	}
}

// clientBodySource defers a pooled connection's release until the
// response body has been fully drained (or has errored), so a caller
// that reads the body slowly does not make the connection available for
// reuse early.
type clientBodySource struct {
	inner  *connBodySource
	conn   *Conn
	pooled *pool.Pooled[*pooledConn]
	done   bool
}

func (s *clientBodySource) Recv(ctx context.Context) ([]byte, error) {
	data, err := s.inner.Recv(ctx)
	if err == nil {
		return data, nil
	}
	if s.done {
		return data, err
	}
	s.done = true
	if err == io.EOF {
		releasePooled(s.conn, s.pooled)
	} else {
		_ = s.pooled.Discard()
	}
	return data, err
}

func (s *clientBodySource) Trailer() *header.Header { return s.inner.Trailer() }
