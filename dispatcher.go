/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpcore

import (
	"context"
	"io"

	"github.com/badu/httpcore/header"
	"github.com/badu/httpcore/wire"
)

// DispatcherOptions configures a Dispatcher's per-connection behavior.
type DispatcherOptions struct {
	// MaxPipelineBacklog is stored with a default of 16 (see backlog).
	// ServeOne handles exactly one exchange per call and does not consult
	// it, so no backlog bound is applied.
	MaxPipelineBacklog int
}

func (o DispatcherOptions) backlog() int {
	if o.MaxPipelineBacklog <= 0 {
		return 16
	}
	return o.MaxPipelineBacklog
}

// Dispatcher drives one Conn through a sequence of request/response
// exchanges against a Service, following the classic accept-loop shape
// (conn.go): poll the next head, arrange a streaming body, call the
// handler, write the response, decide reuse, repeat.
type Dispatcher struct {
	conn *Conn
	svc  Service
	opts DispatcherOptions
}

func NewDispatcher(conn *Conn, svc Service, opts DispatcherOptions) *Dispatcher {
	return &Dispatcher{conn: conn, svc: svc, opts: opts}
}

// connBodySource adapts a Conn's chunk-at-a-time ReadBodyChunk to the
// BodySource interface, for the common case where the handler pulls the
// body inline on the connection's own goroutine rather than through a
// decoupled bodypipe.
type connBodySource struct {
	conn    *Conn
	ctx     context.Context
	trailer *header.Header
}

func (s *connBodySource) Recv(ctx context.Context) ([]byte, error) {
	if s.conn.state.Reading != ReadBody {
		return nil, io.EOF
	}
	data, done, trailer, err := s.conn.ReadBodyChunk(ctx)
	if trailer != nil {
		s.trailer = trailer
	}
	if err != nil {
		return nil, err
	}
	if done && len(data) == 0 {
		return nil, io.EOF
	}
	return data, nil
}

func (s *connBodySource) Trailer() *header.Header { return s.trailer }

// ServeOne drives exactly one request/response exchange: reading the next
// head (including any already-buffered pipelined request), invoking the
// Service, writing the response, and applying the keep-alive decision. It
// returns reuse=true when the caller's loop should call ServeOne again.
func (d *Dispatcher) ServeOne(ctx context.Context) (reuse bool, err error) {
	head, decoded, wantsUpgrade, err := d.conn.PollReadHead(ctx, "")
	if err != nil {
		return false, err
	}
	if wantsUpgrade {
		return false, NewError(KindUserManualUpgrade, "upgrade request pending: call Conn.TakeUpgrade")
	}

	req := &Request{Head: head, ctx: ctx}
	if decoded.Kind == wire.LengthZero {
		req.Body = EmptyBody()
	} else {
		src := &connBodySource{conn: d.conn, ctx: ctx}
		req.Body = StreamBody(src, bodyLengthFromDecoded(decoded))
	}

	if req.ExpectsContinue() && head.Version.AtLeast(wire.HTTP11) && decoded.Kind != wire.LengthZero {
		req.Body = continueGatedBody(req.Body, d.conn)
	} else if head.Header.Has(wire.HeaderExpect) && !req.ExpectsContinue() {
		return d.writeAndCommit(ctx, head.Version, 417, nil, nil, head.Request.Method)
	}

	resp, svcErr := d.svc.Call(ctx, req)
	if svcErr != nil {
		resp = errorResponse(svcErr)
	}
	if resp == nil {
		resp = NewResponse(500, header.New(0), EmptyBody())
	}

	if resp.IsUpgrade() {
		return false, NewError(KindUserManualUpgrade, "upgrade response pending: call Conn.TakeUpgrade")
	}

	return d.writeResponseAndCommit(head.Version, resp, head.Request.Method)
}

func bodyLengthFromDecoded(d wire.DecodedLength) wire.BodyLength {
	if d.Kind == wire.LengthKnown {
		return wire.KnownBodyLength(d.N)
	}
	return wire.UnknownBodyLength()
}

// continueGatedBody wraps body so that the first successful Next call
// writes and flushes a "100 Continue" interim response first, matching
// a Read-time 100-continue hook, generalized from a Read-time hook to
// a Next-time hook.
func continueGatedBody(body Body, conn *Conn) Body {
	return StreamBody(&continueGate{body: body, conn: conn}, body.Length())
}

type continueGate struct {
	body Body
	conn *Conn
	sent bool
}

func (g *continueGate) Recv(ctx context.Context) ([]byte, error) {
	if !g.sent {
		g.sent = true
		h := wire.NewResponseHead(100, "Continue", g.conn.state.Version)
		if err := g.conn.WriteHead(h, wire.KnownBodyLength(0), ""); err == nil {
			g.conn.state.Writing = WriteInit // a 1xx interim response doesn't consume the writing slot
			_ = g.conn.Flush()
		}
	}
	return g.body.Next(ctx)
}

func (g *continueGate) Trailer() *header.Header { return g.body.Trailer() }

func errorResponse(err error) *Response {
	status := 500
	if IsKind(err, KindParseTooLarge) {
		status = 431
	}
	h := header.New(1)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	return NewResponse(status, h, FullBody([]byte(err.Error())))
}

func (d *Dispatcher) writeResponseAndCommit(v wire.Version, resp *Response, method string) (bool, error) {
	h := wire.NewResponseHead(resp.Status, resp.Reason, v)
	h.Header = resp.Header
	return d.writeAndCommit(resp.Context(), v, 0, h, &resp.Body, method)
}

// writeAndCommit writes either a prebuilt head (h != nil) or synthesizes
// one from status, then drains body chunk by chunk, finalizes, and
// applies the keep-alive matrix.
func (d *Dispatcher) writeAndCommit(ctx context.Context, v wire.Version, status int, h *wire.Head, body *Body, method string) (bool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if h == nil {
		h = wire.NewResponseHead(status, wire.StatusText(status), v)
	}
	bodyLen := wire.KnownBodyLength(0)
	var full []byte
	if body != nil {
		if body.IsFull() {
			full = body.FullBytes()
			bodyLen = wire.KnownBodyLength(uint64(len(full)))
		} else {
			bodyLen = body.Length()
		}
	}

	if body == nil || body.IsFull() {
		if err := d.conn.WriteFullMessage(h, method, full); err != nil {
			return false, err
		}
	} else {
		if err := d.conn.WriteHead(h, bodyLen, method); err != nil {
			return false, err
		}
		for {
			chunk, err := body.Next(ctx)
			if err != nil && err != io.EOF {
				return false, WrapError(KindBody, "reading response body", err)
			}
			if len(chunk) > 0 {
				if werr := d.conn.WriteBodyChunk(chunk); werr != nil {
					return false, werr
				}
			}
			if err == io.EOF {
				break
			}
		}
		if t := body.Trailer(); t != nil {
			d.conn.state.WriteEncoder.SetTrailer(t)
		}
		if err := d.conn.EndBody(); err != nil {
			return false, err
		}
	}

	if err := d.conn.Flush(); err != nil {
		return false, err
	}
	return d.conn.CommitExchange(), nil
}
