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

// BodySource is anything a streaming Body can pull chunks from: a
// bodypipe.Receiver for decoupled producer/consumer streaming, or a direct
// adapter over a Conn. The Dispatcher (connBodySource) and the Client
// (clientBodySource) both use direct Conn adapters. Implementations that also decode trailers may optionally
// implement Trailer() *header.Header.
type BodySource interface {
	Recv(ctx context.Context) ([]byte, error)
}

// Body is the user-facing handle for a message body, unifying the fast
// "fully known synchronously" path with the general streaming path over a
// BodySource.
type Body struct {
	full    []byte
	hasFull bool
	stream  BodySource
	length  wire.BodyLength

	limit     int64 // < 0 means unlimited
	overLimit bool
}

// EmptyBody is a zero-length body.
func EmptyBody() Body { return Body{full: nil, hasFull: true, length: wire.KnownBodyLength(0), limit: -1} }

// FullBody wraps a body whose complete bytes are already available,
// letting the Dispatcher take the fast path of emitting head and body in
// one go instead of chunk-by-chunk.
func FullBody(b []byte) Body {
	return Body{full: b, hasFull: true, length: wire.KnownBodyLength(uint64(len(b))), limit: -1}
}

// StreamBody wraps a body that must be drained chunk by chunk, with
// length either known in advance (identity framing) or unknown (chunked
// framing).
func StreamBody(r BodySource, length wire.BodyLength) Body {
	return Body{stream: r, length: length, limit: -1}
}

// WithMaxBytes returns a copy of b that fails with ErrBodyTooLarge once
// more than n bytes have been read, in the style of Go's
// http.MaxBytesReader: the limit is enforced lazily as
// Next is called rather than by pre-validating Content-Length, so a
// chunked body with no declared length is covered too.
func (b Body) WithMaxBytes(n int64) Body {
	b.limit = n
	return b
}

func (b Body) IsFull() bool            { return b.hasFull }
func (b Body) FullBytes() []byte       { return b.full }
func (b Body) Length() wire.BodyLength { return b.length }
func (b Body) Stream() BodySource      { return b.stream }

// Trailer returns trailer fields decoded after the terminal chunk, if the
// underlying BodySource captured any; nil otherwise. Only meaningful once
// Next has returned io.EOF.
func (b Body) Trailer() *header.Header {
	if ts, ok := b.stream.(interface{ Trailer() *header.Header }); ok {
		return ts.Trailer()
	}
	return nil
}

// Next returns the next chunk regardless of representation, so the
// dispatcher's drain loop has one code path: a FullBody yields its single
// chunk then io.EOF; a StreamBody defers to the underlying BodySource.
func (b *Body) Next(ctx context.Context) ([]byte, error) {
	if b.overLimit {
		return nil, ErrBodyTooLarge
	}
	data, err := b.next(ctx)
	if b.limit < 0 || len(data) == 0 {
		return data, err
	}
	if int64(len(data)) <= b.limit {
		b.limit -= int64(len(data))
		return data, err
	}
	cut := data[:b.limit]
	b.limit = 0
	b.overLimit = true
	return cut, nil
}

func (b *Body) next(ctx context.Context) ([]byte, error) {
	if b.hasFull {
		if b.full == nil {
			return nil, io.EOF
		}
		data := b.full
		b.full = nil
		return data, nil
	}
	if b.stream != nil {
		return b.stream.Recv(ctx)
	}
	return nil, io.EOF
}

// RequestLine / Target / Extensions live on wire.Head directly; Request
// adds the role-specific envelope around it.
type Request struct {
	Head       *wire.Head
	Body       Body
	RemoteAddr string
	TLS        bool
	ctx        context.Context
}

func (r *Request) Method() string           { return r.Head.Request.Method }
func (r *Request) Target() string           { return r.Head.Request.Target }
func (r *Request) Header() *header.Header   { return r.Head.Header }
func (r *Request) Version() wire.Version    { return r.Head.Version }
func (r *Request) Context() context.Context { return r.ctx }

func (r *Request) WithContext(ctx context.Context) *Request {
	r2 := *r
	r2.ctx = ctx
	return &r2
}

// ExpectsContinue reports whether the client sent "Expect: 100-continue".
func (r *Request) ExpectsContinue() bool {
	return r.Header().HasToken(wire.HeaderExpect, "100-continue")
}

// Response is the role-agnostic outgoing message: a server handler
// returns one; a client's round trip resolves with one.
type Response struct {
	Status int
	Reason string
	Header *header.Header
	Body   Body
	ctx    context.Context

	// Request is set on client-received responses, to let the codec's
	// response-length decision consult the request method and to
	// support the CONNECT/upgrade fast path.
	Request *Request
}

func NewResponse(status int, header *header.Header, body Body) *Response {
	return &Response{Status: status, Header: header, Body: body}
}

func (r *Response) Context() context.Context { return r.ctx }

// IsUpgrade reports a 101 Switching Protocols response, or a 2xx answer
// to a CONNECT request.
func (r *Response) IsUpgrade() bool {
	if r.Status == 101 {
		return true
	}
	if r.Request != nil && r.Request.Method() == wire.MethodConnect && r.Status/100 == 2 {
		return true
	}
	return false
}

// Parts is handed to the caller on upgrade or hijack: the raw I/O object
// plus any bytes already buffered past the head.
type Parts struct {
	IO      io.ReadWriteCloser
	ReadBuf []byte
}
