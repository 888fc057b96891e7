/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpcore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-uuid"

	"github.com/badu/httpcore/bodypipe"
	"github.com/badu/httpcore/buffer"
	"github.com/badu/httpcore/header"
	"github.com/badu/httpcore/internal/corelog"
	"github.com/badu/httpcore/wire"
)

// Role distinguishes the two sides of the connection state machine: a
// server Conn decodes requests and encodes responses; a client Conn does
// the reverse.
type Role int

const (
	RoleServer Role = iota
	RoleClient
)

// CloseWriter is the half-close capability a transport may optionally
// expose, matching an optional CloseWrite() interface check against
// *net.TCPConn, generalized into a named interface any io.ReadWriteCloser
// can implement.
type CloseWriter interface {
	CloseWrite() error
}

// IO is the capability set Conn requires of its transport: read, write,
// close, and optionally (via a CloseWriter type assertion) half-close.
type IO interface {
	io.Reader
	io.Writer
	io.Closer
}

// ConnOptions is Conn's per-connection configuration surface.
type ConnOptions struct {
	KeepAlive          bool
	MaxBufSize         int
	MaxHeaders         int
	TitleCaseHeaders   bool
	PreserveHeaderCase bool
	AllowHalfClose     bool
	AutoDateHeader     bool
	WriteStrategy      buffer.Strategy
	PipelineFlush      bool
	Logger             corelog.Logger
}

func (o ConnOptions) headerCase() wire.HeaderCase {
	if o.TitleCaseHeaders {
		return wire.CaseTitle
	}
	if o.PreserveHeaderCase {
		return wire.CaseOriginal
	}
	return wire.CaseLower
}

// bufWriter adapts a *buffer.Write, which queues chunks via Append rather
// than satisfying io.Writer directly, to the io.Writer the wire encoder
// expects.
type bufWriter struct{ w *buffer.Write }

func (b bufWriter) Write(p []byte) (int, error) {
	b.w.Append(p)
	return len(p), nil
}

// Conn is the per-connection state machine: reading and writing halves,
// keep-alive accounting, half-close, pipelining and upgrade. It is driven
// by a Dispatcher (dispatcher.go), not safe for concurrent use from more
// than one goroutine at a time, the usual model of one
// goroutine owning one *conn.
type Conn struct {
	io   IO
	role Role
	opts ConnOptions

	rbuf   *buffer.Read
	wbuf   *buffer.Write
	wdst   bufWriter
	parser *wire.Parser
	enc    *wire.Encoder

	state *State
	id    string
	log   corelog.Logger

	// bookkeeping for the keep-alive decision matrix, reset at the start
	// of every exchange
	reqConnClose        bool
	reqWants10KeepAlive bool
	respConnClose       bool

	pendingUpgrade *Parts
	hijacked       bool
}

// NewConn wraps ioObj for role, ready to drive one or more HTTP/1.x
// exchanges.
func NewConn(ioObj IO, role Role, opts ConnOptions) *Conn {
	if opts.MaxBufSize <= 0 {
		opts.MaxBufSize = buffer.DefaultMaxSize
	}
	if opts.MaxHeaders <= 0 {
		opts.MaxHeaders = wire.DefaultMaxHeaders
	}
	lg := opts.Logger
	if lg == nil {
		lg = corelog.Noop()
	}
	id, _ := uuid.GenerateUUID()
	wbuf := buffer.NewWrite(opts.WriteStrategy)
	c := &Conn{
		io:     ioObj,
		role:   role,
		opts:   opts,
		rbuf:   buffer.NewRead(opts.MaxBufSize),
		wbuf:   wbuf,
		wdst:   bufWriter{wbuf},
		parser: wire.NewParser(wire.ParserOptions{MaxHeaders: opts.MaxHeaders}),
		enc:    &wire.Encoder{HeaderCase: opts.headerCase(), AutoDate: opts.AutoDateHeader},
		state:  newState(),
		id:     id,
		log:    lg.WithFields(corelog.Fields{"conn_id": id}),
	}
	return c
}

func (c *Conn) ID() string       { return c.id }
func (c *Conn) State() *State    { return c.state }
func (c *Conn) IsHijacked() bool { return c.hijacked }

// PollReadHead parses the next head, decides body framing, and detects an
// upgrade request/response. Requires state.Reading == ReadInit.
// lastRequestMethod is unused on the server role and is the in-flight
// request's method on the client role, needed to interpret the response.
func (c *Conn) PollReadHead(ctx context.Context, lastRequestMethod string) (*wire.Head, wire.DecodedLength, bool, error) {
	if c.state.Reading != ReadInit {
		return nil, wire.DecodedLength{}, false, NewError(KindUnexpectedMessage, "PollReadHead called outside ReadInit")
	}

	head, err := c.readHeadBlocking(ctx)
	if err != nil {
		return nil, wire.DecodedLength{}, false, err
	}

	if err := c.validateHead(head); err != nil {
		return nil, wire.DecodedLength{}, false, err
	}

	wantsUpgrade := detectUpgrade(head, c.role, lastRequestMethod)

	var decoded wire.DecodedLength
	if c.role == RoleServer {
		decoded, err = wire.DecodeRequestLength(head.Header)
		c.reqConnClose = isConnClose(head.Header, head.Version)
		c.reqWants10KeepAlive = head.Version == wire.HTTP10 && head.Header.HasToken(wire.HeaderConnection, "keep-alive")
		c.state.Method = head.Request.Method
	} else {
		isConnect2xx := lastRequestMethod == wire.MethodConnect && head.Status != nil && head.Status.Code/100 == 2
		status := 0
		if head.Status != nil {
			status = head.Status.Code
		}
		decoded, err = wire.DecodeResponseLength(status, lastRequestMethod, isConnect2xx, head.Header)
		c.respConnClose = isConnClose(head.Header, head.Version)
	}
	if err != nil {
		return nil, wire.DecodedLength{}, false, err
	}
	c.state.Version = head.Version

	switch {
	case wantsUpgrade:
		c.state.Reading = ReadUpgrade
		c.capturePendingUpgrade()
	case decoded.Kind == wire.LengthZero:
		c.state.Reading = ReadKeepAlive
	default:
		c.state.ReadDecoder = newDecoderFor(decoded)
		c.state.Reading = ReadBody
	}
	return head, decoded, wantsUpgrade, nil
}

func newDecoderFor(d wire.DecodedLength) *wire.BodyDecoder {
	switch d.Kind {
	case wire.LengthKnown:
		return wire.NewLengthDecoder(d.N)
	case wire.LengthChunked:
		return wire.NewChunkedDecoder()
	case wire.LengthCloseDelimited:
		return wire.NewEOFDecoder()
	default:
		return wire.NewEmptyDecoder()
	}
}

// readHeadBlocking runs the parser against rbuf, filling from the
// transport as needed: the parser's "needs more" verdict paired with the
// actual blocking I/O a bufio.Reader performs.
func (c *Conn) readHeadBlocking(ctx context.Context) (*wire.Head, error) {
	for {
		var (
			head *wire.Head
			n    int
			err  error
		)
		if c.role == RoleServer {
			head, n, err = c.parser.ParseRequestHead(c.rbuf.Bytes())
		} else {
			head, n, err = c.parser.ParseResponseHead(c.rbuf.Bytes())
		}
		if err == nil {
			c.rbuf.Advance(n)
			return head, nil
		}
		if err != wire.ErrNeedMore {
			kind := KindParse
			if pe, ok := err.(*wire.ParseError); ok {
				// wire's kinds are declared in the same order as KindParseMethod..KindParseHeaderValue.
				kind = KindParseMethod + Kind(pe.Kind)
			}
			return nil, WrapError(kind, "malformed head", err)
		}
		if c.rbuf.ExceedsMax(c.rbuf.Len()) {
			return nil, NewError(KindParseTooLarge, "head exceeds max_buf_size")
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		read, rerr := c.rbuf.Fill(c.io)
		if rerr != nil {
			if rerr == io.EOF && read == 0 {
				if c.rbuf.Len() == 0 {
					return nil, WrapError(KindIncompleteMessage, "peer closed before sending a head", io.EOF)
				}
				return nil, WrapError(KindIncompleteMessage, "peer closed mid-head", io.EOF)
			}
			if rerr == buffer.ErrTooLarge {
				return nil, NewError(KindParseTooLarge, "head exceeds max_buf_size")
			}
			return nil, WrapError(KindIO, "read error while parsing head", rerr)
		}
	}
}

func (c *Conn) validateHead(head *wire.Head) error {
	if c.role != RoleServer {
		return nil
	}
	hosts := head.Header.Values(wire.HeaderHost)
	if head.Version.AtLeast(wire.HTTP11) && len(hosts) == 0 && head.Request.Method != wire.MethodConnect {
		return NewError(KindParseHeader, "missing required Host header")
	}
	if len(hosts) > 1 {
		return NewError(KindParseHeader, "too many Host headers")
	}
	return nil
}

func isConnClose(h *header.Header, v wire.Version) bool {
	if h.HasToken(wire.HeaderConnection, "close") {
		return true
	}
	return v == wire.HTTP10 && !h.HasToken(wire.HeaderConnection, "keep-alive")
}

func detectUpgrade(head *wire.Head, role Role, lastRequestMethod string) bool {
	hasUpgradeHeader := head.Header.Has(wire.HeaderUpgrade) && head.Header.HasToken(wire.HeaderConnection, "upgrade")
	if role == RoleServer {
		return hasUpgradeHeader
	}
	if head.Status == nil {
		return false
	}
	if head.Status.Code == 101 && hasUpgradeHeader {
		return true
	}
	return lastRequestMethod == wire.MethodConnect && head.Status.Code/100 == 2
}

func (c *Conn) capturePendingUpgrade() {
	buffered := make([]byte, c.rbuf.Len())
	copy(buffered, c.rbuf.Bytes())
	c.rbuf.Reset()
	c.pendingUpgrade = &Parts{IO: c.io, ReadBuf: buffered}
}

// TakeUpgrade returns the upgrade/hijack Parts surfaced after
// PollReadHead reports wantsUpgrade. After this call the Conn is
// considered terminated.
func (c *Conn) TakeUpgrade() (*Parts, error) {
	if c.pendingUpgrade == nil {
		return nil, NewError(KindUserNoUpgrade, "no upgrade is pending on this connection")
	}
	p := c.pendingUpgrade
	c.pendingUpgrade = nil
	c.hijacked = true
	c.state.Reading = ReadClosed
	c.state.Writing = WriteClosed
	return p, nil
}

// Hijack is the general case of TakeUpgrade: the caller wants the raw
// connection regardless of protocol negotiation. It is only valid once the
// current request's head has been read and no response bytes have been
// written.
func (c *Conn) Hijack() (*Parts, error) {
	if c.hijacked {
		return nil, ErrHijacked
	}
	if c.state.Writing != WriteInit {
		return nil, NewError(KindUserManualUpgrade, "cannot hijack after response writing has started")
	}
	buffered := make([]byte, c.rbuf.Len())
	copy(buffered, c.rbuf.Bytes())
	c.rbuf.Reset()
	c.hijacked = true
	c.state.Reading = ReadClosed
	c.state.Writing = WriteClosed
	return &Parts{IO: c.io, ReadBuf: buffered}, nil
}

// ReadBodyChunk returns at most one data chunk per call, or done=true once
// the body is fully decoded. Requires state.Reading == ReadBody.
func (c *Conn) ReadBodyChunk(ctx context.Context) (data []byte, done bool, trailer *header.Header, err error) {
	if c.state.Reading != ReadBody {
		return nil, true, nil, nil
	}
	dec := c.state.ReadDecoder
	for {
		chunk, consumed, needMore, derr := dec.Decode(c.rbuf.Bytes())
		if derr != nil {
			c.state.Reading = ReadClosed
			return nil, true, nil, WrapError(KindParse, "chunked decode error", derr)
		}
		if consumed > 0 {
			out := make([]byte, len(chunk))
			copy(out, chunk)
			c.rbuf.Advance(consumed)
			if dec.Done() {
				trailer := dec.Trailer()
				c.finishReadBody(dec)
				return out, true, trailer, nil
			}
			if len(out) > 0 {
				return out, false, nil, nil
			}
			continue
		}
		if !needMore {
			if dec.Done() {
				trailer := dec.Trailer()
				c.finishReadBody(dec)
				return nil, true, trailer, nil
			}
			continue
		}
		if ctx.Err() != nil {
			return nil, true, nil, ctx.Err()
		}
		_, rerr := c.rbuf.Fill(c.io)
		if rerr != nil {
			if rerr == io.EOF {
				if dec.Kind() == wire.DecoderEOF {
					dec.MarkEOF()
					c.finishReadBody(dec)
					return nil, true, nil, nil
				}
				if dec.Kind() == wire.DecoderLength && !dec.Done() {
					c.state.Reading = ReadClosed
					return nil, true, nil, WrapError(KindIncompleteMessage, "peer closed mid-body", io.EOF)
				}
			}
			c.state.Reading = ReadClosed
			return nil, true, nil, WrapError(KindIO, "read error mid-body", rerr)
		}
	}
}

func (c *Conn) finishReadBody(dec *wire.BodyDecoder) {
	if dec.Kind() == wire.DecoderEOF {
		c.state.Reading = ReadClosed
	} else {
		c.state.Reading = ReadKeepAlive
	}
	c.state.ReadDecoder = nil
}

// AllowHalfClose reports whether a client half-close of the request body
// is tolerated while a response is in flight, rather than treated as a
// fatal read error.
func (c *Conn) AllowHalfClose() bool { return c.opts.AllowHalfClose }

// WriteHead decides framing, serializes the head, and prepares the body
// encoder. method is the in-flight request's method, used by the
// server-response framing rule (HEAD/204/304 suppress the body).
func (c *Conn) WriteHead(head *wire.Head, body wire.BodyLength, method string) error {
	if c.state.Writing != WriteInit {
		return NewError(KindUnexpectedMessage, "WriteHead called outside WriteInit")
	}

	if c.role == RoleServer {
		if c.opts.AutoDateHeader {
			wire.InsertDate(head.Header)
		}
		decision := wire.DecideResponseFraming(head.Version, head.Status.Code, method, head.Header, body)
		c.applyServerKeepAliveHeaders(head, decision)
		c.respConnClose = decision.ForceClose || head.Header.HasToken(wire.HeaderConnection, "close")
		c.state.WriteEncoder = encoderFor(decision, body)
	} else {
		decision := wire.DecideRequestFraming(head.Version, head.Request.Method, head.Header, body)
		c.state.WriteEncoder = encoderFor(decision, body)
		c.reqConnClose = head.Header.HasToken(wire.HeaderConnection, "close")
	}

	var err error
	if head.IsRequest() {
		err = c.enc.WriteRequestLine(c.wdst, head.Request, head.Version)
	} else {
		err = c.enc.WriteStatusLine(c.wdst, head.Status, head.Version)
	}
	if err != nil {
		return WrapError(KindIO, "write start line", err)
	}
	if err := c.enc.WriteHeaders(c.wdst, head.Header); err != nil {
		return WrapError(KindIO, "write headers", err)
	}

	if c.state.WriteEncoder.Kind() == wire.EncoderEmpty {
		c.state.Writing = WriteKeepAlive
	} else {
		c.state.Writing = WriteBody
	}
	return nil
}

func encoderFor(d wire.ResponseFramingDecision, body wire.BodyLength) *wire.BodyEncoder {
	switch d.Framing {
	case wire.FramingChunked:
		return wire.NewChunkedEncoder()
	case wire.FramingIdentity:
		return wire.NewIdentityEncoder(d.ContentLen)
	case wire.FramingCloseDelimited:
		if body.IsKnown() {
			return wire.NewIdentityEncoder(body.N())
		}
		return wire.NewChunkedEncoder()
	default:
		return wire.NewEmptyEncoder()
	}
}

// applyServerKeepAliveHeaders writes the Connection header half of the
// keep-alive decision: HTTP/1.0 responses only advertise "Connection:
// keep-alive" when the client asked for it and keep-alive is enabled.
func (c *Conn) applyServerKeepAliveHeaders(head *wire.Head, decision wire.ResponseFramingDecision) {
	if head.Version == wire.HTTP10 {
		if c.opts.KeepAlive && c.reqWants10KeepAlive && !decision.ForceClose {
			head.Header.Set(wire.HeaderConnection, "keep-alive")
		} else {
			head.Header.Set(wire.HeaderConnection, "close")
		}
		return
	}
	if !c.opts.KeepAlive && !head.Header.HasToken(wire.HeaderConnection, "close") {
		head.Header.Set(wire.HeaderConnection, "close")
	}
}

// WriteBestEffortError writes a minimal, self-contained status response
// directly to the transport, bypassing the encoder/state machine
// entirely, for failures observed before a Head was successfully parsed
// (so no Request exists to drive the normal WriteHead/WriteBodyChunk
// path).
func (c *Conn) WriteBestEffortError(status int, message string) error {
	body := []byte(message)
	_, err := fmt.Fprintf(c.io, "HTTP/1.1 %d %s\r\nContent-Type: text/plain; charset=utf-8\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, wire.StatusText(status), len(body), body)
	c.state.Reading = ReadClosed
	c.state.Writing = WriteClosed
	return err
}

// WriteBodyChunk writes one user-supplied chunk through the active
// encoder.
func (c *Conn) WriteBodyChunk(data []byte) error {
	if c.state.Writing != WriteBody {
		return NewError(KindUnexpectedMessage, "WriteBodyChunk called outside WriteBody")
	}
	if _, err := c.state.WriteEncoder.Write(c.wdst, data); err != nil {
		if err == wire.ErrMissingBodyWire {
			return ErrMissingBody
		}
		return WrapError(KindBodyWrite, "encode body chunk", err)
	}
	return nil
}

// EndBody finalizes the body (chunked terminator, or asserts sized
// exactness) and transitions writing toward KeepAlive.
func (c *Conn) EndBody() error {
	if c.state.Writing != WriteBody {
		return nil
	}
	if err := c.state.WriteEncoder.EndBody(c.wdst); err != nil {
		return WrapError(KindBodyWrite, "finalize body", err)
	}
	c.state.Writing = WriteKeepAlive
	c.state.WriteEncoder = nil
	return nil
}

// WriteFullMessage is the fast path for a head plus a synchronously fully
// known body: it skips the per-chunk encoder dance for the common case.
func (c *Conn) WriteFullMessage(head *wire.Head, method string, full []byte) error {
	if err := c.WriteHead(head, wire.KnownBodyLength(uint64(len(full))), method); err != nil {
		return err
	}
	if len(full) > 0 {
		if err := c.WriteBodyChunk(full); err != nil {
			return err
		}
	}
	return c.EndBody()
}

// Flush drains the write buffer to the transport.
func (c *Conn) Flush() error {
	if err := c.wbuf.Flush(c.io); err != nil {
		return WrapError(KindIO, "flush", err)
	}
	return nil
}

// CommitExchange applies the keep-alive decision matrix once both halves
// have reached a terminal/keep-alive state, returning whether the
// connection may be reused for another exchange. On reuse it resets
// Reading/Writing to Init for the next PollReadHead/WriteHead pair,
// continuing the serve loop in place.
func (c *Conn) CommitExchange() (reuse bool) {
	disabled := c.state.KeepAlive.IsDisabled() ||
		!c.opts.KeepAlive ||
		c.reqConnClose || c.respConnClose ||
		c.state.Reading == ReadClosed

	if c.state.Version == wire.HTTP10 {
		disabled = disabled || !c.reqWants10KeepAlive
	}

	c.reqConnClose = false
	c.respConnClose = false
	c.reqWants10KeepAlive = false

	if disabled {
		c.state.KeepAlive = KeepAlive{State: KeepAliveDisabled}
		c.state.Reading = ReadClosed
		c.state.Writing = WriteClosed
		return false
	}

	c.state.KeepAlive = KeepAlive{State: KeepAliveIdleState, Since: time.Now()}
	c.state.Reading = ReadInit
	c.state.Writing = WriteInit
	c.state.Method = ""
	return true
}

// Close tears down the transport: flush, then close.
func (c *Conn) Close() error {
	_ = c.Flush()
	c.state.Reading = ReadClosed
	c.state.Writing = WriteClosed
	c.state.KeepAlive = KeepAlive{State: KeepAliveDisabled}
	return c.io.Close()
}

// CloseWriteAndWait implements the shutdown path used when a request body
// limit was hit or the body was closed early: flush, half-close if the
// transport supports it, and pause briefly so the peer observes the FIN
// before any RST, to give the peer a chance to see the FIN before the RST.
func (c *Conn) CloseWriteAndWait(pause time.Duration) {
	_ = c.Flush()
	if cw, ok := c.io.(CloseWriter); ok {
		_ = cw.CloseWrite()
	}
	if pause > 0 {
		time.Sleep(pause)
	}
}

// DrainIdleByte peeks for a pipelined byte or peer close while Reading is
// KeepAlive, returning io.EOF if the peer has closed, in the style of a
// background single-byte probe read. On the server role it also
// transitions Reading back to Init once bytes are observed, letting
// pipelined requests flow through PollReadHead again.
func (c *Conn) DrainIdleByte() error {
	if c.state.Reading != ReadKeepAlive {
		return nil
	}
	if c.rbuf.Len() > 0 {
		if c.role == RoleServer {
			c.state.Reading = ReadInit
		}
		return nil
	}
	n, err := c.rbuf.Fill(c.io)
	if err != nil {
		c.state.Reading = ReadClosed
		return err
	}
	if n == 0 {
		c.state.Reading = ReadClosed
		return io.EOF
	}
	if c.role == RoleServer {
		c.state.Reading = ReadInit
		return nil
	}
	// Unsolicited bytes on a client connection while idle are a protocol
	// error: the server isn't supposed to speak first.
	c.state.Reading = ReadClosed
	return NewError(KindUnexpectedMessage, "unsolicited bytes from server while idle")
}

func (c *Conn) String() string {
	return fmt.Sprintf("Conn{id=%s reading=%s writing=%s keepalive=%v}", c.id, c.state.Reading, c.state.Writing, c.state.KeepAlive.State)
}

// SenderFor creates a connected body Sender/Receiver pair. The Dispatcher
// and Client do not use it: they read bodies through connBodySource and
// clientBodySource directly from the Conn.
func SenderFor() (bodypipe.Sender, bodypipe.Receiver) {
	p := bodypipe.New()
	return p.Sender(), p.Receiver()
}
