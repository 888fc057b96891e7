/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package wire

import (
	"bytes"
	"strconv"

	"github.com/badu/httpcore/header"
)

// DefaultMaxHeaders is the default max_headers.
const DefaultMaxHeaders = 100

// ErrNeedMore signals a single-pass scan ran out of buffered bytes before
// finding a complete head; the caller (Conn) fills more bytes and retries
// the same buffered slice. It is a sentinel, never wrapped.
var ErrNeedMore = errStr("wire: need more bytes")

type errStr string

func (e errStr) Error() string { return string(e) }

// ParserOptions configures a single Parser instance, the parsing slice of
// Conn's broader configuration surface.
type ParserOptions struct {
	MaxHeaders int // 0 selects DefaultMaxHeaders
}

// Parser performs a single-pass, no-backtrack scan over a request-line or
// status-line plus headers. It is stateless across calls other than its
// options, so one Parser may be shared by many Conns; all state needed to
// resume on ErrNeedMore lives in the caller's Buffer, not here.
type Parser struct {
	opts ParserOptions
}

func NewParser(opts ParserOptions) *Parser {
	if opts.MaxHeaders <= 0 {
		opts.MaxHeaders = DefaultMaxHeaders
	}
	return &Parser{opts: opts}
}

// ParseRequestHead parses a request-line + headers from buf. On success it
// returns the Head and the number of bytes consumed (the caller advances
// its read buffer by exactly that much). ErrNeedMore
// means buf does not yet contain a complete head.
func (p *Parser) ParseRequestHead(buf []byte) (*Head, int, error) {
	return p.parseHead(buf, true)
}

// ParseResponseHead is the response-side counterpart.
func (p *Parser) ParseResponseHead(buf []byte) (*Head, int, error) {
	return p.parseHead(buf, false)
}

func (p *Parser) parseHead(buf []byte, isRequest bool) (*Head, int, error) {
	total := 0
	// Tolerate leading CRLF before a request line ; reject
	// any other leading whitespace by simply not skipping it — a bad
	// start line then fails the start-line scan below.
	for len(buf) >= 2 && buf[0] == '\r' && buf[1] == '\n' {
		buf = buf[2:]
		total += 2
	}
	if len(buf) == 0 {
		return nil, 0, ErrNeedMore
	}

	line, rest, n, err := cutLine(buf)
	if err != nil {
		return nil, 0, err
	}
	total += n

	var head *Head
	if isRequest {
		method, target, version, perr := parseRequestLine(line)
		if perr != nil {
			return nil, 0, perr
		}
		head = NewRequestHead(method, target, version)
	} else {
		version, code, reason, perr := parseStatusLine(line)
		if perr != nil {
			return nil, 0, perr
		}
		head = NewResponseHead(code, reason, version)
	}

	hdrLen, herr := p.parseHeaders(rest, head.Header)
	if herr != nil {
		return nil, 0, herr
	}
	if hdrLen < 0 {
		return nil, 0, ErrNeedMore
	}
	total += hdrLen
	return head, total, nil
}

// cutLine returns the bytes before the first line terminator, the
// remainder after it, and how many bytes (including the terminator) were
// consumed. Both CRLF and a bare LF end a line.
func cutLine(buf []byte) (line, rest []byte, n int, err error) {
	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		return nil, nil, 0, ErrNeedMore
	}
	end := idx
	if end > 0 && buf[end-1] == '\r' {
		end--
	}
	return buf[:end], buf[idx+1:], idx + 1, nil
}

func parseRequestLine(line []byte) (method, target string, version Version, err error) {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 < 0 {
		return "", "", Version{}, NewParseError(KindMethod, "missing space in request line")
	}
	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	if sp2 < 0 {
		return "", "", Version{}, NewParseError(KindURI, "missing space before version")
	}
	methodBytes := line[:sp1]
	targetBytes := rest[:sp2]
	versionBytes := rest[sp2+1:]

	if !validMethodToken(methodBytes) {
		return "", "", Version{}, NewParseError(KindMethod, "invalid method token")
	}
	if len(targetBytes) == 0 {
		return "", "", Version{}, NewParseError(KindURI, "empty request-target")
	}
	v, err2 := parseVersion(versionBytes)
	if err2 != nil {
		return "", "", Version{}, err2
	}
	return string(methodBytes), string(targetBytes), v, nil
}

func parseStatusLine(line []byte) (version Version, code int, reason string, err error) {
	sp1 := bytes.IndexByte(line, ' ')
	if sp1 < 0 {
		return Version{}, 0, "", NewParseError(KindStatus, "missing space in status line")
	}
	v, verr := parseVersion(line[:sp1])
	if verr != nil {
		return Version{}, 0, "", verr
	}
	rest := line[sp1+1:]
	sp2 := bytes.IndexByte(rest, ' ')
	var codeBytes []byte
	if sp2 < 0 {
		codeBytes = rest
	} else {
		codeBytes = rest[:sp2]
	}
	if len(codeBytes) != 3 {
		return Version{}, 0, "", NewParseError(KindStatus, "status code must be 3 digits")
	}
	code, cerr := strconv.Atoi(string(codeBytes))
	if cerr != nil || code < 100 || code > 599 {
		return Version{}, 0, "", NewParseError(KindStatus, "status code out of range")
	}
	if sp2 >= 0 {
		reason = string(rest[sp2+1:])
	}
	return v, code, reason, nil
}

func validMethodToken(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if !isTokenByte(c) {
			return false
		}
	}
	return true
}

func parseVersion(b []byte) (Version, error) {
	s := string(b)
	switch s {
	case "HTTP/1.1":
		return HTTP11, nil
	case "HTTP/1.0":
		return HTTP10, nil
	default:
		return Version{}, NewParseError(KindVersion, "unsupported version "+s)
	}
}

// parseHeaders scans header fields out of buf into h, returning the
// number of bytes consumed through and including the terminating blank
// line, or -1 if buf does not yet contain that terminator (ErrNeedMore at
// the call site). obs-fold (a continuation line starting with SP/HTAB) is
// rejected with a parse error, not silently unfolded.
func (p *Parser) parseHeaders(buf []byte, h *header.Header) (int, error) {
	total := 0
	for {
		if len(buf) == 0 {
			return -1, nil
		}
		if buf[0] == '\r' || buf[0] == '\n' {
			// blank line: end of headers
			if len(buf) >= 2 && buf[0] == '\r' && buf[1] == '\n' {
				return total + 2, nil
			}
			if buf[0] == '\n' {
				return total + 1, nil
			}
			return -1, nil
		}
		if buf[0] == ' ' || buf[0] == '\t' {
			return 0, NewParseError(KindHeader, "obs-fold is not accepted")
		}

		line, rest, n, err := cutLine(buf)
		if err != nil {
			return -1, nil
		}
		if len(rest) > 0 && (rest[0] == ' ' || rest[0] == '\t') {
			return 0, NewParseError(KindHeader, "obs-fold is not accepted")
		}

		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			return 0, NewParseError(KindHeader, "missing colon in header field")
		}
		name := line[:colon]
		if len(name) == 0 || len(name) > 1024 {
			return 0, NewParseError(KindHeaderName, "invalid header field name length")
		}
		if !validFieldNameBytes(name) {
			return 0, NewParseError(KindHeaderName, "invalid header field name")
		}
		value := trimOWS(line[colon+1:])
		if !validFieldValueBytes(value) {
			return 0, NewParseError(KindHeaderValue, "invalid header field value")
		}

		h.Add(string(name), string(value))
		if h.Len() > p.opts.MaxHeaders {
			return 0, NewParseError(KindTooLarge, "too many header fields")
		}

		total += n
		buf = rest
	}
}

func trimOWS(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}
	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}
	return b
}

func isTokenByte(c byte) bool {
	switch {
	case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

func validFieldNameBytes(b []byte) bool {
	for _, c := range b {
		if !isTokenByte(c) {
			return false
		}
	}
	return true
}

func validFieldValueBytes(b []byte) bool {
	for _, c := range b {
		if c == 0x7f || (c < 0x20 && c != '\t') {
			return false
		}
	}
	return true
}
