/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package wire

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/badu/httpcore/header"
)

// HeaderCase selects how a header's name is written on the wire
// : as received/set (Original), all-lowercase, or
// Title-Case.
type HeaderCase int

const (
	CaseOriginal HeaderCase = iota
	CaseLower
	CaseTitle
)

func writeCased(w io.Writer, name string, c HeaderCase) error {
	switch c {
	case CaseLower:
		_, err := io.WriteString(w, strings.ToLower(name))
		return err
	case CaseTitle:
		_, err := io.WriteString(w, titleCase(name))
		return err
	default:
		_, err := io.WriteString(w, name)
		return err
	}
}

func titleCase(name string) string {
	b := []byte(name)
	upperNext := true
	for i, c := range b {
		if upperNext && c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
		upperNext = c == '-'
	}
	return string(b)
}

// Encoder serializes a Head plus frames a body
type Encoder struct {
	HeaderCase HeaderCase
	AutoDate   bool
}

// WriteRequestLine writes "METHOD target VERSION\r\n".
func (e *Encoder) WriteRequestLine(w io.Writer, rl *RequestLine, v Version) error {
	_, err := fmt.Fprintf(w, "%s %s %s\r\n", rl.Method, rl.Target, v)
	return err
}

// WriteStatusLine writes "VERSION code reason\r\n".
func (e *Encoder) WriteStatusLine(w io.Writer, sl *StatusLine, v Version) error {
	reason := sl.Reason
	if reason == "" {
		reason = StatusText(sl.Code)
	}
	_, err := fmt.Fprintf(w, "%s %d %s\r\n", v, sl.Code, reason)
	return err
}

// WriteHeaders writes every field in insertion order, each
// CRLF-terminated, followed by the blank-line terminator. It does not
// insert Date/framing headers; callers decide those before calling this
// (DecideRequestFraming/DecideResponseFraming below, plus InsertDate).
func (e *Encoder) WriteHeaders(w io.Writer, h *header.Header) error {
	for _, f := range h.Fields() {
		if err := writeCased(w, f.Name, e.HeaderCase); err != nil {
			return err
		}
		if _, err := io.WriteString(w, ": "); err != nil {
			return err
		}
		if _, err := io.WriteString(w, f.Value); err != nil {
			return err
		}
		if _, err := w.Write(crlf); err != nil {
			return err
		}
	}
	_, err := w.Write(crlf)
	return err
}

// InsertDate adds a Date header using a process-wide value cached and
// refreshed at most once per second, if the head doesn't already carry one.
func InsertDate(h *header.Header) {
	if !h.Has(HeaderDate) {
		h.Set(HeaderDate, CachedDate())
	}
}

// dateCache is the global, lazily-initialized per-second Date string
// (the protocol state machine "Global date cache"): no teardown required, refreshed on
// demand when the cached second changes.
type dateCache struct {
	mu     sync.Mutex
	second int64
	value  string
}

var globalDateCache dateCache

// CachedDate returns the current RFC 7231 IMF-fixdate, refreshing the
// cache at most once per wall-clock second.
func CachedDate() string {
	now := time.Now().UTC()
	sec := now.Unix()
	globalDateCache.mu.Lock()
	defer globalDateCache.mu.Unlock()
	if globalDateCache.second != sec || globalDateCache.value == "" {
		globalDateCache.second = sec
		globalDateCache.value = now.Format(TimeFormat)
	}
	return globalDateCache.value
}

// Framing is the encoder's verdict on how to write the body, decided once
//
type Framing int

const (
	FramingChunked Framing = iota
	FramingIdentity
	FramingCloseDelimited
	FramingNone // no body permitted/sent at all
)

// ResponseFramingDecision is the outcome of DecideResponseFraming: the
// chosen Framing plus whether Connection: close must be forced.
type ResponseFramingDecision struct {
	Framing     Framing
	ForceClose  bool
	ContentLen  uint64 // valid when Framing == FramingIdentity
}

// DecideResponseFraming implements the response encoder rules,
// including suppressing both framing headers when the body is disallowed
// by status or by HEAD.
func DecideResponseFraming(v Version, status int, requestMethod string, h *header.Header, body BodyLength) ResponseFramingDecision {
	if !BodyAllowedForStatus(status) || requestMethod == MethodHead {
		h.Del(HeaderContentLength)
		h.Del(HeaderTransferEncoding)
		return ResponseFramingDecision{Framing: FramingNone}
	}

	if h.HasToken(HeaderTransferEncoding, "chunked") {
		h.Del(HeaderContentLength)
		return ResponseFramingDecision{Framing: FramingChunked}
	}

	if cl := h.Get(HeaderContentLength); cl != "" {
		if n, err := parseContentLength(cl); err == nil && body.IsKnown() && n == body.N() {
			return ResponseFramingDecision{Framing: FramingIdentity, ContentLen: n}
		}
	}

	if body.IsKnown() {
		h.Set(HeaderContentLength, fmt.Sprintf("%d", body.N()))
		return ResponseFramingDecision{Framing: FramingIdentity, ContentLen: body.N()}
	}

	if v.AtLeast(HTTP11) {
		h.Set(HeaderTransferEncoding, "chunked")
		return ResponseFramingDecision{Framing: FramingChunked}
	}

	// HTTP/1.0 with unknown length: force close, close-delimited framing.
	h.Del(HeaderContentLength)
	h.Del(HeaderTransferEncoding)
	return ResponseFramingDecision{Framing: FramingCloseDelimited, ForceClose: true}
}

// DecideRequestFraming implements the client-request side of the framing
// rules: requests without a body and not CONNECT omit both framing
// headers.
func DecideRequestFraming(v Version, method string, h *header.Header, body BodyLength) ResponseFramingDecision {
	if h.HasToken(HeaderTransferEncoding, "chunked") {
		h.Del(HeaderContentLength)
		return ResponseFramingDecision{Framing: FramingChunked}
	}
	if body.IsKnown() {
		if body.N() == 0 && method != MethodConnect {
			h.Del(HeaderContentLength)
			h.Del(HeaderTransferEncoding)
			return ResponseFramingDecision{Framing: FramingNone}
		}
		h.Set(HeaderContentLength, fmt.Sprintf("%d", body.N()))
		return ResponseFramingDecision{Framing: FramingIdentity, ContentLen: body.N()}
	}
	if v.AtLeast(HTTP11) {
		h.Set(HeaderTransferEncoding, "chunked")
		return ResponseFramingDecision{Framing: FramingChunked}
	}
	return ResponseFramingDecision{Framing: FramingCloseDelimited, ForceClose: true}
}

// TimeFormat is the RFC 7231 IMF-fixdate layout used for the Date header.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"
