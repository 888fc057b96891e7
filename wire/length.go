/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package wire

import (
	"strconv"
	"strings"

	"github.com/badu/httpcore/header"
)

// LengthKind is DecodedLength's tag 
type LengthKind int

const (
	LengthZero LengthKind = iota
	LengthCloseDelimited
	LengthChunked
	LengthKnown
)

// DecodedLength is the parser's verdict on body framing :
// exactly one of Zero, CloseDelimited, Chunked, or Known(N).
type DecodedLength struct {
	Kind LengthKind
	N    uint64
}

func Zero() DecodedLength             { return DecodedLength{Kind: LengthZero} }
func CloseDelimited() DecodedLength   { return DecodedLength{Kind: LengthCloseDelimited} }
func Chunked() DecodedLength          { return DecodedLength{Kind: LengthChunked} }
func Known(n uint64) DecodedLength    { return DecodedLength{Kind: LengthKnown, N: n} }

// IsChunkedTE reports whether a Transfer-Encoding header's value list ends
// in "chunked", the only TE coding this engine understands (// "chunked as final coding").
func IsChunkedTE(h *header.Header) bool {
	vals := h.Values(HeaderTransferEncoding)
	if len(vals) == 0 {
		return false
	}
	last := strings.TrimSpace(vals[len(vals)-1])
	if comma := strings.LastIndexByte(last, ','); comma >= 0 {
		last = strings.TrimSpace(last[comma+1:])
	}
	return strings.EqualFold(last, "chunked")
}

// dedupeContentLength applies the duplicate-Content-Length
// rule (Open Question (a), resolved strict in DESIGN.md): more than one
// Content-Length header is a 400, even when every value is identical.
// Returns the single effective value, or "" if the header is absent.
func dedupeContentLength(h *header.Header) (string, error) {
	vals := h.Values(HeaderContentLength)
	if len(vals) == 0 {
		return "", nil
	}
	if len(vals) > 1 {
		return "", NewParseError(KindHeader, "multiple Content-Length headers")
	}
	return strings.TrimSpace(vals[0]), nil
}

func parseContentLength(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, NewParseError(KindHeader, "empty Content-Length")
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, NewParseError(KindHeader, "malformed Content-Length")
	}
	return n, nil
}

// methodLacksResponseBody reports whether requestMethod never expects a
// response body, matching net/http's bodyAllowedForStatus rules.
func methodLacksResponseBody(method string) bool { return method == MethodHead }

// DecodeRequestLength implements the "Server parsing a
// request" rule.
func DecodeRequestLength(h *header.Header) (DecodedLength, error) {
	if IsChunkedTE(h) {
		return Chunked(), nil
	}
	cl, err := dedupeContentLength(h)
	if err != nil {
		return DecodedLength{}, err
	}
	if cl == "" {
		return Zero(), nil
	}
	n, perr := parseContentLength(cl)
	if perr != nil {
		return DecodedLength{}, perr
	}
	return Known(n), nil
}

// DecodeResponseLength implements the "Client parsing a
// response" rule. requestMethod is the method of the request this
// response answers; isConnect2xx marks a successful CONNECT response
// (upgrade, body handed off entirely).
func DecodeResponseLength(status int, requestMethod string, isConnect2xx bool, h *header.Header) (DecodedLength, error) {
	if requestMethod == MethodHead || (status >= 100 && status <= 199) || status == 204 || status == 304 {
		return Zero(), nil
	}
	if isConnect2xx {
		return Zero(), nil // body handed off via upgrade, not framed
	}
	if IsChunkedTE(h) {
		return Chunked(), nil
	}
	cl, err := dedupeContentLength(h)
	if err != nil {
		return DecodedLength{}, err
	}
	if cl != "" {
		n, perr := parseContentLength(cl)
		if perr != nil {
			return DecodedLength{}, perr
		}
		return Known(n), nil
	}
	return CloseDelimited(), nil
}

// BodyLength is the encoder counterpart : Known(N) or
// Unknown (triggers chunked framing for HTTP/1.1, forces Connection:
// close for HTTP/1.0).
type BodyLength struct {
	known bool
	n     uint64
}

func KnownBodyLength(n uint64) BodyLength { return BodyLength{known: true, n: n} }
func UnknownBodyLength() BodyLength       { return BodyLength{} }

func (b BodyLength) IsKnown() bool { return b.known }
func (b BodyLength) N() uint64     { return b.n }

// BodyAllowedForStatus reports whether a status line permits a body at
// all , independent of what the request method allows.
func BodyAllowedForStatus(status int) bool {
	switch {
	case status >= 100 && status <= 199:
		return false
	case status == 204, status == 304:
		return false
	}
	return true
}
