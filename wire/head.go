/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package wire implements the HTTP/1.1 codec: a zero-copy, no-backtrack
// head parser, the body-length decision rules, and the streaming body
// decoders/encoders (sized, chunked, EOF-terminated, empty).
package wire

import "github.com/badu/httpcore/header"

// Version is the two HTTP/1.x versions the parser accepts.
type Version struct {
	Major, Minor int
}

var (
	HTTP10 = Version{1, 0}
	HTTP11 = Version{1, 1}
)

func (v Version) AtLeast(o Version) bool {
	return v.Major > o.Major || (v.Major == o.Major && v.Minor >= o.Minor)
}

func (v Version) String() string {
	if v == HTTP10 {
		return "HTTP/1.0"
	}
	return "HTTP/1.1"
}

// RequestLine is the S=RequestLine instantiation of MessageHead<S>.
type RequestLine struct {
	Method string
	Target string
}

// StatusLine is the S=StatusCode instantiation of MessageHead<S>.
type StatusLine struct {
	Code   int
	Reason string
}

// Head is MessageHead<S> : a parsed or to-be-serialized
// start line plus headers, an HTTP version, and an extensions bag for
// per-request metadata (e.g. observed remote address).
type Head struct {
	Version     Version
	Request     *RequestLine // set for requests, nil for responses
	Status      *StatusLine  // set for responses, nil for requests
	Header      *header.Header
	Extensions  map[string]interface{}
}

func NewRequestHead(method, target string, v Version) *Head {
	return &Head{
		Version: v,
		Request: &RequestLine{Method: method, Target: target},
		Header:  header.New(16),
	}
}

func NewResponseHead(code int, reason string, v Version) *Head {
	return &Head{
		Version: v,
		Status:  &StatusLine{Code: code, Reason: reason},
		Header:  header.New(16),
	}
}

func (h *Head) IsRequest() bool { return h.Request != nil }

func (h *Head) Ext(key string) (interface{}, bool) {
	if h.Extensions == nil {
		return nil, false
	}
	v, ok := h.Extensions[key]
	return v, ok
}

func (h *Head) SetExt(key string, value interface{}) {
	if h.Extensions == nil {
		h.Extensions = make(map[string]interface{})
	}
	h.Extensions[key] = value
}

// Common, frequently-checked header names the codec references repeatedly;
// interning them avoids re-typing string literals at every call site, the
// same motivation behind net/http's commonHeader intern table.
const (
	HeaderContentLength    = "Content-Length"
	HeaderTransferEncoding = "Transfer-Encoding"
	HeaderConnection       = "Connection"
	HeaderHost             = "Host"
	HeaderUpgrade          = "Upgrade"
	HeaderTrailer          = "Trailer"
	HeaderDate             = "Date"
	HeaderExpect           = "Expect"
)

// Methods recognized as constants ("9 common methods").
const (
	MethodGet     = "GET"
	MethodHead    = "HEAD"
	MethodPost    = "POST"
	MethodPut     = "PUT"
	MethodDelete  = "DELETE"
	MethodConnect = "CONNECT"
	MethodOptions = "OPTIONS"
	MethodTrace   = "TRACE"
	MethodPatch   = "PATCH"
)
