/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package wire

import (
	"bytes"
	"strings"
	"testing"

	"github.com/badu/httpcore/header"
)

func TestWriteRequestLineAndStatusLine(t *testing.T) {
	e := &Encoder{}
	var buf bytes.Buffer
	if err := e.WriteRequestLine(&buf, &RequestLine{Method: "GET", Target: "/a"}, HTTP11); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "GET /a HTTP/1.1\r\n" {
		t.Fatalf("got %q", buf.String())
	}

	buf.Reset()
	if err := e.WriteStatusLine(&buf, &StatusLine{Code: 200}, HTTP11); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "HTTP/1.1 200 OK\r\n" {
		t.Fatalf("got %q, want default reason phrase filled in", buf.String())
	}
}

func TestWriteHeadersPreservesInsertionOrder(t *testing.T) {
	e := &Encoder{}
	h := header.New(3)
	h.Add("Zebra", "1")
	h.Add("Apple", "2")
	var buf bytes.Buffer
	if err := e.WriteHeaders(&buf, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "Zebra: 1\r\nApple: 2\r\n\r\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestWriteHeadersCasing(t *testing.T) {
	h := header.New(1)
	h.Add("content-type", "text/plain")

	var lower bytes.Buffer
	if err := (&Encoder{HeaderCase: CaseLower}).WriteHeaders(&lower, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(lower.String(), "content-type:") {
		t.Fatalf("got %q", lower.String())
	}

	var title bytes.Buffer
	if err := (&Encoder{HeaderCase: CaseTitle}).WriteHeaders(&title, h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(title.String(), "Content-Type:") {
		t.Fatalf("got %q", title.String())
	}
}

func TestDecideResponseFramingKnownLength(t *testing.T) {
	h := header.New(0)
	d := DecideResponseFraming(HTTP11, 200, MethodGet, h, KnownBodyLength(5))
	if d.Framing != FramingIdentity || d.ContentLen != 5 {
		t.Fatalf("got %+v", d)
	}
	if h.Get(HeaderContentLength) != "5" {
		t.Fatalf("Content-Length header = %q", h.Get(HeaderContentLength))
	}
}

func TestDecideResponseFramingUnknownLengthChunksOnHTTP11(t *testing.T) {
	h := header.New(0)
	d := DecideResponseFraming(HTTP11, 200, MethodGet, h, UnknownBodyLength())
	if d.Framing != FramingChunked {
		t.Fatalf("framing = %v, want FramingChunked", d.Framing)
	}
	if !h.HasToken(HeaderTransferEncoding, "chunked") {
		t.Fatalf("Transfer-Encoding header not set to chunked")
	}
}

func TestDecideResponseFramingUnknownLengthForcesCloseOnHTTP10(t *testing.T) {
	h := header.New(0)
	d := DecideResponseFraming(HTTP10, 200, MethodGet, h, UnknownBodyLength())
	if d.Framing != FramingCloseDelimited || !d.ForceClose {
		t.Fatalf("got %+v, want close-delimited with ForceClose", d)
	}
}

func TestDecideResponseFramingSuppressesBodyForHeadAndNoBodyStatus(t *testing.T) {
	h := header.New(0)
	h.Set(HeaderContentLength, "10")
	d := DecideResponseFraming(HTTP11, 200, MethodHead, h, KnownBodyLength(10))
	if d.Framing != FramingNone {
		t.Fatalf("framing = %v, want FramingNone for a HEAD response", d.Framing)
	}
	if h.Has(HeaderContentLength) {
		t.Fatalf("Content-Length must be stripped for a HEAD response")
	}

	h2 := header.New(0)
	d2 := DecideResponseFraming(HTTP11, 204, MethodGet, h2, KnownBodyLength(10))
	if d2.Framing != FramingNone {
		t.Fatalf("framing = %v, want FramingNone for 204", d2.Framing)
	}
}

func TestDecideRequestFramingZeroLengthOmitsFramingHeaders(t *testing.T) {
	h := header.New(0)
	d := DecideRequestFraming(HTTP11, MethodGet, h, KnownBodyLength(0))
	if d.Framing != FramingNone {
		t.Fatalf("framing = %v, want FramingNone", d.Framing)
	}
	if h.Has(HeaderContentLength) || h.Has(HeaderTransferEncoding) {
		t.Fatalf("framing headers must be absent for a bodyless request")
	}
}

func TestDecideRequestFramingConnectWithZeroLengthStillFrames(t *testing.T) {
	h := header.New(0)
	d := DecideRequestFraming(HTTP11, MethodConnect, h, KnownBodyLength(0))
	if d.Framing != FramingIdentity {
		t.Fatalf("framing = %v, want FramingIdentity for CONNECT", d.Framing)
	}
}

func TestCachedDateIsStableWithinTheSameSecond(t *testing.T) {
	a := CachedDate()
	b := CachedDate()
	if a != b {
		t.Fatalf("cached date changed within the same call pair: %q vs %q", a, b)
	}
}
