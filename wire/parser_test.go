/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package wire

import "testing"

func TestParseRequestHeadBasic(t *testing.T) {
	p := NewParser(ParserOptions{})
	raw := "GET /widgets?id=7 HTTP/1.1\r\nHost: example.com\r\nAccept: */*\r\n\r\nbody-follows"
	head, n, err := p.ParseRequestHead([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(raw)-len("body-follows") {
		t.Fatalf("consumed %d bytes, want %d", n, len(raw)-len("body-follows"))
	}
	if head.Request.Method != "GET" || head.Request.Target != "/widgets?id=7" {
		t.Fatalf("unexpected request line: %+v", head.Request)
	}
	if head.Version != HTTP11 {
		t.Fatalf("version = %v, want HTTP/1.1", head.Version)
	}
	if got := head.Header.Get("Host"); got != "example.com" {
		t.Fatalf("Host = %q", got)
	}
}

func TestParseRequestHeadNeedsMore(t *testing.T) {
	p := NewParser(ParserOptions{})
	_, _, err := p.ParseRequestHead([]byte("GET / HTTP/1.1\r\nHost: e"))
	if err != ErrNeedMore {
		t.Fatalf("err = %v, want ErrNeedMore", err)
	}
}

func TestParseRequestHeadLeadingCRLF(t *testing.T) {
	p := NewParser(ParserOptions{})
	raw := "\r\n\r\nGET / HTTP/1.1\r\nHost: e\r\n\r\n"
	head, n, err := p.ParseRequestHead([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(raw) {
		t.Fatalf("consumed %d, want %d", n, len(raw))
	}
	if head.Request.Method != "GET" {
		t.Fatalf("method = %q", head.Request.Method)
	}
}

func TestParseRequestHeadRejectsObsFold(t *testing.T) {
	p := NewParser(ParserOptions{})
	raw := "GET / HTTP/1.1\r\nX-Long: first\r\n second\r\n\r\n"
	_, _, err := p.ParseRequestHead([]byte(raw))
	perr, ok := err.(*ParseError)
	if !ok || perr.Kind != KindHeader {
		t.Fatalf("err = %v, want a KindHeader ParseError", err)
	}
}

func TestParseRequestHeadRejectsBadMethod(t *testing.T) {
	p := NewParser(ParserOptions{})
	_, _, err := p.ParseRequestHead([]byte("GE@T / HTTP/1.1\r\n\r\n"))
	perr, ok := err.(*ParseError)
	if !ok || perr.Kind != KindMethod {
		t.Fatalf("err = %v, want a KindMethod ParseError", err)
	}
}

func TestParseRequestHeadRejectsUnsupportedVersion(t *testing.T) {
	p := NewParser(ParserOptions{})
	_, _, err := p.ParseRequestHead([]byte("GET / HTTP/2.0\r\n\r\n"))
	perr, ok := err.(*ParseError)
	if !ok || perr.Kind != KindVersion {
		t.Fatalf("err = %v, want a KindVersion ParseError", err)
	}
}

func TestParseRequestHeadEnforcesMaxHeaders(t *testing.T) {
	p := NewParser(ParserOptions{MaxHeaders: 2})
	raw := "GET / HTTP/1.1\r\nA: 1\r\nB: 2\r\nC: 3\r\n\r\n"
	_, _, err := p.ParseRequestHead([]byte(raw))
	perr, ok := err.(*ParseError)
	if !ok || perr.Kind != KindTooLarge {
		t.Fatalf("err = %v, want a KindTooLarge ParseError", err)
	}
}

func TestParseResponseHeadBasic(t *testing.T) {
	p := NewParser(ParserOptions{})
	raw := "HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n"
	head, n, err := p.ParseResponseHead([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(raw) {
		t.Fatalf("consumed %d, want %d", n, len(raw))
	}
	if head.Status.Code != 404 || head.Status.Reason != "Not Found" {
		t.Fatalf("unexpected status line: %+v", head.Status)
	}
}

func TestParseResponseHeadRejectsBadStatusCode(t *testing.T) {
	p := NewParser(ParserOptions{})
	_, _, err := p.ParseResponseHead([]byte("HTTP/1.1 42 Huh\r\n\r\n"))
	perr, ok := err.(*ParseError)
	if !ok || perr.Kind != KindStatus {
		t.Fatalf("err = %v, want a KindStatus ParseError", err)
	}
}

func TestParseHeadersRejectsInvalidFieldName(t *testing.T) {
	p := NewParser(ParserOptions{})
	raw := "GET / HTTP/1.1\r\nBad Name: value\r\n\r\n"
	_, _, err := p.ParseRequestHead([]byte(raw))
	perr, ok := err.(*ParseError)
	if !ok || perr.Kind != KindHeaderName {
		t.Fatalf("err = %v, want a KindHeaderName ParseError", err)
	}
}

func TestParseHeadersTrimsOptionalWhitespace(t *testing.T) {
	p := NewParser(ParserOptions{})
	raw := "GET / HTTP/1.1\r\nX-Pad:   padded value   \r\n\r\n"
	head, _, err := p.ParseRequestHead([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := head.Header.Get("X-Pad"); got != "padded value" {
		t.Fatalf("X-Pad = %q", got)
	}
}

func TestParseRequestHeadDuplicateHeadersPreserveOrder(t *testing.T) {
	p := NewParser(ParserOptions{})
	raw := "GET / HTTP/1.1\r\nX-A: one\r\nX-A: two\r\n\r\n"
	head, _, err := p.ParseRequestHead([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	vals := head.Header.Values("X-A")
	if len(vals) != 2 || vals[0] != "one" || vals[1] != "two" {
		t.Fatalf("X-A values = %v", vals)
	}
}
