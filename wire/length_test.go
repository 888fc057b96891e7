/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package wire

import (
	"testing"

	"github.com/badu/httpcore/header"
)

func TestDecodeRequestLengthPrefersChunkedOverContentLength(t *testing.T) {
	h := header.New(2)
	h.Set(HeaderTransferEncoding, "chunked")
	h.Set(HeaderContentLength, "10")
	got, err := DecodeRequestLength(h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != LengthChunked {
		t.Fatalf("kind = %v, want LengthChunked", got.Kind)
	}
}

func TestDecodeRequestLengthKnown(t *testing.T) {
	h := header.New(1)
	h.Set(HeaderContentLength, "42")
	got, err := DecodeRequestLength(h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != LengthKnown || got.N != 42 {
		t.Fatalf("got %+v, want Known(42)", got)
	}
}

func TestDecodeRequestLengthAbsentIsZero(t *testing.T) {
	h := header.New(0)
	got, err := DecodeRequestLength(h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != LengthZero {
		t.Fatalf("kind = %v, want LengthZero", got.Kind)
	}
}

func TestDecodeRequestLengthRejectsDisagreeingDuplicates(t *testing.T) {
	h := header.New(2)
	h.Add(HeaderContentLength, "5")
	h.Add(HeaderContentLength, "6")
	_, err := DecodeRequestLength(h)
	if err == nil {
		t.Fatalf("expected an error for disagreeing Content-Length values")
	}
}

func TestDecodeRequestLengthRejectsIdenticalDuplicates(t *testing.T) {
	h := header.New(2)
	h.Add(HeaderContentLength, "5")
	h.Add(HeaderContentLength, "5")
	_, err := DecodeRequestLength(h)
	if err == nil {
		t.Fatalf("expected an error for duplicate Content-Length headers, even with equal values")
	}
	if perr, ok := err.(*ParseError); !ok || perr.Kind != KindHeader {
		t.Fatalf("err = %v, want a KindHeader ParseError", err)
	}
}

func TestDecodeResponseLengthHeadIsAlwaysZero(t *testing.T) {
	h := header.New(1)
	h.Set(HeaderContentLength, "100")
	got, err := DecodeResponseLength(200, MethodHead, false, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != LengthZero {
		t.Fatalf("kind = %v, want LengthZero for a HEAD response", got.Kind)
	}
}

func TestDecodeResponseLengthNoContentIsZero(t *testing.T) {
	h := header.New(0)
	got, err := DecodeResponseLength(204, MethodGet, false, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != LengthZero {
		t.Fatalf("kind = %v, want LengthZero for 204", got.Kind)
	}
}

func TestDecodeResponseLengthConnectUpgradeIsZero(t *testing.T) {
	h := header.New(1)
	h.Set(HeaderContentLength, "999")
	got, err := DecodeResponseLength(200, MethodConnect, true, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != LengthZero {
		t.Fatalf("kind = %v, want LengthZero for a successful CONNECT", got.Kind)
	}
}

func TestDecodeResponseLengthFallsBackToCloseDelimited(t *testing.T) {
	h := header.New(0)
	got, err := DecodeResponseLength(200, MethodGet, false, h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Kind != LengthCloseDelimited {
		t.Fatalf("kind = %v, want LengthCloseDelimited", got.Kind)
	}
}

func TestIsChunkedTERequiresFinalCoding(t *testing.T) {
	h := header.New(1)
	h.Set(HeaderTransferEncoding, "gzip, chunked")
	if !IsChunkedTE(h) {
		t.Fatalf("expected chunked to be recognized as the final coding")
	}
	h2 := header.New(1)
	h2.Set(HeaderTransferEncoding, "chunked, gzip")
	if IsChunkedTE(h2) {
		t.Fatalf("chunked must be the last coding, not merely present")
	}
}

func TestBodyAllowedForStatus(t *testing.T) {
	cases := map[int]bool{100: false, 101: false, 150: false, 200: true, 204: false, 304: false, 404: true}
	for status, want := range cases {
		if got := BodyAllowedForStatus(status); got != want {
			t.Fatalf("BodyAllowedForStatus(%d) = %v, want %v", status, got, want)
		}
	}
}
