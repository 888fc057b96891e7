/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package wire

import (
	"bytes"
	"testing"
)

func TestLengthDecoderExactBoundary(t *testing.T) {
	d := NewLengthDecoder(5)
	data, n, needMore, err := d.Decode([]byte("hello-extra"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if needMore {
		t.Fatalf("needMore = true, want false")
	}
	if n != 5 || string(data) != "hello" {
		t.Fatalf("consumed %d bytes %q, want 5 bytes \"hello\"", n, data)
	}
	if !d.Done() {
		t.Fatalf("decoder not done after consuming the declared length")
	}
}

func TestLengthDecoderSpansMultipleCalls(t *testing.T) {
	d := NewLengthDecoder(10)
	var got []byte
	for _, chunk := range []string{"abcd", "ef", "ghij"} {
		data, n, _, err := d.Decode([]byte(chunk))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != len(chunk) {
			t.Fatalf("consumed %d, want %d", n, len(chunk))
		}
		got = append(got, data...)
	}
	if string(got) != "abcdefghij" {
		t.Fatalf("got %q", got)
	}
	if !d.Done() {
		t.Fatalf("decoder should be done")
	}
}

func TestLengthDecoderZeroIsImmediatelyEmpty(t *testing.T) {
	d := NewLengthDecoder(0)
	if d.Kind() != DecoderEmpty {
		t.Fatalf("kind = %v, want DecoderEmpty", d.Kind())
	}
	if !d.Done() {
		t.Fatalf("empty decoder should already be done")
	}
}

func TestEOFDecoderConsumesEverythingUntilMarked(t *testing.T) {
	d := NewEOFDecoder()
	data, n, needMore, err := d.Decode([]byte("whatever bytes arrive"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if needMore || n != len("whatever bytes arrive") || string(data) != "whatever bytes arrive" {
		t.Fatalf("unexpected decode result: data=%q n=%d needMore=%v", data, n, needMore)
	}
	if d.Done() {
		t.Fatalf("EOF decoder must not be done before MarkEOF")
	}
	d.MarkEOF()
	if !d.Done() {
		t.Fatalf("EOF decoder must be done after MarkEOF")
	}
}

func TestChunkedDecodeRoundTripsEncodedBody(t *testing.T) {
	enc := NewChunkedEncoder()
	var wire bytes.Buffer
	chunks := []string{"hello ", "chunked ", "world"}
	for _, c := range chunks {
		if _, err := enc.Write(&wire, []byte(c)); err != nil {
			t.Fatalf("encode write: %v", err)
		}
	}
	if err := enc.EndBody(&wire); err != nil {
		t.Fatalf("encode end: %v", err)
	}

	dec := NewChunkedDecoder()
	var got []byte
	buf := wire.Bytes()
	for !dec.Done() {
		data, n, needMore, err := dec.Decode(buf)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		got = append(got, data...)
		buf = buf[n:]
		if needMore {
			t.Fatalf("ran out of input before decoder finished")
		}
	}
	want := "hello chunked world"
	if string(got) != want {
		t.Fatalf("round-tripped body = %q, want %q", got, want)
	}
}

func TestChunkedDecodeNeedsMoreAcrossSizeLineSplit(t *testing.T) {
	dec := NewChunkedDecoder()
	// Deliver the encoded body one byte at a time, always re-feeding only
	// the unconsumed remainder, to exercise NeedMore at every phase split.
	full := []byte("5\r\nhello\r\n0\r\n\r\n")
	delivered := 0
	consumedTotal := 0
	var got []byte
	for !dec.Done() {
		if consumedTotal == delivered {
			if delivered == len(full) {
				t.Fatalf("ran out of input before decoder finished")
			}
			delivered++
		}
		data, n, needMore, err := dec.Decode(full[consumedTotal:delivered])
		if err != nil {
			t.Fatalf("decode error: %v", err)
		}
		got = append(got, data...)
		consumedTotal += n
		if needMore {
			if delivered == len(full) {
				t.Fatalf("decoder needs more input after all of it was delivered")
			}
			delivered++
		}
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want \"hello\"", got)
	}
	if !dec.Done() {
		t.Fatalf("decoder should have reached PhaseEnd")
	}
}

func TestChunkedDecodeParsesTrailers(t *testing.T) {
	dec := NewChunkedDecoder()
	raw := []byte("4\r\nWiki\r\n0\r\nX-Checksum: abc123\r\n\r\n")
	buf := raw
	for !dec.Done() {
		_, n, needMore, err := dec.Decode(buf)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		buf = buf[n:]
		if needMore {
			t.Fatalf("unexpected needMore with fully buffered input")
		}
	}
	trailer := dec.Trailer()
	if trailer == nil || trailer.Get("X-Checksum") != "abc123" {
		t.Fatalf("trailer = %+v, want X-Checksum: abc123", trailer)
	}
}

func TestChunkedDecodeRejectsMissingCRLFAfterChunkData(t *testing.T) {
	dec := NewChunkedDecoder()
	// The first call yields "abc"; the missing CRLF is seen on the next.
	buf := []byte("3\r\nabcXX")
	_, n, _, err := dec.Decode(buf)
	if err == nil {
		_, _, _, err = dec.Decode(buf[n:])
	}
	if err == nil {
		t.Fatalf("expected an error for a missing chunk-data CRLF")
	}
}

func TestChunkedDecodeRejectsNonHexSize(t *testing.T) {
	dec := NewChunkedDecoder()
	_, _, _, err := dec.Decode([]byte("zz\r\n"))
	perr, ok := err.(*ParseError)
	if !ok || perr.Kind != KindHeader {
		t.Fatalf("err = %v, want a KindHeader ParseError", err)
	}
}

func TestIdentityEncoderRejectsOverrun(t *testing.T) {
	enc := NewIdentityEncoder(3)
	var buf bytes.Buffer
	if _, err := enc.Write(&buf, []byte("ab")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := enc.Write(&buf, []byte("cd")); err == nil {
		t.Fatalf("expected an error writing past the declared Content-Length")
	}
}

func TestIdentityEncoderEndBodyRequiresExactLength(t *testing.T) {
	enc := NewIdentityEncoder(3)
	var buf bytes.Buffer
	if _, err := enc.Write(&buf, []byte("ab")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := enc.EndBody(&buf); err == nil {
		t.Fatalf("expected EndBody to reject a short body")
	}
}
