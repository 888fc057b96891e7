/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package wire

import (
	"fmt"
	"io"

	"github.com/badu/httpcore/header"
)

// EncoderKind is BodyEncoder state's tag 
type EncoderKind int

const (
	EncoderIdentity EncoderKind = iota
	EncoderChunked
	EncoderEmpty
)

// BodyEncoder serializes an outgoing body per the framing decided once at
// write_head time, in the style of net/http's chunkWriter
// (chunk_writer.go) generalized to also support the plain-identity and
// empty cases instead of being wired directly to a *response.
type BodyEncoder struct {
	kind      EncoderKind
	remaining uint64 // EncoderIdentity: bytes still owed
	trailer   *header.Header
}

func NewIdentityEncoder(n uint64) *BodyEncoder {
	if n == 0 {
		return &BodyEncoder{kind: EncoderEmpty}
	}
	return &BodyEncoder{kind: EncoderIdentity, remaining: n}
}

func NewChunkedEncoder() *BodyEncoder { return &BodyEncoder{kind: EncoderChunked} }

func NewEmptyEncoder() *BodyEncoder { return &BodyEncoder{kind: EncoderEmpty} }

func (e *BodyEncoder) Kind() EncoderKind { return e.kind }

// SetTrailer registers trailer fields to be written after the terminal
// chunk by EndBody, valid only for EncoderChunked.
func (e *BodyEncoder) SetTrailer(t *header.Header) { e.trailer = t }

// Write frames and writes one user-supplied chunk to dst. Empty chunks
// are silently dropped ("Empty chunks are silently
// dropped"). For EncoderIdentity, a chunk that would write past the
// declared length is refused with an error and nothing is written.
func (e *BodyEncoder) Write(dst io.Writer, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	switch e.kind {
	case EncoderEmpty:
		return 0, ErrMissingBodyWire
	case EncoderIdentity:
		if uint64(len(p)) > e.remaining {
			return 0, NewParseError(KindHeader, "body write exceeds declared Content-Length")
		}
		n, err := dst.Write(p)
		e.remaining -= uint64(n)
		return n, err
	case EncoderChunked:
		if _, err := fmt.Fprintf(dst, "%x\r\n", len(p)); err != nil {
			return 0, err
		}
		n, err := dst.Write(p)
		if err != nil {
			return n, err
		}
		if _, err := dst.Write(crlf); err != nil {
			return n, err
		}
		return n, nil
	}
	return 0, nil
}

// EndBody finalizes the body: for EncoderChunked it writes the zero-size
// terminal chunk plus any trailer and the final CRLF; for EncoderIdentity
// it asserts the declared length was met exactly ("the sum of
// bytes emitted... equals Content-Length when known").
func (e *BodyEncoder) EndBody(dst io.Writer) error {
	switch e.kind {
	case EncoderIdentity:
		if e.remaining != 0 {
			return NewParseError(KindHeader, "body shorter than declared Content-Length")
		}
		return nil
	case EncoderChunked:
		if _, err := io.WriteString(dst, "0\r\n"); err != nil {
			return err
		}
		if e.trailer != nil {
			for _, f := range e.trailer.Fields() {
				if _, err := fmt.Fprintf(dst, "%s: %s\r\n", f.Name, f.Value); err != nil {
					return err
				}
			}
		}
		_, err := dst.Write(crlf)
		return err
	}
	return nil
}

var crlf = []byte("\r\n")

// ErrMissingBodyWire mirrors httpcore.ErrMissingBody without importing the
// root package (which imports wire), kept distinct to avoid a cycle; Conn
// maps it back to httpcore.ErrMissingBody at the boundary.
var ErrMissingBodyWire = NewParseError(KindHeader, "body write attempted on a body-suppressed message")
