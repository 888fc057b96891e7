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

// DecoderKind is BodyDecoder state's outer tag 
type DecoderKind int

const (
	DecoderLength DecoderKind = iota
	DecoderChunked
	DecoderEOF
	DecoderEmpty
)

// ChunkedPhase enumerates the chunked decoder's sub-states :
// Size, SizeLws, Extension, SizeLf, Body, BodyCr, BodyLf, Trailer, End.
type ChunkedPhase int

const (
	PhaseSize ChunkedPhase = iota
	PhaseSizeLws
	PhaseExtension
	PhaseSizeLf
	PhaseBody
	PhaseBodyCr
	PhaseBodyLf
	PhaseTrailer
	PhaseEnd
)

const maxChunkSizeLineLen = 16 + 1 + 64 // hex digits + ';' + generous extension allowance

// BodyDecoder is the incremental body-framing state machine from
// RFC 7230's chunked transfer coding grammar, in the style of net/http's chunkedReader
// (utils_chunks.go) and the Length/EOF branches of readTransferRequest/
// readTransferResponse. Unlike that implementation, which
// wraps a blocking io.Reader, Decode here consumes whatever prefix of an
// already-buffered slice it can and reports how much it consumed, so Conn
// can drive it directly off its Read buffer without an extra copy.
type BodyDecoder struct {
	kind DecoderKind

	// DecoderLength
	remaining uint64

	// DecoderChunked
	phase          ChunkedPhase
	chunkRemaining uint64
	sizeLine       []byte
	trailer        *header.Header

	// DecoderEOF
	eofDone bool
}

func NewLengthDecoder(n uint64) *BodyDecoder {
	if n == 0 {
		return &BodyDecoder{kind: DecoderEmpty}
	}
	return &BodyDecoder{kind: DecoderLength, remaining: n}
}

func NewChunkedDecoder() *BodyDecoder {
	return &BodyDecoder{kind: DecoderChunked, phase: PhaseSize}
}

func NewEOFDecoder() *BodyDecoder { return &BodyDecoder{kind: DecoderEOF} }

func NewEmptyDecoder() *BodyDecoder { return &BodyDecoder{kind: DecoderEmpty} }

func (d *BodyDecoder) Kind() DecoderKind { return d.kind }

// Trailer returns headers decoded after the terminal chunk, once Decode
// has reported Done for a chunked body; nil otherwise.
func (d *BodyDecoder) Trailer() *header.Header { return d.trailer }

// Done reports whether the decoder has reached its terminal state.
func (d *BodyDecoder) Done() bool {
	switch d.kind {
	case DecoderEmpty:
		return true
	case DecoderLength:
		return d.remaining == 0
	case DecoderChunked:
		return d.phase == PhaseEnd
	case DecoderEOF:
		return d.eofDone
	}
	return false
}

// MarkEOF tells an DecoderEOF decoder that the underlying connection read
// returned io.EOF, completing the close-delimited body (// "Eof(done: bool)").
func (d *BodyDecoder) MarkEOF() { d.eofDone = true }

// Decode consumes a prefix of buf, returning the body data extracted
// (data aliases buf; the caller must copy before the next Fill), the
// number of input bytes consumed, and whether more input is needed before
// further progress is possible (needMore). Decode never blocks.
func (d *BodyDecoder) Decode(buf []byte) (data []byte, consumed int, needMore bool, err error) {
	switch d.kind {
	case DecoderEmpty:
		return nil, 0, false, nil
	case DecoderLength:
		return d.decodeLength(buf)
	case DecoderEOF:
		if len(buf) == 0 {
			return nil, 0, true, nil
		}
		return buf, len(buf), false, nil
	case DecoderChunked:
		return d.decodeChunked(buf)
	}
	return nil, 0, false, NewParseError(KindHeader, "unknown decoder state")
}

func (d *BodyDecoder) decodeLength(buf []byte) ([]byte, int, bool, error) {
	if d.remaining == 0 {
		return nil, 0, false, nil
	}
	if len(buf) == 0 {
		return nil, 0, true, nil
	}
	n := uint64(len(buf))
	if n > d.remaining {
		n = d.remaining
	}
	d.remaining -= n
	return buf[:n], int(n), false, nil
}

// decodeChunked advances the chunked state machine as far as buf allows,
// returning at most one chunk's worth of body data per call so the
// dispatcher can forward it through backpressure between chunks, matching
// the "read one chunk per poll."
func (d *BodyDecoder) decodeChunked(buf []byte) ([]byte, int, bool, error) {
	total := 0
	for {
		switch d.phase {
		case PhaseSize, PhaseSizeLws, PhaseExtension:
			idx := bytes.IndexByte(buf[total:], '\n')
			if idx < 0 {
				if len(buf[total:]) > maxChunkSizeLineLen {
					return nil, 0, false, ErrLineTooLongWire
				}
				return nil, total, true, nil
			}
			line := buf[total : total+idx]
			total += idx + 1
			if len(line) > maxChunkSizeLineLen {
				return nil, 0, false, ErrLineTooLongWire
			}
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			size, perr := parseChunkSizeLine(line)
			if perr != nil {
				return nil, 0, false, perr
			}
			d.chunkRemaining = size
			if size == 0 {
				d.phase = PhaseTrailer
				d.trailer = header.New(4)
				continue
			}
			d.phase = PhaseBody
			continue

		case PhaseBody:
			avail := buf[total:]
			if d.chunkRemaining == 0 {
				d.phase = PhaseBodyCr
				continue
			}
			if len(avail) == 0 {
				return nil, total, true, nil
			}
			n := uint64(len(avail))
			if n > d.chunkRemaining {
				n = d.chunkRemaining
			}
			d.chunkRemaining -= n
			data := avail[:n]
			total += int(n)
			return data, total, false, nil

		case PhaseBodyCr:
			if len(buf[total:]) < 2 {
				return nil, total, true, nil
			}
			if buf[total] != '\r' || buf[total+1] != '\n' {
				return nil, 0, false, NewParseError(KindHeader, "missing CRLF after chunk data")
			}
			total += 2
			d.phase = PhaseSize
			continue

		case PhaseTrailer:
			idx := bytes.IndexByte(buf[total:], '\n')
			if idx < 0 {
				return nil, total, true, nil
			}
			line := buf[total : total+idx]
			total += idx + 1
			if len(line) > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			if len(line) == 0 {
				d.phase = PhaseEnd
				return nil, total, false, nil
			}
			colon := bytes.IndexByte(line, ':')
			if colon < 0 {
				return nil, 0, false, NewParseError(KindHeader, "malformed trailer field")
			}
			d.trailer.Add(string(trimOWS(line[:colon])), string(trimOWS(line[colon+1:])))
			continue

		case PhaseEnd:
			return nil, total, false, nil
		}
	}
}

var ErrLineTooLongWire = NewParseError(KindTooLarge, "chunk size line too long")

func parseChunkSizeLine(line []byte) (uint64, error) {
	if semi := bytes.IndexByte(line, ';'); semi >= 0 {
		line = line[:semi] // chunk-ext is ignored entirely
	}
	line = trimOWS(line)
	if len(line) == 0 || len(line) > 16 {
		return 0, NewParseError(KindHeader, "invalid chunk size")
	}
	n, err := strconv.ParseUint(string(line), 16, 64)
	if err != nil {
		return 0, NewParseError(KindHeader, "non-hex chunk size digit")
	}
	return n, nil
}
