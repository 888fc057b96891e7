/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package bodypipe implements the streaming body channel: a bounded
// MPSC-like queue with a permit count >= 1, where a producer feeds decoded
// chunks into a Sender and a consumer drains them from a Receiver. The
// Dispatcher and Client in this module read bodies directly from the Conn
// and do not route them through a Pipe. It is the idiomatic Go rendering, with goroutines and channels,
// of a synchronous design that instead wraps a blocking io.Reader
// directly onto the connection.
package bodypipe

import (
	"context"
	"io"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/badu/httpcore/header"
)

// DefaultPermits is the default number of in-flight, unread chunks a Pipe
// allows before Sender.Send blocks, implementing the backpressure
// requirement via golang.org/x/sync/semaphore.
const DefaultPermits = 4

// Pipe is the joint Sender/Receiver pair. Dropping the Receiver (calling
// Receiver.Drop without having reached EOF) is observed by the Sender's
// next Send as ErrReceiverGone; the Pipe itself holds no connection and
// changes no Conn state.
type Pipe struct {
	sem  *semaphore.Weighted
	data chan []byte

	mu       sync.Mutex
	done     bool
	closeErr error
	gone     bool // Receiver dropped mid-body

	trailer *header.Header
}

// New creates a Pipe with the default permit count.
func New() *Pipe { return NewSize(DefaultPermits) }

// NewSize creates a Pipe allowing permits in-flight chunks.
func NewSize(permits int) *Pipe {
	if permits < 1 {
		permits = 1
	}
	return &Pipe{
		sem:  semaphore.NewWeighted(int64(permits)),
		data: make(chan []byte, permits),
	}
}

// Sender is the producer side.
type Sender struct{ p *Pipe }

// Receiver is the consumer side, exposed to the Service/user body stream.
type Receiver struct{ p *Pipe }

func (p *Pipe) Sender() Sender     { return Sender{p} }
func (p *Pipe) Receiver() Receiver { return Receiver{p} }

var (
	// ErrReceiverGone is returned to a Sender whose Receiver has been
	// dropped mid-body.
	ErrReceiverGone = errString("bodypipe: receiver dropped mid-body")
)

type errString string

func (e errString) Error() string { return string(e) }

// Send pushes one chunk, blocking (respecting ctx) until a permit is
// available — the backpressure suspension point. data is
// retained by the Pipe; the caller must not mutate it afterward.
func (s Sender) Send(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := s.p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	s.p.mu.Lock()
	gone := s.p.gone
	s.p.mu.Unlock()
	if gone {
		s.p.sem.Release(1)
		return ErrReceiverGone
	}
	select {
	case s.p.data <- data:
		return nil
	case <-ctx.Done():
		s.p.sem.Release(1)
		return ctx.Err()
	}
}

// Close signals a clean EOF to the Receiver.
func (s Sender) Close() { s.closeWith(nil) }

// CloseWithError signals the Receiver that the body ended in error.
func (s Sender) CloseWithError(err error) { s.closeWith(err) }

func (s Sender) closeWith(err error) {
	s.p.mu.Lock()
	if s.p.done {
		s.p.mu.Unlock()
		return
	}
	s.p.done = true
	s.p.closeErr = err
	s.p.mu.Unlock()
	close(s.p.data)
}

// SetTrailer attaches trailer fields decoded after the terminal chunk,
// visible to the Receiver only after Recv has returned io.EOF.
func (s Sender) SetTrailer(t *header.Header) {
	s.p.mu.Lock()
	s.p.trailer = t
	s.p.mu.Unlock()
}

// Recv returns the next chunk, io.EOF on a clean close, or the error
// passed to CloseWithError.
func (r Receiver) Recv(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-r.p.data:
		if !ok {
			r.p.mu.Lock()
			err := r.p.closeErr
			r.p.mu.Unlock()
			if err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		r.p.sem.Release(1)
		return data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Trailer returns trailer fields decoded after the terminal chunk; only
// meaningful after Recv has returned io.EOF.
func (r Receiver) Trailer() *header.Header {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()
	return r.p.trailer
}

// Drop marks the Receiver as gone without draining to EOF. The Sender's
// next Send then fails with ErrReceiverGone.
func (r Receiver) Drop() {
	r.p.mu.Lock()
	r.p.gone = true
	r.p.mu.Unlock()
}
