/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package bodypipe

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/badu/httpcore/header"
)

func TestSendThenRecvDeliversInOrder(t *testing.T) {
	p := New()
	sender, receiver := p.Sender(), p.Receiver()
	ctx := context.Background()

	go func() {
		_ = sender.Send(ctx, []byte("one"))
		_ = sender.Send(ctx, []byte("two"))
		sender.Close()
	}()

	got, err := receiver.Recv(ctx)
	if err != nil || string(got) != "one" {
		t.Fatalf("first Recv = %q, %v", got, err)
	}
	got, err = receiver.Recv(ctx)
	if err != nil || string(got) != "two" {
		t.Fatalf("second Recv = %q, %v", got, err)
	}
	_, err = receiver.Recv(ctx)
	if err != io.EOF {
		t.Fatalf("final Recv err = %v, want io.EOF", err)
	}
}

func TestCloseWithErrorPropagatesToReceiver(t *testing.T) {
	p := New()
	sender, receiver := p.Sender(), p.Receiver()
	wantErr := io.ErrUnexpectedEOF
	sender.CloseWithError(wantErr)

	_, err := receiver.Recv(context.Background())
	if err != wantErr {
		t.Fatalf("Recv err = %v, want %v", err, wantErr)
	}
}

func TestDropMakesNextSendFail(t *testing.T) {
	p := NewSize(1)
	sender, receiver := p.Sender(), p.Receiver()
	receiver.Drop()

	err := sender.Send(context.Background(), []byte("too late"))
	if err != ErrReceiverGone {
		t.Fatalf("Send err = %v, want ErrReceiverGone", err)
	}
}

func TestSendBlocksUntilPermitFreedByRecv(t *testing.T) {
	p := NewSize(1)
	sender, receiver := p.Sender(), p.Receiver()
	ctx := context.Background()

	if err := sender.Send(ctx, []byte("first")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- sender.Send(ctx, []byte("second")) }()

	select {
	case <-done:
		t.Fatalf("Send returned before a permit was freed")
	case <-time.After(30 * time.Millisecond):
	}

	if _, err := receiver.Recv(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Send did not unblock after Recv freed a permit")
	}
}

func TestSendRespectsContextCancellation(t *testing.T) {
	p := NewSize(1)
	sender := p.Sender()
	ctx := context.Background()
	if err := sender.Send(ctx, []byte("fills the one permit")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sender.Send(cctx, []byte("blocked"))
	if err != context.Canceled {
		t.Fatalf("Send err = %v, want context.Canceled", err)
	}
}

func TestSetTrailerVisibleAfterEOF(t *testing.T) {
	p := New()
	sender, receiver := p.Sender(), p.Receiver()
	tr := header.New(1)
	tr.Set("X-Checksum", "abc")
	sender.SetTrailer(tr)
	sender.Close()

	_, err := receiver.Recv(context.Background())
	if err != io.EOF {
		t.Fatalf("Recv err = %v, want io.EOF", err)
	}
	if got := receiver.Trailer(); got == nil || got.Get("X-Checksum") != "abc" {
		t.Fatalf("Trailer() = %+v", got)
	}
}

func TestEmptySendIsNoop(t *testing.T) {
	p := NewSize(1)
	sender := p.Sender()
	if err := sender.Send(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The permit must not have been consumed by the no-op send.
	if err := sender.Send(context.Background(), []byte("x")); err != nil {
		t.Fatalf("unexpected error acquiring the still-available permit: %v", err)
	}
}
