/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpcore

import (
	"time"

	"github.com/badu/httpcore/wire"
)

// ReadState is Conn's reading half: Init, Body(decoder), KeepAlive,
// Closed, Upgrade.
type ReadState int

const (
	ReadInit ReadState = iota
	ReadBody
	ReadKeepAlive
	ReadClosed
	ReadUpgrade
)

func (s ReadState) String() string {
	switch s {
	case ReadInit:
		return "init"
	case ReadBody:
		return "body"
	case ReadKeepAlive:
		return "keep_alive"
	case ReadClosed:
		return "closed"
	case ReadUpgrade:
		return "upgrade"
	default:
		return "unknown"
	}
}

// WriteState is Conn's writing half: Init, Body(encoder), KeepAlive,
// Closed.
type WriteState int

const (
	WriteInit WriteState = iota
	WriteBody
	WriteKeepAlive
	WriteClosed
)

func (s WriteState) String() string {
	switch s {
	case WriteInit:
		return "init"
	case WriteBody:
		return "body"
	case WriteKeepAlive:
		return "keep_alive"
	case WriteClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// KeepAliveState is Conn's keep_alive field: Busy, Idle(at), or Disabled.
type KeepAliveState int

const (
	KeepAliveBusy KeepAliveState = iota
	KeepAliveIdleState
	KeepAliveDisabled
)

// KeepAlive tracks KeepAliveState plus, when Idle, the instant it went
// idle. The Pool keeps its own idle timestamps for TTL eviction and the
// Server uses read deadlines, so neither reads Since.
type KeepAlive struct {
	State KeepAliveState
	Since time.Time
}

func (k KeepAlive) IsDisabled() bool { return k.State == KeepAliveDisabled }

// State is the Conn record tracking read/write progress, the active
// body codec, and keep-alive bookkeeping.
type State struct {
	Reading ReadState
	Writing WriteState

	ReadDecoder  *wire.BodyDecoder
	WriteEncoder *wire.BodyEncoder

	KeepAlive KeepAlive
	Method    string // in-flight request method, recorded when the server role reads a request head; the client role does not set it

	Version wire.Version
}

func newState() *State {
	return &State{KeepAlive: KeepAlive{State: KeepAliveIdleState, Since: time.Now()}}
}

// readyForNewMessage reports whether reading may start a fresh head poll:
// Init, or KeepAlive after a pipelined request has fully drained into
// Init again server-side.
func (s *State) readyForNewMessage() bool {
	return s.Reading == ReadInit
}
