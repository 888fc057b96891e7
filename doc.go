/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package httpcore implements the HTTP/1.1 wire codec and connection
// runtime shared by client and server roles: an incremental head parser,
// streaming body codecs, a per-connection state machine, a dispatcher that
// couples that state machine to a user Service, and a client connection
// pool.
//
// The protocol details (framing, keep-alive, chunked transfer coding) live
// in the wire subpackage; buffering lives in buffer; the streaming body
// channel lives in bodypipe; the idle-connection cache lives in pool.
// Everything in this package is HTTP/1.1 only; HTTP/2 is a separate
// multiplexer reusing the Service/Dispatcher contract and is not part of
// this core.
package httpcore
