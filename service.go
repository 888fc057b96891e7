/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpcore

import (
	"context"
	"errors"
	"time"

	"github.com/badu/httpcore/header"
)

// Service is the handler contract a Dispatcher drives: Call answers one
// Request with one Response, the same call-response shape net/http's
// Handler interface uses, generalized with a context.Context parameter
// instead of threading cancellation through Request.ctx alone.
type Service interface {
	Call(ctx context.Context, req *Request) (*Response, error)
}

// ServiceFunc adapts a plain function to Service, mirroring net/http's
// HandlerFunc.
type ServiceFunc func(ctx context.Context, req *Request) (*Response, error)

func (f ServiceFunc) Call(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// TimeoutService wraps a Service so that a call exceeding Timeout resolves
// with a 503 response instead of hanging the connection open, grounded on
// net/http's timeoutHandler. Unlike that
// version, which races a ResponseWriter wrapper against a timer, this one
// races the whole Call against the timer, matching the call/response
// (rather than streaming-writer) shape of Service.
type TimeoutService struct {
	Next    Service
	Timeout time.Duration
	Body    string
}

func (t TimeoutService) errorBody() string {
	if t.Body != "" {
		return t.Body
	}
	return "<html><head><title>Timeout</title></head><body><h1>Timeout</h1></body></html>"
}

func (t TimeoutService) Call(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	type result struct {
		resp *Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := t.Next.Call(ctx, req)
		done <- result{resp, err}
	}()

	select {
	case r := <-done:
		return r.resp, r.err
	case <-ctx.Done():
		h := header.New(1)
		h.Set("Content-Type", "text/html; charset=utf-8")
		return NewResponse(503, h, FullBody([]byte(t.errorBody()))), nil
	}
}

// ErrBodyTooLarge is returned by Body.Next once a MaxBytesBody's limit is
// exceeded, matching net/http's MaxBytesReader semantics of
// erroring exactly once the limit is crossed rather than truncating
// silently.
var ErrBodyTooLarge = errors.New("httpcore: request body too large")

// MaxBytesBody returns a copy of body that fails with ErrBodyTooLarge once
// more than n bytes have been read from it, in the style of net/http's
// maxBytesReader.
func MaxBytesBody(body Body, n int64) Body {
	return body.WithMaxBytes(n)
}
