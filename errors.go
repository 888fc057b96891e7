/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

package httpcore

import (
	"errors"
	"fmt"
)

// Kind classifies an Error the way badRequestError/ErrAbortHandler/
// ErrHijacked classified failures in earlier designs, but unified into
// one taxonomy instead of scattered sentinel types.
type Kind int

const (
	KindUnknown Kind = iota
	KindParse
	KindParseMethod
	KindParseVersion
	KindParseHeader
	KindParseStatus
	KindParseURI
	KindParseTooLarge
	KindParseHeaderName
	KindParseHeaderValue
	KindIO
	KindIncompleteMessage
	KindUnexpectedMessage
	KindChannelClosed
	KindCanceled
	KindConnectError
	KindClosed
	KindBodyWrite
	KindBody
	KindService
	KindExecute
	KindShutdown
	KindUserUnsupportedVersion
	KindUserUnsupportedMethod
	KindUserAbsoluteURIRequired
	KindUserNoUpgrade
	KindUserManualUpgrade
	KindUserHeader
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "parse"
	case KindParseMethod:
		return "parse.method"
	case KindParseVersion:
		return "parse.version"
	case KindParseHeader:
		return "parse.header"
	case KindParseStatus:
		return "parse.status"
	case KindParseURI:
		return "parse.uri"
	case KindParseTooLarge:
		return "parse.too_large"
	case KindParseHeaderName:
		return "parse.header_name"
	case KindParseHeaderValue:
		return "parse.header_value"
	case KindIO:
		return "io"
	case KindIncompleteMessage:
		return "incomplete_message"
	case KindUnexpectedMessage:
		return "unexpected_message"
	case KindChannelClosed:
		return "channel_closed"
	case KindCanceled:
		return "canceled"
	case KindConnectError:
		return "connect_error"
	case KindClosed:
		return "closed"
	case KindBodyWrite:
		return "body_write"
	case KindBody:
		return "body"
	case KindService:
		return "service"
	case KindExecute:
		return "execute"
	case KindShutdown:
		return "shutdown"
	case KindUserUnsupportedVersion:
		return "user.unsupported_version"
	case KindUserUnsupportedMethod:
		return "user.unsupported_method"
	case KindUserAbsoluteURIRequired:
		return "user.absolute_uri_required"
	case KindUserNoUpgrade:
		return "user.no_upgrade"
	case KindUserManualUpgrade:
		return "user.manual_upgrade"
	case KindUserHeader:
		return "user.header"
	default:
		return "unknown"
	}
}

// Error is a Kind plus an optional wrapped cause. It implements Unwrap so
// errors.Is/errors.As work through cause chains the way nabbar-golib/errors'
// parent-chain walks do, without pulling in that package (see DESIGN.md).
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func WrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("httpcore: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("httpcore: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is(err, httpcore.NewError(KindClosed, "")) match by Kind
// alone, ignoring Message/Cause, matching the "IsCode" convenience of the
// pack's kinded-error packages.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// IsKind reports whether err is (or wraps) an *Error of the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Sentinel errors for conditions that do not need a Message, mirroring
// net/http's ErrAbortHandler/ErrHijacked package-level sentinels.
var (
	ErrAbortHandler = errors.New("httpcore: abort handler")
	ErrHijacked     = NewError(KindClosed, "connection already hijacked or upgraded")
	ErrLineTooLong  = NewError(KindParseTooLarge, "chunk header line too long")
	ErrBodyClosed   = NewError(KindBody, "body closed after EOF or error")
	ErrMissingBody  = NewError(KindUnexpectedMessage, "request method or response status does not allow a body")
)
