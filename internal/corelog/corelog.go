/*
 * Copyright (c) 2018 The Go Authors. All rights reserved.
 * Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.
 */

// Package corelog gives Conn and Server a narrow structured logging
// surface: Server logs Accept retries, and each Conn holds a logger tagged
// with its conn_id. It replaces a bare *log.Logger
// (the Server.ErrorLog/Server.logf shape) with github.com/sirupsen/logrus,
// the logging library the rest of the retrieval pack (nabbar-golib's
// logger package) builds on, while keeping the usual "pass a logf-shaped
// thing around" calling convention.
package corelog

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the narrow surface Conn/Server depend on, so callers
// can substitute a no-op or test logger without pulling in logrus types.
type Logger interface {
	WithFields(fields Fields) Logger
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type Fields map[string]interface{}

type logrusLogger struct {
	entry *logrus.Entry
}

// New returns a Logger backed by a fresh logrus.Logger writing to stderr,
// matching log.Logger's default of logging to os.Stderr when
// Server.ErrorLog is nil.
func New() Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

// Noop returns a Logger that discards everything, for tests and for
// callers that want silence.
func Noop() Logger {
	l := logrus.New()
	l.SetOutput(noopWriter{})
	return &logrusLogger{entry: logrus.NewEntry(l)}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

func (l *logrusLogger) WithFields(fields Fields) Logger {
	return &logrusLogger{entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }
