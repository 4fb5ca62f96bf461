// SPDX-FileCopyrightText: © 2026 Wuild Fabric Contributors
// SPDX-License-Identifier: MIT

// Package clog provides conditional, component-prefixed logging shared by
// every executable in the fabric (coordinator, tool-server, tool-client,
// status).
package clog

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync/atomic"
)

var verbose atomic.Bool

// SetVerbose turns conditional log output on or off process-wide. Disabled
// by default; toggled on by the -l command line flag of coordinatord,
// tool-server and tool-client.
func SetVerbose(v bool) {
	verbose.Store(v)
}

// Verbose reports whether conditional log output is currently enabled.
func Verbose() bool {
	return verbose.Load()
}

// Logger logs in the manner of the standard library logger but can be
// conditionally silenced for everything except Errorf.
type Logger struct {
	out *log.Logger
}

// New creates a Logger prefixed with the given component role and a short
// instance identifier, e.g. New("tool-server", "ab12cd34").
func New(role, id string) *Logger {
	prefix := fmt.Sprintf("[%s %s] ", role, id)
	return &Logger{
		out: log.New(os.Stderr, prefix, log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix),
	}
}

// NewWithWriter is New but targeting an explicit writer, used by tests.
func NewWithWriter(w io.Writer, role, id string) *Logger {
	prefix := fmt.Sprintf("[%s %s] ", role, id)
	return &Logger{out: log.New(w, prefix, log.LstdFlags|log.Lmicroseconds|log.Lmsgprefix)}
}

// Printf logs conditionally, only when Verbose() is true.
func (l *Logger) Printf(format string, args ...any) {
	if !Verbose() {
		return
	}
	l.out.Printf(format, args...)
}

// Errorf logs unconditionally; errors are never suppressed by the verbosity
// switch.
func (l *Logger) Errorf(format string, args ...any) {
	l.out.Printf("ERROR: "+format, args...)
}
