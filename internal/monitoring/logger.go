// Package monitoring holds the process-wide diagnostic logger shared by
// packages that do not carry their own log streams (the run catalog's
// migration logger and the command-line front end).
package monitoring

import (
	"io"
	"log"
)

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// WriterLogger returns a Logf-compatible function writing prefixed,
// timestamped lines to w. A nil w yields a no-op.
func WriterLogger(w io.Writer, prefix string) func(format string, v ...interface{}) {
	if w == nil {
		return func(string, ...interface{}) {}
	}
	l := log.New(w, prefix, log.LstdFlags|log.Lmicroseconds)
	return l.Printf
}
