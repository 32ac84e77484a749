// Package monitoring holds the process-wide diagnostic loggers used by the
// metric engine and its hosts.
package monitoring

import (
	"log"
	"sync/atomic"
)

// Logf reports events worth keeping: rejected batches, store migrations,
// server lifecycle. It defaults to log.Printf and may be replaced by
// SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

var verbose atomic.Bool

// SetLogger replaces Logf. Passing nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// SetVerbose turns Debugf output on or off.
func SetVerbose(on bool) { verbose.Store(on) }

// Debugf forwards to Logf only when verbose output is on. Per-batch traces
// go here.
func Debugf(format string, v ...interface{}) {
	if verbose.Load() {
		Logf(format, v...)
	}
}

// Prefixed returns a logger that tags every line, e.g. "[store] ".
func Prefixed(prefix string) func(format string, v ...interface{}) {
	return func(format string, v ...interface{}) {
		Logf(prefix+format, v...)
	}
}
