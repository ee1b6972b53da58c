// Package avlog provides a minimal per-domain logger used throughout the
// module (gvcp, gvsp, stream, device) to report conditions that do not
// rise to the level of a returned error: discarded acks with a stale id,
// resend commands issued, control-lost events.
package avlog

import (
	"log"
	"os"
)

// Logger writes prefixed lines for one subsystem domain.
type Logger struct {
	domain string
	std    *log.Logger
	enabled bool
}

// New returns a Logger for the named domain (e.g. "gvcp", "gvsp").
// Output goes to stderr unless silenced with SetEnabled(false).
func New(domain string) *Logger {
	return &Logger{
		domain:  domain,
		std:     log.New(os.Stderr, "["+domain+"] ", log.LstdFlags|log.Lmicroseconds),
		enabled: true,
	}
}

// SetEnabled turns logging for this Logger on or off. Disabled by
// default in tests that construct their own silent loggers.
func (l *Logger) SetEnabled(on bool) {
	l.enabled = on
}

// Printf logs a formatted line if the logger is enabled.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || !l.enabled {
		return
	}
	l.std.Printf(format, args...)
}

// Discard returns a Logger that never writes output, for use in tests.
func Discard(domain string) *Logger {
	l := New(domain)
	l.SetEnabled(false)
	return l
}
