// Package simlog wires the simulator's structured logging. Every
// concurrency-sensitive package (schedpolicy, roundbarrier, engine,
// tcpstate) takes a *Logger rather than calling a package-level logger, so
// tests can inject a silent or buffering sink.
package simlog

import (
	"os"

	"github.com/joeycumines/izerolog"
	"github.com/joeycumines/logiface"
	"github.com/rs/zerolog"
)

// Logger is the event type used throughout the simulator.
type Logger = logiface.Logger[logiface.Event]

// New builds a Logger writing JSON lines to os.Stderr at the given
// minimum level, with fields pre-attached so they're present on every
// subsequent record, mirroring zerolog's sub-logger pattern.
func New(level logiface.Level, fields map[string]any) *Logger {
	zl := zerolog.New(os.Stderr).With().Timestamp().Logger()
	for k, v := range fields {
		zl = zl.With().Interface(k, v).Logger()
	}
	return logiface.New[logiface.Event](
		logiface.WithLevel(level),
		izerolog.WithZerolog(zl),
	)
}

// Nop returns a Logger that discards everything, for tests that don't care
// about log output but still need to satisfy the *Logger parameter.
func Nop() *Logger {
	return logiface.New[logiface.Event](
		logiface.WithLevel(logiface.LevelDisabled),
		izerolog.WithZerolog(zerolog.Nop()),
	)
}

// WithHost returns a child Logger labeled with the given host id, used so
// every log record a worker emits while executing a host's events carries
// that host's identity without threading it through every call.
func WithHost(l *Logger, host uint32) *Logger {
	return l.Clone().Int("host", int(host)).Logger()
}
