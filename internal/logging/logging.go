// Package logging provides a leveled wrapper around the standard logger so
// verbose wire-protocol tracing can be switched on without touching call
// sites.
package logging

import (
	"log"
	"os"
	"sync/atomic"
)

// Level controls which of the Tracef/Debugf/Infof/Warnf/Errorf calls
// actually reach the logger.
type Level int32

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var current int32 = int32(LevelInfo)

// SetLevel changes the package-wide verbosity. Safe to call concurrently
// with logging calls.
func SetLevel(l Level) {
	atomic.StoreInt32(&current, int32(l))
}

func enabled(l Level) bool {
	return l <= Level(atomic.LoadInt32(&current))
}

var logger = log.New(os.Stderr, "", log.LstdFlags)

// Errorf always logs; it is meant for failures the caller is about to
// return or has just recovered from.
func Errorf(format string, args ...any) {
	logger.Printf("ERROR "+format, args...)
}

// Warnf logs conditions that are recoverable but worth a user's attention.
func Warnf(format string, args ...any) {
	if enabled(LevelWarn) {
		logger.Printf("WARN  "+format, args...)
	}
}

// Infof logs normal operational milestones (session open/close, mode
// transitions).
func Infof(format string, args ...any) {
	if enabled(LevelInfo) {
		logger.Printf("INFO  "+format, args...)
	}
}

// Debugf logs detail useful when diagnosing a misbehaving probe: command
// names, decoded register values, retry attempts.
func Debugf(format string, args ...any) {
	if enabled(LevelDebug) {
		logger.Printf("DEBUG "+format, args...)
	}
}

// Tracef logs raw wire bytes. Off by default; it is verbose enough to slow
// down a bulk memory dump if left on.
func Tracef(format string, args ...any) {
	if enabled(LevelTrace) {
		logger.Printf("TRACE "+format, args...)
	}
}
