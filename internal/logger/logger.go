// Package logger builds the structured JSON logger the service hands to
// every component.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// New creates a slog.Logger writing JSON to os.Stdout. Debug mode lowers
// the level from Info to Debug.
func New(debug bool) *slog.Logger {
	return NewWithWriter(os.Stdout, debug)
}

// NewWithWriter creates a slog.Logger with a specific writer, mainly for
// capturing output in tests.
func NewWithWriter(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
