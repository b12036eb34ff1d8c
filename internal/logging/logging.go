// File: internal/logging/logging.go

// Package logging builds the tool's logger. Verbosity counts -v
// occurrences: warnings by default, info at one, debug at two or
// more. Quiet drops everything below errors.
package logging

import (
	"io"
	"log/slog"
)

// New builds a text logger writing to w at the level the flags select.
func New(w io.Writer, verbosity int, quiet bool) *slog.Logger {
	level := slog.LevelWarn
	switch {
	case quiet:
		level = slog.LevelError
	case verbosity == 1:
		level = slog.LevelInfo
	case verbosity >= 2:
		level = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
