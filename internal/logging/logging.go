// Package logging builds the process logger: colored text through tint for
// local runs, JSON for deployments.
package logging

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

// ParseLevel maps debug, info, warn and error to slog levels. Anything
// else is info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a logger writing to w in the given format ("json" or
// "text").
func New(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
		AddSource:  lvl == slog.LevelDebug,
	}))
}

// Setup builds a logger with New and installs it as the slog default.
func Setup(w io.Writer, level, format string) *slog.Logger {
	log := New(w, level, format)
	slog.SetDefault(log)
	return log
}

// Err is a shorthand for an "error" attribute.
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}
