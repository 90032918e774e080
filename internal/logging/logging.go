// Package logging provides the shared structured-logging conventions.
//
// Loggers are dependency-injected, never global. Each component receives a
// *slog.Logger at construction, scopes it once with its own attributes
// (component name, backend type), and keeps it for its lifetime. Output
// format, level, and destination are configured only in main().
//
// Logging is deliberately sparse: lifecycle boundaries and failures are the
// intended log points. The generation hot path (append, detect, broadcast)
// must not log.
package logging

import (
	"context"
	"log/slog"
)

// discardHandler drops every record.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that drops all output.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns logger when non-nil, otherwise a discard logger.
// Constructors use this so a nil Logger in a Config struct is valid:
//
//	logger := logging.Default(cfg.Logger).With("component", "chunkstore")
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}
