// Package log configures the process-wide structured logger shared by the
// api and engine binaries.
package log

import (
	"log/slog"
	"os"
)

// Setup installs the default logger. Every record carries the service name
// so api and engine output can be told apart once aggregated.
func Setup(service, logLevel string) {
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})

	slog.SetDefault(slog.New(handler).With("service", service))
}

// WithModule scopes the default logger to one component of the service.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
