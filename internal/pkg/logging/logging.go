// Package logging configures the process-wide slog logger shared by the
// API server and the scanner.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Setup installs New(os.Stdout, ...) as the slog default.
func Setup(service, level, format string) {
	slog.SetDefault(New(os.Stdout, service, level, format))
}

// New builds a logger that tags every record with the service name.
// level may be "debug", "info", "warn" or "error" (default "info"); debug
// also records the source location. format is "json" (default) or "text".
func New(w io.Writer, service, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if opts.Level == slog.LevelDebug {
		opts.AddSource = true
	}

	var handler slog.Handler
	if strings.EqualFold(format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	if service != "" {
		logger = logger.With("service", service)
	}
	return logger
}

// ParseLevel maps a config level name to a slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
