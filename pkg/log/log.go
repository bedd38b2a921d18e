// Package log configures the process-wide structured logger shared by the
// loom binaries.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps a level name to its slog level, case-insensitively.
// Unknown names fall back to info so a typo in LOG_LEVEL never silences a
// service.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// Setup installs the default logger for a loom process. Output is
// line-delimited JSON so collectors can index the workflow and execution
// attributes the services attach.
func Setup(logLevel string) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: ParseLevel(logLevel),
	})))
}

// WithModule tags the default logger with the module name the binaries use
// to tell their log streams apart.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
