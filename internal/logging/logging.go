// Package logging builds the single *slog.Logger qdrop's engine and CLI
// share, configured entirely from the QS_LOG env var (spec.md §6). Grounded
// on nishisan-dev/n-backup's internal/logging/logger.go, which is the only
// repo in the pack with a real ambient logging package — the teacher
// itself only fmt.Println's.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// FromEnv builds a *slog.Logger from QS_LOG ("debug", "info", "warn", or
// "error", default "info"). Output always goes to stderr: stdout is left
// free for the CLI's own status/progress output.
func FromEnv() *slog.Logger {
	return New(os.Getenv("QS_LOG"))
}

// New builds a *slog.Logger at the given level, writing JSON lines to
// stderr. An empty or unrecognized level defaults to info.
func New(level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
