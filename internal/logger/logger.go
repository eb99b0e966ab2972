// Package logger builds the ambient structured application logger.
//
// This is distinct from internal/requestlog, which writes the fixed-width
// per-request log file mandated by the cache pipeline's logging contract.
package logger

import (
	"log/slog"
	"os"
)

// Build constructs a JSON slog.Logger for the given level string. Unknown
// level strings default to INFO.
func Build(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     l,
		AddSource: l == slog.LevelDebug,
	}))
}
