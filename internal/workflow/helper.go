package workflow

import (
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
)

// SetupLogger configures the application-wide logger.
// It uses "tint" for colorized, structured logging that is easy to read in terminals.
func SetupLogger(level string, provider string) *slog.Logger {
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level: ParseLogLevel(level),
	})

	return slog.New(handler).With("provider", provider)
}

// ParseLogLevel maps a level name to its slog.Level; unknown names mean info.
func ParseLogLevel(level string) slog.Level {
	switch level {
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
