package logger

import (
	"io"
	"log/slog"
	"os"

	"refcache/internal/shared/config"
)

// Init builds the process logger from the logging configuration and
// installs it as the slog default.
func Init(logConfig config.LoggingConfig) *slog.Logger {
	logger := New(os.Stdout, logConfig)
	slog.SetDefault(logger)

	logger.With("component", "logger").Debug("Logger initialized",
		"level", logConfig.Level,
		"json_format", logConfig.JSONFormat,
	)
	return logger
}

func New(w io.Writer, logConfig config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := parseLogLevel(logConfig.Level)

	if logConfig.JSONFormat {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// Discard returns a logger that drops everything; used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLogLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}
