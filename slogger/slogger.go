// Package slogger provides structured logging for the memory service.
// It wraps log/slog with a tint handler for terminals and exposes a small
// interface so background workers and stores can log without depending on
// a concrete implementation.
package slogger

import (
	"context"
	"strings"
)

// DefaultLogger is used when no logger is found on a context. Tests run
// silent by default.
var DefaultLogger Logger = NewDevNullLogger()

// Logger is the logging interface used throughout the service. It supports
// structured key-value logging and is compatible with slog-style loggers.
type Logger interface {
	// Debug logs a message at debug level with optional key-value pairs.
	Debug(msg string, keysAndValues ...any)

	// Info logs a message at info level with optional key-value pairs.
	Info(msg string, keysAndValues ...any)

	// Warn logs a message at warn level with optional key-value pairs.
	Warn(msg string, keysAndValues ...any)

	// Error logs a message at error level with optional key-value pairs.
	Error(msg string, keysAndValues ...any)

	// With returns a Logger that includes the given key-value pairs on
	// every message.
	With(keysAndValues ...any) Logger
}

type contextKey string

const loggerKey contextKey = "mnemo.logger"

// WithLogger returns a new context carrying the given logger.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Ctx returns the logger carried by ctx, or DefaultLogger.
func Ctx(ctx context.Context) Logger {
	if ctx == nil {
		return DefaultLogger
	}
	logger, ok := ctx.Value(loggerKey).(Logger)
	if !ok {
		return DefaultLogger
	}
	return logger
}

// LevelFromString converts a level name to a LogLevel. Unknown names map
// to the default level.
func LevelFromString(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return DefaultLogLevel
	}
}
