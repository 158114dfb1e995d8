package slogger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"error", LevelError},
		{"DEBUG", LevelDebug},
		{"WaRn", LevelWarn},
		{"bogus", DefaultLogLevel},
		{"", DefaultLogLevel},
	}
	for _, tc := range tests {
		require.Equal(t, tc.expected, LevelFromString(tc.input), tc.input)
	}
}

func TestContextRoundTrip(t *testing.T) {
	logger := NewDevNullLogger()
	ctx := WithLogger(context.Background(), logger)
	require.Equal(t, Logger(logger), Ctx(ctx))

	// A bare context falls back to the default logger.
	require.Equal(t, DefaultLogger, Ctx(context.Background()))
	require.Equal(t, DefaultLogger, Ctx(nil))
}

func TestDevNullLogger(t *testing.T) {
	logger := NewDevNullLogger()
	logger.Debug("a")
	logger.Info("b", "key", "value")
	logger.Warn("c")
	logger.Error("d")
	require.IsType(t, &DevNullLogger{}, logger.With("key", "value"))
}

func TestSlogger(t *testing.T) {
	logger := New(LevelError)
	logger.Debug("suppressed")
	child := logger.With("component", "test")
	require.IsType(t, &Slogger{}, child)
}
