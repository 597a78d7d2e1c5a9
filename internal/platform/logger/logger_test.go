package logger_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/phrazzld/adscribe-api/internal/config"
	"github.com/phrazzld/adscribe-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		name     string
		logLevel string
	}{
		{name: "debug level", logLevel: "debug"},
		{name: "info level", logLevel: "info"},
		{name: "warn level", logLevel: "warn"},
		{name: "error level", logLevel: "error"},
		{name: "invalid level falls back to info", logLevel: "verbose"},
		{name: "case insensitive", logLevel: "DEBUG"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := logger.Setup(config.ServerConfig{Port: 8000, LogLevel: tt.logLevel})
			require.NotNil(t, log)
			assert.Same(t, log, slog.Default(), "Setup must install the logger as default")
		})
	}
}

func TestContextHelpers(t *testing.T) {
	t.Parallel()

	base := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		ctx := logger.WithLogger(context.Background(), base)
		assert.Same(t, base, logger.FromContext(ctx))
		assert.Same(t, base, logger.FromContextOrDefault(ctx, nil))
	})

	t.Run("missing logger falls back", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		assert.Same(t, slog.Default(), logger.FromContext(ctx))
		assert.Same(t, base, logger.FromContextOrDefault(ctx, base))
	})
}
