// Package main implements the entry point for the adscribe API server,
// which accepts ad-analysis task submissions, runs them on a background
// worker pool, and exposes task status over polling and SSE endpoints.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/phrazzld/adscribe-api/internal/config"
	"github.com/phrazzld/adscribe-api/internal/platform/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Setup(cfg.Server)

	slog.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"redis_configured", cfg.Redis.Addr != "",
		"archive_configured", cfg.Database.URL != "")

	ctx := context.Background()

	app, err := newApplication(ctx, cfg, slog.Default())
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.Run(ctx)
}
