package main

import (
	"log/slog"
	"os"

	"aqms-backend/internal/app"
	"aqms-backend/internal/config"
	"aqms-backend/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// The configured logger is not available yet.
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)))

	application, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}
