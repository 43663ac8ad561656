// Command create-admin creates the first admin account from ADMIN_EMAIL,
// ADMIN_USERNAME and ADMIN_PASSWORD. Running it again is a no-op.
package main

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"time"

	"aqms-backend/internal/app"
	"aqms-backend/internal/config"
	"aqms-backend/internal/logger"
	"aqms-backend/internal/model"
	"aqms-backend/internal/service"
)

func main() {
	cfg := config.Read()
	slog.SetDefault(slog.New(logger.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)))

	email := strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))
	username := strings.TrimSpace(os.Getenv("ADMIN_USERNAME"))
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		slog.Error("ADMIN_EMAIL and ADMIN_PASSWORD are required")
		os.Exit(2)
	}
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required; an in-memory admin would vanish on exit")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	stores, closeStores, err := app.OpenStores(ctx, cfg)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer closeStores()

	users := service.NewUserDirectory(stores.Users, service.NewPasswordHasher(cfg.BcryptCost), cfg.DBQueryTimeout)
	admin, created, err := service.BootstrapAdmin(ctx, users, email, username, password)
	if err != nil || created {
		entry := model.AuditEntry{Action: model.AuditBootstrapAdmin, Status: model.AuditSuccess, Subject: model.NormalizeEmail(email)}
		if err != nil {
			entry.Status, entry.Reason = model.AuditFailure, "bootstrap_failed"
		} else {
			entry.Actor = model.AuditActor{UserID: admin.ID, Role: admin.Role}
		}
		service.NewAuditService(stores.Audit).Record(ctx, entry)
	}
	if err != nil {
		slog.Error("failed to create admin", "error", err)
		closeStores()
		os.Exit(1)
	}

	if created {
		slog.Info("admin user created; change the password after first login", "user_id", admin.ID, "email", admin.Email)
	} else {
		slog.Info("admin already exists, nothing to do", "user_id", admin.ID, "email", admin.Email)
	}
}
