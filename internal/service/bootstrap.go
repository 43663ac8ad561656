package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"aqms-backend/internal/model"
)

// BootstrapAdmin creates the first admin account. It is idempotent: an existing
// account with the same email is left untouched and reported with created=false.
func BootstrapAdmin(ctx context.Context, users *UserDirectory, email string, username string, password string) (model.User, bool, error) {
	existing, err := users.FindByEmail(ctx, email)
	if err == nil {
		if existing.Role != model.RoleAdmin {
			return existing, false, fmt.Errorf("%w: %s exists without the admin role", model.ErrDuplicateEmail, existing.Email)
		}
		slog.Info("admin already present", "user_id", existing.ID)
		return existing, false, nil
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return model.User{}, false, fmt.Errorf("look up admin: %w", err)
	}

	if username == "" {
		username = "admin"
	}

	created, err := users.Create(ctx, email, username, password, model.RoleAdmin)
	if err != nil {
		return model.User{}, false, err
	}

	slog.Info("admin created", "user_id", created.ID)
	return created, true, nil
}
