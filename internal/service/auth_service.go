package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"aqms-backend/internal/model"
	"aqms-backend/pkg/apierror"
)

const tokenTypeBearer = "bearer"

type AuthService struct {
	users          *UserDirectory
	hasher         *PasswordHasher
	tokens         *TokenService
	allowAdminSelf bool
}

func NewAuthService(users *UserDirectory, hasher *PasswordHasher, tokens *TokenService, allowAdminRegistration bool) *AuthService {
	return &AuthService{
		users:          users,
		hasher:         hasher,
		tokens:         tokens,
		allowAdminSelf: allowAdminRegistration,
	}
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.PublicUser, error) {
	role, ok := model.ParseRole(req.Role)
	if !ok {
		return model.PublicUser{}, apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "invalid role", req.Role, http.StatusBadRequest)
	}
	if role == model.RoleAdmin && !s.allowAdminSelf {
		return model.PublicUser{}, apierror.Wrap(model.ErrForbidden, "FORBIDDEN", "admin registration is disabled", "", http.StatusForbidden)
	}

	user, err := s.users.Create(ctx, req.Email, req.Username, req.Password, role)
	if err != nil {
		return model.PublicUser{}, err
	}

	slog.Info("user registered", "user_id", user.ID, "role", user.Role)
	return model.NewPublicUser(user), nil
}

// Login answers identically for an unknown email and a wrong password.
func (s *AuthService) Login(ctx context.Context, email string, password string) (model.AccessToken, error) {
	email = model.NormalizeEmail(email)
	if email == "" || password == "" {
		return model.AccessToken{}, model.ErrInvalidCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrUserNotFound) {
		s.hasher.DummyVerify(ctx, password)
		slog.Info("login rejected", "reason", "unknown_email")
		return model.AccessToken{}, model.ErrInvalidCredentials
	}
	if err != nil {
		return model.AccessToken{}, fmt.Errorf("look up user: %w", err)
	}

	if !s.hasher.Verify(ctx, password, user.PasswordHash) {
		slog.Info("login rejected", "reason", "wrong_password", "user_id", user.ID)
		return model.AccessToken{}, model.ErrInvalidCredentials
	}

	signed, _, err := s.tokens.Issue(user.ID, user.Role, 0)
	if err != nil {
		return model.AccessToken{}, err
	}

	slog.Info("login succeeded", "user_id", user.ID, "role", user.Role)
	return model.AccessToken{
		AccessToken: signed,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   int64(s.tokens.DefaultTTL().Seconds()),
		User:        model.NewPublicUser(user),
	}, nil
}

// ChangePassword leaves the stored hash untouched unless oldPassword verifies.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, oldPassword string, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "new_password is required", "new_password", http.StatusBadRequest)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(ctx, oldPassword, user.PasswordHash) {
		slog.Info("password change rejected", "reason", "wrong_old_password", "user_id", user.ID)
		return model.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}

	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return err
	}

	slog.Info("password changed", "user_id", user.ID)
	return nil
}

func (s *AuthService) GetUser(ctx context.Context, userID string) (model.PublicUser, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.PublicUser{}, err
	}
	return model.NewPublicUser(user), nil
}

func (s *AuthService) ListUsers(ctx context.Context, limit int) ([]model.PublicUser, error) {
	users, err := s.users.List(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := make([]model.PublicUser, 0, len(users))
	for _, u := range users {
		out = append(out, model.NewPublicUser(u))
	}
	return out, nil
}

func (s *AuthService) CountUsers(ctx context.Context) (int, error) {
	return s.users.Count(ctx)
}
