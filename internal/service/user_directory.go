package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"aqms-backend/internal/model"
	"aqms-backend/pkg/apierror"
)

const (
	defaultUserListLimit = 100
	maxUserListLimit     = 500
	maxUsernameLength    = 64
)

// UserStore is the persistence the directory needs. Implementations return
// model.ErrUserNotFound and model.ErrDuplicateEmail for those cases.
type UserStore interface {
	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	Create(ctx context.Context, u model.User) (model.User, error)
	UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error
	List(ctx context.Context, limit int) ([]model.User, error)
	Count(ctx context.Context) (int, error)
}

type UserDirectory struct {
	store        UserStore
	hasher       *PasswordHasher
	queryTimeout time.Duration
}

func NewUserDirectory(store UserStore, hasher *PasswordHasher, queryTimeout time.Duration) *UserDirectory {
	if queryTimeout <= 0 {
		queryTimeout = 5 * time.Second
	}
	return &UserDirectory{store: store, hasher: hasher, queryTimeout: queryTimeout}
}

// Create validates and stores a new user, returning the storage-assigned id.
func (d *UserDirectory) Create(ctx context.Context, email string, username string, password string, role model.Role) (model.User, error) {
	email = model.NormalizeEmail(email)
	username = strings.TrimSpace(username)

	if err := validateEmail(email); err != nil {
		return model.User{}, err
	}
	if username == "" || len(username) > maxUsernameLength {
		return model.User{}, apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "username must be 1-64 characters", "username", http.StatusBadRequest)
	}
	if role != model.RoleUser && role != model.RoleAdmin {
		return model.User{}, apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "invalid role", string(role), http.StatusBadRequest)
	}

	// Fast path for the common conflict; the store's uniqueness check is authoritative.
	if _, err := d.FindByEmail(ctx, email); err == nil {
		return model.User{}, model.ErrDuplicateEmail
	} else if !errors.Is(err, model.ErrUserNotFound) {
		return model.User{}, err
	}

	hash, err := d.hasher.Hash(ctx, password)
	if err != nil {
		return model.User{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()

	created, err := d.store.Create(ctx, model.User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		return model.User{}, err
	}
	return created, nil
}

func (d *UserDirectory) FindByEmail(ctx context.Context, email string) (model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()
	return d.store.FindByEmail(ctx, model.NormalizeEmail(email))
}

func (d *UserDirectory) FindByID(ctx context.Context, id string) (model.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.User{}, model.ErrUserNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()
	return d.store.FindByID(ctx, id)
}

func (d *UserDirectory) UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error {
	ctx, cancel := context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()
	return d.store.UpdatePasswordHash(ctx, id, passwordHash)
}

// List returns users in storage order. There is no cursor; the result is capped.
func (d *UserDirectory) List(ctx context.Context, limit int) ([]model.User, error) {
	if limit <= 0 {
		limit = defaultUserListLimit
	}
	if limit > maxUserListLimit {
		limit = maxUserListLimit
	}

	ctx, cancel := context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()

	users, err := d.store.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (d *UserDirectory) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.queryTimeout)
	defer cancel()
	return d.store.Count(ctx)
}

func validateEmail(email string) error {
	if email == "" {
		return apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "email is required", "email", http.StatusBadRequest)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "email is invalid", "email", http.StatusBadRequest)
	}
	return nil
}
