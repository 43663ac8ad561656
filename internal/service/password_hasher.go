package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"

	"aqms-backend/internal/model"
)

// MaxPasswordBytes is bcrypt's input limit. Longer passwords are rejected, not truncated.
const MaxPasswordBytes = 72

// PasswordHasher wraps bcrypt and caps how many hashes run at once so a burst of
// logins cannot pin every CPU.
type PasswordHasher struct {
	cost  int
	slots int64
	sem   *semaphore.Weighted

	dummyOnce sync.Once
	dummyHash string
}

func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	slots := int64(runtime.GOMAXPROCS(0))
	return &PasswordHasher{
		cost:  cost,
		slots: slots,
		sem:   semaphore.NewWeighted(slots),
	}
}

func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	if err := ValidatePassword(password); err != nil {
		return "", err
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("wait for hash slot: %w", err)
	}
	defer h.sem.Release(1)

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password matches hash. Any failure, including a
// cancelled context, counts as a mismatch.
func (h *PasswordHasher) Verify(ctx context.Context, password string, hash string) bool {
	if len(password) > MaxPasswordBytes || hash == "" {
		return false
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	defer h.sem.Release(1)

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// DummyVerify burns one comparison so unknown-email logins take as long as wrong-password ones.
func (h *PasswordHasher) DummyVerify(ctx context.Context, password string) {
	h.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("aqms-dummy-password"), h.cost)
		if err == nil {
			h.dummyHash = string(hash)
		}
	})
	_ = h.Verify(ctx, password, h.dummyHash)
}

func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("%w: password is required", model.ErrInvalidInput)
	}
	if len(password) > MaxPasswordBytes {
		return model.ErrPasswordTooLong
	}
	return nil
}
