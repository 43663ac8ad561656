package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"aqms-backend/internal/model"
)

// MemoryUserRepository keeps users in process memory. It backs development runs
// without DATABASE_URL and the test suites.
type MemoryUserRepository struct {
	mu      sync.RWMutex
	order   []string
	byID    map[string]model.User
	byEmail map[string]string
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		byID:    map[string]model.User{},
		byEmail: map[string]string{},
	}
}

func (r *MemoryUserRepository) FindByID(_ context.Context, id string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return u, nil
}

func (r *MemoryUserRepository) FindByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[model.NormalizeEmail(email)]
	if !ok {
		return model.User{}, model.ErrUserNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryUserRepository) Create(_ context.Context, u model.User) (model.User, error) {
	key := model.NormalizeEmail(u.Email)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[key]; exists {
		return model.User{}, model.ErrDuplicateEmail
	}

	u.ID = uuid.NewString()
	u.Email = key
	u.CreatedAt = time.Now().UTC()

	r.byID[u.ID] = u
	r.byEmail[key] = u.ID
	r.order = append(r.order, u.ID)

	return u, nil
}

func (r *MemoryUserRepository) UpdatePasswordHash(_ context.Context, id string, passwordHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return model.ErrUserNotFound
	}
	u.PasswordHash = passwordHash
	r.byID[id] = u
	return nil
}

func (r *MemoryUserRepository) List(_ context.Context, limit int) ([]model.User, error) {
	if limit <= 0 {
		return []model.User{}, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]model.User, 0, min(limit, len(r.order)))
	for _, id := range r.order {
		if len(users) >= limit {
			break
		}
		users = append(users, r.byID[id])
	}
	return users, nil
}

func (r *MemoryUserRepository) Count(_ context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}

// Delete exists for tests that simulate a user removed after token issuance.
func (r *MemoryUserRepository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	delete(r.byEmail, u.Email)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
