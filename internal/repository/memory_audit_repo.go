package repository

import (
	"context"
	"sync"

	"aqms-backend/internal/model"
)

const defaultAuditCapacity = 10000

// MemoryAuditRepository keeps the most recent entries; the oldest are dropped at capacity.
type MemoryAuditRepository struct {
	mu       sync.RWMutex
	entries  []model.AuditEntry
	nextID   int64
	capacity int
}

func NewMemoryAuditRepository(capacity int) *MemoryAuditRepository {
	if capacity <= 0 {
		capacity = defaultAuditCapacity
	}
	return &MemoryAuditRepository{capacity: capacity}
}

func (r *MemoryAuditRepository) Append(_ context.Context, entry model.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	entry.ID = r.nextID
	r.entries = append(r.entries, entry)
	if over := len(r.entries) - r.capacity; over > 0 {
		r.entries = append(r.entries[:0:0], r.entries[over:]...)
	}
	return nil
}

func (r *MemoryAuditRepository) Query(_ context.Context, query model.AuditQuery) ([]model.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.AuditEntry, 0)
	for i := len(r.entries) - 1; i >= 0; i-- {
		if query.Limit > 0 && len(out) >= query.Limit {
			break
		}
		if query.Matches(r.entries[i]) {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}
