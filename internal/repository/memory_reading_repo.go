package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"aqms-backend/internal/model"
)

type MemoryReadingRepository struct {
	mu       sync.RWMutex
	readings []model.Reading
}

func NewMemoryReadingRepository() *MemoryReadingRepository {
	return &MemoryReadingRepository{}
}

func (r *MemoryReadingRepository) Insert(_ context.Context, reading model.Reading) (model.Reading, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reading.ID = uuid.NewString()
	r.readings = append(r.readings, reading)
	return reading, nil
}

func (r *MemoryReadingRepository) List(_ context.Context, limit int) ([]model.Reading, error) {
	sorted := r.sorted(false)
	if limit >= 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted, nil
}

func (r *MemoryReadingRepository) ListSince(_ context.Context, sinceTS int64) ([]model.Reading, error) {
	out := make([]model.Reading, 0)
	for _, rd := range r.sorted(true) {
		if rd.TS >= sinceTS {
			out = append(out, rd)
		}
	}
	return out, nil
}

func (r *MemoryReadingRepository) Latest(ctx context.Context) (model.Reading, error) {
	readings, _ := r.List(ctx, 1)
	if len(readings) == 0 {
		return model.Reading{}, model.ErrNoReadings
	}
	return readings[0], nil
}

func (r *MemoryReadingRepository) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.readings)), nil
}

func (r *MemoryReadingRepository) DeleteOlderThan(_ context.Context, cutoffTS int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.readings[:0]
	var deleted int64
	for _, rd := range r.readings {
		if rd.TS < cutoffTS {
			deleted++
			continue
		}
		kept = append(kept, rd)
	}
	r.readings = kept
	return deleted, nil
}

func (r *MemoryReadingRepository) sorted(ascending bool) []model.Reading {
	r.mu.RLock()
	out := make([]model.Reading, len(r.readings))
	copy(out, r.readings)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if ascending {
			return out[i].TS < out[j].TS
		}
		return out[i].TS > out[j].TS
	})
	return out
}
