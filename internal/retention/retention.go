// Package retention prunes old sensor readings on a cron schedule.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"aqms-backend/internal/event"
)

// Pruner is satisfied by both reading repositories.
type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoffTS int64) (int64, error)
}

// Invalidator drops cached reading lists; *cache.ReadingsCache satisfies it.
type Invalidator interface {
	Invalidate(ctx context.Context)
}

type PrunedPayload struct {
	Deleted  int64 `json:"deleted"`
	CutoffTS int64 `json:"cutoff_ts"`
}

type Scheduler struct {
	store   Pruner
	bus     event.Bus
	cache   Invalidator
	keep    time.Duration
	timeout time.Duration
	now     func() time.Time
	cron    *cron.Cron
}

// New validates schedule (standard five-field cron or a descriptor such as @daily).
// bus and cache may be nil.
func New(store Pruner, bus event.Bus, cache Invalidator, days int, schedule string) (*Scheduler, error) {
	if days <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", days)
	}

	s := &Scheduler{
		store:   store,
		bus:     bus,
		cache:   cache,
		keep:    time.Duration(days) * 24 * time.Hour,
		timeout: time.Minute,
		now:     time.Now,
		cron:    cron.New(cron.WithLocation(time.UTC)),
	}

	parsed, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("parse retention schedule %q: %w", schedule, err)
	}
	s.cron.Schedule(parsed, cron.FuncJob(func() {
		if _, err := s.RunOnce(context.Background()); err != nil {
			slog.Error("retention run failed", "error", err)
		}
	}))

	return s, nil
}

// RunOnce deletes readings older than the retention window and returns how many went.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cutoff := s.now().Add(-s.keep).Unix()
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune readings: %w", err)
	}

	slog.Info("retention run complete", "deleted", deleted, "cutoff_ts", cutoff)
	if deleted == 0 {
		return 0, nil
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	if s.bus != nil {
		s.bus.Publish(event.New(event.TypeReadingsPruned, PrunedPayload{Deleted: deleted, CutoffTS: cutoff}))
	}
	return deleted, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("retention scheduler started", "keep", s.keep.String())
}

// Stop halts scheduling and waits for a running prune to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	slog.Info("retention scheduler stopped")
}
