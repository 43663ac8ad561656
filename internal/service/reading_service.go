package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"aqms-backend/internal/alert"
	"aqms-backend/internal/event"
	"aqms-backend/internal/model"
	"aqms-backend/pkg/apierror"
)

const (
	DefaultExportDays = 7
	MaxExportDays     = 365
)

type ReadingStore interface {
	Insert(ctx context.Context, reading model.Reading) (model.Reading, error)
	List(ctx context.Context, limit int) ([]model.Reading, error)
	ListSince(ctx context.Context, sinceTS int64) ([]model.Reading, error)
	Latest(ctx context.Context) (model.Reading, error)
	Count(ctx context.Context) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoffTS int64) (int64, error)
}

// ReadingsCache is satisfied by cache.ReadingsCache.
type ReadingsCache interface {
	Get(ctx context.Context, limit int) ([]model.Reading, string, bool)
	Set(ctx context.Context, key string, readings []model.Reading)
	Invalidate(ctx context.Context)
}

type ReadingService struct {
	store        ReadingStore
	cache        ReadingsCache
	bus          event.Bus
	alerts       *alert.Evaluator
	dispatcher   *alert.Dispatcher
	maxLimit     int
	queryTimeout time.Duration
	now          func() time.Time
}

type ReadingServiceOptions struct {
	Cache        ReadingsCache
	Bus          event.Bus
	Alerts       *alert.Evaluator
	Dispatcher   *alert.Dispatcher
	MaxLimit     int
	QueryTimeout time.Duration
}

func NewReadingService(store ReadingStore, opts ReadingServiceOptions) *ReadingService {
	if opts.MaxLimit <= 0 {
		opts.MaxLimit = 3000
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = 5 * time.Second
	}

	return &ReadingService{
		store:        store,
		cache:        opts.Cache,
		bus:          opts.Bus,
		alerts:       opts.Alerts,
		dispatcher:   opts.Dispatcher,
		maxLimit:     opts.MaxLimit,
		queryTimeout: opts.QueryTimeout,
		now:          time.Now,
	}
}

// Ingest stores a device upload, then fans it out to live subscribers and the
// alert pipeline. Fan-out never fails the upload.
func (s *ReadingService) Ingest(ctx context.Context, in model.ReadingInput) (model.Reading, error) {
	if err := in.Validate(); err != nil {
		return model.Reading{}, apierror.Wrap(err, "INVALID_READING", err.Error(), "", http.StatusBadRequest)
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	stored, err := s.store.Insert(queryCtx, in.ToReading(s.now()))
	if err != nil {
		return model.Reading{}, fmt.Errorf("store reading: %w", err)
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	if s.bus != nil {
		s.bus.Publish(event.New(event.TypeReadingCreated, stored))
	}
	if s.alerts != nil {
		raised := s.alerts.Evaluate(stored)
		for _, a := range raised {
			if s.bus != nil {
				s.bus.Publish(event.New(event.TypeAlertRaised, a))
			}
		}
		if s.dispatcher != nil && len(raised) > 0 {
			s.dispatcher.Dispatch(raised)
		}
	}

	slog.Debug("reading stored", "reading_id", stored.ID, "ts", stored.TS)
	return stored, nil
}

// List returns newest-first readings. limit ≤ 0 or above the configured
// maximum is clamped to the maximum.
func (s *ReadingService) List(ctx context.Context, limit int) ([]model.Reading, error) {
	if limit <= 0 || limit > s.maxLimit {
		limit = s.maxLimit
	}

	var cacheKey string
	if s.cache != nil {
		cached, key, ok := s.cache.Get(ctx, limit)
		if ok {
			return cached, nil
		}
		cacheKey = key
	}

	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	readings, err := s.store.List(queryCtx, limit)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}

	if s.cache != nil {
		s.cache.Set(ctx, cacheKey, readings)
	}
	return readings, nil
}

// ExportSince returns readings from the last days days in ascending ts order.
func (s *ReadingService) ExportSince(ctx context.Context, days int) ([]model.Reading, error) {
	if days < 1 || days > MaxExportDays {
		return nil, apierror.Wrap(model.ErrInvalidInput, "BAD_REQUEST", "days must be between 1 and 365", "days", http.StatusBadRequest)
	}

	since := s.now().Add(-time.Duration(days) * 24 * time.Hour).Unix()

	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	readings, err := s.store.ListSince(queryCtx, since)
	if err != nil {
		return nil, fmt.Errorf("export readings: %w", err)
	}
	return readings, nil
}

// Latest returns nil when nothing has been ingested yet.
func (s *ReadingService) Latest(ctx context.Context) (*model.Reading, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	r, err := s.store.Latest(queryCtx)
	if errors.Is(err, model.ErrNoReadings) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest reading: %w", err)
	}
	return &r, nil
}

func (s *ReadingService) Count(ctx context.Context) (int64, error) {
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return s.store.Count(queryCtx)
}
