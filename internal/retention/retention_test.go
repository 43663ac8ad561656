package retention

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"aqms-backend/internal/cache"
	"aqms-backend/internal/event"
	"aqms-backend/internal/model"
	"aqms-backend/internal/repository"
)

func TestNewRejectsBadInput(t *testing.T) {
	t.Parallel()

	repo := repository.NewMemoryReadingRepository()

	_, err := New(repo, nil, nil, 0, "@daily")
	require.Error(t, err)

	_, err = New(repo, nil, nil, 7, "not a schedule")
	require.Error(t, err)

	s, err := New(repo, nil, nil, 7, "0 3 * * *")
	require.NoError(t, err)
	s.Start()
	s.Stop()
}

func TestRunOncePrunesAndPublishes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := repository.NewMemoryReadingRepository()
	for _, ts := range []int64{
		now.Add(-10 * 24 * time.Hour).Unix(),
		now.Add(-8 * 24 * time.Hour).Unix(),
		now.Add(-1 * time.Hour).Unix(),
	} {
		_, err := repo.Insert(ctx, model.Reading{TS: ts})
		require.NoError(t, err)
	}

	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	s, err := New(repo, bus, nil, 7, "@daily")
	require.NoError(t, err)
	s.now = func() time.Time { return now }

	deleted, err := s.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	select {
	case e := <-events:
		require.Equal(t, event.TypeReadingsPruned, e.Type)
		require.Equal(t, int64(2), e.Payload.(PrunedPayload).Deleted)
	case <-time.After(time.Second):
		t.Fatal("expected readings.pruned event")
	}

	deleted, err = s.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, deleted)
}

func TestRunOnceInvalidatesReadingsCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	repo := repository.NewMemoryReadingRepository()
	for _, ts := range []int64{now.Add(-30 * 24 * time.Hour).Unix(), now.Add(-time.Hour).Unix()} {
		_, err := repo.Insert(ctx, model.Reading{TS: ts})
		require.NoError(t, err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	readings := cache.NewReadingsCache(client, time.Minute)

	before, err := repo.List(ctx, 10)
	require.NoError(t, err)
	_, key, _ := readings.Get(ctx, 10)
	readings.Set(ctx, key, before)
	_, _, ok := readings.Get(ctx, 10)
	require.True(t, ok)

	s, err := New(repo, nil, readings, 7, "@daily")
	require.NoError(t, err)
	s.now = func() time.Time { return now }

	deleted, err := s.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	_, _, ok = readings.Get(ctx, 10)
	require.False(t, ok, "a prune must drop cached lists that still hold the deleted rows")
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) Invalidate(context.Context) { c.calls++ }

func TestRunOnceSkipsInvalidateWhenNothingDeleted(t *testing.T) {
	t.Parallel()

	inv := &countingInvalidator{}
	s, err := New(repository.NewMemoryReadingRepository(), nil, inv, 7, "@daily")
	require.NoError(t, err)

	deleted, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, deleted)
	require.Zero(t, inv.calls)
}
