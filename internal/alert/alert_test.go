package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aqms-backend/internal/model"
)

func TestEvaluatorThresholds(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(Thresholds{PM25: 35.4, PM10: 154, BatteryMin: 3.3}, time.Minute)

	require.Empty(t, e.Evaluate(model.Reading{PM25: 10, PM10: 20, Battery: 3.9}))

	raised := e.Evaluate(model.Reading{TS: 42, PM25: 80, PM10: 200, Battery: 3.1})
	require.Len(t, raised, 3)
	require.Equal(t, KindPM25High, raised[0].Kind)
	require.Equal(t, KindPM10High, raised[1].Kind)
	require.Equal(t, KindBatteryLow, raised[2].Kind)
	require.Equal(t, int64(42), raised[0].ReadingTS)
}

func TestEvaluatorIgnoresMissingBattery(t *testing.T) {
	t.Parallel()

	e := NewEvaluator(Thresholds{BatteryMin: 3.3}, time.Minute)
	require.Empty(t, e.Evaluate(model.Reading{Battery: 0}))
}

func TestEvaluatorCooldown(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e := NewEvaluator(Thresholds{PM25: 35}, 30*time.Minute)
	e.now = func() time.Time { return now }

	require.Len(t, e.Evaluate(model.Reading{PM25: 50}), 1)
	require.Empty(t, e.Evaluate(model.Reading{PM25: 60}))

	now = now.Add(31 * time.Minute)
	require.Len(t, e.Evaluate(model.Reading{PM25: 60}), 1)
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

func (r *recordingNotifier) Notify(_ context.Context, a Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestDispatcherFansOut(t *testing.T) {
	t.Parallel()

	ok := &recordingNotifier{}
	failing := &recordingNotifier{err: errors.New("sink down")}
	d := NewDispatcher(ok, failing, LogNotifier{})

	d.Dispatch([]Alert{{Kind: KindPM25High}, {Kind: KindBatteryLow}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.Wait(ctx)

	require.Len(t, ok.alerts, 2)
	require.Len(t, failing.alerts, 2)
}
