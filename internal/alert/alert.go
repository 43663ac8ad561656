// Package alert turns readings that cross configured thresholds into alerts and
// hands them to notification sinks without blocking ingestion.
package alert

import (
	"fmt"
	"sync"
	"time"

	"aqms-backend/internal/model"
)

type Kind string

const (
	KindPM25High   Kind = "pm25_high"
	KindPM10High   Kind = "pm10_high"
	KindBatteryLow Kind = "battery_low"
)

type Alert struct {
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
	ReadingTS int64     `json:"reading_ts"`
	RaisedAt  time.Time `json:"raised_at"`
}

// Thresholds with a zero value are disabled.
type Thresholds struct {
	PM25       float64
	PM10       float64
	BatteryMin float64
}

// Evaluator raises at most one alert per kind within the cooldown window.
type Evaluator struct {
	thresholds Thresholds
	cooldown   time.Duration
	now        func() time.Time

	mu   sync.Mutex
	last map[Kind]time.Time
}

func NewEvaluator(thresholds Thresholds, cooldown time.Duration) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
		cooldown:   cooldown,
		now:        time.Now,
		last:       map[Kind]time.Time{},
	}
}

func (e *Evaluator) Evaluate(r model.Reading) []Alert {
	candidates := make([]Alert, 0, 3)

	if t := e.thresholds.PM25; t > 0 && r.PM25 > t {
		candidates = append(candidates, Alert{
			Kind: KindPM25High, Value: r.PM25, Threshold: t,
			Message: fmt.Sprintf("PM2.5 is %.1f µg/m³ (threshold %.1f)", r.PM25, t),
		})
	}
	if t := e.thresholds.PM10; t > 0 && r.PM10 > t {
		candidates = append(candidates, Alert{
			Kind: KindPM10High, Value: r.PM10, Threshold: t,
			Message: fmt.Sprintf("PM10 is %.1f µg/m³ (threshold %.1f)", r.PM10, t),
		})
	}
	// A zero battery reading means the device did not report one.
	if t := e.thresholds.BatteryMin; t > 0 && r.Battery > 0 && r.Battery < t {
		candidates = append(candidates, Alert{
			Kind: KindBatteryLow, Value: r.Battery, Threshold: t,
			Message: fmt.Sprintf("Battery is %.2f V (minimum %.2f)", r.Battery, t),
		})
	}

	if len(candidates) == 0 {
		return nil
	}

	now := e.now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()

	raised := candidates[:0]
	for _, a := range candidates {
		if last, ok := e.last[a.Kind]; ok && now.Sub(last) < e.cooldown {
			continue
		}
		e.last[a.Kind] = now
		a.ReadingTS = r.TS
		a.RaisedAt = now
		raised = append(raised, a)
	}
	return raised
}
