package model

import (
	"fmt"
	"math"
	"time"
)

// DeviceStatus mirrors the health flags the sensor node reports with each upload.
type DeviceStatus struct {
	AHT20      *bool `json:"aht20,omitempty"`
	RTC        *bool `json:"rtc,omitempty"`
	PMS7003    *bool `json:"pms7003,omitempty"`
	WiFi       *bool `json:"wifi,omitempty"`
	NTP        *bool `json:"ntp,omitempty"`
	SDCard     *bool `json:"sdcard,omitempty"`
	ThingSpeak *bool `json:"thingspeak,omitempty"`
}

type Reading struct {
	ID         string    `json:"id"`
	TS         int64     `json:"ts"`
	PM1        float64   `json:"pm1"`
	PM25       float64   `json:"pm25"`
	PM10       float64   `json:"pm10"`
	Temp       float64   `json:"temp"`
	Hum        float64   `json:"hum"`
	Battery    float64   `json:"battery"`
	Vin        float64   `json:"vin"`
	Vout       float64   `json:"vout"`
	ReceivedAt time.Time `json:"received_at"`
	DeviceStatus
}

type ReadingInput struct {
	TS      int64   `json:"ts"`
	PM1     float64 `json:"pm1"`
	PM25    float64 `json:"pm25"`
	PM10    float64 `json:"pm10"`
	Temp    float64 `json:"temp"`
	Hum     float64 `json:"hum"`
	Battery float64 `json:"battery"`
	Vin     float64 `json:"vin"`
	Vout    float64 `json:"vout"`
	DeviceStatus
}

// Validate reports the first field that cannot be stored.
func (in ReadingInput) Validate() error {
	if in.TS < 0 {
		return fmt.Errorf("%w: ts must not be negative", ErrInvalidReading)
	}

	fields := []struct {
		name  string
		value float64
	}{
		{"pm1", in.PM1}, {"pm25", in.PM25}, {"pm10", in.PM10},
		{"temp", in.Temp}, {"hum", in.Hum},
		{"battery", in.Battery}, {"vin", in.Vin}, {"vout", in.Vout},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return fmt.Errorf("%w: %s is not a finite number", ErrInvalidReading, f.name)
		}
	}

	if in.PM1 < 0 || in.PM25 < 0 || in.PM10 < 0 {
		return fmt.Errorf("%w: particulate values must not be negative", ErrInvalidReading)
	}
	if in.Hum < 0 || in.Hum > 100 {
		return fmt.Errorf("%w: hum must be within 0..100", ErrInvalidReading)
	}

	return nil
}

// ToReading fills server-side fields. A missing device timestamp falls back to receivedAt.
func (in ReadingInput) ToReading(receivedAt time.Time) Reading {
	ts := in.TS
	if ts == 0 {
		ts = receivedAt.Unix()
	}

	return Reading{
		TS:           ts,
		PM1:          in.PM1,
		PM25:         in.PM25,
		PM10:         in.PM10,
		Temp:         in.Temp,
		Hum:          in.Hum,
		Battery:      in.Battery,
		Vin:          in.Vin,
		Vout:         in.Vout,
		ReceivedAt:   receivedAt.UTC(),
		DeviceStatus: in.DeviceStatus,
	}
}
