package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"aqms-backend/internal/model"
)

const readingColumns = `id::text, ts, pm1, pm25, pm10, temp, hum, battery, vin, vout, device, received_at`

type ReadingRepository struct {
	pool *pgxpool.Pool
}

func NewReadingRepository(pool *pgxpool.Pool) *ReadingRepository {
	return &ReadingRepository{pool: pool}
}

func (r *ReadingRepository) Insert(ctx context.Context, reading model.Reading) (model.Reading, error) {
	device, err := json.Marshal(reading.DeviceStatus)
	if err != nil {
		return model.Reading{}, fmt.Errorf("marshal device status: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO readings (ts, pm1, pm25, pm10, temp, hum, battery, vin, vout, device, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id::text`,
		reading.TS, reading.PM1, reading.PM25, reading.PM10, reading.Temp, reading.Hum,
		reading.Battery, reading.Vin, reading.Vout, device, reading.ReceivedAt).
		Scan(&reading.ID)
	if err != nil {
		return model.Reading{}, fmt.Errorf("insert reading: %w", err)
	}
	return reading, nil
}

// List returns the newest readings first.
func (r *ReadingRepository) List(ctx context.Context, limit int) ([]model.Reading, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+readingColumns+` FROM readings ORDER BY ts DESC, received_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list readings: %w", err)
	}
	return collectReadings(rows)
}

// ListSince returns readings with ts >= sinceTS, oldest first.
func (r *ReadingRepository) ListSince(ctx context.Context, sinceTS int64) ([]model.Reading, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+readingColumns+` FROM readings WHERE ts >= $1 ORDER BY ts ASC, received_at ASC`, sinceTS)
	if err != nil {
		return nil, fmt.Errorf("list readings since: %w", err)
	}
	return collectReadings(rows)
}

func (r *ReadingRepository) Latest(ctx context.Context) (model.Reading, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+readingColumns+` FROM readings ORDER BY ts DESC, received_at DESC LIMIT 1`)
	if err != nil {
		return model.Reading{}, fmt.Errorf("latest reading: %w", err)
	}

	readings, err := collectReadings(rows)
	if err != nil {
		return model.Reading{}, err
	}
	if len(readings) == 0 {
		return model.Reading{}, model.ErrNoReadings
	}
	return readings[0], nil
}

func (r *ReadingRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM readings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return count, nil
}

func (r *ReadingRepository) DeleteOlderThan(ctx context.Context, cutoffTS int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM readings WHERE ts < $1`, cutoffTS)
	if err != nil {
		return 0, fmt.Errorf("delete old readings: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectReadings(rows pgx.Rows) ([]model.Reading, error) {
	defer rows.Close()

	readings := make([]model.Reading, 0)
	for rows.Next() {
		var (
			rd     model.Reading
			device []byte
		)
		if err := rows.Scan(&rd.ID, &rd.TS, &rd.PM1, &rd.PM25, &rd.PM10, &rd.Temp, &rd.Hum,
			&rd.Battery, &rd.Vin, &rd.Vout, &device, &rd.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		if len(device) > 0 {
			if err := json.Unmarshal(device, &rd.DeviceStatus); err != nil {
				return nil, fmt.Errorf("decode device status: %w", err)
			}
		}
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate readings: %w", err)
	}
	return readings, nil
}
