package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"agrisense/internal/models"
)

// Point is one decoded measurement heading into storage, with the
// channel metadata to use if the channel does not exist yet.
type Point struct {
	Code  string
	Name  string
	Unit  string
	Type  string
	Value float64
}

// SaveReadingBatch persists one ingest batch atomically: channels are
// created on first sight, one reading row is written per point, and
// device liveness (and battery, when present) is updated. Either the
// whole batch commits or none of it does.
func (d *DB) SaveReadingBatch(ctx context.Context, deviceID string, battery *float64, points []Point) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ingest tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	for _, p := range points {
		var channelID string
		err := tx.QueryRow(ctx,
			"SELECT id FROM measurement_channels WHERE device_id = $1 AND code = $2",
			deviceID, p.Code).Scan(&channelID)
		if errors.Is(err, pgx.ErrNoRows) {
			channelID = uuid.NewString()
			if _, err := tx.Exec(ctx,
				`INSERT INTO measurement_channels (id, device_id, code, name, unit, type)
				 VALUES ($1, $2, $3, $4, $5, $6)`,
				channelID, deviceID, p.Code, p.Name, p.Unit, p.Type); err != nil {
				return fmt.Errorf("create channel %s: %w", p.Code, err)
			}
		} else if err != nil {
			return fmt.Errorf("resolve channel %s: %w", p.Code, err)
		}

		if _, err := tx.Exec(ctx,
			"INSERT INTO readings (id, channel_id, value, timestamp) VALUES ($1, $2, $3, $4)",
			uuid.NewString(), channelID, p.Value, now); err != nil {
			return fmt.Errorf("insert reading %s: %w", p.Code, err)
		}
	}

	if battery != nil {
		_, err = tx.Exec(ctx,
			"UPDATE devices SET status = $1, last_seen = $2, battery = $3 WHERE id = $4",
			models.DeviceOnline, now, *battery, deviceID)
	} else {
		_, err = tx.Exec(ctx,
			"UPDATE devices SET status = $1, last_seen = $2 WHERE id = $3",
			models.DeviceOnline, now, deviceID)
	}
	if err != nil {
		return fmt.Errorf("update liveness: %w", err)
	}

	return tx.Commit(ctx)
}

// LatestValueByDeviceAndCode returns the newest reading of the given
// channel code on one device.
func (d *DB) LatestValueByDeviceAndCode(ctx context.Context, deviceID, code string) (float64, error) {
	var v float64
	err := d.pool.QueryRow(ctx,
		`SELECT r.value FROM readings r
		 JOIN measurement_channels c ON c.id = r.channel_id
		 WHERE c.device_id = $1 AND c.code = $2
		 ORDER BY r.timestamp DESC LIMIT 1`, deviceID, code).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return v, err
}

// LatestValueByFarmAndCode returns the newest reading of the given
// channel code across all devices of a farm. Used for farm-scoped rules
// that are not bound to a single device.
func (d *DB) LatestValueByFarmAndCode(ctx context.Context, farmID, code string) (float64, error) {
	var v float64
	err := d.pool.QueryRow(ctx,
		`SELECT r.value FROM readings r
		 JOIN measurement_channels c ON c.id = r.channel_id
		 JOIN devices dev ON dev.id = c.device_id
		 WHERE dev.farm_id = $1 AND c.code = $2
		 ORDER BY r.timestamp DESC LIMIT 1`, farmID, code).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return v, err
}
