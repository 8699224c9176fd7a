package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"agrisense/internal/models"
)

const deviceColumns = "id, dev_eui, name, model_id, farm_id, status, battery, last_seen"

// DeviceBySerial resolves a device by its normalized identifier. The
// stored dev_eui is normalized in SQL the same way incoming identifiers
// are (lowercase, colons/dashes/spaces stripped), so formatting
// differences between the network server and provisioning never matter.
func (d *DB) DeviceBySerial(ctx context.Context, serial string) (*models.Device, error) {
	var dev models.Device
	err := d.pool.QueryRow(ctx,
		"SELECT "+deviceColumns+` FROM devices
		 WHERE translate(lower(dev_eui), ':- ', '') = $1`, serial).
		Scan(&dev.ID, &dev.DevEUI, &dev.Name, &dev.ModelID, &dev.FarmID,
			&dev.Status, &dev.Battery, &dev.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

// DeviceByID fetches a device by primary key.
func (d *DB) DeviceByID(ctx context.Context, id string) (*models.Device, error) {
	var dev models.Device
	err := d.pool.QueryRow(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE id = $1", id).
		Scan(&dev.ID, &dev.DevEUI, &dev.Name, &dev.ModelID, &dev.FarmID,
			&dev.Status, &dev.Battery, &dev.LastSeen)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

// DeviceModelByID fetches a device model with its channel template.
func (d *DB) DeviceModelByID(ctx context.Context, id string) (*models.DeviceModel, error) {
	var m models.DeviceModel
	err := d.pool.QueryRow(ctx,
		"SELECT id, name, vendor, channels FROM device_models WHERE id = $1", id).
		Scan(&m.ID, &m.Name, &m.Vendor, &m.Channels)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
