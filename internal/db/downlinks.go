package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"agrisense/internal/models"
)

// InsertDownlinkLog writes the pending row created before delivery is
// attempted.
func (d *DB) InsertDownlinkLog(ctx context.Context, l *models.DownlinkLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := d.pool.Exec(ctx,
		`INSERT INTO downlink_logs
		 (id, device_id, command_name, hex_data, port, status, error, triggered_by, rule_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		l.ID, l.DeviceID, l.CommandName, l.HexData, l.Port, l.Status,
		l.Error, l.TriggeredBy, l.RuleID, l.CreatedAt)
	return err
}

// UpdateDownlinkStatus records the delivery outcome.
func (d *DB) UpdateDownlinkStatus(ctx context.Context, id string, status models.DownlinkStatus, errText string) error {
	_, err := d.pool.Exec(ctx,
		"UPDATE downlink_logs SET status = $1, error = $2 WHERE id = $3",
		status, errText, id)
	return err
}
