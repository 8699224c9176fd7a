package db

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"agrisense/internal/models"
)

// ActiveProviders returns the notification providers to try, highest
// priority first. AuthConfig comes back still encrypted.
func (d *DB) ActiveProviders(ctx context.Context) ([]models.ProviderConfig, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, name, priority, base_url, method, encoding, auth_strategy,
		        auth_config, field_map, success_pattern, error_pattern, is_active
		 FROM notification_providers WHERE is_active ORDER BY priority DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []models.ProviderConfig
	for rows.Next() {
		var p models.ProviderConfig
		var fieldMap []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.Priority, &p.BaseURL, &p.Method,
			&p.Encoding, &p.AuthStrategy, &p.AuthConfig, &fieldMap,
			&p.SuccessPattern, &p.ErrorPattern, &p.IsActive); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(fieldMap, &p.FieldMap); err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// InsertNotificationAttempt records one provider call.
func (d *DB) InsertNotificationAttempt(ctx context.Context, a *models.NotificationAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := d.pool.Exec(ctx,
		`INSERT INTO notification_attempts (id, provider_id, provider, recipient, body, status, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.ProviderID, a.Provider, a.Recipient, a.Body, a.Status, a.Error, a.CreatedAt)
	return err
}
