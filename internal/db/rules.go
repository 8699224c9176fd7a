package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"agrisense/internal/models"
)

const ruleColumns = `id, farm_id, device_id, name, sensor_code, condition,
	threshold, threshold2, cool_down_minutes, is_active`

func scanRule(row pgx.Row) (*models.TriggerRule, error) {
	var r models.TriggerRule
	err := row.Scan(&r.ID, &r.FarmID, &r.DeviceID, &r.Name, &r.SensorCode,
		&r.Condition, &r.Threshold, &r.Threshold2, &r.CoolDownMinutes, &r.IsActive)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (d *DB) collectRules(rows pgx.Rows) ([]models.TriggerRule, error) {
	defer rows.Close()
	var rules []models.TriggerRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

// ActiveRulesForDevice fetches the active rules evaluated on the push
// path: rules bound to the device plus farm-wide rules of its farm.
func (d *DB) ActiveRulesForDevice(ctx context.Context, deviceID, farmID string) ([]models.TriggerRule, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT "+ruleColumns+` FROM trigger_rules
		 WHERE is_active AND (device_id = $1 OR (device_id IS NULL AND farm_id = $2))`,
		deviceID, farmID)
	if err != nil {
		return nil, err
	}
	return d.collectRules(rows)
}

// AllActiveRules fetches every active rule for the periodic sweep.
func (d *DB) AllActiveRules(ctx context.Context) ([]models.TriggerRule, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT "+ruleColumns+" FROM trigger_rules WHERE is_active")
	if err != nil {
		return nil, err
	}
	return d.collectRules(rows)
}

// RulesByFarm lists every rule of a farm, active or not, with actions.
func (d *DB) RulesByFarm(ctx context.Context, farmID string) ([]models.TriggerRule, error) {
	rows, err := d.pool.Query(ctx,
		"SELECT "+ruleColumns+" FROM trigger_rules WHERE farm_id = $1 ORDER BY name", farmID)
	if err != nil {
		return nil, err
	}
	rules, err := d.collectRules(rows)
	if err != nil {
		return nil, err
	}
	for i := range rules {
		actions, err := d.ActionsForRule(ctx, rules[i].ID)
		if err != nil {
			return nil, err
		}
		rules[i].Actions = actions
	}
	return rules, nil
}

// RuleByID fetches one rule.
func (d *DB) RuleByID(ctx context.Context, id string) (*models.TriggerRule, error) {
	r, err := scanRule(d.pool.QueryRow(ctx,
		"SELECT "+ruleColumns+" FROM trigger_rules WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ActionsForRule returns a rule's actions in execution order.
func (d *DB) ActionsForRule(ctx context.Context, ruleID string) ([]models.Action, error) {
	rows, err := d.pool.Query(ctx,
		`SELECT id, rule_id, type, target, payload, ordinal
		 FROM actions WHERE rule_id = $1 ORDER BY ordinal`, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []models.Action
	for rows.Next() {
		var a models.Action
		if err := rows.Scan(&a.ID, &a.RuleID, &a.Type, &a.Target, &a.Payload, &a.Ordinal); err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// CreateRule inserts a rule with its nested actions in one transaction.
func (d *DB) CreateRule(ctx context.Context, r *models.TriggerRule) error {
	tx, err := d.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO trigger_rules
		 (id, farm_id, device_id, name, sensor_code, condition, threshold, threshold2, cool_down_minutes, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.FarmID, r.DeviceID, r.Name, r.SensorCode, r.Condition,
		r.Threshold, r.Threshold2, r.CoolDownMinutes, r.IsActive); err != nil {
		return err
	}
	for i := range r.Actions {
		a := &r.Actions[i]
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		a.RuleID = r.ID
		a.Ordinal = i
		if _, err := tx.Exec(ctx,
			"INSERT INTO actions (id, rule_id, type, target, payload, ordinal) VALUES ($1, $2, $3, $4, $5, $6)",
			a.ID, a.RuleID, a.Type, a.Target, a.Payload, a.Ordinal); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// DeleteRule removes a rule; actions cascade in the schema.
func (d *DB) DeleteRule(ctx context.Context, id string) error {
	tag, err := d.pool.Exec(ctx, "DELETE FROM trigger_rules WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertAlertLog writes the audit row for one successful trigger.
func (d *DB) InsertAlertLog(ctx context.Context, a *models.AlertLog) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := d.pool.Exec(ctx,
		`INSERT INTO alert_logs (id, rule_id, farm_id, message, trigger_value, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.RuleID, a.FarmID, a.Message, a.TriggerValue, a.CreatedAt)
	return err
}

// AlertLogsByFarm lists a farm's alert history, newest first.
func (d *DB) AlertLogsByFarm(ctx context.Context, farmID string, limit int) ([]models.AlertLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := d.pool.Query(ctx,
		`SELECT id, rule_id, farm_id, message, trigger_value, created_at
		 FROM alert_logs WHERE farm_id = $1 ORDER BY created_at DESC LIMIT $2`,
		farmID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []models.AlertLog
	for rows.Next() {
		var a models.AlertLog
		if err := rows.Scan(&a.ID, &a.RuleID, &a.FarmID, &a.Message, &a.TriggerValue, &a.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, a)
	}
	return logs, rows.Err()
}
