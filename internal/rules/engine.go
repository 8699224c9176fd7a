// Package rules holds the single rule-evaluation core. Two trigger
// sources feed it: the ingestion pipeline (push, scoped to one device)
// and the periodic sweep (pull, all active rules). Both paths share one
// predicate and one cooldown store, so they cannot drift and cannot
// double-dispatch.
package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"agrisense/internal/db"
	"agrisense/internal/models"
)

// Store is the persisted-rule and latest-reading surface the engine
// reads, plus the alert audit trail it writes.
type Store interface {
	ActiveRulesForDevice(ctx context.Context, deviceID, farmID string) ([]models.TriggerRule, error)
	AllActiveRules(ctx context.Context) ([]models.TriggerRule, error)
	LatestValueByDeviceAndCode(ctx context.Context, deviceID, code string) (float64, error)
	LatestValueByFarmAndCode(ctx context.Context, farmID, code string) (float64, error)
	InsertAlertLog(ctx context.Context, a *models.AlertLog) error
}

// Dispatcher hands a triggered rule's actions off the hot path.
type Dispatcher interface {
	EnqueueDispatch(ctx context.Context, req DispatchRequest) error
}

// DispatchRequest is everything the action worker needs.
type DispatchRequest struct {
	RuleID   string  `json:"rule_id"`
	RuleName string  `json:"rule_name"`
	FarmID   string  `json:"farm_id"`
	Value    float64 `json:"value"`
	Message  string  `json:"message"`
}

// Engine evaluates trigger rules against latest readings.
type Engine struct {
	store      Store
	cooldowns  CooldownStore
	dispatcher Dispatcher
	log        *zap.Logger
}

// NewEngine creates the evaluation core.
func NewEngine(store Store, cooldowns CooldownStore, dispatcher Dispatcher, log *zap.Logger) *Engine {
	return &Engine{store: store, cooldowns: cooldowns, dispatcher: dispatcher, log: log}
}

// EvaluateDevice is the push path, invoked after each ingest batch. It
// covers the device's own rules and its farm's device-unbound rules.
func (e *Engine) EvaluateDevice(ctx context.Context, deviceID, farmID string) error {
	ruleSet, err := e.store.ActiveRulesForDevice(ctx, deviceID, farmID)
	if err != nil {
		return fmt.Errorf("load rules for device %s: %w", deviceID, err)
	}
	for i := range ruleSet {
		e.evaluateRule(ctx, &ruleSet[i])
	}
	return nil
}

// Sweep is the pull path, run on a timer over all active rules.
func (e *Engine) Sweep(ctx context.Context) {
	ruleSet, err := e.store.AllActiveRules(ctx)
	if err != nil {
		e.log.Error("rule sweep: loading rules failed", zap.Error(err))
		return
	}
	for i := range ruleSet {
		e.evaluateRule(ctx, &ruleSet[i])
	}
}

// evaluateRule runs one rule against its bound channel's latest
// reading. Per-rule failures are contained here: one bad rule never
// stops its siblings.
func (e *Engine) evaluateRule(ctx context.Context, rule *models.TriggerRule) {
	var (
		value float64
		err   error
	)
	if rule.DeviceID != nil {
		value, err = e.store.LatestValueByDeviceAndCode(ctx, *rule.DeviceID, rule.SensorCode)
	} else {
		value, err = e.store.LatestValueByFarmAndCode(ctx, rule.FarmID, rule.SensorCode)
	}
	if errors.Is(err, db.ErrNotFound) {
		// No channel with this code, or no readings yet. Not an error:
		// the rule may simply predate its sensor's first uplink.
		return
	}
	if err != nil {
		e.log.Error("rule evaluation: reading lookup failed",
			zap.String("rule_id", rule.ID), zap.Error(err))
		return
	}

	hit, err := Predicate(rule.Condition, value, rule.Threshold, rule.Threshold2)
	if err != nil {
		e.log.Warn("rule evaluation: predicate not evaluable",
			zap.String("rule_id", rule.ID),
			zap.String("condition", string(rule.Condition)),
			zap.Error(err))
		return
	}
	if !hit {
		return
	}

	window := time.Duration(rule.CoolDownMinutes) * time.Minute
	acquired, err := e.cooldowns.TryAcquire(ctx, rule.ID, window)
	if err != nil {
		e.log.Error("rule evaluation: cooldown store failed",
			zap.String("rule_id", rule.ID), zap.Error(err))
		return
	}
	if !acquired {
		return
	}

	msg := fmt.Sprintf("Rule %q triggered: %s = %.2f", rule.Name, rule.SensorCode, value)
	if err := e.store.InsertAlertLog(ctx, &models.AlertLog{
		RuleID:       rule.ID,
		FarmID:       rule.FarmID,
		Message:      msg,
		TriggerValue: value,
	}); err != nil {
		e.log.Error("rule trigger: alert log write failed",
			zap.String("rule_id", rule.ID), zap.Error(err))
	}

	if err := e.dispatcher.EnqueueDispatch(ctx, DispatchRequest{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		FarmID:   rule.FarmID,
		Value:    value,
		Message:  msg,
	}); err != nil {
		e.log.Error("rule trigger: dispatch enqueue failed",
			zap.String("rule_id", rule.ID), zap.Error(err))
	}

	e.log.Info("rule triggered",
		zap.String("rule_id", rule.ID),
		zap.String("rule", rule.Name),
		zap.Float64("value", value))
}
