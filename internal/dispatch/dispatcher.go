// Package dispatch executes the action list of a triggered rule.
// Every action is best-effort: one failure is logged and never stops
// the actions behind it.
package dispatch

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"agrisense/internal/downlink"
	"agrisense/internal/models"
	"agrisense/internal/notify"
	"agrisense/internal/rules"
)

// ActionSource loads a rule's actions in execution order.
type ActionSource interface {
	ActionsForRule(ctx context.Context, ruleID string) ([]models.Action, error)
}

// SMSSender is the notification provider chain.
type SMSSender interface {
	Send(ctx context.Context, to, message, senderID string) (*notify.SendResult, error)
}

// Mailer delivers email actions.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Downlinker queues device commands.
type Downlinker interface {
	Send(ctx context.Context, deviceID, hexData string, port int, commandName string, triggeredBy models.TriggeredBy, ruleID *string) (*downlink.Result, error)
}

// Dispatcher routes each action to its side-effect executor.
type Dispatcher struct {
	actions   ActionSource
	sms       SMSSender
	mailer    Mailer
	downlinks Downlinker
	senderID  string
	log       *zap.Logger
}

// NewDispatcher creates the action dispatcher.
func NewDispatcher(actions ActionSource, sms SMSSender, mailer Mailer, downlinks Downlinker, senderID string, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		actions:   actions,
		sms:       sms,
		mailer:    mailer,
		downlinks: downlinks,
		senderID:  senderID,
		log:       log,
	}
}

// Dispatch runs all actions bound to the triggered rule, in order.
func (d *Dispatcher) Dispatch(ctx context.Context, req rules.DispatchRequest) {
	actions, err := d.actions.ActionsForRule(ctx, req.RuleID)
	if err != nil {
		d.log.Error("loading actions failed",
			zap.String("rule_id", req.RuleID), zap.Error(err))
		return
	}

	for i := range actions {
		d.runAction(ctx, &actions[i], &req)
	}
}

func (d *Dispatcher) runAction(ctx context.Context, a *models.Action, req *rules.DispatchRequest) {
	fields := []zap.Field{
		zap.String("rule_id", req.RuleID),
		zap.String("action_id", a.ID),
		zap.String("type", string(a.Type)),
	}

	switch a.Type {
	case models.ActionSMS:
		res, err := d.sms.Send(ctx, a.Target, req.Message, d.senderID)
		if err != nil {
			d.log.Error("SMS action failed", append(fields, zap.Error(err))...)
			return
		}
		d.log.Info("SMS action sent", append(fields,
			zap.String("provider", res.Provider),
			zap.String("message_id", res.MessageID))...)

	case models.ActionEmail:
		if err := d.mailer.Send(ctx, a.Target, "Alert: "+req.RuleName, req.Message); err != nil {
			d.log.Error("email action failed", append(fields, zap.Error(err))...)
			return
		}
		d.log.Info("email action sent", fields...)

	case models.ActionNotification:
		// The alert log row was written when the rule triggered;
		// consumers poll it. Nothing to deliver here.
		d.log.Info("notification action recorded", fields...)

	case models.ActionControlDevice:
		d.runControl(ctx, a, req, fields)

	default:
		d.log.Warn("unknown action type, skipping", fields...)
	}
}

func (d *Dispatcher) runControl(ctx context.Context, a *models.Action, req *rules.DispatchRequest, fields []zap.Field) {
	var payload models.ControlPayload
	if err := json.Unmarshal(a.Payload, &payload); err != nil {
		d.log.Error("control action payload is malformed", append(fields, zap.Error(err))...)
		return
	}
	if payload.HexData == "" {
		d.log.Error("control action payload is missing hexData", fields...)
		return
	}
	if payload.Port <= 0 {
		payload.Port = 1
	}

	ruleID := req.RuleID
	res, err := d.downlinks.Send(ctx, a.Target, payload.HexData, payload.Port,
		payload.Name, models.TriggeredByRule, &ruleID)
	if err != nil {
		d.log.Error("control action failed", append(fields, zap.Error(err))...)
		return
	}
	d.log.Info("control action queued", append(fields, zap.String("log_id", res.LogID))...)
}
