package models

import (
	"encoding/json"
	"time"
)

// Device is a provisioned LoRaWAN field device.
type Device struct {
	ID       string  `json:"id"`
	DevEUI   string  `json:"dev_eui"`
	Name     string  `json:"name"`
	ModelID  *string `json:"model_id"`
	FarmID   string  `json:"farm_id"`
	Status   string     `json:"status"`
	Battery  *float64   `json:"battery"`
	LastSeen *time.Time `json:"last_seen"`
}

// DeviceModel carries vendor metadata, including the channel template
// used when a new measurement code is first seen for a device.
type DeviceModel struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Vendor   string          `json:"vendor"`
	Channels json.RawMessage `json:"channels"` // map[code]ChannelTemplate
}

// ChannelTemplate describes one channel in a device model.
type ChannelTemplate struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
	Type string `json:"type"`
}

// MeasurementChannel is a named measurement stream on a device.
// Code is unique within its device.
type MeasurementChannel struct {
	ID       string `json:"id"`
	DeviceID string `json:"device_id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Unit     string `json:"unit"`
	Type     string `json:"type"`
}

// Reading is one timestamped sample of a channel. Append-only.
type Reading struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channel_id"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// TriggerRule is a threshold automation rule bound to a farm and
// optionally to a single device.
type TriggerRule struct {
	ID              string    `json:"id"`
	FarmID          string    `json:"farm_id"`
	DeviceID        *string   `json:"device_id"`
	Name            string    `json:"name"`
	SensorCode      string    `json:"sensor_code"`
	Condition       Condition `json:"condition"`
	Threshold       float64   `json:"threshold"`
	Threshold2      *float64  `json:"threshold2"`
	CoolDownMinutes int       `json:"cool_down_minutes"`
	IsActive        bool      `json:"is_active"`
	Actions         []Action  `json:"actions"`
}

// Action is one step executed when its rule triggers.
type Action struct {
	ID      string          `json:"id"`
	RuleID  string          `json:"rule_id"`
	Type    ActionType      `json:"type"`
	Target  string          `json:"target"`
	Payload json.RawMessage `json:"payload"`
	Ordinal int             `json:"ordinal"`
}

// ControlPayload is the structured payload of a CONTROL_DEVICE action.
type ControlPayload struct {
	HexData string `json:"hexData"`
	Port    int    `json:"port"`
	Name    string `json:"name"`
}

// AlertLog is the append-only audit row written once per rule trigger.
type AlertLog struct {
	ID           string    `json:"id"`
	RuleID       string    `json:"rule_id"`
	FarmID       string    `json:"farm_id"`
	Message      string    `json:"message"`
	TriggerValue float64   `json:"trigger_value"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProviderConfig describes one HTTP SMS gateway, tried in descending
// priority order. AuthConfig is encrypted at rest.
type ProviderConfig struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Priority       int             `json:"priority"`
	BaseURL        string          `json:"base_url"`
	Method         string          `json:"method"`
	Encoding       PayloadEncoding `json:"encoding"`
	AuthStrategy   AuthStrategy    `json:"auth_strategy"`
	AuthConfig     []byte          `json:"-"`
	FieldMap       FieldMap        `json:"field_map"`
	SuccessPattern string          `json:"success_pattern"`
	ErrorPattern   string          `json:"error_pattern"`
	IsActive       bool            `json:"is_active"`
}

// FieldMap translates logical notification fields to provider keys.
type FieldMap struct {
	Recipient string `json:"recipient"`
	Message   string `json:"message"`
	Sender    string `json:"sender"`
	MessageID string `json:"message_id"`
}

// NotificationAttempt records one provider call, success or failure.
type NotificationAttempt struct {
	ID         string    `json:"id"`
	ProviderID string    `json:"provider_id"`
	Provider   string    `json:"provider"`
	Recipient  string    `json:"recipient"`
	Body       string    `json:"body"`
	Status     string    `json:"status"` // sent | failed
	Error      string    `json:"error"`
	CreatedAt  time.Time `json:"created_at"`
}

// DownlinkLog is one row per outbound command attempt.
type DownlinkLog struct {
	ID          string         `json:"id"`
	DeviceID    string         `json:"device_id"`
	CommandName string         `json:"command_name"`
	HexData     string         `json:"hex_data"`
	Port        int            `json:"port"`
	Status      DownlinkStatus `json:"status"`
	Error       string         `json:"error"`
	TriggeredBy TriggeredBy    `json:"triggered_by"`
	RuleID      *string        `json:"rule_id"`
	CreatedAt   time.Time      `json:"created_at"`
}
