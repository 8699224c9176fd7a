package models

import "fmt"

// Condition is the comparison a trigger rule applies to a reading.
type Condition string

const (
	CondGreaterThan Condition = "GREATER_THAN"
	CondLessThan    Condition = "LESS_THAN"
	CondEquals      Condition = "EQUALS"
	CondBetween     Condition = "BETWEEN"
)

// Valid returns true when the condition is supported.
func (c Condition) Valid() bool {
	switch c {
	case CondGreaterThan, CondLessThan, CondEquals, CondBetween:
		return true
	default:
		return false
	}
}

// ParseCondition resolves a stored condition tag once at load time so
// that bad configuration fails fast instead of silently never matching.
func ParseCondition(s string) (Condition, error) {
	c := Condition(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown condition %q", s)
	}
	return c, nil
}

// ActionType is the kind of side effect a rule action performs.
type ActionType string

const (
	ActionSMS           ActionType = "SMS"
	ActionEmail         ActionType = "EMAIL"
	ActionNotification  ActionType = "NOTIFICATION"
	ActionControlDevice ActionType = "CONTROL_DEVICE"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionSMS, ActionEmail, ActionNotification, ActionControlDevice:
		return true
	default:
		return false
	}
}

// AuthStrategy is the sealed set of provider authentication schemes.
type AuthStrategy string

const (
	AuthBasic         AuthStrategy = "basic"
	AuthBearer        AuthStrategy = "bearer"
	AuthAPIKeyHeader  AuthStrategy = "api_key_header"
	AuthCustomHeaders AuthStrategy = "custom_headers"
)

func (a AuthStrategy) Valid() bool {
	switch a {
	case AuthBasic, AuthBearer, AuthAPIKeyHeader, AuthCustomHeaders:
		return true
	default:
		return false
	}
}

// PayloadEncoding is how a provider request body is encoded.
type PayloadEncoding string

const (
	EncodingJSON PayloadEncoding = "json"
	EncodingForm PayloadEncoding = "form"
)

func (e PayloadEncoding) Valid() bool {
	return e == EncodingJSON || e == EncodingForm
}

// DownlinkStatus is the delivery state of an outbound command.
type DownlinkStatus string

const (
	DownlinkPending DownlinkStatus = "pending"
	DownlinkSent    DownlinkStatus = "sent"
	DownlinkFailed  DownlinkStatus = "failed"
)

// TriggeredBy records what initiated a downlink.
type TriggeredBy string

const (
	TriggeredByRule   TriggeredBy = "RULE"
	TriggeredByManual TriggeredBy = "MANUAL"
)

// DeviceStatus values used for liveness tracking.
const (
	DeviceOnline  = "online"
	DeviceOffline = "offline"
)
