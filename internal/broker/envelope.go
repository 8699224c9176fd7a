package broker

import (
	"encoding/json"
	"errors"
	"fmt"
)

var errNoDevEUI = errors.New("uplink carries no devEui")

// uplink is the decoded network-server event after envelope parsing.
type uplink struct {
	DevEUI     string
	DeviceName string
	Data       []byte
	FPort      int
	Object     map[string]float64
}

// rawUplink covers both ChirpStack v4 (deviceInfo block) and v3
// (top-level devEUI) event shapes.
type rawUplink struct {
	DeviceInfo struct {
		DevEUI     string `json:"devEui"`
		DeviceName string `json:"deviceName"`
	} `json:"deviceInfo"`
	DevEUI string          `json:"devEUI"`
	Data   []byte          `json:"data"` // base64 in JSON, decoded by encoding/json
	FPort  int             `json:"fPort"`
	Object json.RawMessage `json:"object"`
}

func parseUplink(payload []byte) (*uplink, error) {
	var raw rawUplink
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal uplink event: %w", err)
	}

	env := &uplink{
		DevEUI:     raw.DeviceInfo.DevEUI,
		DeviceName: raw.DeviceInfo.DeviceName,
		Data:       raw.Data,
		FPort:      raw.FPort,
	}
	if env.DevEUI == "" {
		env.DevEUI = raw.DevEUI
	}
	if env.DevEUI == "" {
		return nil, errNoDevEUI
	}

	if len(raw.Object) > 0 {
		env.Object = flattenObject(raw.Object)
	}
	return env, nil
}

// flattenObject keeps the numeric and boolean top-level fields of a
// server-side decoded object. Nested structures and strings are
// dropped; they have no reading representation.
func flattenObject(raw json.RawMessage) map[string]float64 {
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil
	}
	out := make(map[string]float64, len(obj))
	for k, v := range obj {
		switch t := v.(type) {
		case float64:
			out[k] = t
		case bool:
			if t {
				out[k] = 1
			} else {
				out[k] = 0
			}
		}
	}
	return out
}
