package decoder

import (
	"encoding/hex"
	"encoding/json"

	"go.uber.org/zap"
)

// decodeJSON passes through a payload that is already a JSON object,
// keeping only top-level numeric fields.
func (r *Registry) decodeJSON(data []byte) (map[string]float64, bool) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		r.log.Debug("payload opens like JSON but does not parse", zap.Error(err))
		return nil, false
	}
	out := make(map[string]float64)
	for k, v := range raw {
		switch n := v.(type) {
		case float64:
			out[k] = n
		case bool:
			if n {
				out[k] = 1
			} else {
				out[k] = 0
			}
		}
	}
	return out, true
}

// decodeGeneric is the last-resort decoder for unknown families: it
// extracts a plausible battery percentage from the first byte and dumps
// the raw frame for diagnostics.
func (r *Registry) decodeGeneric(data []byte, port int) map[string]float64 {
	out := make(map[string]float64)
	if len(data) > 0 && data[0] <= 100 {
		out["battery"] = float64(data[0])
	}
	r.log.Info("generic decoder used",
		zap.Int("port", port),
		zap.String("raw", hex.EncodeToString(data)))
	return out
}
