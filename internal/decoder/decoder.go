// Package decoder turns vendor binary uplink payloads into flat
// code→value measurement maps. Decoding is best-effort by contract:
// malformed input degrades to a partial (possibly empty) result and a
// log line, never an error.
package decoder

import (
	"strings"

	"go.uber.org/zap"
)

// Family is the binary tag-table variant used for a payload.
type Family string

const (
	FamilyEM300   Family = "em300"
	FamilyEM500   Family = "em500"
	FamilyWS      Family = "ws"
	FamilyCayenne Family = "cayenne"
	FamilyGeneric Family = "generic"
)

// Registry selects a decoder family per device model and runs it.
type Registry struct {
	log *zap.Logger
}

// NewRegistry creates a decoder registry.
func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{log: log}
}

// SelectFamily resolves the decoder family for a device once, from
// vendor and model metadata. Matching is by case-insensitive prefix.
func SelectFamily(vendor, model string) Family {
	m := strings.ToUpper(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "EM300"):
		return FamilyEM300
	case strings.HasPrefix(m, "EM500"):
		return FamilyEM500
	case strings.HasPrefix(m, "WS"), strings.HasPrefix(m, "WEATHER"):
		return FamilyWS
	case strings.HasPrefix(m, "CAYENNE"), strings.HasPrefix(m, "LPP"):
		return FamilyCayenne
	}
	// Unmatched Milesight models read like EM300 payloads more often
	// than not; everything else gets the generic fallback.
	if strings.EqualFold(strings.TrimSpace(vendor), "milesight") {
		return FamilyEM300
	}
	return FamilyGeneric
}

// Decode runs the family decoder for the given model over raw payload
// bytes. A payload that opens a JSON object is passed through as-is
// regardless of family.
func (r *Registry) Decode(vendor, model string, data []byte, port int) map[string]float64 {
	if len(data) == 0 {
		return map[string]float64{}
	}
	if data[0] == '{' {
		if out, ok := r.decodeJSON(data); ok {
			return out
		}
	}

	switch SelectFamily(vendor, model) {
	case FamilyEM300:
		return r.walkMilesight(em300Tags, data)
	case FamilyEM500:
		return r.walkMilesight(em500Tags, data)
	case FamilyWS:
		return r.walkMilesight(wsTags, data)
	case FamilyCayenne:
		return r.decodeCayenne(data)
	default:
		return r.decodeGeneric(data, port)
	}
}
