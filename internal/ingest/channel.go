package ingest

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"agrisense/internal/models"
)

// NormalizeSerial strips the formatting variants seen in device
// identifiers (colon/dash/space separators, mixed case) so that
// "AA:BB:CC:01" and "aabbcc01" resolve to the same device.
func NormalizeSerial(serial string) string {
	s := strings.ToLower(serial)
	return strings.Map(func(r rune) rune {
		switch r {
		case ':', '-', ' ':
			return -1
		}
		return r
	}, s)
}

func parseChannelTemplate(model *models.DeviceModel, log *zap.Logger) map[string]models.ChannelTemplate {
	if len(model.Channels) == 0 {
		return nil
	}
	var tpl map[string]models.ChannelTemplate
	if err := json.Unmarshal(model.Channels, &tpl); err != nil {
		log.Warn("malformed channel template on device model",
			zap.String("model", model.Name), zap.Error(err))
		return nil
	}
	return tpl
}

// resolveChannelMeta picks channel metadata for a first-seen code: the
// model template wins, otherwise the code substring heuristics below.
func resolveChannelMeta(code string, template map[string]models.ChannelTemplate) models.ChannelTemplate {
	if t, ok := template[code]; ok {
		return t
	}
	return inferChannelMeta(code)
}

func inferChannelMeta(code string) models.ChannelTemplate {
	c := strings.ToLower(code)
	switch {
	case strings.Contains(c, "temp") || strings.HasPrefix(c, "t_"):
		return models.ChannelTemplate{Name: "Temperature", Unit: "°C", Type: "temperature"}
	case strings.Contains(c, "hum") || strings.HasPrefix(c, "h_"):
		return models.ChannelTemplate{Name: "Humidity", Unit: "%", Type: "humidity"}
	case strings.Contains(c, "co2"):
		return models.ChannelTemplate{Name: "CO2", Unit: "ppm", Type: "co2"}
	case strings.Contains(c, "press") || strings.Contains(c, "baro"):
		return models.ChannelTemplate{Name: "Pressure", Unit: "hPa", Type: "pressure"}
	case strings.Contains(c, "batt"):
		return models.ChannelTemplate{Name: "Battery", Unit: "%", Type: "battery"}
	case strings.Contains(c, "moist") || strings.Contains(c, "soil"):
		return models.ChannelTemplate{Name: "Soil moisture", Unit: "%", Type: "moisture"}
	case strings.Contains(c, "wind") && strings.Contains(c, "dir"):
		return models.ChannelTemplate{Name: "Wind direction", Unit: "°", Type: "wind"}
	case strings.Contains(c, "wind"):
		return models.ChannelTemplate{Name: "Wind speed", Unit: "m/s", Type: "wind"}
	case strings.Contains(c, "rain"):
		return models.ChannelTemplate{Name: "Rainfall", Unit: "mm", Type: "rain"}
	case strings.Contains(c, "light") || strings.Contains(c, "illum") || strings.Contains(c, "lux"):
		return models.ChannelTemplate{Name: "Light", Unit: "lux", Type: "light"}
	case strings.Contains(c, "dist") || strings.Contains(c, "depth"):
		return models.ChannelTemplate{Name: "Distance", Unit: "mm", Type: "distance"}
	default:
		return models.ChannelTemplate{Name: code, Unit: "", Type: "generic"}
	}
}
