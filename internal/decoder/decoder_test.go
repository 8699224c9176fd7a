package decoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry() *Registry {
	return NewRegistry(zap.NewNop())
}

func TestSelectFamily(t *testing.T) {
	cases := []struct {
		vendor, model string
		want          Family
	}{
		{"Milesight", "EM300-TH", FamilyEM300},
		{"Milesight", "em500-co2", FamilyEM500},
		{"Milesight", "WS101", FamilyWS},
		{"Acme", "WeatherStation-2", FamilyWS},
		{"", "CayenneLPP", FamilyCayenne},
		{"", "lpp-node", FamilyCayenne},
		{"Milesight", "UC511", FamilyEM300}, // unmatched Milesight falls back to EM300
		{"Acme", "XYZ-9", FamilyGeneric},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, SelectFamily(c.vendor, c.model), "%s/%s", c.vendor, c.model)
	}
}

func TestMilesightTemperatureScaling(t *testing.T) {
	// channel 0x01, type 0x67, raw int16 LE 235 -> 23.5 degC
	out := newTestRegistry().Decode("Milesight", "EM300-TH", []byte{0x01, 0x67, 0xEB, 0x00}, 85)
	require.Contains(t, out, "temperature")
	assert.InDelta(t, 23.5, out["temperature"], 1e-9)
}

func TestMilesightNegativeTemperature(t *testing.T) {
	// raw int16 LE -105 -> -10.5 degC
	out := newTestRegistry().Decode("Milesight", "EM300-TH", []byte{0x01, 0x67, 0x97, 0xFF}, 85)
	assert.InDelta(t, -10.5, out["temperature"], 1e-9)
}

func TestMilesightFullFrame(t *testing.T) {
	payload := []byte{
		0x01, 0x75, 0x64, // battery 100%
		0x03, 0x67, 0xEB, 0x00, // temperature 23.5
		0x04, 0x68, 0x6E, // humidity 55.0
	}
	out := newTestRegistry().Decode("Milesight", "EM300-TH", payload, 85)
	assert.Equal(t, 100.0, out["battery"])
	assert.InDelta(t, 23.5, out["temperature"], 1e-9)
	assert.InDelta(t, 55.0, out["humidity"], 1e-9)
}

func TestMilesightResynchronization(t *testing.T) {
	// Unknown type 0xEE forces a one-byte resync; the temperature tag
	// behind it must still decode.
	payload := []byte{
		0x09, 0xEE,
		0x01, 0x67, 0xEB, 0x00,
	}
	out := newTestRegistry().Decode("Milesight", "EM300-TH", payload, 85)
	require.Contains(t, out, "temperature")
	assert.InDelta(t, 23.5, out["temperature"], 1e-9)
}

func TestMilesightTruncatedKeepsPartial(t *testing.T) {
	payload := []byte{
		0x01, 0x75, 0x5A, // battery 90%
		0x03, 0x67, 0xEB, // temperature payload cut short
	}
	out := newTestRegistry().Decode("Milesight", "EM300-TH", payload, 85)
	assert.Equal(t, map[string]float64{"battery": 90}, out)
}

func TestEM500CO2AndPressure(t *testing.T) {
	payload := []byte{
		0x05, 0x7D, 0x90, 0x01, // co2 400 ppm
		0x06, 0x73, 0x88, 0x27, // pressure 1012.0 hPa
	}
	out := newTestRegistry().Decode("Milesight", "EM500-CO2", payload, 85)
	assert.Equal(t, 400.0, out["co2"])
	assert.InDelta(t, 1012.0, out["pressure"], 1e-9)
}

func TestWSLightBlock(t *testing.T) {
	payload := []byte{
		0x02, 0x65,
		0x10, 0x27, // 10000 lux
		0xE8, 0x03, // visible+IR 1000
		0xF4, 0x01, // IR 500
	}
	out := newTestRegistry().Decode("Milesight", "WS302", payload, 85)
	assert.Equal(t, 10000.0, out["illumination"])
	assert.Equal(t, 1000.0, out["infrared_visible"])
	assert.Equal(t, 500.0, out["infrared"])
}

func TestCayenneBigEndianTemperature(t *testing.T) {
	// channel 3, temperature type 0x67, raw int16 BE 235 -> 23.5
	out := newTestRegistry().Decode("", "CayenneLPP", []byte{0x03, 0x67, 0x00, 0xEB}, 2)
	require.Contains(t, out, "temperature_3")
	assert.InDelta(t, 23.5, out["temperature_3"], 1e-9)
}

func TestCayenneGPS(t *testing.T) {
	// lat 42.3519, lon -87.9094, alt 10.00
	payload := []byte{
		0x01, 0x88,
		0x06, 0x76, 0x5F,
		0xF2, 0x96, 0x0A,
		0x00, 0x03, 0xE8,
	}
	out := newTestRegistry().Decode("", "CayenneLPP", payload, 2)
	assert.InDelta(t, 42.3519, out["gps_1_lat"], 1e-4)
	assert.InDelta(t, -87.9094, out["gps_1_lon"], 1e-4)
	assert.InDelta(t, 10.0, out["gps_1_alt"], 1e-9)
}

func TestJSONPassthrough(t *testing.T) {
	out := newTestRegistry().Decode("Acme", "XYZ-9", []byte(`{"t_air": 22.1, "hum": 55, "note": "ok", "valve_open": true}`), 1)
	assert.Equal(t, 22.1, out["t_air"])
	assert.Equal(t, 55.0, out["hum"])
	assert.Equal(t, 1.0, out["valve_open"])
	assert.NotContains(t, out, "note")
}

func TestGenericFallbackBattery(t *testing.T) {
	out := newTestRegistry().Decode("Acme", "XYZ-9", []byte{0x5F, 0xAA, 0xBB}, 1)
	assert.Equal(t, map[string]float64{"battery": 95}, out)

	// First byte above 100 is not a plausible battery reading.
	out = newTestRegistry().Decode("Acme", "XYZ-9", []byte{0xC8, 0xAA}, 1)
	assert.Empty(t, out)
}

func TestEmptyPayload(t *testing.T) {
	out := newTestRegistry().Decode("Milesight", "EM300-TH", nil, 85)
	assert.Empty(t, out)
}
