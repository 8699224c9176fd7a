package decoder

import (
	"encoding/binary"
	"encoding/hex"

	"go.uber.org/zap"
)

// milesightTag describes one (channel, type) entry in a Milesight-style
// little-endian TLV stream: a fixed payload width and an emit function.
type milesightTag struct {
	size int
	emit func(dst map[string]float64, b []byte)
}

func u16le(b []byte) float64 { return float64(binary.LittleEndian.Uint16(b)) }
func s16le(b []byte) float64 { return float64(int16(binary.LittleEndian.Uint16(b))) }
func u32le(b []byte) float64 { return float64(binary.LittleEndian.Uint32(b)) }

func scalar(name string, f func([]byte) float64) func(map[string]float64, []byte) {
	return func(dst map[string]float64, b []byte) { dst[name] = f(b) }
}

// Tag tables follow the Milesight payload documentation for the
// EM300/EM500/WS series. Scales are fixed per tag; temperature is
// signed 16-bit LE in 0.1 degC steps, humidity 0.5 %RH steps.
var em300Tags = map[byte]milesightTag{
	0x75: {1, scalar("battery", func(b []byte) float64 { return float64(b[0]) })},
	0x67: {2, scalar("temperature", func(b []byte) float64 { return s16le(b) / 10 })},
	0x68: {1, scalar("humidity", func(b []byte) float64 { return float64(b[0]) / 2 })},
	0x00: {1, scalar("magnet_status", func(b []byte) float64 { return float64(b[0]) })},
}

var em500Tags = map[byte]milesightTag{
	0x75: em300Tags[0x75],
	0x67: em300Tags[0x67],
	0x68: em300Tags[0x68],
	0x73: {2, scalar("pressure", func(b []byte) float64 { return u16le(b) / 10 })},
	0x7d: {2, scalar("co2", u16le)},
	0x77: {2, scalar("distance", u16le)},
	0x7b: {4, scalar("depth", func(b []byte) float64 { return u32le(b) / 1000 })},
	0x82: {2, scalar("moisture", func(b []byte) float64 { return u16le(b) / 2 })},
}

var wsTags = map[byte]milesightTag{
	0x75: em300Tags[0x75],
	0x67: em300Tags[0x67],
	0x68: em300Tags[0x68],
	0x73: em500Tags[0x73],
	0x91: {2, scalar("wind_direction", func(b []byte) float64 { return u16le(b) / 10 })},
	0x92: {2, scalar("wind_speed", func(b []byte) float64 { return u16le(b) / 10 })},
	0x94: {4, scalar("illumination", u32le)},
	0x98: {2, scalar("rainfall", func(b []byte) float64 { return u16le(b) / 10 })},
	0x65: {6, func(dst map[string]float64, b []byte) {
		// Light sensor block: lux, visible+IR raw, IR raw.
		dst["illumination"] = u16le(b[0:2])
		dst["infrared_visible"] = u16le(b[2:4])
		dst["infrared"] = u16le(b[4:6])
	}},
}

// walkMilesight walks (channel, type) headers followed by fixed-width
// payloads. An unknown type tag advances exactly one byte and retries:
// lossy resynchronization keeps the readable tail of a corrupted frame.
func (r *Registry) walkMilesight(tags map[byte]milesightTag, data []byte) map[string]float64 {
	out := make(map[string]float64)
	i := 0
	for i+2 <= len(data) {
		typ := data[i+1]
		tag, ok := tags[typ]
		if !ok {
			r.log.Debug("unknown milesight tag, resyncing",
				zap.Uint8("channel", data[i]),
				zap.Uint8("type", typ))
			i++
			continue
		}
		if i+2+tag.size > len(data) {
			r.log.Warn("truncated milesight payload, keeping partial result",
				zap.Uint8("type", typ),
				zap.String("payload", hex.EncodeToString(data)))
			return out
		}
		tag.emit(out, data[i+2:i+2+tag.size])
		i += 2 + tag.size
	}
	return out
}
