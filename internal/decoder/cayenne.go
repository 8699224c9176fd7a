package decoder

import (
	"encoding/binary"
	"fmt"

	"go.uber.org/zap"
)

type cayenneTag struct {
	name string
	size int
	emit func(dst map[string]float64, key string, b []byte)
}

func u16be(b []byte) float64 { return float64(binary.BigEndian.Uint16(b)) }
func s16be(b []byte) float64 { return float64(int16(binary.BigEndian.Uint16(b))) }

// s24be reads a signed 24-bit big-endian integer.
func s24be(b []byte) float64 {
	v := int32(b[0])<<16 | int32(b[1])<<8 | int32(b[2])
	if v&0x800000 != 0 {
		v -= 0x1000000
	}
	return float64(v)
}

func cayenneScalar(scale float64, f func([]byte) float64) func(map[string]float64, string, []byte) {
	return func(dst map[string]float64, key string, b []byte) { dst[key] = f(b) / scale }
}

// Cayenne LPP tag table. All multi-byte fields are big-endian, unlike
// the Milesight families.
var cayenneTags = map[byte]cayenneTag{
	0x00: {"digital_in", 1, cayenneScalar(1, func(b []byte) float64 { return float64(b[0]) })},
	0x01: {"digital_out", 1, cayenneScalar(1, func(b []byte) float64 { return float64(b[0]) })},
	0x02: {"analog_in", 2, cayenneScalar(100, s16be)},
	0x03: {"analog_out", 2, cayenneScalar(100, s16be)},
	0x65: {"illuminance", 2, cayenneScalar(1, u16be)},
	0x66: {"presence", 1, cayenneScalar(1, func(b []byte) float64 { return float64(b[0]) })},
	0x67: {"temperature", 2, cayenneScalar(10, s16be)},
	0x68: {"humidity", 1, cayenneScalar(2, func(b []byte) float64 { return float64(b[0]) })},
	0x73: {"barometer", 2, cayenneScalar(10, u16be)},
	0x71: {"accelerometer", 6, func(dst map[string]float64, key string, b []byte) {
		dst[key+"_x"] = s16be(b[0:2]) / 1000
		dst[key+"_y"] = s16be(b[2:4]) / 1000
		dst[key+"_z"] = s16be(b[4:6]) / 1000
	}},
	0x86: {"gyrometer", 6, func(dst map[string]float64, key string, b []byte) {
		dst[key+"_x"] = s16be(b[0:2]) / 100
		dst[key+"_y"] = s16be(b[2:4]) / 100
		dst[key+"_z"] = s16be(b[4:6]) / 100
	}},
	0x88: {"gps", 9, func(dst map[string]float64, key string, b []byte) {
		dst[key+"_lat"] = s24be(b[0:3]) / 10000
		dst[key+"_lon"] = s24be(b[3:6]) / 10000
		dst[key+"_alt"] = s24be(b[6:9]) / 100
	}},
}

// decodeCayenne walks (channel, type) headers in Cayenne LPP format.
// Keys are suffixed with the channel number so duplicate sensor types
// on one device stay distinct.
func (r *Registry) decodeCayenne(data []byte) map[string]float64 {
	out := make(map[string]float64)
	i := 0
	for i+2 <= len(data) {
		channel := data[i]
		tag, ok := cayenneTags[data[i+1]]
		if !ok {
			r.log.Debug("unknown cayenne tag, resyncing",
				zap.Uint8("channel", channel),
				zap.Uint8("type", data[i+1]))
			i++
			continue
		}
		if i+2+tag.size > len(data) {
			r.log.Warn("truncated cayenne payload, keeping partial result",
				zap.String("tag", tag.name))
			return out
		}
		tag.emit(out, fmt.Sprintf("%s_%d", tag.name, channel), data[i+2:i+2+tag.size])
		i += 2 + tag.size
	}
	return out
}
