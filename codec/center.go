package codec

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/sparkjsdev/spark"
)

// CenterF16Size is the encoded size of a half-float center (3x f16).
const CenterF16Size = 6

// EncodeCenterF16 appends a half-float-encoded center to dst.
func EncodeCenterF16(dst []byte, c spark.Vec3) []byte {
	var buf [CenterF16Size]byte
	binary.LittleEndian.PutUint16(buf[0:2], float64ToF16(c.X))
	binary.LittleEndian.PutUint16(buf[2:4], float64ToF16(c.Y))
	binary.LittleEndian.PutUint16(buf[4:6], float64ToF16(c.Z))
	return append(dst, buf[:]...)
}

// DecodeCenterF16 reads a half-float-encoded center from the front of b.
func DecodeCenterF16(b []byte) (spark.Vec3, error) {
	if len(b) < CenterF16Size {
		return spark.Vec3{}, errors.Wrap(spark.ErrMalformed, "codec: truncated f16 center")
	}
	return spark.V3(
		f16ToFloat64(binary.LittleEndian.Uint16(b[0:2])),
		f16ToFloat64(binary.LittleEndian.Uint16(b[2:4])),
		f16ToFloat64(binary.LittleEndian.Uint16(b[4:6])),
	), nil
}

// CenterI24Size is the encoded size of a signed 24-bit fixed-point center.
const CenterI24Size = 9

// EncodeCenterI24 appends a 3x signed-24-bit fixed-point center to dst,
// with `value = round(component * 2^frac)` per axis (spec §4.1).
func EncodeCenterI24(dst []byte, c spark.Vec3, frac uint8) []byte {
	scale := float64(uint32(1) << frac)
	var buf [CenterI24Size]byte
	putI24(buf[0:3], fixedPointRound(c.X*scale))
	putI24(buf[3:6], fixedPointRound(c.Y*scale))
	putI24(buf[6:9], fixedPointRound(c.Z*scale))
	return append(dst, buf[:]...)
}

// DecodeCenterI24 reads a 3x signed-24-bit fixed-point center from the
// front of b, inverting EncodeCenterI24.
func DecodeCenterI24(b []byte, frac uint8) (spark.Vec3, error) {
	if len(b) < CenterI24Size {
		return spark.Vec3{}, errors.Wrap(spark.ErrMalformed, "codec: truncated i24 center")
	}
	scale := float64(uint32(1) << frac)
	return spark.V3(
		float64(getI24(b[0:3]))/scale,
		float64(getI24(b[3:6]))/scale,
		float64(getI24(b[6:9]))/scale,
	), nil
}

func fixedPointRound(v float64) int32 {
	if v >= 0 {
		return int32(v + 0.5)
	}
	return int32(v - 0.5)
}

func putI24(b []byte, v int32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

func getI24(b []byte) int32 {
	u := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	// Sign-extend bit 23.
	if u&0x800000 != 0 {
		u |= 0xff000000
	}
	return int32(u)
}
