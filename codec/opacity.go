package codec

import "github.com/sparkjsdev/spark"

// OpacityRange bounds the u8 opacity encoding: [0,1] normally, [0,2] when
// the LoD extension's dilation term needs the extra headroom (spec §4.1,
// §6 "lod_opacity").
type OpacityRange struct {
	Max float64 // 1 or 2
}

// EncodeOpacity quantizes opacity over [0, r.Max] to a byte.
func EncodeOpacity(opacity float64, r OpacityRange) byte {
	v := spark.Clamp(opacity, 0, r.Max) / r.Max
	return byte(fixedPointRound(v*255) & 0xff)
}

// DecodeOpacity expands a quantized byte back to [0, r.Max].
func DecodeOpacity(b byte, r OpacityRange) float64 {
	return float64(b) / 255 * r.Max
}

// EncodeOpacitySPZ quantizes opacity over [0, 1] to a byte, the fixed SPZ
// convention independent of the lod_opacity flag (spec §4.5).
func EncodeOpacitySPZ(opacity float64) byte {
	return EncodeOpacity(opacity, OpacityRange{Max: 1})
}

// DecodeOpacitySPZ expands an SPZ-encoded opacity byte.
func DecodeOpacitySPZ(b byte) float64 {
	return DecodeOpacity(b, OpacityRange{Max: 1})
}
