package codec

import "github.com/sparkjsdev/spark"

// SHC0 is the degree-0 spherical harmonic basis constant used to convert
// between raw SH DC terms and displayable linear color (spec §4.5).
const SHC0 = 0.282094

// EncodeRGBLeaf quantizes a linear [0,1] color triple to 3 bytes (spec
// §4.1 "RGB (leaf)").
func EncodeRGBLeaf(c spark.Vec3) [3]byte {
	return [3]byte{
		quantizeUnit(c.X),
		quantizeUnit(c.Y),
		quantizeUnit(c.Z),
	}
}

// DecodeRGBLeaf expands a 3-byte leaf RGB triple back to linear [0,1].
func DecodeRGBLeaf(b [3]byte) spark.Vec3 {
	return spark.V3(
		float64(b[0])/255,
		float64(b[1])/255,
		float64(b[2])/255,
	)
}

// EncodeRGBSPZ quantizes a linear color triple through the SPZ SH-C0
// remap: `b = round(((c - 0.5) * 0.15 / SH_C0 + 0.5) * 255)` (spec §4.5).
func EncodeRGBSPZ(c spark.Vec3) [3]byte {
	remap := func(v float64) byte {
		return quantizeUnit((v-0.5)*0.15/SHC0 + 0.5)
	}
	return [3]byte{remap(c.X), remap(c.Y), remap(c.Z)}
}

// DecodeRGBSPZ inverts EncodeRGBSPZ: `c = (b/255 - 0.5) * (SH_C0/0.15) + 0.5`.
func DecodeRGBSPZ(b [3]byte) spark.Vec3 {
	remap := func(v byte) float64 {
		return (float64(v)/255-0.5)*(SHC0/0.15) + 0.5
	}
	return spark.V3(remap(b[0]), remap(b[1]), remap(b[2]))
}

func quantizeUnit(v float64) byte {
	return byte(fixedPointRound(spark.Clamp01(v) * 255))
}
