package codec

import (
	"encoding/binary"
	"math"

	"github.com/sparkjsdev/spark"
)

// octSign returns -1 or 1, treating zero as positive, matching the
// octahedral-fold convention of always picking a definite octant (spec
// §4.1 "oct888").
func octSign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// foldOctant maps an L1-normalized axis (p.x, p.y, p.z) with p.z < 0 into
// the equivalent point on the positive-z octahedron face, via the signed
// "(1-|b|)*sign(a), (1-|a|)*sign(b)" transform (spec §4.1).
func foldOctant(px, py float64) (fx, fy float64) {
	fx = (1 - math.Abs(py)) * octSign(px)
	fy = (1 - math.Abs(px)) * octSign(py)
	return fx, fy
}

// EncodeQuatOct888 encodes a unit quaternion as 2 octahedral-axis bytes
// plus 1 half-angle byte, always emitting a non-negative w (spec §4.1).
func EncodeQuatOct888(q spark.Quat) [3]byte {
	if q.W < 0 {
		q = q.Neg()
	}
	theta := 2 * math.Acos(spark.Clamp(q.W, 0, 1))
	s := math.Sin(theta / 2)
	var axis spark.Vec3
	if s > 1e-12 {
		axis = spark.V3(q.X/s, q.Y/s, q.Z/s)
	} else {
		axis = spark.V3(0, 0, 1)
	}
	p := axis.L1Normalize()
	px, py := p.X, p.Y
	if p.Z < 0 {
		px, py = foldOctant(px, py)
	}
	return [3]byte{
		quantizeSigned(px),
		quantizeSigned(py),
		quantizeUnit(theta / math.Pi),
	}
}

// DecodeQuatOct888 inverts EncodeQuatOct888.
func DecodeQuatOct888(b [3]byte) spark.Quat {
	px := unquantizeSigned(b[0])
	py := unquantizeSigned(b[1])
	pz := 1 - math.Abs(px) - math.Abs(py)
	// A negative pz marks a point EncodeQuatOct888 folded from the
	// negative-z half; foldOctant is its own inverse there, so unfold it.
	if pz < 0 {
		px, py = foldOctant(px, py)
	}
	axis := spark.V3(px, py, pz).Normalize()
	theta := float64(b[2]) / 255 * math.Pi
	half := theta / 2
	s := math.Sin(half)
	return spark.Quat{
		X: axis.X * s,
		Y: axis.Y * s,
		Z: axis.Z * s,
		W: math.Cos(half),
	}.Normalize()
}

func quantizeSigned(v float64) byte {
	v = spark.Clamp(v, -1, 1)
	return byte(fixedPointRound((v + 1) / 2 * 255))
}

func unquantizeSigned(b byte) float64 {
	return float64(b)/255*2 - 1
}

// quatOct101012Bits packs the same octahedral+angle representation into a
// single u32 at 10/10/12-bit precision, the higher-precision variant (spec
// §4.1 "oct101012").
func quatOct101012Bits(q spark.Quat) uint32 {
	if q.W < 0 {
		q = q.Neg()
	}
	theta := 2 * math.Acos(spark.Clamp(q.W, 0, 1))
	s := math.Sin(theta / 2)
	var axis spark.Vec3
	if s > 1e-12 {
		axis = spark.V3(q.X/s, q.Y/s, q.Z/s)
	} else {
		axis = spark.V3(0, 0, 1)
	}
	p := axis.L1Normalize()
	px, py := p.X, p.Y
	if p.Z < 0 {
		px, py = foldOctant(px, py)
	}
	qx := quantizeSignedBits(px, 10)
	qy := quantizeSignedBits(py, 10)
	qt := quantizeUnitBits(theta/math.Pi, 12)
	return qx | (qy << 10) | (qt << 20)
}

func quatOct101012FromBits(bits uint32) spark.Quat {
	qx := bits & 0x3ff
	qy := (bits >> 10) & 0x3ff
	qt := (bits >> 20) & 0xfff
	px := unquantizeSignedBits(qx, 10)
	py := unquantizeSignedBits(qy, 10)
	pz := 1 - math.Abs(px) - math.Abs(py)
	if pz < 0 {
		px, py = foldOctant(px, py)
	}
	axis := spark.V3(px, py, pz).Normalize()
	theta := unquantizeUnitBits(qt, 12) * math.Pi
	half := theta / 2
	s := math.Sin(half)
	return spark.Quat{
		X: axis.X * s,
		Y: axis.Y * s,
		Z: axis.Z * s,
		W: math.Cos(half),
	}.Normalize()
}

// EncodeQuatOct101012 appends the little-endian 4-byte packed form to dst.
func EncodeQuatOct101012(dst []byte, q spark.Quat) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], quatOct101012Bits(q))
	return append(dst, buf[:]...)
}

// DecodeQuatOct101012 reads the little-endian 4-byte packed form from b.
func DecodeQuatOct101012(b [4]byte) spark.Quat {
	return quatOct101012FromBits(binary.LittleEndian.Uint32(b[:]))
}

func quantizeSignedBits(v float64, bits uint) uint32 {
	v = spark.Clamp(v, -1, 1)
	max := float64(uint32(1)<<bits) - 1
	return uint32(fixedPointRound((v+1)/2*max)) & ((1 << bits) - 1)
}

func unquantizeSignedBits(q uint32, bits uint) float64 {
	max := float64(uint32(1)<<bits) - 1
	return float64(q)/max*2 - 1
}

func quantizeUnitBits(v float64, bits uint) uint32 {
	v = spark.Clamp01(v)
	max := float64(uint32(1)<<bits) - 1
	return uint32(fixedPointRound(v*max)) & ((1 << bits) - 1)
}

func unquantizeUnitBits(q uint32, bits uint) float64 {
	max := float64(uint32(1)<<bits) - 1
	return float64(q) / max
}
