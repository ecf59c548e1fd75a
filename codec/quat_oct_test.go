package codec

import (
	"math"
	"testing"

	"github.com/sparkjsdev/spark"
)

func angularDistance(a, b spark.Quat) float64 {
	dot := a.X*b.X + a.Y*b.Y + a.Z*b.Z + a.W*b.W
	if dot < 0 {
		dot = -dot
	}
	if dot > 1 {
		dot = 1
	}
	return 2 * math.Acos(dot)
}

func TestQuatOct888RoundTripAngular(t *testing.T) {
	q := spark.NewQuat(0.3, -0.4, 0.5, 0.7).Normalize()
	got := DecodeQuatOct888(EncodeQuatOct888(q))
	if angularDistance(q, got) > 0.01 {
		t.Fatalf("oct888 round trip of %v = %v, angular distance too large", q, got)
	}
}

func TestQuatOct888EncodeDecodeIsStable(t *testing.T) {
	q := spark.NewQuat(0.3, -0.4, 0.5, 0.7).Normalize()
	bytes1 := EncodeQuatOct888(DecodeQuatOct888(EncodeQuatOct888(q)))
	bytes2 := EncodeQuatOct888(DecodeQuatOct888(bytes1))
	if bytes1 != bytes2 {
		t.Fatalf("encode(decode(x)) not stable under a second round trip: %v vs %v", bytes1, bytes2)
	}
}

func TestQuatOct888AlwaysEmitsNonNegativeW(t *testing.T) {
	q := spark.NewQuat(0.1, 0.2, 0.3, -0.9).Normalize()
	got := DecodeQuatOct888(EncodeQuatOct888(q))
	if got.W < 0 {
		t.Fatalf("decoded quaternion has negative w: %v", got)
	}
}

func TestQuatOct101012RoundTripAngular(t *testing.T) {
	q := spark.NewQuat(0.1, 0.2, 0.3, 0.9).Normalize()
	enc := EncodeQuatOct101012(nil, q)
	var buf [4]byte
	copy(buf[:], enc)
	got := DecodeQuatOct101012(buf)
	if angularDistance(q, got) > 0.002 {
		t.Fatalf("oct101012 round trip of %v = %v, angular distance %v too large", q, got, angularDistance(q, got))
	}
}

func TestQuatOct101012MorePreciseThan888(t *testing.T) {
	q := spark.NewQuat(0.12, 0.34, 0.56, 0.74).Normalize()
	got888 := DecodeQuatOct888(EncodeQuatOct888(q))
	var buf [4]byte
	copy(buf[:], EncodeQuatOct101012(nil, q))
	got101012 := DecodeQuatOct101012(buf)
	if angularDistance(q, got101012) > angularDistance(q, got888) {
		t.Fatalf("oct101012 (%v) should be at least as precise as oct888 (%v)",
			angularDistance(q, got101012), angularDistance(q, got888))
	}
}
