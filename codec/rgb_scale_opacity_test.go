package codec

import (
	"math"
	"testing"

	"github.com/sparkjsdev/spark"
)

func TestRGBLeafRoundTrip(t *testing.T) {
	c := spark.V3(0.25, 0.6, 0.9)
	got := DecodeRGBLeaf(EncodeRGBLeaf(c))
	if math.Abs(got.X-c.X) > 3e-3 || math.Abs(got.Y-c.Y) > 3e-3 || math.Abs(got.Z-c.Z) > 3e-3 {
		t.Fatalf("RGB leaf round trip %v -> %v too far off", c, got)
	}
}

func TestRGBSPZRoundTrip(t *testing.T) {
	c := spark.V3(0.25, 0.6, 0.9)
	got := DecodeRGBSPZ(EncodeRGBSPZ(c))
	if math.Abs(got.X-c.X) > 3e-3 || math.Abs(got.Y-c.Y) > 3e-3 || math.Abs(got.Z-c.Z) > 3e-3 {
		t.Fatalf("RGB SPZ round trip %v -> %v too far off", c, got)
	}
}

func TestScaleByteRoundTrip(t *testing.T) {
	for _, s := range []float64{0.7, 0.8, 0.9, 1e-5, 1000} {
		got := DecodeScaleByte(EncodeScaleByte(s, -12, 9), -12, 9)
		if math.Abs(math.Log(got)-math.Log(s)) > 0.05 {
			t.Fatalf("scale byte round trip of %v = %v, too far off in log space", s, got)
		}
	}
}

func TestScaleByteZeroSentinel(t *testing.T) {
	if EncodeScaleByte(0, -12, 9) != 0 {
		t.Fatalf("EncodeScaleByte(0) should be the zero sentinel")
	}
	if DecodeScaleByte(0, -12, 9) != 0 {
		t.Fatalf("DecodeScaleByte(0) should be exactly 0")
	}
}

func TestScaleByteSPZRoundTrip(t *testing.T) {
	for _, s := range []float64{0.7, 0.8, 0.9} {
		got := DecodeScaleByteSPZ(EncodeScaleByteSPZ(s))
		if math.Abs(math.Log(got)-math.Log(s)) > 0.05 {
			t.Fatalf("SPZ scale byte round trip of %v = %v, too far off", s, got)
		}
	}
}

func TestOpacityRoundTrip(t *testing.T) {
	got := DecodeOpacity(EncodeOpacity(0.73, OpacityRange{Max: 1}), OpacityRange{Max: 1})
	if math.Abs(got-0.73) > 3e-3 {
		t.Fatalf("opacity round trip of 0.73 = %v, too far off", got)
	}
}

func TestOpacityLodRange(t *testing.T) {
	got := DecodeOpacity(EncodeOpacity(1.5, OpacityRange{Max: 2}), OpacityRange{Max: 2})
	if math.Abs(got-1.5) > 0.01 {
		t.Fatalf("lod-range opacity round trip of 1.5 = %v, too far off", got)
	}
}
