package codec

import (
	"math"
	"testing"

	"github.com/sparkjsdev/spark"
)

func TestCenterF16RoundTrip(t *testing.T) {
	c := spark.V3(0.1, 0.2, 0.3)
	enc := EncodeCenterF16(nil, c)
	if len(enc) != CenterF16Size {
		t.Fatalf("encoded length = %d, want %d", len(enc), CenterF16Size)
	}
	dec, err := DecodeCenterF16(enc)
	if err != nil {
		t.Fatalf("DecodeCenterF16: %v", err)
	}
	if math.Abs(dec.X-c.X) > 1e-3 || math.Abs(dec.Y-c.Y) > 1e-3 || math.Abs(dec.Z-c.Z) > 1e-3 {
		t.Fatalf("round trip %v -> %v too far off", c, dec)
	}
}

func TestCenterI24RoundTrip(t *testing.T) {
	c := spark.V3(12.5, -7.25, 0.0)
	const frac = 12
	enc := EncodeCenterI24(nil, c, frac)
	if len(enc) != CenterI24Size {
		t.Fatalf("encoded length = %d, want %d", len(enc), CenterI24Size)
	}
	dec, err := DecodeCenterI24(enc, frac)
	if err != nil {
		t.Fatalf("DecodeCenterI24: %v", err)
	}
	tol := 1.0 / float64(int(1)<<frac)
	if math.Abs(dec.X-c.X) > tol || math.Abs(dec.Y-c.Y) > tol || math.Abs(dec.Z-c.Z) > tol {
		t.Fatalf("round trip %v -> %v too far off (tol %v)", c, dec, tol)
	}
}

func TestCenterI24NegativeSignExtension(t *testing.T) {
	c := spark.V3(-100, -0.5, -1)
	enc := EncodeCenterI24(nil, c, 8)
	dec, err := DecodeCenterI24(enc, 8)
	if err != nil {
		t.Fatalf("DecodeCenterI24: %v", err)
	}
	if math.Abs(dec.X-c.X) > 0.01 || math.Abs(dec.Y-c.Y) > 0.01 || math.Abs(dec.Z-c.Z) > 0.01 {
		t.Fatalf("negative round trip %v -> %v too far off", c, dec)
	}
}

func TestDecodeCenterTruncated(t *testing.T) {
	if _, err := DecodeCenterF16([]byte{1, 2, 3}); err == nil {
		t.Fatalf("DecodeCenterF16 on truncated input should fail")
	}
	if _, err := DecodeCenterI24([]byte{1, 2, 3}, 12); err == nil {
		t.Fatalf("DecodeCenterI24 on truncated input should fail")
	}
}
