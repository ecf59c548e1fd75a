package format

import (
	"bytes"
	"compress/gzip"
	"io"
	"math"
	"testing"

	"github.com/sparkjsdev/spark"
	"github.com/sparkjsdev/spark/splat"
)

func TestSpzRoundTripSeedScenario(t *testing.T) {
	src := buildSingleSplatArray(t, 0)
	bytes, err := EncodeSpz(src, 12)
	if err != nil {
		t.Fatalf("EncodeSpz: %v", err)
	}

	dst := splat.New()
	dec := NewSpzDecoder(dst)
	if err := dec.Push(bytes); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := dec.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	if dst.NumSplats() != 1 {
		t.Fatalf("NumSplats = %d, want 1", dst.NumSplats())
	}
	center, _ := dst.GetCenter(0, 1)
	want := spark.V3(0.1, 0.2, 0.3)
	if math.Abs(center[0].X-want.X) > 1e-3 || math.Abs(center[0].Y-want.Y) > 1e-3 || math.Abs(center[0].Z-want.Z) > 1e-3 {
		t.Fatalf("center = %v, want ~%v", center[0], want)
	}

	op, _ := dst.GetOpacity(0, 1)
	if math.Abs(op[0]-0.73) > 3e-3 {
		t.Fatalf("opacity = %v, want ~0.73", op[0])
	}

	rgb, _ := dst.GetRGB(0, 1)
	wantRGB := spark.V3(0.25, 0.6, 0.9)
	if math.Abs(rgb[0].X-wantRGB.X) > 3e-3 || math.Abs(rgb[0].Y-wantRGB.Y) > 3e-3 || math.Abs(rgb[0].Z-wantRGB.Z) > 3e-3 {
		t.Fatalf("rgb = %v, want ~%v", rgb[0], wantRGB)
	}

	// SPZ stores round((ln s + 10) * 16), so ln s is recovered to within
	// half a step (1/32).
	scale, _ := dst.GetScale(0, 1)
	wantScale := spark.V3(0.7, 0.8, 0.9)
	if math.Abs(math.Log(scale[0].X/wantScale.X)) > 1.0/32 || math.Abs(math.Log(scale[0].Y/wantScale.Y)) > 1.0/32 || math.Abs(math.Log(scale[0].Z/wantScale.Z)) > 1.0/32 {
		t.Fatalf("scale = %v, want ~%v", scale[0], wantScale)
	}
}

func TestSpzSH1WithinTolerance(t *testing.T) {
	src := buildSingleSplatArray(t, 1)
	bytes, err := EncodeSpz(src, 12)
	if err != nil {
		t.Fatalf("EncodeSpz: %v", err)
	}
	dst := splat.New()
	dec := NewSpzDecoder(dst)
	if err := dec.Push(bytes); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := dec.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	sh1, err := dst.GetSH1(0, 1)
	if err != nil {
		t.Fatalf("GetSH1: %v", err)
	}
	want := splat.SH1Coeffs{-0.3, 0.1, 0.4, 0.2, -0.2, 0.5, 0.0, 0.3, -0.1}
	for i := range want {
		if math.Abs(sh1[0][i]-want[i]) > 0.12 {
			t.Fatalf("SH1[%d] = %v, want %v within 0.12", i, sh1[0][i], want[i])
		}
	}
}

func TestSpzSH2LayoutPreservesPerCoefficientOrdering(t *testing.T) {
	a := splat.New()
	if err := a.Init(1, 2, false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := a.SetCenter(0, []spark.Vec3{spark.V3(0, 0, 0)}); err != nil {
		t.Fatalf("SetCenter: %v", err)
	}
	if err := a.SetOpacity(0, []float64{1}); err != nil {
		t.Fatalf("SetOpacity: %v", err)
	}
	if err := a.SetRGB(0, []spark.Vec3{spark.V3(0.5, 0.5, 0.5)}); err != nil {
		t.Fatalf("SetRGB: %v", err)
	}
	if err := a.SetScale(0, []spark.Vec3{spark.V3(1, 1, 1)}); err != nil {
		t.Fatalf("SetScale: %v", err)
	}
	if err := a.SetQuat(0, []spark.Quat{spark.IdentityQuat()}); err != nil {
		t.Fatalf("SetQuat: %v", err)
	}
	sh1 := splat.SH1Coeffs{-0.3, 0.1, 0.4, 0.2, -0.2, 0.5, 0.0, 0.3, -0.1}
	// Seed scenario 2's literal values: 0.11..0.35 in 0.01 steps.
	var sh2 splat.SH2Coeffs
	for i := range sh2 {
		sh2[i] = 0.11 + float64(i)*0.01
	}
	if err := a.SetSH1(0, []splat.SH1Coeffs{sh1}); err != nil {
		t.Fatalf("SetSH1: %v", err)
	}
	if err := a.SetSH2(0, []splat.SH2Coeffs{sh2}); err != nil {
		t.Fatalf("SetSH2: %v", err)
	}
	if err := a.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	bytes, err := EncodeSpz(a, 12)
	if err != nil {
		t.Fatalf("EncodeSpz: %v", err)
	}
	dst := splat.New()
	dec := NewSpzDecoder(dst)
	if err := dec.Push(bytes); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := dec.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	gotSH1, err := dst.GetSH1(0, 1)
	if err != nil {
		t.Fatalf("GetSH1: %v", err)
	}
	for i := range sh1 {
		if math.Abs(gotSH1[0][i]-sh1[i]) > 0.12 {
			t.Fatalf("SH1[%d] = %v, want %v within 0.12 (ordering regression)", i, gotSH1[0][i], sh1[i])
		}
	}
	gotSH2, err := dst.GetSH2(0, 1)
	if err != nil {
		t.Fatalf("GetSH2: %v", err)
	}
	for i := range sh2 {
		if math.Abs(gotSH2[0][i]-sh2[i]) > 0.20 {
			t.Fatalf("SH2[%d] = %v, want %v within 0.20 (ordering regression)", i, gotSH2[0][i], sh2[i])
		}
	}
}

func TestSpzZeroSplatsProducesEmptyArray(t *testing.T) {
	a := splat.New()
	if err := a.Init(0, 0, false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := a.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	bytes, err := EncodeSpz(a, 12)
	if err != nil {
		t.Fatalf("EncodeSpz: %v", err)
	}
	dst := splat.New()
	dec := NewSpzDecoder(dst)
	if err := dec.Push(bytes); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := dec.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if dst.NumSplats() != 0 {
		t.Fatalf("NumSplats = %d, want 0", dst.NumSplats())
	}
}

func TestSpzLodExtensionRoundTrip(t *testing.T) {
	a := splat.New()
	if err := a.Init(2, 0, true); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := a.SetCenter(0, []spark.Vec3{spark.V3(0, 0, 0), spark.V3(1, 1, 1)}); err != nil {
		t.Fatalf("SetCenter: %v", err)
	}
	if err := a.SetOpacity(0, []float64{1, 1}); err != nil {
		t.Fatalf("SetOpacity: %v", err)
	}
	if err := a.SetRGB(0, []spark.Vec3{spark.V3(0.5, 0.5, 0.5), spark.V3(0.5, 0.5, 0.5)}); err != nil {
		t.Fatalf("SetRGB: %v", err)
	}
	if err := a.SetScale(0, []spark.Vec3{spark.V3(1, 1, 1), spark.V3(1, 1, 1)}); err != nil {
		t.Fatalf("SetScale: %v", err)
	}
	if err := a.SetQuat(0, []spark.Quat{spark.IdentityQuat(), spark.IdentityQuat()}); err != nil {
		t.Fatalf("SetQuat: %v", err)
	}
	if err := a.SetChildCount(0, []uint16{1, 0}); err != nil {
		t.Fatalf("SetChildCount: %v", err)
	}
	if err := a.SetChildStart(0, []uint32{1, 0}); err != nil {
		t.Fatalf("SetChildStart: %v", err)
	}
	if err := a.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	bytes, err := EncodeSpz(a, 12)
	if err != nil {
		t.Fatalf("EncodeSpz: %v", err)
	}
	dst := splat.New()
	dec := NewSpzDecoder(dst)
	if err := dec.Push(bytes); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := dec.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if !dst.HasLodTree() {
		t.Fatalf("HasLodTree = false, want true")
	}
	counts, err := dst.GetChildCount(0, 2)
	if err != nil {
		t.Fatalf("GetChildCount: %v", err)
	}
	if counts[0] != 1 || counts[1] != 0 {
		t.Fatalf("child counts = %v, want [1 0]", counts)
	}
	starts, err := dst.GetChildStart(0, 2)
	if err != nil {
		t.Fatalf("GetChildStart: %v", err)
	}
	if starts[0] != 1 || starts[1] != 0 {
		t.Fatalf("child starts = %v, want [1 0]", starts)
	}
}

func TestSpzBadMagicRejected(t *testing.T) {
	dst := splat.New()
	dec := NewSpzDecoder(dst)
	if err := dec.Push([]byte{0x00, 0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := dec.Finish(); err == nil {
		t.Fatalf("Finish should reject a non-gzip stream")
	}
}

// TestSpzDecodesGzipExtraNameCommentHeaderFields is spec §8's gzip
// boundary behavior: a member with FEXTRA/FNAME/FCOMMENT all set must
// still decode. Re-wraps a valid SPZ payload with those header fields
// present rather than relying on the plain member EncodeSpz itself
// produces.
func TestSpzDecodesGzipExtraNameCommentHeaderFields(t *testing.T) {
	src := buildSingleSplatArray(t, 0)
	plain, err := EncodeSpz(src, 12)
	if err != nil {
		t.Fatalf("EncodeSpz: %v", err)
	}

	gr, err := gzip.NewReader(bytes.NewReader(plain))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	raw, err := io.ReadAll(gr)
	if err != nil {
		t.Fatalf("io.ReadAll: %v", err)
	}

	var buf bytes.Buffer
	gw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		t.Fatalf("gzip.NewWriterLevel: %v", err)
	}
	gw.Extra = []byte{0x01, 0x02, 0x03, 0x04}
	gw.Name = "scene.spz"
	gw.Comment = "test fixture"
	if _, err := gw.Write(raw); err != nil {
		t.Fatalf("gzip Write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip Close: %v", err)
	}

	dst := splat.New()
	dec := NewSpzDecoder(dst)
	if err := dec.Push(buf.Bytes()); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := dec.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if dst.NumSplats() != 1 {
		t.Fatalf("NumSplats = %d, want 1", dst.NumSplats())
	}
}

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

func TestSpzVersion3SmallestThreeQuatRoundTrips(t *testing.T) {
	q := spark.NewQuat(-0.4, 0.5, 0.7, 0.3).Normalize()
	bits := encodeQuatSmallestThree(q)
	got := decodeQuatSmallestThree(bits)
	if angularDistance(q, got) > 0.02 {
		t.Fatalf("smallest-three round trip angular distance too large: got %v want %v", got, q)
	}
}

func TestSpzThreeByteQuatRoundTrips(t *testing.T) {
	q := spark.NewQuat(0.1, -0.2, 0.3, 0.9).Normalize()
	enc := encodeQuatThreeByte(q)
	got := decodeQuatThreeByte(enc[0], enc[1], enc[2])
	if angularDistance(q, got) > 0.02 {
		t.Fatalf("three-byte round trip angular distance too large: got %v want %v", got, q)
	}
}
