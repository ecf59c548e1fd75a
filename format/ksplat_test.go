package format

import (
	"math"
	"testing"

	"github.com/sparkjsdev/spark"
	"github.com/sparkjsdev/spark/splat"
)

func TestKsplatRoundTripSeedScenario(t *testing.T) {
	src := buildSingleSplatArray(t, 0)
	bytes, err := EncodeKsplat(src)
	if err != nil {
		t.Fatalf("EncodeKsplat: %v", err)
	}

	dst := splat.New()
	dec := NewKsplatDecoder(dst)
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
	if math.Abs(center[0].X-want.X) > 1e-5 || math.Abs(center[0].Y-want.Y) > 1e-5 || math.Abs(center[0].Z-want.Z) > 1e-5 {
		t.Fatalf("center = %v, want %v", center[0], want)
	}

	op, _ := dst.GetOpacity(0, 1)
	if math.Abs(op[0]-0.73) > 1e-2 {
		t.Fatalf("opacity = %v, want ~0.73", op[0])
	}

	rgb, _ := dst.GetRGB(0, 1)
	wantRGB := spark.V3(0.25, 0.6, 0.9)
	if math.Abs(rgb[0].X-wantRGB.X) > 1e-2 || math.Abs(rgb[0].Y-wantRGB.Y) > 1e-2 || math.Abs(rgb[0].Z-wantRGB.Z) > 1e-2 {
		t.Fatalf("rgb = %v, want ~%v", rgb[0], wantRGB)
	}

	scale, _ := dst.GetScale(0, 1)
	wantScale := spark.V3(0.7, 0.8, 0.9)
	if math.Abs(scale[0].X-wantScale.X) > 1e-5 || math.Abs(scale[0].Y-wantScale.Y) > 1e-5 || math.Abs(scale[0].Z-wantScale.Z) > 1e-5 {
		t.Fatalf("scale = %v, want %v", scale[0], wantScale)
	}

	quat, _ := dst.GetQuat(0, 1)
	wantQuat := spark.NewQuat(-0.4, 0.5, 0.7, 0.3).Normalize()
	if angularDistance(quat[0], wantQuat) > 1e-3 {
		t.Fatalf("quat = %v, want %v", quat[0], wantQuat)
	}
}

func TestKsplatSH1RoundTripsExactly(t *testing.T) {
	src := buildSingleSplatArray(t, 1)
	bytes, err := EncodeKsplat(src)
	if err != nil {
		t.Fatalf("EncodeKsplat: %v", err)
	}
	dst := splat.New()
	dec := NewKsplatDecoder(dst)
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
		if math.Abs(sh1[0][i]-want[i]) > 1e-5 {
			t.Fatalf("SH1[%d] = %v, want %v (compression level 0 carries f32 exactly)", i, sh1[0][i], want[i])
		}
	}
}

func TestKsplatSH2PreservesPerCoefficientOrdering(t *testing.T) {
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

	bytes, err := EncodeKsplat(a)
	if err != nil {
		t.Fatalf("EncodeKsplat: %v", err)
	}
	dst := splat.New()
	dec := NewKsplatDecoder(dst)
	if err := dec.Push(bytes); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := dec.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	gotSH2, err := dst.GetSH2(0, 1)
	if err != nil {
		t.Fatalf("GetSH2: %v", err)
	}
	for i := range sh2 {
		if math.Abs(gotSH2[0][i]-sh2[i]) > 1e-5 {
			t.Fatalf("SH2[%d] = %v, want %v (ordering regression)", i, gotSH2[0][i], sh2[i])
		}
	}
}

func TestKsplatZeroSplatsProducesEmptyArray(t *testing.T) {
	a := splat.New()
	if err := a.Init(0, 0, false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := a.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	bytes, err := EncodeKsplat(a)
	if err != nil {
		t.Fatalf("EncodeKsplat: %v", err)
	}
	dst := splat.New()
	dec := NewKsplatDecoder(dst)
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

func TestKsplatManySplatsSpansMultipleSetBatchChunks(t *testing.T) {
	const n = ksplatMaxChunk + 10
	a := splat.New()
	if err := a.Init(n, 0, false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	centers := make([]spark.Vec3, n)
	opacities := make([]float64, n)
	rgbs := make([]spark.Vec3, n)
	scales := make([]spark.Vec3, n)
	quats := make([]spark.Quat, n)
	for i := 0; i < n; i++ {
		t := float64(i) / float64(n)
		centers[i] = spark.V3(t, -t, t*2)
		opacities[i] = 0.5
		rgbs[i] = spark.V3(0.1, 0.2, 0.3)
		scales[i] = spark.V3(0.01, 0.01, 0.01)
		quats[i] = spark.IdentityQuat()
	}
	if err := a.SetCenter(0, centers); err != nil {
		t.Fatalf("SetCenter: %v", err)
	}
	if err := a.SetOpacity(0, opacities); err != nil {
		t.Fatalf("SetOpacity: %v", err)
	}
	if err := a.SetRGB(0, rgbs); err != nil {
		t.Fatalf("SetRGB: %v", err)
	}
	if err := a.SetScale(0, scales); err != nil {
		t.Fatalf("SetScale: %v", err)
	}
	if err := a.SetQuat(0, quats); err != nil {
		t.Fatalf("SetQuat: %v", err)
	}
	if err := a.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	bytes, err := EncodeKsplat(a)
	if err != nil {
		t.Fatalf("EncodeKsplat: %v", err)
	}
	dst := splat.New()
	dec := NewKsplatDecoder(dst)
	if err := dec.Push(bytes); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := dec.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if dst.NumSplats() != n {
		t.Fatalf("NumSplats = %d, want %d", dst.NumSplats(), n)
	}
	center, err := dst.GetCenter(n-1, 1)
	if err != nil {
		t.Fatalf("GetCenter: %v", err)
	}
	want := centers[n-1]
	if math.Abs(center[0].X-want.X) > 1e-5 {
		t.Fatalf("last center = %v, want %v", center[0], want)
	}
}

func TestKsplatTruncatedHeaderRejected(t *testing.T) {
	dst := splat.New()
	dec := NewKsplatDecoder(dst)
	if err := dec.Push(make([]byte, 10)); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := dec.Finish(); err == nil {
		t.Fatalf("Finish should reject a file shorter than the main header")
	}
}

func TestKsplatBadVersionRejected(t *testing.T) {
	src := buildSingleSplatArray(t, 0)
	bytes, err := EncodeKsplat(src)
	if err != nil {
		t.Fatalf("EncodeKsplat: %v", err)
	}
	bytes[1] = 0 // version_minor = 0 is not supported by any reader
	dst := splat.New()
	dec := NewKsplatDecoder(dst)
	if err := dec.Push(bytes); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := dec.Finish(); err == nil {
		t.Fatalf("Finish should reject version 0.0")
	}
}
