package splat

import (
	"testing"

	"github.com/sparkjsdev/spark"
)

func TestReceiverGetterRoundTrip(t *testing.T) {
	a := New()
	if err := a.Init(4, 1, true); err != nil {
		t.Fatalf("Init: %v", err)
	}

	centers := []spark.Vec3{spark.V3(1, 0, 0), spark.V3(2, 0, 0)}
	if err := a.SetCenter(0, centers); err != nil {
		t.Fatalf("SetCenter: %v", err)
	}
	if err := a.SetOpacity(0, []float64{0.25, 0.75}); err != nil {
		t.Fatalf("SetOpacity: %v", err)
	}
	sh1 := []SH1Coeffs{{1, 2, 3}, {4, 5, 6}}
	if err := a.SetSH1(0, sh1); err != nil {
		t.Fatalf("SetSH1: %v", err)
	}
	if err := a.SetChildCount(0, []uint16{2, 0}); err != nil {
		t.Fatalf("SetChildCount: %v", err)
	}
	if err := a.SetChildStart(0, []uint32{2, 0}); err != nil {
		t.Fatalf("SetChildStart: %v", err)
	}
	if err := a.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	gotCenters, err := a.GetCenter(0, 2)
	if err != nil {
		t.Fatalf("GetCenter: %v", err)
	}
	for i := range centers {
		if gotCenters[i] != centers[i] {
			t.Fatalf("GetCenter[%d] = %v, want %v", i, gotCenters[i], centers[i])
		}
	}

	gotSH1, err := a.GetSH1(0, 2)
	if err != nil {
		t.Fatalf("GetSH1: %v", err)
	}
	if gotSH1[0] != sh1[0] || gotSH1[1] != sh1[1] {
		t.Fatalf("GetSH1 round trip mismatch: got %v, want %v", gotSH1, sh1)
	}

	if sh2, err := a.GetSH2(0, 2); err != nil || sh2 != nil {
		t.Fatalf("GetSH2 on max_sh_degree=1 array should be (nil,nil), got (%v,%v)", sh2, err)
	}

	gotCC, err := a.GetChildCount(0, 2)
	if err != nil {
		t.Fatalf("GetChildCount: %v", err)
	}
	if gotCC[0] != 2 || gotCC[1] != 0 {
		t.Fatalf("GetChildCount = %v, want [2 0]", gotCC)
	}
}

func TestFinishRejectsPartialChildFields(t *testing.T) {
	a := New()
	if err := a.Init(2, 0, true); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := a.SetChildCount(0, []uint16{0, 0}); err != nil {
		t.Fatalf("SetChildCount: %v", err)
	}
	if err := a.Finish(); err == nil {
		t.Fatalf("Finish should fail when child_start was never set")
	}
}

func TestSetSHRejectsWrongDegree(t *testing.T) {
	a := New()
	if err := a.Init(2, 0, false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := a.SetSH1(0, []SH1Coeffs{{}, {}}); err == nil {
		t.Fatalf("SetSH1 should fail when max_sh_degree < 1")
	}
}

func TestSetChildFieldsRequireLodTree(t *testing.T) {
	a := New()
	if err := a.Init(2, 0, false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := a.SetChildCount(0, []uint16{0, 0}); err == nil {
		t.Fatalf("SetChildCount should fail without a LoD tree")
	}
}

func TestSetBatchAppliesAllFields(t *testing.T) {
	a := New()
	if err := a.Init(2, 0, false); err != nil {
		t.Fatalf("Init: %v", err)
	}
	b := Batch{
		Base:    0,
		Count:   2,
		Center:  []spark.Vec3{spark.V3(1, 1, 1), spark.V3(2, 2, 2)},
		Opacity: []float64{0.1, 0.2},
	}
	if err := a.SetBatch(b); err != nil {
		t.Fatalf("SetBatch: %v", err)
	}
	if a.Splats[0].Center != b.Center[0] || a.Splats[1].Opacity != 0.2 {
		t.Fatalf("SetBatch did not apply fields: %+v", a.Splats)
	}
}

func TestCopyGetterToReceiverRoundTrip(t *testing.T) {
	src := New()
	if err := src.Init(3, 1, true); err != nil {
		t.Fatalf("Init src: %v", err)
	}
	for i := 0; i < 3; i++ {
		src.Splats[i] = sampleGaussian(i)
		src.SH1[i] = SH1Coeffs{float64(i), 0, 0}
	}
	if err := src.SetChildCount(0, []uint16{0, 0, 0}); err != nil {
		t.Fatalf("SetChildCount: %v", err)
	}
	if err := src.SetChildStart(0, []uint32{0, 0, 0}); err != nil {
		t.Fatalf("SetChildStart: %v", err)
	}

	dst := New()
	if err := dst.Init(3, 1, true); err != nil {
		t.Fatalf("Init dst: %v", err)
	}
	if err := CopyGetterToReceiver(dst, src, 0); err != nil {
		t.Fatalf("CopyGetterToReceiver: %v", err)
	}
	for i := 0; i < 3; i++ {
		if dst.Splats[i].Center != src.Splats[i].Center {
			t.Fatalf("Splats[%d].Center mismatch: got %v want %v", i, dst.Splats[i].Center, src.Splats[i].Center)
		}
		if dst.SH1[i] != src.SH1[i] {
			t.Fatalf("SH1[%d] mismatch: got %v want %v", i, dst.SH1[i], src.SH1[i])
		}
	}
}
