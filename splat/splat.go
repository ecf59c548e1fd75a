// Package splat implements the canonical in-memory Gaussian-splat store
// (GsplatArray) and the Receiver/Getter push/pull interfaces every format
// codec and the LoD builder are written against (spec §3, §4.4, §9).
//
// GsplatArray keeps splats, per-band spherical-harmonic coefficients, and
// LoD extras as parallel arrays rather than one array-of-structs, so that
// optional SH bands cost nothing when absent and batch transfers to
// external consumers (decoders, encoders, the LoD builder) can move whole
// columns at once. Every mutating operation — Init, the Set* setters,
// Retain, Permute — must keep all of these arrays the same length; that
// invariant is the one thing every method in this package exists to
// preserve.
package splat

import (
	"math"

	"github.com/sparkjsdev/spark"
)

// Gaussian is one splat's core record: position, opacity, linear color,
// per-axis scale, and unit-quaternion orientation (spec §3).
type Gaussian struct {
	Center  spark.Vec3
	Opacity float64
	RGB     spark.Vec3
	Scale   spark.Vec3
	Quat    spark.Quat
}

// MaxScale returns the largest of the three per-axis scale components.
func (g Gaussian) MaxScale() float64 {
	return g.Scale.MaxComponent()
}

// Dilation returns the LoD "dilation" factor used in FeatureSize: 1 for
// physically-sized splats (opacity <= 1), or sqrt(1 + e*ln(opacity)) for
// interior LoD nodes whose opacity encodes dilation beyond 1 (spec §4.6
// Phase 1's literal formula `dilation = sqrt(1 + e*ln(opacity))`).
func (g Gaussian) Dilation() float64 {
	if g.Opacity <= 1 {
		return 1
	}
	return sqrtClampedLog(g.Opacity)
}

// FeatureSize returns 2*max_scale*dilation, the characteristic
// screen-projected radius the LoD builder sorts and groups by (spec §3,
// §4.6 glossary "Feature size").
func (g Gaussian) FeatureSize() float64 {
	return 2 * g.MaxScale() * g.Dilation()
}

// SH1Coeffs, SH2Coeffs, SH3Coeffs give the per-splat spherical-harmonic
// coefficient counts for bands 1, 2, and 3, stored channel-major: index
// channel*coeffsPerChannel + coeff, matching the PLY stride-by-channel
// layout in spec §4.5 so no remapping is needed at the PLY boundary.
type (
	SH1Coeffs [9]float64
	SH2Coeffs [15]float64
	SH3Coeffs [21]float64
)

// LodExtra holds the fields only meaningful once an array carries a LoD
// tree: the merge weight, level, covariance summary, child range, and
// parent back-reference (spec §3 "LoD extra").
type LodExtra struct {
	Weight     float64
	Level      int16
	Covariance spark.SymMat3
	// ChildStart/ChildCount describe the contiguous child index range
	// [ChildStart, ChildStart+ChildCount). ChildCount == 0 marks a leaf.
	ChildStart int
	ChildCount int
	// Parent is the parent's index, or NoParent if this is a root.
	Parent int
}

// NoParent marks a splat with no parent (a root), matching the "no
// owning reference" arena-index convention spec §9 calls for in place of
// usize::MAX.
const NoParent = -1

// Encoding carries the set_encoding parameters of spec §6: per-field
// quantization ranges and the opacity-range flag. The zero value is not
// valid; use DefaultEncoding.
type Encoding struct {
	RGBMin, RGBMax         float64
	LnScaleMin, LnScaleMax float64
	SH1Min, SH1Max         float64
	SH2Min, SH2Max         float64
	SH3Min, SH3Max         float64
	// LodOpacity selects the u8 opacity range: [0,1] when false (the
	// default), [0,2] when true, to carry LoD dilation (spec §4.1).
	LodOpacity bool
}

// DefaultEncoding returns the default quantization ranges (spec §6).
func DefaultEncoding() Encoding {
	return Encoding{
		RGBMin: 0, RGBMax: 1,
		LnScaleMin: -12, LnScaleMax: 9,
		SH1Min: -1, SH1Max: 1,
		SH2Min: -1, SH2Max: 1,
		SH3Min: -1, SH3Max: 1,
		LodOpacity: false,
	}
}

func sqrtClampedLog(opacity float64) float64 {
	v := 1 + math.E*math.Log(opacity)
	if v < 0 {
		v = 0
	}
	return math.Sqrt(v)
}
