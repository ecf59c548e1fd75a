package splat

import (
	"github.com/pkg/errors"
	"github.com/sparkjsdev/spark"
)

// Getter is the pull-side interface format encoders and the LoD builder
// read through (spec §4.4).
type Getter interface {
	NumSplats() int
	MaxSHDegree() int
	FlagAntialias() bool
	HasLodTree() bool
	Encoding() Encoding
	GetCenter(base, count int) ([]spark.Vec3, error)
	GetOpacity(base, count int) ([]float64, error)
	GetRGB(base, count int) ([]spark.Vec3, error)
	GetScale(base, count int) ([]spark.Vec3, error)
	GetQuat(base, count int) ([]spark.Quat, error)
	GetSH1(base, count int) ([]SH1Coeffs, error)
	GetSH2(base, count int) ([]SH2Coeffs, error)
	GetSH3(base, count int) ([]SH3Coeffs, error)
	GetChildCount(base, count int) ([]uint16, error)
	GetChildStart(base, count int) ([]uint32, error)
}

// GetCenter returns splat centers over [base, base+count).
func (a *GsplatArray) GetCenter(base, count int) ([]spark.Vec3, error) {
	if err := a.checkRange(base, count); err != nil {
		return nil, err
	}
	out := make([]spark.Vec3, count)
	for i := range out {
		out[i] = a.Splats[base+i].Center
	}
	return out, nil
}

// GetOpacity returns splat opacities over [base, base+count).
func (a *GsplatArray) GetOpacity(base, count int) ([]float64, error) {
	if err := a.checkRange(base, count); err != nil {
		return nil, err
	}
	out := make([]float64, count)
	for i := range out {
		out[i] = a.Splats[base+i].Opacity
	}
	return out, nil
}

// GetRGB returns splat linear colors over [base, base+count).
func (a *GsplatArray) GetRGB(base, count int) ([]spark.Vec3, error) {
	if err := a.checkRange(base, count); err != nil {
		return nil, err
	}
	out := make([]spark.Vec3, count)
	for i := range out {
		out[i] = a.Splats[base+i].RGB
	}
	return out, nil
}

// GetScale returns splat per-axis scales over [base, base+count).
func (a *GsplatArray) GetScale(base, count int) ([]spark.Vec3, error) {
	if err := a.checkRange(base, count); err != nil {
		return nil, err
	}
	out := make([]spark.Vec3, count)
	for i := range out {
		out[i] = a.Splats[base+i].Scale
	}
	return out, nil
}

// GetQuat returns splat orientations over [base, base+count).
func (a *GsplatArray) GetQuat(base, count int) ([]spark.Quat, error) {
	if err := a.checkRange(base, count); err != nil {
		return nil, err
	}
	out := make([]spark.Quat, count)
	for i := range out {
		out[i] = a.Splats[base+i].Quat
	}
	return out, nil
}

// GetSH1 returns band-1 SH coefficients over [base, base+count), or an
// empty slice if MaxSHDegree < 1.
func (a *GsplatArray) GetSH1(base, count int) ([]SH1Coeffs, error) {
	if a.SH1 == nil {
		return nil, nil
	}
	if err := a.checkRange(base, count); err != nil {
		return nil, err
	}
	out := make([]SH1Coeffs, count)
	copy(out, a.SH1[base:base+count])
	return out, nil
}

// GetSH2 returns band-2 SH coefficients over [base, base+count), or an
// empty slice if MaxSHDegree < 2.
func (a *GsplatArray) GetSH2(base, count int) ([]SH2Coeffs, error) {
	if a.SH2 == nil {
		return nil, nil
	}
	if err := a.checkRange(base, count); err != nil {
		return nil, err
	}
	out := make([]SH2Coeffs, count)
	copy(out, a.SH2[base:base+count])
	return out, nil
}

// GetSH3 returns band-3 SH coefficients over [base, base+count), or an
// empty slice if MaxSHDegree < 3.
func (a *GsplatArray) GetSH3(base, count int) ([]SH3Coeffs, error) {
	if a.SH3 == nil {
		return nil, nil
	}
	if err := a.checkRange(base, count); err != nil {
		return nil, err
	}
	out := make([]SH3Coeffs, count)
	copy(out, a.SH3[base:base+count])
	return out, nil
}

// GetChildCount returns LoD child counts over [base, base+count), or nil
// if the array carries no LoD tree.
func (a *GsplatArray) GetChildCount(base, count int) ([]uint16, error) {
	if a.Extras == nil {
		return nil, nil
	}
	if err := a.checkRange(base, count); err != nil {
		return nil, err
	}
	out := make([]uint16, count)
	for i := range out {
		cc := a.Extras[base+i].ChildCount
		if cc < 0 || cc > 0xffff {
			return nil, errors.Wrapf(spark.ErrMalformed, "splat: child_count %d out of u16 range", cc)
		}
		out[i] = uint16(cc)
	}
	return out, nil
}

// GetChildStart returns LoD child-range starts over [base, base+count), or
// nil if the array carries no LoD tree.
func (a *GsplatArray) GetChildStart(base, count int) ([]uint32, error) {
	if a.Extras == nil {
		return nil, nil
	}
	if err := a.checkRange(base, count); err != nil {
		return nil, err
	}
	out := make([]uint32, count)
	for i := range out {
		out[i] = uint32(a.Extras[base+i].ChildStart)
	}
	return out, nil
}
