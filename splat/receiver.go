package splat

import (
	"github.com/pkg/errors"
	"github.com/sparkjsdev/spark"
)

// Batch carries a set of per-field values for set_batch (spec §4.4). Any
// nil field is left untouched; non-nil fields must have length Count.
// Batch setters are idempotent over overlapping ranges: a later SetBatch
// call that overlaps an earlier one overwrites it, which the LoD
// finalization path relies on when it patches child_start/child_count
// after children are known (spec §4.4, §5 "Ordering guarantees").
type Batch struct {
	Base, Count int

	Center     []spark.Vec3
	Opacity    []float64
	RGB        []spark.Vec3
	Scale      []spark.Vec3
	Quat       []spark.Quat
	SH1        []SH1Coeffs
	SH2        []SH2Coeffs
	SH3        []SH3Coeffs
	ChildCount []uint16
	ChildStart []uint32
}

// Receiver is the push-side interface every format decoder and the LoD
// builder's finalization pass write through (spec §4.4).
type Receiver interface {
	Init(num, maxSHDegree int, hasLodTree bool) error
	SetEncoding(enc Encoding) error
	SetBatch(b Batch) error
	SetCenter(base int, v []spark.Vec3) error
	SetOpacity(base int, v []float64) error
	SetRGB(base int, v []spark.Vec3) error
	SetScale(base int, v []spark.Vec3) error
	SetQuat(base int, v []spark.Quat) error
	SetSH1(base int, v []SH1Coeffs) error
	SetSH2(base int, v []SH2Coeffs) error
	SetSH3(base int, v []SH3Coeffs) error
	SetChildCount(base int, v []uint16) error
	SetChildStart(base int, v []uint32) error
	Finish() error
}

// SetEncoding records the field-quantization ranges this receiver should
// use to interpret subsequently pushed raw bytes. It does not rescale
// values already pushed; callers (format decoders) call it before pushing
// the fields it governs.
func (a *GsplatArray) SetEncoding(enc Encoding) error {
	a.encoding = enc
	return nil
}

// Encoding returns the currently configured encoding.
func (a *GsplatArray) Encoding() Encoding { return a.encoding }

func (a *GsplatArray) checkRange(base, count int) error {
	if base < 0 || count < 0 || base+count > len(a.Splats) {
		return errors.Wrapf(spark.ErrMalformed, "splat: range [%d,%d) out of bounds for %d splats", base, base+count, len(a.Splats))
	}
	return nil
}

// SetCenter sets splat centers starting at base.
func (a *GsplatArray) SetCenter(base int, v []spark.Vec3) error {
	if err := a.checkRange(base, len(v)); err != nil {
		return err
	}
	for i, c := range v {
		a.Splats[base+i].Center = c
	}
	return nil
}

// SetOpacity sets splat opacities starting at base.
func (a *GsplatArray) SetOpacity(base int, v []float64) error {
	if err := a.checkRange(base, len(v)); err != nil {
		return err
	}
	for i, o := range v {
		a.Splats[base+i].Opacity = o
	}
	return nil
}

// SetRGB sets splat linear colors starting at base.
func (a *GsplatArray) SetRGB(base int, v []spark.Vec3) error {
	if err := a.checkRange(base, len(v)); err != nil {
		return err
	}
	for i, c := range v {
		a.Splats[base+i].RGB = c
	}
	return nil
}

// SetRGBA sets splat color and opacity together starting at base.
func (a *GsplatArray) SetRGBA(base int, rgb []spark.Vec3, alpha []float64) error {
	if len(rgb) != len(alpha) {
		return errors.Wrap(spark.ErrMalformed, "splat: SetRGBA rgb/alpha length mismatch")
	}
	if err := a.SetRGB(base, rgb); err != nil {
		return err
	}
	return a.SetOpacity(base, alpha)
}

// SetScale sets splat per-axis scales starting at base.
func (a *GsplatArray) SetScale(base int, v []spark.Vec3) error {
	if err := a.checkRange(base, len(v)); err != nil {
		return err
	}
	for i, s := range v {
		a.Splats[base+i].Scale = s
	}
	return nil
}

// SetQuat sets splat orientations starting at base.
func (a *GsplatArray) SetQuat(base int, v []spark.Quat) error {
	if err := a.checkRange(base, len(v)); err != nil {
		return err
	}
	for i, q := range v {
		a.Splats[base+i].Quat = q
	}
	return nil
}

// SetSH1 sets band-1 SH coefficients starting at base. Requires
// MaxSHDegree >= 1.
func (a *GsplatArray) SetSH1(base int, v []SH1Coeffs) error {
	if a.SH1 == nil {
		return errors.Wrap(spark.ErrInconsistentState, "splat: SetSH1 called but max_sh_degree < 1")
	}
	if err := a.checkRange(base, len(v)); err != nil {
		return err
	}
	copy(a.SH1[base:base+len(v)], v)
	return nil
}

// SetSH2 sets band-2 SH coefficients starting at base. Requires
// MaxSHDegree >= 2.
func (a *GsplatArray) SetSH2(base int, v []SH2Coeffs) error {
	if a.SH2 == nil {
		return errors.Wrap(spark.ErrInconsistentState, "splat: SetSH2 called but max_sh_degree < 2")
	}
	if err := a.checkRange(base, len(v)); err != nil {
		return err
	}
	copy(a.SH2[base:base+len(v)], v)
	return nil
}

// SetSH3 sets band-3 SH coefficients starting at base. Requires
// MaxSHDegree >= 3.
func (a *GsplatArray) SetSH3(base int, v []SH3Coeffs) error {
	if a.SH3 == nil {
		return errors.Wrap(spark.ErrInconsistentState, "splat: SetSH3 called but max_sh_degree < 3")
	}
	if err := a.checkRange(base, len(v)); err != nil {
		return err
	}
	copy(a.SH3[base:base+len(v)], v)
	return nil
}

// SetChildCount sets LoD child counts starting at base. Requires
// HasLodTree.
func (a *GsplatArray) SetChildCount(base int, v []uint16) error {
	if a.Extras == nil {
		return errors.Wrap(spark.ErrInconsistentState, "splat: SetChildCount called without a LoD tree")
	}
	if err := a.checkRange(base, len(v)); err != nil {
		return err
	}
	for i, c := range v {
		a.Extras[base+i].ChildCount = int(c)
	}
	a.childCountTouched = true
	return nil
}

// SetChildStart sets LoD child-range starts starting at base. Requires
// HasLodTree.
func (a *GsplatArray) SetChildStart(base int, v []uint32) error {
	if a.Extras == nil {
		return errors.Wrap(spark.ErrInconsistentState, "splat: SetChildStart called without a LoD tree")
	}
	if err := a.checkRange(base, len(v)); err != nil {
		return err
	}
	for i, c := range v {
		a.Extras[base+i].ChildStart = int(c)
	}
	a.childStartTouched = true
	return nil
}

// SetBatch applies every non-nil field of b in one call.
func (a *GsplatArray) SetBatch(b Batch) error {
	if b.Center != nil {
		if err := a.SetCenter(b.Base, b.Center); err != nil {
			return err
		}
	}
	if b.Opacity != nil {
		if err := a.SetOpacity(b.Base, b.Opacity); err != nil {
			return err
		}
	}
	if b.RGB != nil {
		if err := a.SetRGB(b.Base, b.RGB); err != nil {
			return err
		}
	}
	if b.Scale != nil {
		if err := a.SetScale(b.Base, b.Scale); err != nil {
			return err
		}
	}
	if b.Quat != nil {
		if err := a.SetQuat(b.Base, b.Quat); err != nil {
			return err
		}
	}
	if b.SH1 != nil {
		if err := a.SetSH1(b.Base, b.SH1); err != nil {
			return err
		}
	}
	if b.SH2 != nil {
		if err := a.SetSH2(b.Base, b.SH2); err != nil {
			return err
		}
	}
	if b.SH3 != nil {
		if err := a.SetSH3(b.Base, b.SH3); err != nil {
			return err
		}
	}
	if b.ChildCount != nil {
		if err := a.SetChildCount(b.Base, b.ChildCount); err != nil {
			return err
		}
	}
	if b.ChildStart != nil {
		if err := a.SetChildStart(b.Base, b.ChildStart); err != nil {
			return err
		}
	}
	return nil
}

// Finish validates the array is internally consistent and marks it ready
// for reading. Per spec §7 kind 3, a LoD tree must have had SetChildCount
// and SetChildStart either both touched or neither.
func (a *GsplatArray) Finish() error {
	if a.hasLodTree && a.childCountTouched != a.childStartTouched {
		return errors.Wrap(spark.ErrInconsistentState, "splat: child_count and child_start must both be set before finish")
	}
	a.finished = true
	return nil
}
