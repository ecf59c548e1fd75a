package splat

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"github.com/sparkjsdev/spark"
)

// GsplatArray is the canonical in-memory splat store: parallel arrays of
// Gaussians, optional per-band SH coefficients, and optional LoD extras,
// all kept the same length under every mutating operation (spec §3, §9
// "Parallel arrays over array-of-structs"). It implements both the
// Receiver (push) and Getter (pull) interfaces, so decoders can write
// straight into one and encoders/the LoD builder can read straight out of
// the same one.
type GsplatArray struct {
	Splats []Gaussian
	SH1    []SH1Coeffs
	SH2    []SH2Coeffs
	SH3    []SH3Coeffs
	Extras []LodExtra

	maxSHDegree   int
	hasLodTree    bool
	flagAntialias bool
	encoding      Encoding

	childCountTouched bool
	childStartTouched bool
	finished          bool
}

// New returns an empty array with the default encoding.
func New() *GsplatArray {
	return &GsplatArray{encoding: DefaultEncoding()}
}

// Init allocates num splats with the given max SH degree and LoD-tree
// flag, per the Receiver contract's init(num, max_sh_degree, lod_tree)
// (spec §4.4). Re-initializing an already-populated array discards its
// contents.
func (a *GsplatArray) Init(num, maxSHDegree int, hasLodTree bool) error {
	if maxSHDegree < 0 || maxSHDegree > 3 {
		return errors.Wrapf(spark.ErrMalformed, "splat: max_sh_degree %d out of range [0,3]", maxSHDegree)
	}
	a.Splats = make([]Gaussian, num)
	a.SH1 = nil
	a.SH2 = nil
	a.SH3 = nil
	if maxSHDegree >= 1 {
		a.SH1 = make([]SH1Coeffs, num)
	}
	if maxSHDegree >= 2 {
		a.SH2 = make([]SH2Coeffs, num)
	}
	if maxSHDegree >= 3 {
		a.SH3 = make([]SH3Coeffs, num)
	}
	a.Extras = nil
	if hasLodTree {
		a.Extras = make([]LodExtra, num)
		for i := range a.Extras {
			a.Extras[i].Parent = NoParent
		}
	}
	a.maxSHDegree = maxSHDegree
	a.hasLodTree = hasLodTree
	a.encoding = DefaultEncoding()
	a.childCountTouched = false
	a.childStartTouched = false
	a.finished = false
	return nil
}

// NumSplats returns the current splat count.
func (a *GsplatArray) NumSplats() int { return len(a.Splats) }

// MaxSHDegree returns the highest SH band present (0..3).
func (a *GsplatArray) MaxSHDegree() int { return a.maxSHDegree }

// HasLodTree reports whether this array carries LoD extras.
func (a *GsplatArray) HasLodTree() bool { return a.hasLodTree }

// FlagAntialias reports the antialias flag carried from the source format
// (SPZ flag bit 0, spec §4.5).
func (a *GsplatArray) FlagAntialias() bool { return a.flagAntialias }

// SetFlagAntialias sets the antialias flag. Exposed for decoders.
func (a *GsplatArray) SetFlagAntialias(v bool) { a.flagAntialias = v }

// Retain keeps only the splats for which keep returns true, compacting all
// parallel arrays in place (spec §3 "destroyed by retain filters"; used by
// the LoD builder's precondition filter, SPEC_FULL.md §5).
func (a *GsplatArray) Retain(keep func(i int) bool) {
	w := 0
	for r := 0; r < len(a.Splats); r++ {
		if !keep(r) {
			continue
		}
		if w != r {
			a.Splats[w] = a.Splats[r]
			if a.SH1 != nil {
				a.SH1[w] = a.SH1[r]
			}
			if a.SH2 != nil {
				a.SH2[w] = a.SH2[r]
			}
			if a.SH3 != nil {
				a.SH3[w] = a.SH3[r]
			}
			if a.Extras != nil {
				a.Extras[w] = a.Extras[r]
			}
		}
		w++
	}
	a.Splats = a.Splats[:w]
	if a.SH1 != nil {
		a.SH1 = a.SH1[:w]
	}
	if a.SH2 != nil {
		a.SH2 = a.SH2[:w]
	}
	if a.SH3 != nil {
		a.SH3 = a.SH3[:w]
	}
	if a.Extras != nil {
		a.Extras = a.Extras[:w]
	}
}

// SortByFeatureSize stably sorts all parallel arrays in ascending
// FeatureSize order (spec §4.6 Phase 1), the ordering the LoD builder's
// frontier cursor walks.
func (a *GsplatArray) SortByFeatureSize() {
	idx := make([]int, len(a.Splats))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return a.Splats[idx[i]].FeatureSize() < a.Splats[idx[j]].FeatureSize()
	})
	a.applyOrder(idx)
}

// applyOrder rebuilds every parallel array in the given order (idx[new] =
// old), used by SortByFeatureSize. Permute (permute.go) implements the
// cycle-swap variant used for in-place LoD chunk linearization.
func (a *GsplatArray) applyOrder(idx []int) {
	newSplats := make([]Gaussian, len(idx))
	var newSH1 []SH1Coeffs
	var newSH2 []SH2Coeffs
	var newSH3 []SH3Coeffs
	var newExtras []LodExtra
	if a.SH1 != nil {
		newSH1 = make([]SH1Coeffs, len(idx))
	}
	if a.SH2 != nil {
		newSH2 = make([]SH2Coeffs, len(idx))
	}
	if a.SH3 != nil {
		newSH3 = make([]SH3Coeffs, len(idx))
	}
	if a.Extras != nil {
		newExtras = make([]LodExtra, len(idx))
	}
	for n, o := range idx {
		newSplats[n] = a.Splats[o]
		if a.SH1 != nil {
			newSH1[n] = a.SH1[o]
		}
		if a.SH2 != nil {
			newSH2[n] = a.SH2[o]
		}
		if a.SH3 != nil {
			newSH3[n] = a.SH3[o]
		}
		if a.Extras != nil {
			newExtras[n] = a.Extras[o]
		}
	}
	a.Splats = newSplats
	a.SH1 = newSH1
	a.SH2 = newSH2
	a.SH3 = newSH3
	a.Extras = newExtras
}

// ComputeExtras (re)derives Weight and Covariance for every splat from its
// current scale/quaternion/opacity, leaving Level/ChildStart/ChildCount/
// Parent untouched. Weight is area(scales)*opacity and Covariance is the
// scale+quaternion covariance (spec §4.6 Phase 1).
func (a *GsplatArray) ComputeExtras() error {
	if a.Extras == nil {
		return errors.Wrap(spark.ErrInconsistentState, "splat: ComputeExtras called without a LoD tree")
	}
	for i, g := range a.Splats {
		a.Extras[i].Weight = EllipsoidArea(g.Scale) * g.Opacity
		a.Extras[i].Covariance = spark.NewFromScaleQuat(g.Scale, g.Quat)
	}
	return nil
}

// EnsureLodTree allocates LoD extras (defaulting every Parent to NoParent)
// if the array doesn't already carry them, and marks the array as having
// a LoD tree. Used by the LoD builder to promote a flat decoded array
// in place, since decoders normally Init with hasLodTree=false.
func (a *GsplatArray) EnsureLodTree() {
	if a.Extras == nil {
		a.Extras = make([]LodExtra, len(a.Splats))
		for i := range a.Extras {
			a.Extras[i].Parent = NoParent
		}
	}
	a.hasLodTree = true
}

// EllipsoidArea returns a characteristic surface-area proxy for an
// ellipsoid with the given per-axis scale, used both for the initial
// splat weight and for recovering an opacity from a merged covariance's
// eigenvalues (spec §4.6 "opacity = min(1000, W / ellipsoid_area(scales))").
// Uses the Knud Thomsen approximation with p=1.6075, matching
// original_source/rust/spark-lib/src/tsplat.rs's ellipsoid_area.
func EllipsoidArea(scale spark.Vec3) float64 {
	const p = 1.6075
	xy := math.Pow(scale.X*scale.Y, p)
	yz := math.Pow(scale.Y*scale.Z, p)
	xz := math.Pow(scale.X*scale.Z, p)
	return 4 * math.Pi * math.Pow((xy+yz+xz)/3, 1/p)
}
