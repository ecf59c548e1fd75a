package splat

import (
	"github.com/pkg/errors"
	"github.com/sparkjsdev/spark"
)

// Permute reorders every parallel array in place so that new position i
// holds what was at old position indexMap[i] (spec §4.4 "array
// permutation"). It is the in-place counterpart to applyOrder, used by the
// LoD builder's chunk linearization pass where the array is large enough
// that doubling memory for a full copy is worth avoiding.
//
// Any LoD extras carrying Parent or ChildStart references into this same
// array are rewritten to the new indices before the reorder, since those
// are indices into the array Permute is about to scramble.
func (a *GsplatArray) Permute(indexMap []int) error {
	n := len(a.Splats)
	if len(indexMap) != n {
		return errors.Wrapf(spark.ErrMalformed, "splat: Permute index map length %d != %d splats", len(indexMap), n)
	}
	seen := make([]bool, n)
	newPos := make([]int, n)
	for i, o := range indexMap {
		if o < 0 || o >= n {
			return errors.Wrapf(spark.ErrMalformed, "splat: Permute index %d out of range", o)
		}
		if seen[o] {
			return errors.Wrap(spark.ErrMalformed, "splat: Permute index map is not a permutation")
		}
		seen[o] = true
		newPos[o] = i
	}

	if a.Extras != nil {
		for i := range a.Extras {
			if a.Extras[i].Parent != NoParent {
				a.Extras[i].Parent = newPos[a.Extras[i].Parent]
			}
			if a.Extras[i].ChildCount > 0 {
				a.Extras[i].ChildStart = newPos[a.Extras[i].ChildStart]
			}
		}
	}

	placed := make([]bool, n)
	for start := 0; start < n; start++ {
		if placed[start] {
			continue
		}
		cur := start
		savedSplat := a.Splats[start]
		var savedSH1 SH1Coeffs
		var savedSH2 SH2Coeffs
		var savedSH3 SH3Coeffs
		var savedExtra LodExtra
		if a.SH1 != nil {
			savedSH1 = a.SH1[start]
		}
		if a.SH2 != nil {
			savedSH2 = a.SH2[start]
		}
		if a.SH3 != nil {
			savedSH3 = a.SH3[start]
		}
		if a.Extras != nil {
			savedExtra = a.Extras[start]
		}
		for {
			placed[cur] = true
			src := indexMap[cur]
			if src == start {
				a.Splats[cur] = savedSplat
				if a.SH1 != nil {
					a.SH1[cur] = savedSH1
				}
				if a.SH2 != nil {
					a.SH2[cur] = savedSH2
				}
				if a.SH3 != nil {
					a.SH3[cur] = savedSH3
				}
				if a.Extras != nil {
					a.Extras[cur] = savedExtra
				}
				break
			}
			a.Splats[cur] = a.Splats[src]
			if a.SH1 != nil {
				a.SH1[cur] = a.SH1[src]
			}
			if a.SH2 != nil {
				a.SH2[cur] = a.SH2[src]
			}
			if a.SH3 != nil {
				a.SH3[cur] = a.SH3[src]
			}
			if a.Extras != nil {
				a.Extras[cur] = a.Extras[src]
			}
			cur = src
		}
	}
	return nil
}
