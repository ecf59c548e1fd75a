package lod

import (
	"math"

	"github.com/sparkjsdev/spark"
)

// gridBias recenters a signed grid coordinate into uint32 range before
// Morton interleaving, since MortonCoord32 (spec §4.3) operates on
// unsigned coordinates but scene-space grid cells are signed. Only the
// relative order of keys matters here, not their absolute value, so any
// fixed bias that avoids wraparound for realistic scene extents works.
const gridBias = 1 << 31

// gridCell quantizes a splat center to its integer grid cell at the
// given step (spec §4.6 Phase 2 step 2, "floor(center/step)").
func gridCell(c spark.Vec3, step float64) [3]int64 {
	return [3]int64{
		int64(math.Floor(c.X / step)),
		int64(math.Floor(c.Y / step)),
		int64(math.Floor(c.Z / step)),
	}
}

func biasCoord(v int64) uint32 {
	b := v + gridBias
	switch {
	case b < 0:
		return 0
	case b > math.MaxUint32:
		return math.MaxUint32
	default:
		return uint32(b)
	}
}

// mortonKey returns the 64-bit-limb Morton key used to sort active grid
// cells into groups (spec §4.6 Phase 2 step 2).
func mortonKey(cell [3]int64) [2]uint64 {
	return spark.MortonCoord32(biasCoord(cell[0]), biasCoord(cell[1]), biasCoord(cell[2]))
}

// mortonLess orders two Morton keys by numeric value: compare the high
// limb first, then the low limb.
func mortonLess(a, b [2]uint64) bool {
	if a[1] != b[1] {
		return a[1] < b[1]
	}
	return a[0] < b[0]
}
