package lod

import (
	"math"

	"github.com/sparkjsdev/spark"
	"github.com/sparkjsdev/spark/splat"
)

// mergedNode is the result of covariance-weighted merging a group of
// splats into one coarser representative (spec §4.6 Phase 2 step 3).
type mergedNode struct {
	splat splat.Gaussian
	extra splat.LodExtra
	sh1   *splat.SH1Coeffs
	sh2   *splat.SH2Coeffs
	sh3   *splat.SH3Coeffs
}

// mergeGroup computes the weighted merge of the splats at indices into a
// single representative. mergeStep is the grid step to use for the
// optional Gaussian low-pass diagonal term, or 0 to disable it.
func mergeGroup(a *splat.GsplatArray, indices []int, mergeStep float64) mergedNode {
	totalWeight := 0.0
	for _, idx := range indices {
		totalWeight += a.Extras[idx].Weight
	}
	if totalWeight < 1e-100 {
		totalWeight = 1e-100
	}

	var center, rgb spark.Vec3
	for _, idx := range indices {
		w := a.Extras[idx].Weight / totalWeight
		center = center.Add(a.Splats[idx].Center.Mul(w))
		rgb = rgb.Add(a.Splats[idx].RGB.Mul(w))
	}

	filter2 := (0.5 * mergeStep) * (0.5 * mergeStep)
	var cov spark.SymMat3
	for _, idx := range indices {
		w := a.Extras[idx].Weight / totalWeight
		delta := a.Splats[idx].Center.Sub(center)
		c := a.Extras[idx].Covariance
		perMember := spark.SymMat3{
			XX: delta.X*delta.X + c.XX + filter2,
			YY: delta.Y*delta.Y + c.YY + filter2,
			ZZ: delta.Z*delta.Z + c.ZZ + filter2,
			XY: delta.X*delta.Y + c.XY,
			XZ: delta.X*delta.Z + c.XZ,
			YZ: delta.Y*delta.Z + c.YZ,
		}
		cov = cov.AddWeighted(perMember, w)
	}

	vals, vecs := cov.Eigens()
	scale := spark.V3(sqrtMax0(vals[0]), sqrtMax0(vals[1]), sqrtMax0(vals[2]))
	quat := spark.QuatFromColumns(vecs[0], vecs[1], vecs[2])
	opacity := math.Min(1000, totalWeight/splat.EllipsoidArea(scale))

	node := mergedNode{
		splat: splat.Gaussian{Center: center, Opacity: opacity, RGB: rgb, Scale: scale, Quat: quat},
		extra: splat.LodExtra{Weight: totalWeight, Covariance: cov, Parent: splat.NoParent},
	}

	if a.SH1 != nil {
		var sh1 splat.SH1Coeffs
		for _, idx := range indices {
			w := a.Extras[idx].Weight / totalWeight
			s := a.SH1[idx]
			for k := range sh1 {
				sh1[k] += s[k] * w
			}
		}
		node.sh1 = &sh1
	}
	if a.SH2 != nil {
		var sh2 splat.SH2Coeffs
		for _, idx := range indices {
			w := a.Extras[idx].Weight / totalWeight
			s := a.SH2[idx]
			for k := range sh2 {
				sh2[k] += s[k] * w
			}
		}
		node.sh2 = &sh2
	}
	if a.SH3 != nil {
		var sh3 splat.SH3Coeffs
		for _, idx := range indices {
			w := a.Extras[idx].Weight / totalWeight
			s := a.SH3[idx]
			for k := range sh3 {
				sh3[k] += s[k] * w
			}
		}
		node.sh3 = &sh3
	}

	return node
}

// appendNode pushes a merged node onto every parallel array and returns
// its new index, the arena-style "allocation" the builder's tree grows
// through (spec §9 "cyclic parent/child graph").
func appendNode(a *splat.GsplatArray, node mergedNode) int {
	idx := len(a.Splats)
	a.Splats = append(a.Splats, node.splat)
	a.Extras = append(a.Extras, node.extra)
	if a.SH1 != nil {
		a.SH1 = append(a.SH1, *node.sh1)
	}
	if a.SH2 != nil {
		a.SH2 = append(a.SH2, *node.sh2)
	}
	if a.SH3 != nil {
		a.SH3 = append(a.SH3, *node.sh3)
	}
	return idx
}

func sqrtMax0(v float64) float64 {
	if v < 0 {
		return 0
	}
	return math.Sqrt(v)
}
