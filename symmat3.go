package spark

import "math"

// SymMat3 is a symmetric 3x3 matrix stored as its six independent entries,
// used to represent and merge Gaussian covariances (spec §4.2).
type SymMat3 struct {
	XX, YY, ZZ, XY, XZ, YZ float64
}

// ZeroSymMat3 returns the zero matrix.
func ZeroSymMat3() SymMat3 {
	return SymMat3{}
}

// NewFromScaleQuat builds the covariance Σ = Σ_k (s_k·e_k)(s_k·e_k)ᵀ where
// e_k are the quaternion's rotation-matrix basis axes and s_k the
// corresponding per-axis scale (spec §4.2).
func NewFromScaleQuat(scale Vec3, q Quat) SymMat3 {
	sx := q.XAxis().Mul(scale.X)
	sy := q.YAxis().Mul(scale.Y)
	sz := q.ZAxis().Mul(scale.Z)

	return SymMat3{
		XX: sx.X*sx.X + sy.X*sy.X + sz.X*sz.X,
		YY: sx.Y*sx.Y + sy.Y*sy.Y + sz.Y*sz.Y,
		ZZ: sx.Z*sx.Z + sy.Z*sy.Z + sz.Z*sz.Z,
		XY: sx.X*sx.Y + sy.X*sy.Y + sz.X*sz.Y,
		XZ: sx.X*sx.Z + sy.X*sy.Z + sz.X*sz.Z,
		YZ: sx.Y*sx.Z + sy.Y*sy.Z + sz.Y*sz.Z,
	}
}

// AddWeighted returns m + other*weight; the receiver itself is not
// modified.
func (m SymMat3) AddWeighted(other SymMat3, weight float64) SymMat3 {
	return SymMat3{
		XX: m.XX + other.XX*weight,
		YY: m.YY + other.YY*weight,
		ZZ: m.ZZ + other.ZZ*weight,
		XY: m.XY + other.XY*weight,
		XZ: m.XZ + other.XZ*weight,
		YZ: m.YZ + other.YZ*weight,
	}
}

// AddDiagonal adds d to each diagonal entry, used by the LoD builder's
// optional Gaussian low-pass filter term (spec §4.6 step 3).
func (m SymMat3) AddDiagonal(d float64) SymMat3 {
	m.XX += d
	m.YY += d
	m.ZZ += d
	return m
}

const (
	jacobiMaxSweeps = 32
)

// jacobiPivot picks the largest-magnitude off-diagonal entry among the
// three candidates (0,1), (0,2), (1,2), breaking ties by this enumeration
// order — the deterministic pivot rule spec §4.6 requires for byte-for-byte
// reproducible builder output, matching the reference decomposition exactly
// (see SPEC_FULL.md §5).
func jacobiPivot(a [3][3]float64) (p, q int, maxVal float64) {
	cand := [3]struct {
		p, q int
		val  float64
	}{
		{0, 1, math.Abs(a[0][1])},
		{0, 2, math.Abs(a[0][2])},
		{1, 2, math.Abs(a[1][2])},
	}
	p, q, maxVal = cand[0].p, cand[0].q, cand[0].val
	for _, c := range cand[1:] {
		if c.val > maxVal {
			p, q, maxVal = c.p, c.q, c.val
		}
	}
	return p, q, maxVal
}

// Eigens returns the eigenvalues (descending) and corresponding unit
// eigenvectors of the matrix, computed via cyclic Jacobi rotations. The
// sweep terminates once the off-diagonal norm falls below 1e-6 times the
// diagonal magnitude, or after 32 sweeps, whichever comes first (spec §4.2).
func (m SymMat3) Eigens() (vals [3]float64, vecs [3]Vec3) {
	a := [3][3]float64{
		{m.XX, m.XY, m.XZ},
		{m.XY, m.YY, m.YZ},
		{m.XZ, m.YZ, m.ZZ},
	}
	v := [3][3]float64{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}

	diagSum := math.Abs(a[0][0]) + math.Abs(a[1][1]) + math.Abs(a[2][2])
	eps := 1e-6 * math.Max(diagSum, 1)

	for sweep := 0; sweep < jacobiMaxSweeps; sweep++ {
		p, q, maxVal := jacobiPivot(a)
		offNorm2 := a[0][1]*a[0][1] + a[0][2]*a[0][2] + a[1][2]*a[1][2]
		if offNorm2 <= eps*eps {
			break
		}
		if maxVal <= eps {
			break
		}

		app, aqq, apq := a[p][p], a[q][q], a[p][q]
		tau := aqq - app
		phi := 0.5 * math.Atan2(2*apq, tau)
		c, s := math.Cos(phi), math.Sin(phi)

		for r := 0; r < 3; r++ {
			arp, arq := a[r][p], a[r][q]
			a[r][p] = c*arp - s*arq
			a[r][q] = s*arp + c*arq
		}
		for r := 0; r < 3; r++ {
			apr, aqr := a[p][r], a[q][r]
			a[p][r] = c*apr - s*aqr
			a[q][r] = s*apr + c*aqr
		}
		a[p][q] = 0
		a[q][p] = 0

		for r := 0; r < 3; r++ {
			vrp, vrq := v[r][p], v[r][q]
			v[r][p] = c*vrp - s*vrq
			v[r][q] = s*vrp + c*vrq
		}
	}

	vals = [3]float64{a[0][0], a[1][1], a[2][2]}
	vecs = [3]Vec3{
		{X: v[0][0], Y: v[1][0], Z: v[2][0]},
		{X: v[0][1], Y: v[1][1], Z: v[2][1]},
		{X: v[0][2], Y: v[1][2], Z: v[2][2]},
	}
	for i := range vecs {
		vecs[i] = vecs[i].Normalize()
	}

	// Sort descending by eigenvalue, keeping vectors aligned (simple
	// insertion sort over 3 elements).
	idx := [3]int{0, 1, 2}
	for i := 1; i < 3; i++ {
		j := i
		for j > 0 && vals[idx[j-1]] < vals[idx[j]] {
			idx[j-1], idx[j] = idx[j], idx[j-1]
			j--
		}
	}
	sortedVals := [3]float64{vals[idx[0]], vals[idx[1]], vals[idx[2]]}
	sortedVecs := [3]Vec3{vecs[idx[0]], vecs[idx[1]], vecs[idx[2]]}

	// Ensure a right-handed basis: flip the third eigenvector if the
	// determinant of [v0 v1 v2] is negative (spec §4.2).
	det := sortedVecs[0].X*(sortedVecs[1].Y*sortedVecs[2].Z-sortedVecs[1].Z*sortedVecs[2].Y) -
		sortedVecs[0].Y*(sortedVecs[1].X*sortedVecs[2].Z-sortedVecs[1].Z*sortedVecs[2].X) +
		sortedVecs[0].Z*(sortedVecs[1].X*sortedVecs[2].Y-sortedVecs[1].Y*sortedVecs[2].X)
	if det < 0 {
		sortedVecs[2] = sortedVecs[2].Neg()
	}

	return sortedVals, sortedVecs
}
