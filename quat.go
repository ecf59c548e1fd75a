package spark

import "math"

// Quat is a unit quaternion (x, y, z, w) representing a 3D orientation,
// matching the splat wire-format component order throughout spec §3/§4.
type Quat struct {
	X, Y, Z, W float64
}

// IdentityQuat returns the identity orientation.
func IdentityQuat() Quat {
	return Quat{W: 1}
}

// NewQuat constructs a quaternion from components.
func NewQuat(x, y, z, w float64) Quat {
	return Quat{X: x, Y: y, Z: z, W: w}
}

// Length returns the quaternion's Euclidean length.
func (q Quat) Length() float64 {
	return math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
}

// Normalize returns a unit quaternion. Returns the identity if q has zero
// length.
func (q Quat) Normalize() Quat {
	n := q.Length()
	if n == 0 {
		return IdentityQuat()
	}
	return Quat{X: q.X / n, Y: q.Y / n, Z: q.Z / n, W: q.W / n}
}

// Neg returns the negated quaternion (same rotation, opposite sign).
func (q Quat) Neg() Quat {
	return Quat{X: -q.X, Y: -q.Y, Z: -q.Z, W: -q.W}
}

// XAxis returns the first column of the equivalent rotation matrix.
func (q Quat) XAxis() Vec3 {
	x, y, z, w := q.X, q.Y, q.Z, q.W
	return Vec3{
		X: 1 - 2*(y*y+z*z),
		Y: 2 * (x*y + w*z),
		Z: 2 * (x*z - w*y),
	}
}

// YAxis returns the second column of the equivalent rotation matrix.
func (q Quat) YAxis() Vec3 {
	x, y, z, w := q.X, q.Y, q.Z, q.W
	return Vec3{
		X: 2 * (x*y - w*z),
		Y: 1 - 2*(x*x+z*z),
		Z: 2 * (y*z + w*x),
	}
}

// ZAxis returns the third column of the equivalent rotation matrix.
func (q Quat) ZAxis() Vec3 {
	x, y, z, w := q.X, q.Y, q.Z, q.W
	return Vec3{
		X: 2 * (x*z + w*y),
		Y: 2 * (y*z - w*x),
		Z: 1 - 2*(x*x+y*y),
	}
}

// QuatFromColumns builds a unit quaternion from three orthonormal rotation
// matrix columns, as produced by SymMat3.Eigens for the LoD builder's merged
// orientation (spec §4.6 step 3). Uses Shepperd's method for numerical
// stability across the full rotation range.
func QuatFromColumns(xAxis, yAxis, zAxis Vec3) Quat {
	m00, m10, m20 := xAxis.X, xAxis.Y, xAxis.Z
	m01, m11, m21 := yAxis.X, yAxis.Y, yAxis.Z
	m02, m12, m22 := zAxis.X, zAxis.Y, zAxis.Z

	trace := m00 + m11 + m22
	var q Quat
	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q = Quat{
			W: 0.25 / s,
			X: (m21 - m12) * s,
			Y: (m02 - m20) * s,
			Z: (m10 - m01) * s,
		}
	case m00 > m11 && m00 > m22:
		s := 2 * math.Sqrt(1+m00-m11-m22)
		q = Quat{
			W: (m21 - m12) / s,
			X: 0.25 * s,
			Y: (m01 + m10) / s,
			Z: (m02 + m20) / s,
		}
	case m11 > m22:
		s := 2 * math.Sqrt(1+m11-m00-m22)
		q = Quat{
			W: (m02 - m20) / s,
			X: (m01 + m10) / s,
			Y: 0.25 * s,
			Z: (m12 + m21) / s,
		}
	default:
		s := 2 * math.Sqrt(1+m22-m00-m11)
		q = Quat{
			W: (m10 - m01) / s,
			X: (m02 + m20) / s,
			Y: (m12 + m21) / s,
			Z: 0.25 * s,
		}
	}
	return q.Normalize()
}
