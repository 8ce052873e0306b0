package geom

import "math"

var inf = math.Inf(1)

func hypot2(x, y float64) float64 {
	return math.Sqrt(x*x + y*y)
}

// Vec2 is a 2D point in centered image coordinates.
type Vec2 [2]float64

// Vec3 is a 3D point or direction.
type Vec3 [3]float64

// Mat3 is a row-major 3x3 matrix.
type Mat3 [9]float64

// Identity3 returns the 3x3 identity matrix.
func Identity3() Mat3 {
	return Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// Add returns a + b.
func (a Vec3) Add(b Vec3) Vec3 {
	return Vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]}
}

// Sub returns a - b.
func (a Vec3) Sub(b Vec3) Vec3 {
	return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]}
}

// Scale returns s * a.
func (a Vec3) Scale(s float64) Vec3 {
	return Vec3{s * a[0], s * a[1], s * a[2]}
}

// Dot returns the inner product of a and b.
func (a Vec3) Dot(b Vec3) float64 {
	return a[0]*b[0] + a[1]*b[1] + a[2]*b[2]
}

// Cross returns the cross product a x b.
func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// Norm returns the Euclidean length of a.
func (a Vec3) Norm() float64 {
	return math.Sqrt(a.Dot(a))
}

// Normalized returns a scaled to unit length. The zero vector is returned
// unchanged.
func (a Vec3) Normalized() Vec3 {
	n := a.Norm()
	if n == 0 {
		return a
	}
	return a.Scale(1 / n)
}

// IsNaN reports whether any component is NaN.
func (a Vec3) IsNaN() bool {
	return math.IsNaN(a[0]) || math.IsNaN(a[1]) || math.IsNaN(a[2])
}

// NaNVec3 returns the invalid-position sentinel.
func NaNVec3() Vec3 {
	nan := math.NaN()
	return Vec3{nan, nan, nan}
}

// MulVec returns m * v.
func (m Mat3) MulVec(v Vec3) Vec3 {
	return Vec3{
		m[0]*v[0] + m[1]*v[1] + m[2]*v[2],
		m[3]*v[0] + m[4]*v[1] + m[5]*v[2],
		m[6]*v[0] + m[7]*v[1] + m[8]*v[2],
	}
}

// Mul returns the matrix product m * n.
func (m Mat3) Mul(n Mat3) Mat3 {
	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += m[3*i+k] * n[3*k+j]
			}
			r[3*i+j] = s
		}
	}
	return r
}

// Transpose returns the transpose of m.
func (m Mat3) Transpose() Mat3 {
	return Mat3{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// Det returns the determinant of m.
func (m Mat3) Det() float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// Scale returns s * m.
func (m Mat3) Scale(s float64) Mat3 {
	var r Mat3
	for i := range m {
		r[i] = s * m[i]
	}
	return r
}

// rowsToMat3 builds a Mat3 whose rows are the given vectors.
func rowsToMat3(r0, r1, r2 Vec3) Mat3 {
	return Mat3{
		r0[0], r0[1], r0[2],
		r1[0], r1[1], r1[2],
		r2[0], r2[1], r2[2],
	}
}
