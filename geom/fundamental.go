package geom

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrTooFewCorrespondences is returned when an estimator receives fewer
// correspondences than its minimal sample size.
var ErrTooFewCorrespondences = errors.New("too few correspondences")

// ErrDegenerateInput is returned when the input configuration does not
// constrain the model (e.g. collinear or coincident points).
var ErrDegenerateInput = errors.New("degenerate input configuration")

// Fundamental8Point estimates the fundamental matrix from at least eight
// correspondences using the normalized eight-point algorithm. Points from
// the first image satisfy x2^T * F * x1 = 0 with their counterparts.
func Fundamental8Point(x1, x2 []Vec2) (Mat3, error) {
	if len(x1) != len(x2) {
		return Mat3{}, ErrDegenerateInput
	}
	if len(x1) < 8 {
		return Mat3{}, ErrTooFewCorrespondences
	}

	t1, n1 := normalizePoints(x1)
	t2, n2 := normalizePoints(x2)

	a := mat.NewDense(len(n1), 9, nil)
	for i := range n1 {
		x, y := n1[i][0], n1[i][1]
		u, v := n2[i][0], n2[i][1]
		a.SetRow(i, []float64{
			u * x, u * y, u,
			v * x, v * y, v,
			x, y, 1,
		})
	}

	f, err := smallestRightSingularVector(a)
	if err != nil {
		return Mat3{}, err
	}

	fr, err := enforceRank2(f)
	if err != nil {
		return Mat3{}, err
	}

	// Denormalize: F = T2^T * F' * T1.
	return t2.Transpose().Mul(fr).Mul(t1), nil
}

// SampsonDistance returns the first-order geometric error of a
// correspondence with respect to a fundamental matrix.
func SampsonDistance(f Mat3, x1, x2 Vec2) float64 {
	fx := [3]float64{
		f[0]*x1[0] + f[1]*x1[1] + f[2],
		f[3]*x1[0] + f[4]*x1[1] + f[5],
		f[6]*x1[0] + f[7]*x1[1] + f[8],
	}
	ftx := [3]float64{
		f[0]*x2[0] + f[3]*x2[1] + f[6],
		f[1]*x2[0] + f[4]*x2[1] + f[7],
		f[2]*x2[0] + f[5]*x2[1] + f[8],
	}
	num := x2[0]*fx[0] + x2[1]*fx[1] + fx[2]
	den := fx[0]*fx[0] + fx[1]*fx[1] + ftx[0]*ftx[0] + ftx[1]*ftx[1]
	if den == 0 {
		return inf
	}
	return num * num / den
}

// normalizePoints computes the Hartley similarity transform that moves the
// centroid to the origin and scales the mean distance to sqrt(2), and
// returns the transformed points.
func normalizePoints(pts []Vec2) (Mat3, []Vec2) {
	var cx, cy float64
	for _, p := range pts {
		cx += p[0]
		cy += p[1]
	}
	n := float64(len(pts))
	cx /= n
	cy /= n

	var meanDist float64
	for _, p := range pts {
		meanDist += hypot2(p[0]-cx, p[1]-cy)
	}
	meanDist /= n

	scale := 1.0
	if meanDist > 0 {
		scale = math.Sqrt2 / meanDist
	}

	t := Mat3{
		scale, 0, -scale * cx,
		0, scale, -scale * cy,
		0, 0, 1,
	}
	out := make([]Vec2, len(pts))
	for i, p := range pts {
		out[i] = Vec2{scale * (p[0] - cx), scale * (p[1] - cy)}
	}
	return t, out
}

// smallestRightSingularVector returns the right singular vector of a
// associated with its smallest singular value, reshaped into a Mat3.
// A full factorization is required: with a minimal 8-row sample the thin
// V has only eight columns and the null-space vector is missing.
func smallestRightSingularVector(a *mat.Dense) (Mat3, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		return Mat3{}, ErrDegenerateInput
	}
	var v mat.Dense
	svd.VTo(&v)

	var f Mat3
	for i := 0; i < 9; i++ {
		f[i] = v.At(i, 8)
	}
	return f, nil
}

// enforceRank2 projects f onto the closest rank-2 matrix by zeroing its
// smallest singular value.
func enforceRank2(f Mat3) (Mat3, error) {
	var svd mat.SVD
	if !svd.Factorize(mat.NewDense(3, 3, f[:]), mat.SVDFull) {
		return Mat3{}, ErrDegenerateInput
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)
	s[2] = 0

	var r Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += u.At(i, k) * s[k] * v.At(j, k)
			}
			r[3*i+j] = sum
		}
	}
	return r, nil
}
