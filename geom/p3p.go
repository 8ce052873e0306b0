package geom

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// PoseP3P computes up to four camera pose candidates from three 2D-3D
// correspondences. points are world points; rays are the corresponding
// bearing vectors in the camera frame (normalized internally).
//
// The solver follows Grunert's formulation: the law of cosines between
// ray pairs yields a quartic in the distance ratios, each admissible root
// fixes the three point depths, and absolute orientation recovers the
// rotation and translation. Degenerate configurations (collinear world
// points, coincident rays) return no candidates.
func PoseP3P(points [3]Vec3, rays [3]Vec3) []CameraPose {
	// Collinear world points do not constrain the pose.
	cross := points[1].Sub(points[0]).Cross(points[2].Sub(points[0]))
	if cross.Dot(cross) < 1e-18 {
		return nil
	}

	f1 := rays[0].Normalized()
	f2 := rays[1].Normalized()
	f3 := rays[2].Normalized()

	// Pairwise squared distances between world points.
	a2 := points[1].Sub(points[2]).Dot(points[1].Sub(points[2]))
	b2 := points[0].Sub(points[2]).Dot(points[0].Sub(points[2]))
	c2 := points[0].Sub(points[1]).Dot(points[0].Sub(points[1]))
	if a2 == 0 || b2 == 0 || c2 == 0 {
		return nil
	}

	// Cosines of the angles between ray pairs.
	cosAlpha := f2.Dot(f3)
	cosBeta := f1.Dot(f3)
	cosGamma := f1.Dot(f2)

	// With s2 = u*s1 and s3 = v*s1 the cosine-law system reduces to a
	// quartic in v:
	//
	//	P(v)^2 - 2*cosGamma*P(v)*Q(v) + (1 - q(v))*Q(v)^2 = 0
	//
	// where P, Q, q are the polynomials below.
	m := (a2 - c2) / b2
	r := c2 / b2

	p := []float64{m + 1, -2 * m * cosBeta, m - 1}
	q := []float64{2 * cosGamma, -2 * cosAlpha}
	qq := []float64{r, -2 * r * cosBeta, r}

	quartic := polyAdd(
		polyMul(p, p),
		polyScale(polyMul(p, q), -2*cosGamma),
		polyMul(q, q),
		polyScale(polyMul(qq, polyMul(q, q)), -1),
	)

	var solutions []CameraPose
	for _, v := range realPolyRoots(quartic) {
		if v <= 0 {
			continue
		}
		den := 2 * (cosGamma - v*cosAlpha)
		if math.Abs(den) < 1e-12 {
			continue
		}
		u := ((m-1)*v*v - 2*m*cosBeta*v + (m + 1)) / den
		if u <= 0 {
			continue
		}

		s1sq := c2 / (1 + u*u - 2*u*cosGamma)
		if s1sq <= 0 {
			continue
		}
		s1 := math.Sqrt(s1sq)
		camPts := [3]Vec3{
			f1.Scale(s1),
			f2.Scale(u * s1),
			f3.Scale(v * s1),
		}

		rot, trans, ok := absoluteOrientation(points, camPts)
		if !ok {
			continue
		}
		solutions = append(solutions, CameraPose{R: rot, T: trans})
	}
	return solutions
}

// absoluteOrientation finds R, T with cam[i] = R*world[i] + T (Kabsch).
func absoluteOrientation(world, cam [3]Vec3) (Mat3, Vec3, bool) {
	var wc, cc Vec3
	for i := 0; i < 3; i++ {
		wc = wc.Add(world[i])
		cc = cc.Add(cam[i])
	}
	wc = wc.Scale(1.0 / 3.0)
	cc = cc.Scale(1.0 / 3.0)

	h := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		w := world[i].Sub(wc)
		c := cam[i].Sub(cc)
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				h.Set(j, k, h.At(j, k)+w[j]*c[k])
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDFull) {
		return Mat3{}, Vec3{}, false
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var um, vm Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			um[3*i+j] = u.At(i, j)
			vm[3*i+j] = v.At(i, j)
		}
	}

	rot := vm.Mul(um.Transpose())
	if rot.Det() < 0 {
		// Flip the axis of the smallest singular value.
		for j := 0; j < 3; j++ {
			vm[3*j+2] = -vm[3*j+2]
		}
		rot = vm.Mul(um.Transpose())
	}

	trans := cc.Sub(rot.MulVec(wc))
	return rot, trans, true
}

// polyMul returns the product of two coefficient slices (ascending order).
func polyMul(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, av := range a {
		for j, bv := range b {
			out[i+j] += av * bv
		}
	}
	return out
}

// polyAdd sums coefficient slices of possibly different lengths.
func polyAdd(ps ...[]float64) []float64 {
	maxLen := 0
	for _, p := range ps {
		if len(p) > maxLen {
			maxLen = len(p)
		}
	}
	out := make([]float64, maxLen)
	for _, p := range ps {
		for i, v := range p {
			out[i] += v
		}
	}
	return out
}

func polyScale(p []float64, s float64) []float64 {
	out := make([]float64, len(p))
	for i, v := range p {
		out[i] = s * v
	}
	return out
}

// realPolyRoots returns the real roots of a polynomial given in ascending
// coefficient order, via the eigenvalues of its companion matrix.
func realPolyRoots(coeffs []float64) []float64 {
	// Trim negligible leading coefficients.
	n := len(coeffs)
	maxAbs := 0.0
	for _, c := range coeffs {
		if a := math.Abs(c); a > maxAbs {
			maxAbs = a
		}
	}
	if maxAbs == 0 {
		return nil
	}
	for n > 1 && math.Abs(coeffs[n-1]) < 1e-14*maxAbs {
		n--
	}
	deg := n - 1
	if deg < 1 {
		return nil
	}
	if deg == 1 {
		return []float64{-coeffs[0] / coeffs[1]}
	}

	lead := coeffs[deg]
	comp := mat.NewDense(deg, deg, nil)
	for i := 0; i < deg; i++ {
		comp.Set(0, i, -coeffs[deg-1-i]/lead)
	}
	for i := 1; i < deg; i++ {
		comp.Set(i, i-1, 1)
	}

	var eig mat.Eigen
	if !eig.Factorize(comp, mat.EigenNone) {
		return nil
	}

	var roots []float64
	for _, ev := range eig.Values(nil) {
		if math.Abs(imag(ev)) < 1e-8*(1+cmplx.Abs(ev)) {
			roots = append(roots, real(ev))
		}
	}
	return roots
}
