package geom

import "gonum.org/v1/gonum/mat"

// EssentialFromFundamental converts a fundamental matrix into an essential
// matrix using the calibration matrices of both cameras: E = K2^T * F * K1.
func EssentialFromFundamental(f, k1, k2 Mat3) Mat3 {
	return k2.Transpose().Mul(f).Mul(k1)
}

// DecomposeEssential returns the four (R, T) candidates encoded in an
// essential matrix. Exactly one of them places triangulated points in
// front of both cameras; use SelectPose to disambiguate.
func DecomposeEssential(e Mat3) ([4]Mat3, [4]Vec3, error) {
	var svd mat.SVD
	if !svd.Factorize(mat.NewDense(3, 3, e[:]), mat.SVDFull) {
		return [4]Mat3{}, [4]Vec3{}, ErrDegenerateInput
	}
	var ud, vd mat.Dense
	svd.UTo(&ud)
	svd.VTo(&vd)

	var u, v Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			u[3*i+j] = ud.At(i, j)
			v[3*i+j] = vd.At(i, j)
		}
	}

	// U and V must be proper rotations for the W decomposition to hold.
	if u.Det() < 0 {
		u = u.Scale(-1)
	}
	if v.Det() < 0 {
		v = v.Scale(-1)
	}

	w := Mat3{0, -1, 0, 1, 0, 0, 0, 0, 1}

	r1 := u.Mul(w).Mul(v.Transpose())
	r2 := u.Mul(w.Transpose()).Mul(v.Transpose())
	t := Vec3{u[2], u[5], u[8]} // third column of U

	return [4]Mat3{r1, r1, r2, r2},
		[4]Vec3{t, t.Scale(-1), t, t.Scale(-1)},
		nil
}

// RelativePose computes the pose of the second camera relative to the
// first from calibrated correspondences. The first camera is placed at
// the origin (R = I, T = 0); the returned rotation and translation are
// assigned to the second. Correspondences are centered image coordinates;
// the poses must already carry valid calibration matrices.
func RelativePose(pose1, pose2 *CameraPose, x1, x2 []Vec2) error {
	f, err := Fundamental8Point(x1, x2)
	if err != nil {
		return err
	}

	e := EssentialFromFundamental(f, pose1.K, pose2.K)
	rs, ts, err := DecomposeEssential(e)
	if err != nil {
		return err
	}

	pose1.R = Identity3()
	pose1.T = Vec3{}

	// Cheirality check: pick the candidate that triangulates the most
	// points with positive depth in both cameras.
	best, bestCount := -1, -1
	for c := 0; c < 4; c++ {
		cand := CameraPose{R: rs[c], T: ts[c], K: pose2.K}
		count := 0
		for i := range x1 {
			p, err := TriangulateDLT(
				[]Vec2{x1[i], x2[i]},
				[]*CameraPose{pose1, &cand},
			)
			if err != nil {
				continue
			}
			if pose1.Depth(p) > 0 && cand.Depth(p) > 0 {
				count++
			}
		}
		if count > bestCount {
			best, bestCount = c, count
		}
	}
	if best < 0 || bestCount == 0 {
		return ErrDegenerateInput
	}

	pose2.R = rs[best]
	pose2.T = ts[best]
	return nil
}
