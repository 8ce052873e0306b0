package geom

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// TriangulateOptions bounds the validity checks applied by
// TriangulateChecked.
type TriangulateOptions struct {
	// MaxReprojectionError is the per-observation reprojection error
	// ceiling in centered image coordinates.
	MaxReprojectionError float64
	// MinTriangulationAngle is the minimum angle (radians) required
	// between at least one pair of observation rays.
	MinTriangulationAngle float64
}

// DefaultTriangulateOptions matches thresholds that work well for
// normalized image coordinates.
var DefaultTriangulateOptions = TriangulateOptions{
	MaxReprojectionError:  0.01,
	MinTriangulationAngle: 1.0 * math.Pi / 180.0,
}

// TriangulateDLT triangulates a world point from two or more posed
// observations with the direct linear transform.
func TriangulateDLT(obs []Vec2, poses []*CameraPose) (Vec3, error) {
	if len(obs) != len(poses) || len(obs) < 2 {
		return Vec3{}, ErrTooFewCorrespondences
	}

	a := mat.NewDense(2*len(obs), 4, nil)
	for i, pose := range poses {
		p := projectionMatrix(pose)
		x, y := obs[i][0], obs[i][1]
		for j := 0; j < 4; j++ {
			a.Set(2*i, j, x*p[2][j]-p[0][j])
			a.Set(2*i+1, j, y*p[2][j]-p[1][j])
		}
	}

	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return Vec3{}, ErrDegenerateInput
	}
	var v mat.Dense
	svd.VTo(&v)

	w := v.At(3, 3)
	if w == 0 {
		return Vec3{}, ErrDegenerateInput
	}
	return Vec3{v.At(0, 3) / w, v.At(1, 3) / w, v.At(2, 3) / w}, nil
}

// TriangulateChecked triangulates and validates the result: the point must
// have positive depth in every camera, reproject within the error ceiling
// everywhere, and subtend at least the minimum angle between one ray pair.
// A failed check returns the NaN sentinel and false, never an error.
func TriangulateChecked(obs []Vec2, poses []*CameraPose, opts TriangulateOptions) (Vec3, bool) {
	p, err := TriangulateDLT(obs, poses)
	if err != nil {
		return NaNVec3(), false
	}

	for i, pose := range poses {
		if pose.Depth(p) <= 0 {
			return NaNVec3(), false
		}
		if pose.ReprojectionError(p, obs[i]) > opts.MaxReprojectionError {
			return NaNVec3(), false
		}
	}

	if !angleCheck(p, poses, opts.MinTriangulationAngle) {
		return NaNVec3(), false
	}
	return p, true
}

// angleCheck reports whether any pair of camera-to-point rays subtends at
// least minAngle.
func angleCheck(p Vec3, poses []*CameraPose, minAngle float64) bool {
	if minAngle <= 0 {
		return true
	}
	cosLimit := math.Cos(minAngle)

	rays := make([]Vec3, len(poses))
	for i, pose := range poses {
		rays[i] = p.Sub(pose.Position()).Normalized()
	}
	for i := 0; i < len(rays); i++ {
		for j := i + 1; j < len(rays); j++ {
			if rays[i].Dot(rays[j]) < cosLimit {
				return true
			}
		}
	}
	return false
}

// projectionMatrix returns the 3x4 matrix K*[R|T] of a pose.
func projectionMatrix(pose *CameraPose) [3][4]float64 {
	var p [3][4]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var s float64
			for k := 0; k < 3; k++ {
				s += pose.K[3*i+k] * pose.R[3*k+j]
			}
			p[i][j] = s
		}
		var s float64
		for k := 0; k < 3; k++ {
			s += pose.K[3*i+k] * pose.T[k]
		}
		p[i][3] = s
	}
	return p
}
