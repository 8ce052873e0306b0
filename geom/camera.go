package geom

// CameraPose holds the extrinsic and intrinsic parameters of one camera.
//
// The pose maps a world point x into the camera frame via x_cam = R*x + T.
// K is the calibration matrix in centered image coordinates, so the
// principal point is typically at or near the origin.
//
// A zero-valued CameraPose is invalid until InitCalibration (or a direct
// assignment of K) marks it usable.
type CameraPose struct {
	R Mat3
	T Vec3
	K Mat3
}

// NewCameraPose returns an invalid pose with an identity rotation.
func NewCameraPose() CameraPose {
	return CameraPose{R: Identity3()}
}

// Valid reports whether the pose has been assigned. The focal entry of K
// doubles as the validity flag: an unassigned pose has a zero K.
func (p *CameraPose) Valid() bool {
	return p.K[0] != 0
}

// InitCalibration sets K from a focal length and principal point offset,
// both in centered image coordinates.
func (p *CameraPose) InitCalibration(focal, px, py float64) {
	p.K = Mat3{
		focal, 0, px,
		0, focal, py,
		0, 0, 1,
	}
}

// Focal returns the focal length encoded in K.
func (p *CameraPose) Focal() float64 {
	return p.K[0]
}

// Position returns the camera center in world coordinates, -R^T * T.
func (p *CameraPose) Position() Vec3 {
	return p.R.Transpose().MulVec(p.T).Scale(-1)
}

// WorldToCam transforms a world point into the camera frame.
func (p *CameraPose) WorldToCam(x Vec3) Vec3 {
	return p.R.MulVec(x).Add(p.T)
}

// Depth returns the z-coordinate of a world point in the camera frame.
// Points in front of the camera have positive depth.
func (p *CameraPose) Depth(x Vec3) float64 {
	return p.R[6]*x[0] + p.R[7]*x[1] + p.R[8]*x[2] + p.T[2]
}

// Project maps a world point to centered image coordinates. The second
// return value is false when the point is behind the camera, in which case
// the projection is meaningless.
func (p *CameraPose) Project(x Vec3) (Vec2, bool) {
	c := p.WorldToCam(x)
	if c[2] <= 0 {
		return Vec2{}, false
	}
	h := p.K.MulVec(c)
	return Vec2{h[0] / h[2], h[1] / h[2]}, true
}

// ReprojectionError returns the Euclidean distance between the projection
// of x and the observation obs. Points behind the camera yield +Inf.
func (p *CameraPose) ReprojectionError(x Vec3, obs Vec2) float64 {
	proj, ok := p.Project(x)
	if !ok {
		return inf
	}
	dx := proj[0] - obs[0]
	dy := proj[1] - obs[1]
	return hypot2(dx, dy)
}

// Invalidate resets the pose to the unassigned state.
func (p *CameraPose) Invalidate() {
	*p = CameraPose{R: Identity3()}
}
