package reconstruct

import (
	"context"

	"github.com/hupe1980/sfmgo/geom"
)

// BAMode selects which parameter subset bundle adjustment refines.
type BAMode int

const (
	// BAFull refines all camera poses and point positions.
	BAFull BAMode = iota
	// BASingleCamera refines one camera and holds everything else fixed.
	BASingleCamera
	// BAPointsOnly refines point positions with all cameras fixed.
	BAPointsOnly
)

func (m BAMode) String() string {
	switch m {
	case BAFull:
		return "full"
	case BASingleCamera:
		return "single-camera"
	case BAPointsOnly:
		return "points-only"
	default:
		return "unknown"
	}
}

// Observation couples one 2D measurement with its camera and point, both
// as indices into the Parameters slices.
type Observation struct {
	Pos    geom.Vec2
	Camera int
	Point  int
}

// Parameters is the input to one bundle adjustment round.
type Parameters struct {
	Cameras      []geom.CameraPose
	Points       []geom.Vec3
	Observations []Observation

	// FixedCameras and FixedPoints tell the solver which parameter
	// block to hold constant. Camera holds the single refined camera
	// index when exactly one camera moves.
	FixedCameras bool
	FixedPoints  bool
	Camera       int
}

// Result is the solver output: refined parameters in the same layout as
// the input, a per-observation reprojection residual, and a convergence
// flag. Non-convergence is not an error; the caller decides whether to
// keep the refined estimate.
type Result struct {
	Cameras   []geom.CameraPose
	Points    []geom.Vec3
	Residuals []float64
	Converged bool
}

// Adjuster is the black-box nonlinear refinement operation. The
// reconstructor prepares the parameter layout and consumes the refined
// values; the solver internals live behind this interface.
type Adjuster interface {
	Adjust(ctx context.Context, params Parameters) (Result, error)
}

// AdjusterFunc adapts a function to the Adjuster interface.
type AdjusterFunc func(ctx context.Context, params Parameters) (Result, error)

// Adjust calls f.
func (f AdjusterFunc) Adjust(ctx context.Context, params Parameters) (Result, error) {
	return f(ctx, params)
}

// NoopAdjuster returns the parameters unchanged with exact reprojection
// residuals. It is useful when no solver is wired in and for tests.
func NoopAdjuster() Adjuster {
	return AdjusterFunc(func(_ context.Context, params Parameters) (Result, error) {
		res := Result{
			Cameras:   params.Cameras,
			Points:    params.Points,
			Residuals: make([]float64, len(params.Observations)),
			Converged: true,
		}
		for i, obs := range params.Observations {
			cam := &params.Cameras[obs.Camera]
			res.Residuals[i] = cam.ReprojectionError(params.Points[obs.Point], obs.Pos)
		}
		return res, nil
	})
}
