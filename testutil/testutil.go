package testutil

import (
	"math"
	"math/rand"
	"sync"

	"github.com/hupe1980/sfmgo/feature"
	"github.com/hupe1980/sfmgo/geom"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0,1).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// NormFloat64 returns a standard normal pseudo-random number.
func (r *RNG) NormFloat64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.NormFloat64()
}

// Descriptor returns a unit-norm non-negative descriptor, mimicking the
// value distribution of SIFT histograms.
func (r *RNG) Descriptor(dim int) []float32 {
	d := make([]float32, dim)
	var norm float64
	for i := range d {
		v := r.Float64()
		d[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	for i := range d {
		d[i] = float32(float64(d[i]) / norm)
	}
	return d
}

// Perturb returns a renormalized noisy copy of d. eps is the per-entry
// noise amplitude; small values keep the copy the nearest neighbor of d.
func (r *RNG) Perturb(d []float32, eps float64) []float32 {
	out := make([]float32, len(d))
	var norm float64
	for i, v := range d {
		p := float64(v) + eps*(r.Float64()-0.5)
		if p < 0 {
			p = 0
		}
		out[i] = float32(p)
		norm += p * p
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / norm)
	}
	return out
}

// Scene is a synthetic 3D scene with ground-truth cameras and points.
type Scene struct {
	Points      []geom.Vec3
	Colors      [][3]uint8
	Cameras     []geom.CameraPose
	FocalLength float64
}

// NewScene creates numPoints random points near the origin and numViews
// cameras on an arc at distance ~4 looking at the point cloud.
func NewScene(rng *RNG, numPoints, numViews int, focal float64) *Scene {
	s := &Scene{FocalLength: focal}

	for i := 0; i < numPoints; i++ {
		s.Points = append(s.Points, geom.Vec3{
			rng.Float64() - 0.5,
			rng.Float64() - 0.5,
			rng.Float64() - 0.5,
		})
		s.Colors = append(s.Colors, [3]uint8{
			uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)),
		})
	}

	for v := 0; v < numViews; v++ {
		// Spread cameras over a 60 degree arc in the xz plane, with a
		// slight height offset so no two views are identical.
		angle := -math.Pi/6 + math.Pi/3*float64(v)/math.Max(1, float64(numViews-1))
		pos := geom.Vec3{4 * math.Sin(angle), 0.3 * float64(v%3), 4 * math.Cos(angle)}
		s.Cameras = append(s.Cameras, LookAt(pos, geom.Vec3{}, focal))
	}
	return s
}

// LookAt builds a camera pose at pos looking at target, with calibration
// for the given focal length.
func LookAt(pos, target geom.Vec3, focal float64) geom.CameraPose {
	forward := target.Sub(pos).Normalized()
	up := geom.Vec3{0, 1, 0}
	right := up.Cross(forward).Normalized()
	down := forward.Cross(right)

	var pose geom.CameraPose
	for c := 0; c < 3; c++ {
		pose.R[0*3+c] = right[c]
		pose.R[1*3+c] = down[c]
		pose.R[2*3+c] = forward[c]
	}
	pose.T = pose.R.MulVec(pos).Scale(-1)
	pose.InitCalibration(focal, 0, 0)
	return pose
}

// MakeViewports projects the scene into every camera and attaches one
// SIFT descriptor per observation: a shared base descriptor per point,
// perturbed by noise per view so matching has to work for it.
// Observations outside [-0.5,0.5] are dropped.
func (s *Scene) MakeViewports(rng *RNG, noise float64) (feature.ViewportList, [][]int) {
	base := make([][]float32, len(s.Points))
	for i := range base {
		base[i] = rng.Descriptor(feature.SiftDim)
	}

	viewports := make(feature.ViewportList, len(s.Cameras))
	pointOf := make([][]int, len(s.Cameras))
	for v := range s.Cameras {
		vp := feature.NewViewport()
		vp.FocalLength = float32(s.FocalLength)
		for p, pt := range s.Points {
			proj, ok := s.Cameras[v].Project(pt)
			if !ok || proj[0] < -0.5 || proj[0] > 0.5 || proj[1] < -0.5 || proj[1] > 0.5 {
				continue
			}
			vp.Features.Positions = append(vp.Features.Positions, [2]float32{float32(proj[0]), float32(proj[1])})
			vp.Features.Colors = append(vp.Features.Colors, s.Colors[p])
			vp.Features.Sift = append(vp.Features.Sift, rng.Perturb(base[p], noise))
			pointOf[v] = append(pointOf[v], p)
		}
		viewports[v] = vp
	}
	return viewports, pointOf
}
