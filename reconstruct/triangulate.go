package reconstruct

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/hupe1980/sfmgo/geom"
	"github.com/hupe1980/sfmgo/track"
)

// TriangulateNewTracks triangulates every track that has at least
// minNumViews posed observations and no 3D position yet. Tracks failing
// the depth, reprojection or angle checks stay invalid; that is a normal
// outcome. Returns the number of newly triangulated tracks.
func (r *Reconstructor) TriangulateNewTracks(minNumViews int) int {
	if minNumViews < 2 {
		minNumViews = 2
	}

	created := 0
	for ti := range r.tracks {
		t := &r.tracks[ti]
		if t.HasPos() {
			continue
		}

		obs, poses := r.posedObservations(t)
		if len(obs) < minNumViews {
			continue
		}

		if pos, ok := geom.TriangulateChecked(obs, poses, r.opts.Triangulate); ok {
			t.Pos = pos
			created++
		}
	}

	r.logger.Debug("triangulation round", "newTracks", created)
	return created
}

// posedObservations returns the 2D observations of a track in views that
// already have a pose.
func (r *Reconstructor) posedObservations(t *track.Track) ([]geom.Vec2, []*geom.CameraPose) {
	var obs []geom.Vec2
	var poses []*geom.CameraPose
	for _, ref := range t.References {
		vp := &r.viewports[ref.View]
		if !vp.Pose.Valid() {
			continue
		}
		p := vp.Features.Positions[ref.Feature]
		obs = append(obs, geom.Vec2{float64(p[0]), float64(p[1])})
		poses = append(poses, &vp.Pose)
	}
	return obs, poses
}

// InvalidateLargeErrorTracks drops tracks whose mean reprojection error
// exceeds the configured multiple of the median error over all valid
// tracks. Returns the number of invalidated tracks.
func (r *Reconstructor) InvalidateLargeErrorTracks() int {
	type trackError struct {
		track int
		err   float64
	}
	var errs []trackError
	for ti := range r.tracks {
		t := &r.tracks[ti]
		if !t.HasPos() {
			continue
		}
		obs, poses := r.posedObservations(t)
		if len(obs) == 0 {
			continue
		}
		var sum float64
		for i, pose := range poses {
			sum += pose.ReprojectionError(t.Pos, obs[i])
		}
		errs = append(errs, trackError{track: ti, err: sum / float64(len(obs))})
	}
	if len(errs) == 0 {
		return 0
	}

	sorted := make([]float64, len(errs))
	for i, te := range errs {
		sorted[i] = te.err
	}
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	threshold := r.opts.TrackErrorThresholdFactor * median

	invalidated := 0
	for _, te := range errs {
		if te.err > threshold {
			r.tracks[te.track].Invalidate()
			invalidated++
		}
	}

	r.logger.Debug("error pruning round",
		"medianError", median,
		"threshold", threshold,
		"invalidated", invalidated,
	)
	return invalidated
}

// BundleAdjustment runs one refinement round through the configured
// solver. Non-convergence is a warning: the pre-adjustment estimate is
// kept and the loop continues. Solver errors propagate.
func (r *Reconstructor) BundleAdjustment(ctx context.Context, mode BAMode, camera int) error {
	params, camOf, trackOf := r.prepareParameters(mode, camera)
	if len(params.Observations) == 0 {
		return nil
	}

	result, err := r.adjuster.Adjust(ctx, params)
	if err != nil {
		return err
	}
	if !result.Converged {
		r.logger.Warn("bundle adjustment did not converge; keeping previous estimate", "mode", mode)
		return nil
	}

	if !params.FixedCameras {
		for i, view := range camOf {
			r.viewports[view].Pose = result.Cameras[i]
		}
	}
	if !params.FixedPoints {
		for i, ti := range trackOf {
			r.tracks[ti].Pos = result.Points[i]
		}
	}
	return nil
}

// bundleAdjust is the loop-internal wrapper applying the warning policy
// to solver errors as well: a failing round never aborts reconstruction.
func (r *Reconstructor) bundleAdjust(ctx context.Context, mode BAMode, camera int) {
	if err := r.BundleAdjustment(ctx, mode, camera); err != nil {
		r.logger.Warn("bundle adjustment failed; keeping previous estimate", "mode", mode, "error", err)
	}
}

// prepareParameters lays out the posed cameras, valid points and their
// observations for the solver, returning the index mappings back into
// viewports and tracks.
func (r *Reconstructor) prepareParameters(mode BAMode, camera int) (Parameters, []int, []int) {
	params := Parameters{
		FixedCameras: mode == BAPointsOnly,
		FixedPoints:  mode == BASingleCamera,
	}

	camIndex := make(map[int]int)
	var camOf []int
	for v := range r.viewports {
		if !r.viewports[v].Pose.Valid() {
			continue
		}
		camIndex[v] = len(params.Cameras)
		camOf = append(camOf, v)
		params.Cameras = append(params.Cameras, r.viewports[v].Pose)
	}
	if mode == BASingleCamera {
		params.Camera = camIndex[camera]
	}

	var trackOf []int
	for ti := range r.tracks {
		t := &r.tracks[ti]
		if !t.HasPos() {
			continue
		}
		pointIdx := len(params.Points)
		added := false
		for _, ref := range t.References {
			ci, posed := camIndex[ref.View]
			if !posed {
				continue
			}
			p := r.viewports[ref.View].Features.Positions[ref.Feature]
			params.Observations = append(params.Observations, Observation{
				Pos:    geom.Vec2{float64(p[0]), float64(p[1])},
				Camera: ci,
				Point:  pointIdx,
			})
			added = true
		}
		if added {
			trackOf = append(trackOf, ti)
			params.Points = append(params.Points, t.Pos)
		}
	}
	return params, camOf, trackOf
}

// NormalizeScene rescales and recenters the reconstruction so valid
// points are centered at the origin with unit extent. The applied global
// similarity has no geometric meaning; it only improves numerical
// stability.
func (r *Reconstructor) NormalizeScene() {
	var centroid geom.Vec3
	count := 0
	for ti := range r.tracks {
		if r.tracks[ti].HasPos() {
			centroid = centroid.Add(r.tracks[ti].Pos)
			count++
		}
	}
	if count == 0 {
		return
	}
	centroid = centroid.Scale(1 / float64(count))

	var extent float64
	for ti := range r.tracks {
		if !r.tracks[ti].HasPos() {
			continue
		}
		d := r.tracks[ti].Pos.Sub(centroid)
		for k := 0; k < 3; k++ {
			if a := abs(d[k]); a > extent {
				extent = a
			}
		}
	}
	scale := 1.0
	if extent > 0 {
		scale = 1 / extent
	}

	for ti := range r.tracks {
		if r.tracks[ti].HasPos() {
			r.tracks[ti].Pos = r.tracks[ti].Pos.Sub(centroid).Scale(scale)
		}
	}
	for v := range r.viewports {
		pose := &r.viewports[v].Pose
		if !pose.Valid() {
			continue
		}
		// x_cam' = R*x' + s*(T + R*c) reproduces s*x_cam for the
		// transformed world x' = s*(x - c).
		pose.T = pose.T.Add(pose.R.MulVec(centroid)).Scale(scale)
	}
}

// Bundle is the final deliverable: one camera entry per viewport
// (invalid for never-posed views) and the surviving 3D tracks.
type Bundle struct {
	Cameras []geom.CameraPose
	Points  []BundlePoint
}

// BundlePoint is one reconstructed scene point.
type BundlePoint struct {
	Pos        geom.Vec3
	Color      [3]uint8
	References []track.Reference
}

// CreateBundle materializes the final camera list and the valid tracks.
// Invalidated tracks are excluded.
func (r *Reconstructor) CreateBundle() Bundle {
	b := Bundle{Cameras: make([]geom.CameraPose, len(r.viewports))}
	for v := range r.viewports {
		b.Cameras[v] = r.viewports[v].Pose
	}
	for ti := range r.tracks {
		t := &r.tracks[ti]
		if !t.HasPos() {
			continue
		}
		b.Points = append(b.Points, BundlePoint{
			Pos:        t.Pos,
			Color:      t.Color,
			References: append([]track.Reference(nil), t.References...),
		})
	}
	return b
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
