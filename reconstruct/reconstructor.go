// Package reconstruct implements the incremental reconstruction state
// machine: from an initial posed pair it repeatedly selects, poses,
// triangulates, prunes and bundle-adjusts views until no further view can
// be added.
package reconstruct

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/hupe1980/sfmgo/feature"
	"github.com/hupe1980/sfmgo/geom"
	"github.com/hupe1980/sfmgo/ransac"
	"github.com/hupe1980/sfmgo/track"
)

// State is the reconstructor lifecycle phase.
type State int

const (
	StateUninitialized State = iota
	StateInitialPairPosed
	StateGrowing
	StateConverged
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialPairPosed:
		return "initial-pair-posed"
	case StateGrowing:
		return "growing"
	case StateConverged:
		return "converged"
	default:
		return "unknown"
	}
}

// ErrNotEnoughSharedTracks is returned when the chosen initial pair does
// not share enough tracks for relative pose estimation.
var ErrNotEnoughSharedTracks = errors.New("not enough shared tracks for initial pair")

// ErrWrongState is returned when an operation is called out of order.
var ErrWrongState = errors.New("operation not allowed in current state")

// Options configures the incremental reconstruction.
type Options struct {
	// MinNumViews is the number of posed observations a track needs
	// before triangulation is attempted.
	MinNumViews int

	// Triangulate bounds the triangulation validity checks.
	Triangulate geom.TriangulateOptions

	// TrackErrorThresholdFactor invalidates tracks whose mean
	// reprojection error exceeds this multiple of the median error.
	TrackErrorThresholdFactor float64

	// MinPoseInliers is the P3P inlier floor for posing a new view; the
	// effective floor never drops below 6.
	MinPoseInliers int

	// PoseRansac configures the P3P resection. The inlier threshold is
	// the reprojection distance in centered image coordinates.
	PoseRansac ransac.Options
}

// DefaultOptions are suited to centered-coordinate inputs.
var DefaultOptions = Options{
	MinNumViews:               2,
	Triangulate:               geom.DefaultTriangulateOptions,
	TrackErrorThresholdFactor: 10.0,
	MinPoseInliers:            6,
	PoseRansac: ransac.Options{
		MaxIterations:      1000,
		SuccessProbability: 0.999,
		InlierThreshold:    0.005,
		Seed:               11,
	},
}

// Reconstructor is the incremental reconstruction state machine. It takes
// exclusive ownership of the viewports and tracks for its lifetime and
// mutates them in place.
type Reconstructor struct {
	viewports feature.ViewportList
	tracks    track.TrackList
	adjuster  Adjuster
	opts      Options
	logger    *slog.Logger
	state     State
}

// New validates the input collections and returns a reconstructor in the
// uninitialized state. Mismatched track references are fatal here, before
// any processing starts.
func New(viewports feature.ViewportList, tracks track.TrackList, adjuster Adjuster, opts Options, logger *slog.Logger) (*Reconstructor, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(viewports) == 0 {
		return nil, errors.New("no viewports")
	}
	if adjuster == nil {
		return nil, errors.New("nil bundle adjuster")
	}
	if err := viewports.Validate(); err != nil {
		return nil, err
	}
	if err := tracks.Validate(); err != nil {
		return nil, err
	}
	for i := range tracks {
		for _, ref := range tracks[i].References {
			if ref.View < 0 || ref.View >= len(viewports) {
				return nil, fmt.Errorf("track %d references unknown view %d", i, ref.View)
			}
			if ref.Feature < 0 || ref.Feature >= viewports[ref.View].Features.Len() {
				return nil, fmt.Errorf("track %d references feature %d out of range in view %d", i, ref.Feature, ref.View)
			}
		}
	}

	if opts.MinNumViews < 2 {
		opts.MinNumViews = DefaultOptions.MinNumViews
	}
	if opts.TrackErrorThresholdFactor <= 0 {
		opts.TrackErrorThresholdFactor = DefaultOptions.TrackErrorThresholdFactor
	}
	if opts.MinPoseInliers < 6 {
		opts.MinPoseInliers = 6
	}

	return &Reconstructor{
		viewports: viewports,
		tracks:    tracks,
		adjuster:  adjuster,
		opts:      opts,
		logger:    logger,
		state:     StateUninitialized,
	}, nil
}

// State returns the current lifecycle phase.
func (r *Reconstructor) State() State {
	return r.state
}

// ReconstructInitialPair computes the relative pose of the two chosen
// views from their shared tracks and assigns both camera poses. The pair
// selection itself is a collaborator decision.
func (r *Reconstructor) ReconstructInitialPair(view1, view2 int) error {
	if r.state != StateUninitialized {
		return ErrWrongState
	}
	if view1 < 0 || view1 >= len(r.viewports) || view2 < 0 || view2 >= len(r.viewports) || view1 == view2 {
		return fmt.Errorf("invalid initial pair (%d,%d)", view1, view2)
	}

	x1, x2 := r.sharedTrackPositions(view1, view2)
	if len(x1) < 8 {
		return fmt.Errorf("%w: %d shared", ErrNotEnoughSharedTracks, len(x1))
	}

	v1, v2 := &r.viewports[view1], &r.viewports[view2]
	v1.Pose.InitCalibration(float64(v1.FocalLength), 0, 0)
	v2.Pose.InitCalibration(float64(v2.FocalLength), 0, 0)

	if err := geom.RelativePose(&v1.Pose, &v2.Pose, x1, x2); err != nil {
		v1.Pose.Invalidate()
		v2.Pose.Invalidate()
		return err
	}

	r.state = StateInitialPairPosed
	r.logger.Info("initial pair posed", "view1", view1, "view2", view2, "sharedTracks", len(x1))
	return nil
}

// sharedTrackPositions collects the 2D positions of tracks observed by
// both views, ordered by track id.
func (r *Reconstructor) sharedTrackPositions(view1, view2 int) (x1, x2 []geom.Vec2) {
	feat1 := make(map[int32]int)
	for f, tid := range r.viewports[view1].TrackIDs {
		if tid != feature.TrackIDUnassigned {
			feat1[tid] = f
		}
	}

	type shared struct {
		tid    int32
		f1, f2 int
	}
	var both []shared
	for f2, tid := range r.viewports[view2].TrackIDs {
		if tid == feature.TrackIDUnassigned {
			continue
		}
		if f1, ok := feat1[tid]; ok {
			both = append(both, shared{tid: tid, f1: f1, f2: f2})
		}
	}
	sort.Slice(both, func(a, b int) bool { return both[a].tid < both[b].tid })

	p1 := r.viewports[view1].Features.Positions
	p2 := r.viewports[view2].Features.Positions
	for _, s := range both {
		x1 = append(x1, geom.Vec2{float64(p1[s.f1][0]), float64(p1[s.f1][1])})
		x2 = append(x2, geom.Vec2{float64(p2[s.f2][0]), float64(p2[s.f2][1])})
	}
	return x1, x2
}

// FindNextViews ranks all unposed views by the number of observed tracks
// that already have a 3D position, best first. Ties break toward the
// lower view id, so repeated calls without state changes return the same
// order.
func (r *Reconstructor) FindNextViews() []int {
	type candidate struct {
		view  int
		count int
	}
	var cands []candidate
	for v := range r.viewports {
		if r.viewports[v].Pose.Valid() {
			continue
		}
		count := 0
		for _, tid := range r.viewports[v].TrackIDs {
			if tid != feature.TrackIDUnassigned && r.tracks[tid].HasPos() {
				count++
			}
		}
		if count > 0 {
			cands = append(cands, candidate{view: v, count: count})
		}
	}

	sort.Slice(cands, func(a, b int) bool {
		if cands[a].count != cands[b].count {
			return cands[a].count > cands[b].count
		}
		return cands[a].view < cands[b].view
	})

	views := make([]int, len(cands))
	for i, c := range cands {
		views[i] = c.view
	}
	return views
}

// ReconstructNextView attempts to pose one view by RANSAC P3P over its
// 2D-3D correspondences. Failure is a normal outcome reported as false;
// the caller falls back to the next ranked candidate.
func (r *Reconstructor) ReconstructNextView(view int) bool {
	if view < 0 || view >= len(r.viewports) || r.viewports[view].Pose.Valid() {
		return false
	}
	vp := &r.viewports[view]

	corr2d, corr3d := r.correspondences2D3D(view)
	if len(corr2d) < r.opts.MinPoseInliers {
		r.logger.Debug("view rejected", "view", view, "reason",
			fmt.Sprintf("only %d 2D-3D correspondences", len(corr2d)))
		return false
	}

	pose, inliers, ok := resectView(corr2d, corr3d, float64(vp.FocalLength), r.opts)
	if !ok || len(inliers) < r.opts.MinPoseInliers {
		r.logger.Debug("view rejected", "view", view, "reason",
			fmt.Sprintf("inliers below threshold of %d", r.opts.MinPoseInliers))
		return false
	}

	vp.Pose = pose
	r.state = StateGrowing
	r.logger.Info("view posed", "view", view, "inliers", len(inliers), "correspondences", len(corr2d))
	return true
}

// correspondences2D3D collects the observations of this view whose
// tracks already have a 3D position.
func (r *Reconstructor) correspondences2D3D(view int) ([]geom.Vec2, []geom.Vec3) {
	var p2 []geom.Vec2
	var p3 []geom.Vec3
	pos := r.viewports[view].Features.Positions
	for f, tid := range r.viewports[view].TrackIDs {
		if tid == feature.TrackIDUnassigned || !r.tracks[tid].HasPos() {
			continue
		}
		p2 = append(p2, geom.Vec2{float64(pos[f][0]), float64(pos[f][1])})
		p3 = append(p3, r.tracks[tid].Pos)
	}
	return p2, p3
}

// Reconstruct drives the whole state machine: initial pair, then
// grow-triangulate-adjust rounds until every ranked candidate fails,
// which is the normal termination. The scene is normalized afterwards.
func (r *Reconstructor) Reconstruct(ctx context.Context, initial1, initial2 int) error {
	if err := r.ReconstructInitialPair(initial1, initial2); err != nil {
		return err
	}
	r.TriangulateNewTracks(r.opts.MinNumViews)
	r.bundleAdjust(ctx, BAFull, 0)

	for {
		posed := false
		for _, view := range r.FindNextViews() {
			if !r.ReconstructNextView(view) {
				continue
			}
			r.bundleAdjust(ctx, BASingleCamera, view)
			posed = true
			break
		}
		if !posed {
			break
		}

		r.TriangulateNewTracks(r.opts.MinNumViews)
		r.bundleAdjust(ctx, BAFull, 0)
		r.InvalidateLargeErrorTracks()
	}

	r.NormalizeScene()
	r.state = StateConverged
	r.logger.Info("reconstruction converged",
		"posedViews", r.numPosedViews(),
		"validTracks", r.tracks.NumValid(),
	)
	return nil
}

func (r *Reconstructor) numPosedViews() int {
	count := 0
	for i := range r.viewports {
		if r.viewports[i].Pose.Valid() {
			count++
		}
	}
	return count
}
