package reconstruct

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/sfmgo/feature"
	"github.com/hupe1980/sfmgo/geom"
	"github.com/hupe1980/sfmgo/testutil"
	"github.com/hupe1980/sfmgo/track"
)

// sceneFixture projects a synthetic scene into viewports and builds the
// ground-truth track graph directly, bypassing matching.
func sceneFixture(t *testing.T, numPoints, numViews int) (feature.ViewportList, track.TrackList) {
	t.Helper()
	rng := testutil.NewRNG(42)
	scene := testutil.NewScene(rng, numPoints, numViews, 1.0)
	viewports, pointOf := scene.MakeViewports(rng, 0)

	refsByPoint := make([][]track.Reference, len(scene.Points))
	for v := range pointOf {
		for f, p := range pointOf[v] {
			refsByPoint[p] = append(refsByPoint[p], track.Reference{View: v, Feature: f})
		}
	}
	for i := range viewports {
		viewports[i].InitTrackIDs()
	}
	var tracks track.TrackList
	for p := range refsByPoint {
		if len(refsByPoint[p]) < 2 {
			continue
		}
		tr := track.NewTrack()
		tr.References = refsByPoint[p]
		id := int32(len(tracks))
		for _, ref := range tr.References {
			viewports[ref.View].TrackIDs[ref.Feature] = id
		}
		tracks = append(tracks, tr)
	}
	require.NoError(t, tracks.Validate())
	return viewports, tracks
}

func TestNewValidation(t *testing.T) {
	viewports, tracks := sceneFixture(t, 20, 3)

	t.Run("no viewports", func(t *testing.T) {
		_, err := New(nil, tracks, NoopAdjuster(), DefaultOptions, nil)
		assert.Error(t, err)
	})

	t.Run("nil adjuster", func(t *testing.T) {
		_, err := New(viewports, tracks, nil, DefaultOptions, nil)
		assert.Error(t, err)
	})

	t.Run("track references unknown view", func(t *testing.T) {
		bad := track.TrackList{track.NewTrack()}
		bad[0].References = []track.Reference{{View: 0, Feature: 0}, {View: 99, Feature: 0}}
		_, err := New(viewports, bad, NoopAdjuster(), DefaultOptions, nil)
		assert.Error(t, err)
	})

	t.Run("track references feature out of range", func(t *testing.T) {
		bad := track.TrackList{track.NewTrack()}
		bad[0].References = []track.Reference{{View: 0, Feature: 10_000}, {View: 1, Feature: 0}}
		_, err := New(viewports, bad, NoopAdjuster(), DefaultOptions, nil)
		assert.Error(t, err)
	})

	t.Run("valid input", func(t *testing.T) {
		r, err := New(viewports, tracks, NoopAdjuster(), DefaultOptions, nil)
		require.NoError(t, err)
		assert.Equal(t, StateUninitialized, r.State())
	})
}

func TestReconstructInitialPair(t *testing.T) {
	t.Run("poses both views", func(t *testing.T) {
		viewports, tracks := sceneFixture(t, 40, 3)
		r, err := New(viewports, tracks, NoopAdjuster(), DefaultOptions, nil)
		require.NoError(t, err)

		require.NoError(t, r.ReconstructInitialPair(0, 2))
		assert.Equal(t, StateInitialPairPosed, r.State())
		assert.True(t, viewports[0].Pose.Valid())
		assert.True(t, viewports[2].Pose.Valid())
		assert.False(t, viewports[1].Pose.Valid())
	})

	t.Run("second call is out of order", func(t *testing.T) {
		viewports, tracks := sceneFixture(t, 40, 3)
		r, err := New(viewports, tracks, NoopAdjuster(), DefaultOptions, nil)
		require.NoError(t, err)

		require.NoError(t, r.ReconstructInitialPair(0, 1))
		assert.ErrorIs(t, r.ReconstructInitialPair(0, 2), ErrWrongState)
	})

	t.Run("too few shared tracks", func(t *testing.T) {
		viewports, tracks := sceneFixture(t, 5, 2)
		r, err := New(viewports, tracks, NoopAdjuster(), DefaultOptions, nil)
		require.NoError(t, err)

		assert.ErrorIs(t, r.ReconstructInitialPair(0, 1), ErrNotEnoughSharedTracks)
		assert.Equal(t, StateUninitialized, r.State())
	})

	t.Run("same view twice", func(t *testing.T) {
		viewports, tracks := sceneFixture(t, 40, 3)
		r, err := New(viewports, tracks, NoopAdjuster(), DefaultOptions, nil)
		require.NoError(t, err)
		assert.Error(t, r.ReconstructInitialPair(1, 1))
	})
}

func TestTriangulateNewTracks(t *testing.T) {
	viewports, tracks := sceneFixture(t, 40, 3)
	r, err := New(viewports, tracks, NoopAdjuster(), DefaultOptions, nil)
	require.NoError(t, err)
	require.NoError(t, r.ReconstructInitialPair(0, 2))

	created := r.TriangulateNewTracks(2)
	assert.Greater(t, created, 20, "nearly all tracks should triangulate on clean input")
	assert.Equal(t, created, tracks.NumValid())

	// Reprojection into the posed views must be tight regardless of the
	// global frame the relative pose picked.
	for ti := range tracks {
		if !tracks[ti].HasPos() {
			continue
		}
		for _, ref := range tracks[ti].References {
			if !viewports[ref.View].Pose.Valid() {
				continue
			}
			p := viewports[ref.View].Features.Positions[ref.Feature]
			obs := geom.Vec2{float64(p[0]), float64(p[1])}
			assert.Less(t, viewports[ref.View].Pose.ReprojectionError(tracks[ti].Pos, obs), 1e-4)
		}
	}

	t.Run("already triangulated tracks are skipped", func(t *testing.T) {
		assert.Zero(t, r.TriangulateNewTracks(2))
	})
}

func TestFindNextViews(t *testing.T) {
	viewports, tracks := sceneFixture(t, 40, 4)
	r, err := New(viewports, tracks, NoopAdjuster(), DefaultOptions, nil)
	require.NoError(t, err)

	t.Run("nothing before triangulation", func(t *testing.T) {
		assert.Empty(t, r.FindNextViews())
	})

	require.NoError(t, r.ReconstructInitialPair(0, 3))
	require.Greater(t, r.TriangulateNewTracks(2), 0)

	next := r.FindNextViews()
	assert.ElementsMatch(t, []int{1, 2}, next, "posed views are excluded")
	assert.Equal(t, next, r.FindNextViews(), "ranking is deterministic")
}

func TestReconstructNextView(t *testing.T) {
	viewports, tracks := sceneFixture(t, 40, 3)
	r, err := New(viewports, tracks, NoopAdjuster(), DefaultOptions, nil)
	require.NoError(t, err)
	require.NoError(t, r.ReconstructInitialPair(0, 2))
	require.Greater(t, r.TriangulateNewTracks(2), 0)

	require.True(t, r.ReconstructNextView(1))
	assert.Equal(t, StateGrowing, r.State())
	assert.True(t, viewports[1].Pose.Valid())

	t.Run("posed view is rejected", func(t *testing.T) {
		assert.False(t, r.ReconstructNextView(0))
	})

	t.Run("out of range view is rejected", func(t *testing.T) {
		assert.False(t, r.ReconstructNextView(-1))
		assert.False(t, r.ReconstructNextView(99))
	})
}

func TestInvalidateLargeErrorTracks(t *testing.T) {
	viewports, tracks := sceneFixture(t, 40, 3)
	r, err := New(viewports, tracks, NoopAdjuster(), DefaultOptions, nil)
	require.NoError(t, err)
	require.NoError(t, r.ReconstructInitialPair(0, 2))
	require.Greater(t, r.TriangulateNewTracks(2), 0)

	// Drag one track far off so its mean reprojection error dominates.
	corrupted := -1
	for ti := range tracks {
		if tracks[ti].HasPos() {
			corrupted = ti
			break
		}
	}
	require.GreaterOrEqual(t, corrupted, 0)
	tracks[corrupted].Pos = geom.Vec3{50, 50, 50}

	invalidated := r.InvalidateLargeErrorTracks()
	assert.GreaterOrEqual(t, invalidated, 1)
	assert.False(t, tracks[corrupted].HasPos())
}

func TestBundleAdjustment(t *testing.T) {
	setup := func(t *testing.T, adjuster Adjuster) (*Reconstructor, track.TrackList) {
		t.Helper()
		viewports, tracks := sceneFixture(t, 40, 3)
		r, err := New(viewports, tracks, adjuster, DefaultOptions, nil)
		require.NoError(t, err)
		require.NoError(t, r.ReconstructInitialPair(0, 2))
		require.Greater(t, r.TriangulateNewTracks(2), 0)
		return r, tracks
	}

	t.Run("converged result is applied", func(t *testing.T) {
		shift := AdjusterFunc(func(_ context.Context, params Parameters) (Result, error) {
			res := Result{Cameras: params.Cameras, Converged: true}
			for _, p := range params.Points {
				res.Points = append(res.Points, geom.Vec3{p[0] + 1, p[1], p[2]})
			}
			return res, nil
		})
		r, tracks := setup(t, shift)

		before := make([]geom.Vec3, len(tracks))
		for ti := range tracks {
			before[ti] = tracks[ti].Pos
		}
		require.NoError(t, r.BundleAdjustment(context.Background(), BAFull, 0))
		for ti := range tracks {
			if !tracks[ti].HasPos() {
				continue
			}
			assert.InDelta(t, before[ti][0]+1, tracks[ti].Pos[0], 1e-12)
		}
	})

	t.Run("non-convergence keeps the previous estimate", func(t *testing.T) {
		diverge := AdjusterFunc(func(_ context.Context, params Parameters) (Result, error) {
			res := Result{Cameras: params.Cameras, Converged: false}
			for range params.Points {
				res.Points = append(res.Points, geom.Vec3{999, 999, 999})
			}
			return res, nil
		})
		r, tracks := setup(t, diverge)

		before := make([]geom.Vec3, len(tracks))
		for ti := range tracks {
			before[ti] = tracks[ti].Pos
		}
		require.NoError(t, r.BundleAdjustment(context.Background(), BAFull, 0))
		for ti := range tracks {
			if !tracks[ti].HasPos() {
				continue
			}
			assert.Equal(t, before[ti], tracks[ti].Pos)
		}
	})

	t.Run("solver error propagates", func(t *testing.T) {
		solverErr := errors.New("singular normal equations")
		failing := AdjusterFunc(func(_ context.Context, _ Parameters) (Result, error) {
			return Result{}, solverErr
		})
		r, _ := setup(t, failing)
		assert.ErrorIs(t, r.BundleAdjustment(context.Background(), BAFull, 0), solverErr)
	})

	t.Run("mode flags reach the solver", func(t *testing.T) {
		var got []Parameters
		recorder := AdjusterFunc(func(_ context.Context, params Parameters) (Result, error) {
			got = append(got, params)
			return Result{Cameras: params.Cameras, Points: params.Points, Converged: true}, nil
		})
		r, _ := setup(t, recorder)

		require.NoError(t, r.BundleAdjustment(context.Background(), BAPointsOnly, 0))
		require.NoError(t, r.BundleAdjustment(context.Background(), BASingleCamera, 0))
		require.Len(t, got, 2)
		assert.True(t, got[0].FixedCameras)
		assert.False(t, got[0].FixedPoints)
		assert.False(t, got[1].FixedCameras)
		assert.True(t, got[1].FixedPoints)
	})
}

func TestNormalizeScene(t *testing.T) {
	viewports, tracks := sceneFixture(t, 40, 3)
	r, err := New(viewports, tracks, NoopAdjuster(), DefaultOptions, nil)
	require.NoError(t, err)
	require.NoError(t, r.ReconstructInitialPair(0, 2))
	require.Greater(t, r.TriangulateNewTracks(2), 0)

	type residual struct {
		track int
		view  int
		err   float64
	}
	var before []residual
	for ti := range tracks {
		if !tracks[ti].HasPos() {
			continue
		}
		for _, ref := range tracks[ti].References {
			if !viewports[ref.View].Pose.Valid() {
				continue
			}
			p := viewports[ref.View].Features.Positions[ref.Feature]
			obs := geom.Vec2{float64(p[0]), float64(p[1])}
			before = append(before, residual{ti, ref.View, viewports[ref.View].Pose.ReprojectionError(tracks[ti].Pos, obs)})
		}
	}

	r.NormalizeScene()

	var centroid geom.Vec3
	extent := 0.0
	count := 0
	for ti := range tracks {
		if !tracks[ti].HasPos() {
			continue
		}
		centroid = centroid.Add(tracks[ti].Pos)
		count++
	}
	require.Greater(t, count, 0)
	centroid = centroid.Scale(1 / float64(count))
	for ti := range tracks {
		if !tracks[ti].HasPos() {
			continue
		}
		d := tracks[ti].Pos.Sub(centroid)
		for k := 0; k < 3; k++ {
			if a := d[k]; a > extent {
				extent = a
			} else if -a > extent {
				extent = -a
			}
		}
	}

	assert.InDelta(t, 0, centroid[0], 1e-9)
	assert.InDelta(t, 0, centroid[1], 1e-9)
	assert.InDelta(t, 0, centroid[2], 1e-9)
	assert.InDelta(t, 1, extent, 1e-9)

	for _, res := range before {
		obs := geom.Vec2{}
		for _, ref := range tracks[res.track].References {
			if ref.View == res.view {
				fp := viewports[ref.View].Features.Positions[ref.Feature]
				obs = geom.Vec2{float64(fp[0]), float64(fp[1])}
			}
		}
		after := viewports[res.view].Pose.ReprojectionError(tracks[res.track].Pos, obs)
		assert.InDelta(t, res.err, after, 1e-9, "normalization must not change reprojection errors")
	}
}

func TestReconstructFallsBackToLaterCandidate(t *testing.T) {
	viewports, tracks := sceneFixture(t, 60, 5)

	// Scramble the observations of views 1 and 2: their 2D-3D
	// correspondences become geometrically meaningless, so resection
	// cannot reach the inlier floor and the growth loop has to fall
	// through to view 3.
	rng := testutil.NewRNG(99)
	for _, v := range []int{1, 2} {
		for f := range viewports[v].Features.Positions {
			viewports[v].Features.Positions[f] = [2]float32{
				float32(rng.Float64() - 0.5),
				float32(rng.Float64() - 0.5),
			}
		}
	}

	r, err := New(viewports, tracks, NoopAdjuster(), DefaultOptions, nil)
	require.NoError(t, err)
	require.NoError(t, r.Reconstruct(context.Background(), 0, 4))

	assert.Equal(t, StateConverged, r.State())
	assert.True(t, viewports[3].Pose.Valid(), "the clean candidate must be posed")
	assert.False(t, viewports[1].Pose.Valid(), "scrambled views must stay unposed")
	assert.False(t, viewports[2].Pose.Valid(), "scrambled views must stay unposed")
}

func TestReconstructEndToEnd(t *testing.T) {
	viewports, tracks := sceneFixture(t, 60, 5)
	r, err := New(viewports, tracks, NoopAdjuster(), DefaultOptions, nil)
	require.NoError(t, err)

	require.NoError(t, r.Reconstruct(context.Background(), 0, 4))
	assert.Equal(t, StateConverged, r.State())

	for v := range viewports {
		assert.True(t, viewports[v].Pose.Valid(), "view %d should be posed on clean input", v)
	}
	assert.Greater(t, tracks.NumValid(), len(tracks)/2)

	bundle := r.CreateBundle()
	assert.Len(t, bundle.Cameras, len(viewports))
	assert.Equal(t, tracks.NumValid(), len(bundle.Points))
	for _, p := range bundle.Points {
		assert.GreaterOrEqual(t, len(p.References), 2)
		assert.False(t, p.Pos.IsNaN())
	}
}

func TestCreateBundleBeforeReconstruction(t *testing.T) {
	viewports, tracks := sceneFixture(t, 20, 3)
	r, err := New(viewports, tracks, NoopAdjuster(), DefaultOptions, nil)
	require.NoError(t, err)

	bundle := r.CreateBundle()
	assert.Len(t, bundle.Cameras, len(viewports))
	for _, cam := range bundle.Cameras {
		assert.False(t, cam.Valid())
	}
	assert.Empty(t, bundle.Points)
}
