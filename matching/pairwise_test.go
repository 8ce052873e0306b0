package matching

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/sfmgo/feature"
	"github.com/hupe1980/sfmgo/nnindex"
	"github.com/hupe1980/sfmgo/nnindex/exhaustive"
	"github.com/hupe1980/sfmgo/testutil"
)

func sceneViewports(t *testing.T, numPoints, numViews int) (feature.ViewportList, [][]int) {
	t.Helper()
	rng := testutil.NewRNG(11)
	scene := testutil.NewScene(rng, numPoints, numViews, 1.0)
	viewports, pointOf := scene.MakeViewports(rng, 0.02)
	require.NoError(t, viewports.Validate())
	return viewports, pointOf
}

func testOptions() Options {
	opts := DefaultOptions
	// The synthetic views share only a few dozen features.
	opts.NumLowresFeatures = 30
	opts.MinLowresMatches = 3
	return opts
}

func TestMatchSyntheticScene(t *testing.T) {
	viewports, pointOf := sceneViewports(t, 80, 3)

	backend := exhaustive.New(nnindex.DefaultOptions)
	results, err := Match(context.Background(), viewports, backend, testOptions(), nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	for _, r := range results {
		t.Run("pair invariants", func(t *testing.T) {
			assert.Less(t, r.View1, r.View2)
			assert.NoError(t, r.Validate())
			assert.GreaterOrEqual(t, len(r.Matches), 8)
		})

		// Every surviving correspondence must join observations of the
		// same ground-truth point.
		correct := 0
		for _, m := range r.Matches {
			if pointOf[r.View1][m[0]] == pointOf[r.View2][m[1]] {
				correct++
			}
		}
		assert.GreaterOrEqual(t, correct, len(r.Matches)*9/10,
			"geometric verification must remove cross-point matches")
	}
}

func TestMatchDeterministic(t *testing.T) {
	viewports, _ := sceneViewports(t, 60, 3)
	opts := testOptions()
	opts.Workers = 4

	run := func() []TwoViewMatching {
		backend := exhaustive.New(nnindex.DefaultOptions)
		results, err := Match(context.Background(), viewports, backend, opts, nil)
		require.NoError(t, err)
		sort.Slice(results, func(a, b int) bool {
			if results[a].View1 != results[b].View1 {
				return results[a].View1 < results[b].View1
			}
			return results[a].View2 < results[b].View2
		})
		return results
	}

	assert.Equal(t, run(), run(), "parallel scheduling must not change results")
}

func TestMatchRejectsUnrelatedViews(t *testing.T) {
	// Two scenes with disjoint geometry and descriptors: every pair
	// between them must be rejected.
	rng := testutil.NewRNG(19)
	sceneA := testutil.NewScene(rng, 50, 1, 1.0)
	sceneB := testutil.NewScene(rng, 50, 1, 1.0)
	vpA, _ := sceneA.MakeViewports(rng, 0.01)
	vpB, _ := sceneB.MakeViewports(rng, 0.01)
	viewports := feature.ViewportList{vpA[0], vpB[0]}

	backend := exhaustive.New(nnindex.DefaultOptions)
	results, err := Match(context.Background(), viewports, backend, testOptions(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMatchWindow(t *testing.T) {
	viewports, _ := sceneViewports(t, 60, 4)
	opts := testOptions()
	opts.MatchWindow = 1

	backend := exhaustive.New(nnindex.DefaultOptions)
	results, err := Match(context.Background(), viewports, backend, opts, nil)
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, 1, r.View2-r.View1)
	}
}

func TestMatchCancelledContext(t *testing.T) {
	viewports, _ := sceneViewports(t, 40, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	backend := exhaustive.New(nnindex.DefaultOptions)
	// Cancellation may land before any task is queued; either a clean
	// abort or a partial result with no error is acceptable, but it must
	// not hang.
	_, err := Match(ctx, viewports, backend, testOptions(), nil)
	if err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestMatchInvalidInput(t *testing.T) {
	vp := feature.NewViewport()
	vp.Features.Positions = [][2]float32{{0, 0}}
	backend := exhaustive.New(nnindex.DefaultOptions)
	_, err := Match(context.Background(), feature.ViewportList{vp}, backend, testOptions(), nil)
	assert.Error(t, err)
}
