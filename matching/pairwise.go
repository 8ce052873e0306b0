package matching

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/hupe1980/sfmgo/feature"
	"github.com/hupe1980/sfmgo/geom"
	"github.com/hupe1980/sfmgo/internal/pool"
	"github.com/hupe1980/sfmgo/nnindex"
)

// Match runs pairwise matching over all candidate viewport pairs and
// returns the accepted, verified pairs. The backend is initialized here;
// its precomputed index data can be discarded by dropping the backend
// once Match returns.
//
// Malformed input (failing viewport invariants) is fatal. A nil logger
// disables logging.
func Match(ctx context.Context, viewports feature.ViewportList, backend nnindex.Matcher, opts Options, logger *slog.Logger) ([]TwoViewMatching, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := viewports.Validate(); err != nil {
		return nil, err
	}
	if err := backend.Init(viewports); err != nil {
		return nil, err
	}

	pairs := candidatePairs(len(viewports), opts.MatchWindow)
	prog := newProgress(len(pairs), logger)

	var (
		mu      sync.Mutex
		results []TwoViewMatching
		wg      sync.WaitGroup
	)

	workers := pool.New(opts.Workers)
	defer workers.Close()

	for _, pair := range pairs {
		i, j := pair[0], pair[1]
		wg.Add(1)
		task := func() {
			defer wg.Done()

			matches, reason := matchPair(viewports, backend, i, j, opts)
			if matches == nil {
				logger.Debug("pair rejected", "view1", i, "view2", j, "reason", reason)
				prog.step(false)
				return
			}

			logger.Debug("pair accepted", "view1", i, "view2", j, "matches", len(matches))
			mu.Lock()
			results = append(results, TwoViewMatching{View1: i, View2: j, Matches: matches})
			mu.Unlock()
			prog.step(true)
		}
		if err := workers.Submit(ctx, task); err != nil {
			wg.Done()
			wg.Wait()
			return nil, err
		}
	}

	wg.Wait()
	logger.Info("pairwise matching finished",
		"pairs", len(pairs),
		"accepted", len(results),
	)
	return results, nil
}

// candidatePairs enumerates (i, j) with i < j, optionally restricted to a
// sliding window for ordered sequences.
func candidatePairs(numViews, window int) [][2]int {
	var pairs [][2]int
	for i := 0; i < numViews; i++ {
		for j := i + 1; j < numViews; j++ {
			if window > 0 && j-i > window {
				break
			}
			pairs = append(pairs, [2]int{i, j})
		}
	}
	return pairs
}

// matchPair runs the full per-pair cascade. It returns the verified
// correspondences, or nil and a human-readable rejection reason.
func matchPair(viewports feature.ViewportList, backend nnindex.Matcher, view1, view2 int, opts Options) ([][2]int, string) {
	// Cheapest rejection path first: a handful of coarse-scale features
	// decides whether the pair is worth full matching.
	if opts.NumLowresFeatures > 0 {
		n, err := backend.PairwiseMatchLowres(view1, view2, opts.NumLowresFeatures)
		if err != nil {
			return nil, err.Error()
		}
		if n < opts.MinLowresMatches {
			return nil, fmt.Sprintf("lowres matches below threshold of %d", opts.MinLowresMatches)
		}
	}

	result, err := backend.PairwiseMatch(view1, view2)
	if err != nil {
		return nil, err.Error()
	}
	raw := result.ConsistentMatches()

	if floor := minFloor(opts.MinFeatureMatches); len(raw) < floor {
		return nil, fmt.Sprintf("matches below threshold of %d", floor)
	}

	x1, x2 := correspondencePositions(viewports, view1, view2, raw)

	ropts := opts.Ransac
	ropts.Seed = pairSeed(opts.Ransac.Seed, view1, view2)
	inliers, ok := verifyPair(x1, x2, ropts)

	minInliers := minFloor(opts.MinMatchingInliers)
	if !ok || len(inliers) < minInliers {
		return nil, fmt.Sprintf("inliers below threshold of %d", minInliers)
	}

	matches := make([][2]int, len(inliers))
	for k, idx := range inliers {
		matches[k] = raw[idx]
	}
	return matches, ""
}

func correspondencePositions(viewports feature.ViewportList, view1, view2 int, matches [][2]int) (x1, x2 []geom.Vec2) {
	p1 := viewports[view1].Features.Positions
	p2 := viewports[view2].Features.Positions

	x1 = make([]geom.Vec2, len(matches))
	x2 = make([]geom.Vec2, len(matches))
	for k, m := range matches {
		x1[k] = geom.Vec2{float64(p1[m[0]][0]), float64(p1[m[0]][1])}
		x2[k] = geom.Vec2{float64(p2[m[1]][0]), float64(p2[m[1]][1])}
	}
	return x1, x2
}

// pairSeed derives a deterministic per-pair RANSAC seed so that results
// are independent of worker scheduling.
func pairSeed(base int64, view1, view2 int) int64 {
	return base ^ (int64(view1)<<32 | int64(view2))
}
