package sfmgo

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/hupe1980/sfmgo/feature"
	"github.com/hupe1980/sfmgo/matching"
	"github.com/hupe1980/sfmgo/prebundle"
	"github.com/hupe1980/sfmgo/reconstruct"
	"github.com/hupe1980/sfmgo/track"
)

// initialPairCandidates bounds how many ranked view pairs are tried
// before the reconstruction is declared failed.
const initialPairCandidates = 10

// Pipeline runs the structure-from-motion stages end to end. Construct
// it once with New and run it once per view collection.
type Pipeline struct {
	opts options
}

// New creates a pipeline with the given options.
//
// Example:
//
//	p := sfmgo.New(
//	    sfmgo.WithCascadeMatching(),
//	    sfmgo.WithLogger(sfmgo.NewTextLogger(slog.LevelInfo)),
//	)
//	result, err := p.Run(ctx, viewports)
func New(optFns ...Option) *Pipeline {
	return &Pipeline{opts: applyOptions(optFns)}
}

// Result is the pipeline output. Cameras in the bundle keep viewport
// order; views that never received a pose carry an invalid camera entry.
type Result struct {
	Bundle  reconstruct.Bundle
	Tracks  track.TrackList
	Matches []matching.TwoViewMatching
}

// Run executes matching, track building and reconstruction on the given
// viewports. The viewports are mutated in place: track ids and camera
// poses are assigned, and descriptors are released after matching.
func (p *Pipeline) Run(ctx context.Context, viewports feature.ViewportList) (*Result, error) {
	if len(viewports) == 0 {
		return nil, ErrNoViewports
	}
	if err := viewports.Validate(); err != nil {
		return nil, translateError("input", err)
	}
	logger := p.opts.logger

	start := time.Now()
	matches, err := p.computeMatches(ctx, viewports)
	p.opts.metricsCollector.RecordMatching(len(matches), time.Since(start), err)
	logger.LogMatching(ctx, len(viewports), len(matches), time.Since(start), err)
	if err != nil {
		return nil, translateError("matching", err)
	}

	// Matching is the only stage that reads descriptors.
	for i := range viewports {
		if p.opts.spillDescriptors {
			if err := viewports[i].SpillDescriptors(); err != nil {
				return nil, fmt.Errorf("spill descriptors of view %d: %w", i, err)
			}
		} else {
			viewports[i].CleanDescriptors()
		}
	}

	start = time.Now()
	tracks, err := track.Build(matches, viewports, logger.Logger)
	p.opts.metricsCollector.RecordTrackBuilding(len(tracks), time.Since(start), err)
	logger.LogTrackBuilding(ctx, len(tracks), time.Since(start), err)
	if err != nil {
		return nil, translateError("tracks", err)
	}

	start = time.Now()
	bundle, err := p.reconstruct(ctx, viewports, tracks)
	p.opts.metricsCollector.RecordReconstruction(len(bundle.Cameras), len(bundle.Points), time.Since(start), err)
	logger.LogReconstruction(ctx, len(bundle.Cameras), len(bundle.Points), time.Since(start), err)
	if err != nil {
		return nil, translateError("reconstruction", err)
	}

	return &Result{Bundle: bundle, Tracks: tracks, Matches: matches}, nil
}

// computeMatches runs the matching stage, or loads its result from a
// configured prebundle file when one exists.
func (p *Pipeline) computeMatches(ctx context.Context, viewports feature.ViewportList) ([]matching.TwoViewMatching, error) {
	if p.opts.prebundlePath != "" {
		if _, err := os.Stat(p.opts.prebundlePath); err == nil {
			loaded, matches, err := prebundle.LoadFile(p.opts.prebundlePath)
			if err != nil {
				return nil, err
			}
			if len(loaded) != len(viewports) {
				return nil, fmt.Errorf("%w: prebundle has %d viewports, input has %d",
					ErrCorruptPrebundle, len(loaded), len(viewports))
			}
			p.opts.logger.Info("matching loaded from prebundle",
				"path", p.opts.prebundlePath, "pairs", len(matches))
			return matches, nil
		}
	}

	matches, err := matching.Match(ctx, viewports, p.opts.matcher, p.opts.matchingOptions, p.opts.logger.Logger)
	if err != nil {
		return nil, err
	}

	if p.opts.prebundlePath != "" {
		if err := prebundle.SaveFile(p.opts.prebundlePath, viewports, matches); err != nil {
			return nil, err
		}
	}
	return matches, nil
}

// reconstruct tries ranked initial pairs until one yields a full
// reconstruction. Failing to pose an initial pair is retried against the
// next candidate; running out of candidates is fatal.
func (p *Pipeline) reconstruct(ctx context.Context, viewports feature.ViewportList, tracks track.TrackList) (reconstruct.Bundle, error) {
	pairs := rankInitialPairs(viewports, tracks)
	if len(pairs) == 0 {
		return reconstruct.Bundle{}, fmt.Errorf("%w: no view pair shares tracks", ErrReconstructionFailed)
	}
	if len(pairs) > initialPairCandidates {
		pairs = pairs[:initialPairCandidates]
	}

	var lastErr error
	for _, pair := range pairs {
		r, err := reconstruct.New(viewports, tracks, p.opts.adjuster, p.opts.reconstructOpts, p.opts.logger.Logger)
		if err != nil {
			return reconstruct.Bundle{}, err
		}
		if err := r.Reconstruct(ctx, pair[0], pair[1]); err != nil {
			p.opts.logger.WithPair(pair[0], pair[1]).Warn("initial pair failed", "error", err)
			lastErr = err
			continue
		}
		return r.CreateBundle(), nil
	}
	return reconstruct.Bundle{}, fmt.Errorf("%w: %w", ErrReconstructionFailed, lastErr)
}

// rankInitialPairs orders view pairs by the number of tracks they share,
// most first. Ties break toward the lower pair, so the ranking is
// deterministic.
func rankInitialPairs(viewports feature.ViewportList, tracks track.TrackList) [][2]int {
	shared := make(map[[2]int]int)
	for i := range tracks {
		refs := tracks[i].References
		for a := 0; a < len(refs); a++ {
			for b := a + 1; b < len(refs); b++ {
				v1, v2 := refs[a].View, refs[b].View
				if v1 > v2 {
					v1, v2 = v2, v1
				}
				shared[[2]int{v1, v2}]++
			}
		}
	}

	pairs := make([][2]int, 0, len(shared))
	for pair, count := range shared {
		// Eight shared tracks are the floor for relative pose.
		if count >= 8 {
			pairs = append(pairs, pair)
		}
	}
	sort.Slice(pairs, func(a, b int) bool {
		ca, cb := shared[pairs[a]], shared[pairs[b]]
		if ca != cb {
			return ca > cb
		}
		if pairs[a][0] != pairs[b][0] {
			return pairs[a][0] < pairs[b][0]
		}
		return pairs[a][1] < pairs[b][1]
	})
	return pairs
}
