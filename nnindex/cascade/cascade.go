// Package cascade implements the approximate matching backend based on
// cascade hashing: a primary sign-hash provides a Hamming-space surrogate
// for descriptor distance, secondary bucket hashes shortlist candidates,
// and the final ranking runs exact fixed-point search over the shortlist.
package cascade

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/sfmgo/feature"
	"github.com/hupe1980/sfmgo/internal/nn"
	"github.com/hupe1980/sfmgo/nnindex"
)

// Compile-time check.
var _ nnindex.Matcher = (*Matcher)(nil)

// Options configures the cascade-hashing backend.
type Options struct {
	// Matching holds the per-family ratio/distance filters shared with
	// the exhaustive backend.
	Matching nnindex.Options

	// BucketGroups is the number of independent secondary hash tables.
	BucketGroups int

	// BucketBits is the width of a bucket id; each group has
	// 1<<BucketBits buckets.
	BucketBits int

	// MinCandidates and MaxCandidates bound the shortlist: Hamming
	// distance groups are expanded until at least MinCandidates are
	// collected, truncated at MaxCandidates.
	MinCandidates int
	MaxCandidates int

	// Seed drives the i.i.d. standard-normal projection matrices; equal
	// seeds reproduce identical hash structures.
	Seed int64
}

// DefaultOptions mirror the parameters the cascade hashing literature
// suggests for SIFT-scale descriptor sets.
var DefaultOptions = Options{
	Matching:      nnindex.DefaultOptions,
	BucketGroups:  6,
	BucketBits:    8,
	MinCandidates: 6,
	MaxCandidates: 10,
	Seed:          1,
}

// Matcher is the cascade-hashing backend. All precomputed hash and bucket
// data is owned by the matcher and released with it when matching for the
// run completes.
type Matcher struct {
	opts Options

	sift *familyIndex
	surf *familyIndex
}

// New creates a cascade-hashing matcher. Zero-valued option fields fall
// back to their defaults.
func New(opts Options) *Matcher {
	if opts.BucketGroups <= 0 {
		opts.BucketGroups = DefaultOptions.BucketGroups
	}
	if opts.BucketBits <= 0 {
		opts.BucketBits = DefaultOptions.BucketBits
	}
	if opts.MinCandidates <= 0 {
		opts.MinCandidates = DefaultOptions.MinCandidates
	}
	if opts.MaxCandidates < opts.MinCandidates {
		opts.MaxCandidates = opts.MinCandidates + DefaultOptions.MaxCandidates - DefaultOptions.MinCandidates
	}
	zero := nnindex.FamilyOptions{}
	if opts.Matching.Sift == zero {
		opts.Matching.Sift = nnindex.DefaultOptions.Sift
	}
	if opts.Matching.Surf == zero {
		opts.Matching.Surf = nnindex.DefaultOptions.Surf
	}
	return &Matcher{opts: opts}
}

// Init builds the hash structures for every viewport. Construction is
// parallel across viewports; the projection matrices are generated once
// from the configured seed.
func (m *Matcher) Init(viewports feature.ViewportList) error {
	if err := viewports.Validate(); err != nil {
		return err
	}

	m.sift = newFamilyIndex(feature.SiftDim, m.opts, m.opts.Seed)
	m.surf = newFamilyIndex(feature.SurfDim, m.opts, m.opts.Seed+1)

	m.sift.computeMean(viewports, siftOf)
	m.surf.computeMean(viewports, surfOf)

	m.sift.views = make([]familyData, len(viewports))
	m.surf.views = make([]familyData, len(viewports))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range viewports {
		i := i
		g.Go(func() error {
			m.sift.views[i] = m.sift.build(siftOf(&viewports[i]))
			m.surf.views[i] = m.surf.build(surfOf(&viewports[i]))
			return nil
		})
	}
	return g.Wait()
}

// PairwiseMatch matches both descriptor families in both directions
// through the hash cascade.
func (m *Matcher) PairwiseMatch(view1, view2 int) (nnindex.Result, error) {
	if !m.knows(view1) || !m.knows(view2) {
		return nnindex.Result{}, nnindex.ErrUnknownView
	}

	m12, m21 := nn.CombineFamilies(
		m.sift.matchOneWay(view1, view2, m.opts.Matching.Sift),
		m.sift.matchOneWay(view2, view1, m.opts.Matching.Sift),
		m.surf.matchOneWay(view1, view2, m.opts.Matching.Surf),
		m.surf.matchOneWay(view2, view1, m.opts.Matching.Surf),
		m.sift.views[view1].set.Count(), m.sift.views[view2].set.Count(),
	)
	return nnindex.Result{Matches1to2: m12, Matches2to1: m21}, nil
}

// PairwiseMatchLowres matches the coarsest features exhaustively; the
// truncated sets are small enough that the hash cascade buys nothing.
func (m *Matcher) PairwiseMatchLowres(view1, view2, numFeatures int) (int, error) {
	if !m.knows(view1) || !m.knows(view2) {
		return 0, nnindex.ErrUnknownView
	}

	count := lowresCount(
		nn.Truncate(m.sift.views[view1].set, numFeatures),
		nn.Truncate(m.sift.views[view2].set, numFeatures),
		m.opts.Matching.Sift,
	)
	count += lowresCount(
		nn.Truncate(m.surf.views[view1].set, numFeatures),
		nn.Truncate(m.surf.views[view2].set, numFeatures),
		m.opts.Matching.Surf,
	)
	return count, nil
}

func (m *Matcher) knows(view int) bool {
	return m.sift != nil && view >= 0 && view < len(m.sift.views)
}

func siftOf(v *feature.Viewport) [][]float32 { return v.Features.Sift }
func surfOf(v *feature.Viewport) [][]float32 { return v.Features.Surf }

func lowresCount(set1, set2 *nn.Set, opts nnindex.FamilyOptions) int {
	fwd := exactOneWay(set1, set2, opts)
	bwd := exactOneWay(set2, set1, opts)
	return nn.CountConsistent(fwd, bwd)
}

func exactOneWay(queries, candidates *nn.Set, opts nnindex.FamilyOptions) []int32 {
	out := make([]int32, queries.Count())
	for i := range out {
		best, _, d1, d2 := candidates.BestTwo(queries.Vector(i), nil)
		if best >= 0 && opts.Accept(d1, d2) {
			out[i] = int32(best)
		} else {
			out[i] = nn.NoMatch
		}
	}
	return out
}
