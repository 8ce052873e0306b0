// Package exhaustive implements the brute-force matching backend: every
// query descriptor is scanned against every candidate using fixed-point
// inner products.
package exhaustive

import (
	"github.com/hupe1980/sfmgo/feature"
	"github.com/hupe1980/sfmgo/internal/nn"
	"github.com/hupe1980/sfmgo/nnindex"
)

// Compile-time check.
var _ nnindex.Matcher = (*Matcher)(nil)

// Matcher is the exhaustive nearest-neighbor backend.
type Matcher struct {
	opts  nnindex.Options
	views []viewData
}

type viewData struct {
	sift *nn.Set
	surf *nn.Set
}

// New creates an exhaustive matcher with the given options.
func New(opts nnindex.Options) *Matcher {
	return &Matcher{opts: opts}
}

// Init discretizes the descriptors of every viewport.
func (m *Matcher) Init(viewports feature.ViewportList) error {
	if err := viewports.Validate(); err != nil {
		return err
	}
	m.views = make([]viewData, len(viewports))
	for i := range viewports {
		m.views[i] = viewData{
			sift: nn.Discretize(viewports[i].Features.Sift, feature.SiftDim),
			surf: nn.Discretize(viewports[i].Features.Surf, feature.SurfDim),
		}
	}
	return nil
}

// PairwiseMatch matches both descriptor families in both directions.
func (m *Matcher) PairwiseMatch(view1, view2 int) (nnindex.Result, error) {
	if view1 < 0 || view1 >= len(m.views) || view2 < 0 || view2 >= len(m.views) {
		return nnindex.Result{}, nnindex.ErrUnknownView
	}
	v1, v2 := &m.views[view1], &m.views[view2]

	m12, m21 := nn.CombineFamilies(
		matchOneWay(v1.sift, v2.sift, m.opts.Sift),
		matchOneWay(v2.sift, v1.sift, m.opts.Sift),
		matchOneWay(v1.surf, v2.surf, m.opts.Surf),
		matchOneWay(v2.surf, v1.surf, m.opts.Surf),
		v1.sift.Count(), v2.sift.Count(),
	)
	return nnindex.Result{Matches1to2: m12, Matches2to1: m21}, nil
}

// PairwiseMatchLowres matches only the first numFeatures descriptors per
// family and returns the number of two-way consistent matches.
func (m *Matcher) PairwiseMatchLowres(view1, view2, numFeatures int) (int, error) {
	if view1 < 0 || view1 >= len(m.views) || view2 < 0 || view2 >= len(m.views) {
		return 0, nnindex.ErrUnknownView
	}
	v1, v2 := &m.views[view1], &m.views[view2]

	count := nn.CountConsistent(
		matchOneWay(nn.Truncate(v1.sift, numFeatures), nn.Truncate(v2.sift, numFeatures), m.opts.Sift),
		matchOneWay(nn.Truncate(v2.sift, numFeatures), nn.Truncate(v1.sift, numFeatures), m.opts.Sift),
	)
	count += nn.CountConsistent(
		matchOneWay(nn.Truncate(v1.surf, numFeatures), nn.Truncate(v2.surf, numFeatures), m.opts.Surf),
		matchOneWay(nn.Truncate(v2.surf, numFeatures), nn.Truncate(v1.surf, numFeatures), m.opts.Surf),
	)
	return count, nil
}

// matchOneWay finds, for every descriptor of queries, its accepted best
// match in candidates, or NoMatch.
func matchOneWay(queries, candidates *nn.Set, opts nnindex.FamilyOptions) []int32 {
	out := make([]int32, queries.Count())
	for i := range out {
		best, _, d1, d2 := candidates.BestTwo(queries.Vector(i), nil)
		if best >= 0 && opts.Accept(d1, d2) {
			out[i] = int32(best)
		} else {
			out[i] = nnindex.NoMatch
		}
	}
	return out
}

