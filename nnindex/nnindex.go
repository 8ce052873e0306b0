// Package nnindex defines the descriptor matching backends: a contract for
// two-view nearest-neighbor search plus the configuration shared by the
// exhaustive and cascade-hashing implementations.
package nnindex

import (
	"errors"

	"github.com/hupe1980/sfmgo/feature"
)

// NoMatch marks a query without an accepted nearest neighbor.
const NoMatch = -1

// ErrUnknownView is returned when a pairwise match references a view id
// outside the initialized viewport range.
var ErrUnknownView = errors.New("unknown view id")

// Matcher is the polymorphic two-view matching backend. Init precomputes
// per-viewport search structures; the per-pair calls are safe for
// concurrent use after Init returns.
type Matcher interface {
	// Init prepares the backend for the given viewports. Descriptor
	// payloads must still be present; they may be cleaned afterwards.
	Init(viewports feature.ViewportList) error

	// PairwiseMatch runs a two-way nearest-neighbor search between two
	// views and returns per-feature best-match indices, already filtered
	// by the ratio test and distance ceiling.
	PairwiseMatch(view1, view2 int) (Result, error)

	// PairwiseMatchLowres matches only the numFeatures coarsest-scale
	// features of each family and returns the number of consistent
	// matches. It is the cheap rejection path for clearly unrelated
	// pairs; feature lists must be sorted by descending scale.
	PairwiseMatchLowres(view1, view2, numFeatures int) (int, error)
}

// Result holds the outcome of a two-way match between two views. Each
// slice has one entry per feature of its side; the value is the matched
// feature index in the other view, or NoMatch.
type Result struct {
	Matches1to2 []int32
	Matches2to1 []int32
}

// ConsistentMatches returns the (feature1, feature2) pairs on which both
// directions agree.
func (r *Result) ConsistentMatches() [][2]int {
	var out [][2]int
	for i, j := range r.Matches1to2 {
		if j == NoMatch {
			continue
		}
		if int(r.Matches2to1[j]) == i {
			out = append(out, [2]int{i, int(j)})
		}
	}
	return out
}

// FamilyOptions filters accepted nearest neighbors for one descriptor
// family. Both tests operate on squared Euclidean distances of normalized
// descriptors (range [0, 4]).
type FamilyOptions struct {
	// RatioThreshold is the Lowe ratio ceiling: a best match is rejected
	// unless dist1st < RatioThreshold^2 * dist2nd.
	RatioThreshold float32

	// DistanceThreshold is the absolute ceiling on the (unsquared)
	// descriptor distance. The ceiling is inclusive: an exact duplicate
	// at distance zero passes even a zero ceiling.
	DistanceThreshold float32
}

// Accept applies the ratio test and distance ceiling to the squared
// distances of a best and second-best candidate.
func (o FamilyOptions) Accept(dist1, dist2 float32) bool {
	if dist1 > o.DistanceThreshold*o.DistanceThreshold {
		return false
	}
	return dist1 < o.RatioThreshold*o.RatioThreshold*dist2
}

// Options configures a matching backend.
type Options struct {
	Sift FamilyOptions
	Surf FamilyOptions
}

// DefaultOptions are tuned for SIFT's unsigned and SURF's signed
// descriptor distributions.
var DefaultOptions = Options{
	Sift: FamilyOptions{RatioThreshold: 0.8, DistanceThreshold: 0.7},
	Surf: FamilyOptions{RatioThreshold: 0.7, DistanceThreshold: 0.2},
}
