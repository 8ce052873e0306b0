// Package matching drives pairwise feature matching across viewports:
// candidate pairs are matched through a nearest-neighbor backend, filtered
// for two-way consistency, and geometrically verified with a RANSAC
// fundamental matrix before they enter the track graph.
//
// Pair rejection is a normal outcome, never an error: rejected pairs are
// logged with their reason and simply omitted from the result. The result
// list is assembled by parallel workers and carries no meaningful order;
// downstream stages must treat it as a set.
package matching

import (
	"fmt"

	"github.com/hupe1980/sfmgo/ransac"
)

// TwoViewMatching is an accepted, geometrically verified pair of views
// with its surviving correspondences.
type TwoViewMatching struct {
	// View1 and View2 are viewport indices with View1 < View2.
	View1 int
	View2 int

	// Matches holds (feature in View1, feature in View2) index pairs.
	Matches [][2]int
}

// Validate checks that no feature index occurs twice on either side.
func (t *TwoViewMatching) Validate() error {
	seen1 := make(map[int]struct{}, len(t.Matches))
	seen2 := make(map[int]struct{}, len(t.Matches))
	for _, m := range t.Matches {
		if _, dup := seen1[m[0]]; dup {
			return fmt.Errorf("pair (%d,%d): feature %d repeated in view %d",
				t.View1, t.View2, m[0], t.View1)
		}
		if _, dup := seen2[m[1]]; dup {
			return fmt.Errorf("pair (%d,%d): feature %d repeated in view %d",
				t.View1, t.View2, m[1], t.View2)
		}
		seen1[m[0]] = struct{}{}
		seen2[m[1]] = struct{}{}
	}
	return nil
}

// Options configures the pairwise matching stage.
type Options struct {
	// NumLowresFeatures enables the low-resolution pre-filter: only this
	// many coarsest-scale features per family are matched first, and the
	// pair is rejected outright when too few succeed. Zero disables the
	// pre-filter.
	NumLowresFeatures int

	// MinLowresMatches is the pre-filter acceptance floor.
	MinLowresMatches int

	// MinFeatureMatches is the floor on two-way consistent raw matches;
	// the effective floor is never below the 8 correspondences the
	// fundamental matrix needs.
	MinFeatureMatches int

	// MinMatchingInliers is the floor on RANSAC inliers, with the same
	// effective minimum of 8.
	MinMatchingInliers int

	// MatchWindow restricts matching to pairs (i, j) with j-i <= window,
	// for ordered sequences. Zero matches all pairs.
	MatchWindow int

	// Ransac configures the fundamental matrix estimation. The inlier
	// threshold applies to the Sampson error, which is in squared
	// centered-coordinate units. The per-pair RANSAC seed is derived
	// from Ransac.Seed and the pair indices, so results do not depend
	// on worker scheduling.
	Ransac ransac.Options

	// Workers bounds the matching parallelism; zero means GOMAXPROCS.
	Workers int
}

// DefaultOptions matches unordered photo collections of a few thousand
// features per image.
var DefaultOptions = Options{
	NumLowresFeatures:  500,
	MinLowresMatches:   5,
	MinFeatureMatches:  24,
	MinMatchingInliers: 12,
	Ransac: ransac.Options{
		MaxIterations:      1000,
		SuccessProbability: 0.999,
		// About two pixels at a 2000 pixel image width.
		InlierThreshold: 1e-6,
		Seed:            7,
	},
}

// minFloor returns max(8, n): geometric verification needs eight
// correspondences no matter how permissive the configuration is.
func minFloor(n int) int {
	if n < 8 {
		return 8
	}
	return n
}
