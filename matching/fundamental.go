package matching

import (
	"github.com/hupe1980/sfmgo/geom"
	"github.com/hupe1980/sfmgo/ransac"
)

// fundamentalEstimator adapts the eight-point algorithm to the RANSAC
// driver. Data points are correspondences between two views.
type fundamentalEstimator struct {
	x1 []geom.Vec2
	x2 []geom.Vec2
}

var _ ransac.Estimator = (*fundamentalEstimator)(nil)

func (e *fundamentalEstimator) NumData() int {
	return len(e.x1)
}

func (e *fundamentalEstimator) SampleSize() int {
	return 8
}

func (e *fundamentalEstimator) Fit(sample []int) []ransac.Hypothesis {
	s1 := make([]geom.Vec2, len(sample))
	s2 := make([]geom.Vec2, len(sample))
	for i, idx := range sample {
		s1[i] = e.x1[idx]
		s2[i] = e.x2[idx]
	}

	f, err := geom.Fundamental8Point(s1, s2)
	if err != nil {
		return nil
	}
	return []ransac.Hypothesis{&fundamentalHypothesis{f: f, est: e}}
}

type fundamentalHypothesis struct {
	f   geom.Mat3
	est *fundamentalEstimator
}

func (h *fundamentalHypothesis) Inliers(threshold float64) []int {
	var inliers []int
	for i := range h.est.x1 {
		if geom.SampsonDistance(h.f, h.est.x1[i], h.est.x2[i]) < threshold {
			inliers = append(inliers, i)
		}
	}
	return inliers
}

// verifyPair runs RANSAC fundamental matrix estimation over raw
// correspondences and returns the surviving inlier subset.
func verifyPair(x1, x2 []geom.Vec2, opts ransac.Options) ([]int, bool) {
	res, ok := ransac.Run(&fundamentalEstimator{x1: x1, x2: x2}, opts)
	if !ok {
		return nil, false
	}
	return res.Inliers, true
}
