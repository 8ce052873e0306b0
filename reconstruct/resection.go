package reconstruct

import (
	"github.com/hupe1980/sfmgo/geom"
	"github.com/hupe1980/sfmgo/ransac"
)

// resectionEstimator adapts P3P to the RANSAC driver. Data points are
// 2D-3D correspondences of a single view.
type resectionEstimator struct {
	obs    []geom.Vec2
	points []geom.Vec3
	rays   []geom.Vec3
	k      geom.Mat3
}

var _ ransac.Estimator = (*resectionEstimator)(nil)

func newResectionEstimator(obs []geom.Vec2, points []geom.Vec3, focal float64) *resectionEstimator {
	e := &resectionEstimator{
		obs:    obs,
		points: points,
		rays:   make([]geom.Vec3, len(obs)),
	}
	e.k = geom.Mat3{focal, 0, 0, 0, focal, 0, 0, 0, 1}
	for i, o := range obs {
		e.rays[i] = geom.Vec3{o[0] / focal, o[1] / focal, 1}.Normalized()
	}
	return e
}

func (e *resectionEstimator) NumData() int {
	return len(e.obs)
}

func (e *resectionEstimator) SampleSize() int {
	return 3
}

func (e *resectionEstimator) Fit(sample []int) []ransac.Hypothesis {
	points := [3]geom.Vec3{e.points[sample[0]], e.points[sample[1]], e.points[sample[2]]}
	rays := [3]geom.Vec3{e.rays[sample[0]], e.rays[sample[1]], e.rays[sample[2]]}

	var hyps []ransac.Hypothesis
	for _, pose := range geom.PoseP3P(points, rays) {
		pose.K = e.k
		hyps = append(hyps, &resectionHypothesis{pose: pose, est: e})
	}
	return hyps
}

type resectionHypothesis struct {
	pose geom.CameraPose
	est  *resectionEstimator
}

// Inliers classifies correspondences by reprojection distance.
func (h *resectionHypothesis) Inliers(threshold float64) []int {
	var inliers []int
	for i := range h.est.obs {
		if h.pose.ReprojectionError(h.est.points[i], h.est.obs[i]) < threshold {
			inliers = append(inliers, i)
		}
	}
	return inliers
}

// resectView estimates the pose of one view by RANSAC P3P.
func resectView(obs []geom.Vec2, points []geom.Vec3, focal float64, opts Options) (geom.CameraPose, []int, bool) {
	est := newResectionEstimator(obs, points, focal)
	res, ok := ransac.Run(est, opts.PoseRansac)
	if !ok {
		return geom.CameraPose{}, nil, false
	}
	hyp := res.Hypothesis.(*resectionHypothesis)
	return hyp.pose, res.Inliers, true
}
