// Package ransac provides a generic robust estimation driver: hypotheses
// are fitted from random minimal samples and the one explaining the most
// data points wins.
//
// The driver is model-agnostic. Concrete estimators (fundamental matrix,
// camera resection) implement Estimator and Hypothesis next to their
// callers.
package ransac

import (
	"math"
	"math/rand"
)

// Estimator fits model hypotheses from minimal index samples.
type Estimator interface {
	// NumData returns the number of data points available for sampling.
	NumData() int

	// SampleSize returns the minimal sample size of the model.
	SampleSize() int

	// Fit returns zero or more hypotheses explaining the sampled points.
	// Minimal solvers with multiple algebraic solutions return them all;
	// degenerate samples return none.
	Fit(sample []int) []Hypothesis
}

// Hypothesis is one fitted model instance.
type Hypothesis interface {
	// Inliers returns the indices of all data points within threshold of
	// the model.
	Inliers(threshold float64) []int
}

// Options configures a RANSAC run.
type Options struct {
	// MaxIterations caps the number of sampling rounds.
	MaxIterations int

	// SuccessProbability drives the adaptive iteration count: sampling
	// stops once the probability of having drawn at least one
	// outlier-free sample exceeds this value given the best inlier
	// ratio seen so far.
	SuccessProbability float64

	// InlierThreshold is the model-specific residual ceiling.
	InlierThreshold float64

	// Seed makes runs reproducible. The driver never touches the global
	// RNG state.
	Seed int64
}

// DefaultOptions are a reasonable starting point for geometric models
// operating on centered image coordinates.
var DefaultOptions = Options{
	MaxIterations:      1000,
	SuccessProbability: 0.999,
	InlierThreshold:    0.0025,
}

// Result carries the winning hypothesis and its inlier set.
type Result struct {
	Hypothesis Hypothesis
	Inliers    []int
}

// Run executes the sampling loop and returns the best hypothesis found,
// or ok=false when no sample produced a model with at least SampleSize
// inliers.
func Run(est Estimator, opts Options) (Result, bool) {
	n := est.NumData()
	s := est.SampleSize()
	if n < s {
		return Result{}, false
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	sample := make([]int, s)

	var best Result
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultOptions.MaxIterations
	}

	for iter := 0; iter < maxIter; iter++ {
		sampleWithoutReplacement(rng, n, sample)
		for _, hyp := range est.Fit(sample) {
			inliers := hyp.Inliers(opts.InlierThreshold)
			if len(inliers) > len(best.Inliers) {
				best = Result{Hypothesis: hyp, Inliers: inliers}
				needed := requiredIterations(opts.SuccessProbability,
					float64(len(inliers))/float64(n), s)
				if needed < maxIter {
					maxIter = needed
				}
			}
		}
	}

	if best.Hypothesis == nil || len(best.Inliers) < s {
		return Result{}, false
	}
	return best, true
}

// sampleWithoutReplacement fills sample with distinct indices in [0, n).
func sampleWithoutReplacement(rng *rand.Rand, n int, sample []int) {
	for i := range sample {
		for {
			v := rng.Intn(n)
			seen := false
			for _, prev := range sample[:i] {
				if prev == v {
					seen = true
					break
				}
			}
			if !seen {
				sample[i] = v
				break
			}
		}
	}
}

// requiredIterations returns the number of rounds needed to draw an
// all-inlier sample with the given probability, assuming inlierRatio.
func requiredIterations(p, inlierRatio float64, sampleSize int) int {
	if p <= 0 || p >= 1 {
		p = DefaultOptions.SuccessProbability
	}
	if inlierRatio <= 0 {
		return math.MaxInt32
	}
	if inlierRatio >= 1 {
		return 1
	}
	wS := math.Pow(inlierRatio, float64(sampleSize))
	if wS >= 1 {
		return 1
	}
	it := math.Log(1-p) / math.Log(1-wS)
	if it < 1 {
		return 1
	}
	if it > float64(math.MaxInt32) {
		return math.MaxInt32
	}
	return int(math.Ceil(it))
}
