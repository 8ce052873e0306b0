package sfmgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting per-stage metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordMatching is called after the pairwise matching stage.
	// pairs is the number of verified pairs, err is nil if successful.
	RecordMatching(pairs int, duration time.Duration, err error)

	// RecordTrackBuilding is called after the track building stage.
	// tracks is the number of consistent tracks produced.
	RecordTrackBuilding(tracks int, duration time.Duration, err error)

	// RecordReconstruction is called after the incremental reconstruction
	// stage. cameras and points count the posed views and surviving tracks.
	RecordReconstruction(cameras, points int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordMatching(int, time.Duration, error)            {}
func (NoopMetricsCollector) RecordTrackBuilding(int, time.Duration, error)       {}
func (NoopMetricsCollector) RecordReconstruction(int, int, time.Duration, error) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	MatchingRuns          atomic.Int64
	MatchingErrors        atomic.Int64
	MatchingPairs         atomic.Int64
	MatchingTotalNanos    atomic.Int64
	TrackRuns             atomic.Int64
	TrackErrors           atomic.Int64
	Tracks                atomic.Int64
	TrackTotalNanos       atomic.Int64
	ReconstructRuns       atomic.Int64
	ReconstructErrors     atomic.Int64
	Cameras               atomic.Int64
	Points                atomic.Int64
	ReconstructTotalNanos atomic.Int64
}

// RecordMatching implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMatching(pairs int, duration time.Duration, err error) {
	b.MatchingRuns.Add(1)
	b.MatchingPairs.Add(int64(pairs))
	b.MatchingTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.MatchingErrors.Add(1)
	}
}

// RecordTrackBuilding implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTrackBuilding(tracks int, duration time.Duration, err error) {
	b.TrackRuns.Add(1)
	b.Tracks.Add(int64(tracks))
	b.TrackTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.TrackErrors.Add(1)
	}
}

// RecordReconstruction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordReconstruction(cameras, points int, duration time.Duration, err error) {
	b.ReconstructRuns.Add(1)
	b.Cameras.Add(int64(cameras))
	b.Points.Add(int64(points))
	b.ReconstructTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ReconstructErrors.Add(1)
	}
}
