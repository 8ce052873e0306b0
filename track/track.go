// Package track builds and maintains the track graph: connected
// components of (view, feature) observations induced by verified pairwise
// matches, each hypothesizing a single 3D scene point.
package track

import (
	"fmt"

	"github.com/hupe1980/sfmgo/geom"
)

// Reference is one observation of a track.
type Reference struct {
	View    int
	Feature int
}

// Track is a hypothesized 3D scene point. Pos is the NaN sentinel until
// triangulation assigns a position, and again after invalidation.
type Track struct {
	Pos        geom.Vec3
	Color      [3]uint8
	References []Reference
}

// NewTrack returns a track with the position sentinel set.
func NewTrack() Track {
	return Track{Pos: geom.NaNVec3()}
}

// HasPos reports whether the track currently has a valid 3D position.
func (t *Track) HasPos() bool {
	return !t.Pos.IsNaN()
}

// Invalidate resets the position to the sentinel.
func (t *Track) Invalidate() {
	t.Pos = geom.NaNVec3()
}

// Validate checks the core track-graph invariant: no view is referenced
// twice by one track.
func (t *Track) Validate() error {
	seen := make(map[int]struct{}, len(t.References))
	for _, ref := range t.References {
		if _, dup := seen[ref.View]; dup {
			return fmt.Errorf("view %d referenced twice", ref.View)
		}
		seen[ref.View] = struct{}{}
	}
	return nil
}

// TrackList is the owned track collection handed between pipeline stages.
type TrackList []Track

// Validate checks every track's invariant.
func (tl TrackList) Validate() error {
	for i := range tl {
		if err := tl[i].Validate(); err != nil {
			return fmt.Errorf("track %d: %w", i, err)
		}
	}
	return nil
}

// NumValid returns the number of tracks with a 3D position.
func (tl TrackList) NumValid() int {
	count := 0
	for i := range tl {
		if tl[i].HasPos() {
			count++
		}
	}
	return count
}
