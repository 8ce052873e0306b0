package feature

import (
	"fmt"

	"github.com/hupe1980/sfmgo/geom"
)

// TrackIDUnassigned marks a feature that belongs to no track.
const TrackIDUnassigned = -1

// Viewport bundles everything known about one input image: its dimensions
// and calibration seed, the feature data, the per-feature track
// assignment, and (once reconstructed) the camera pose.
type Viewport struct {
	// Width and Height are the original image dimensions in pixels.
	Width  int
	Height int

	// FocalLength is the initial focal length estimate in centered image
	// coordinates (focal in pixels divided by the longer image side).
	FocalLength float32

	// RadialDistortion holds the two radial distortion coefficients.
	RadialDistortion [2]float32

	// Pose is assigned by the reconstruction stage. Pose.Valid() reports
	// whether the camera has been posed.
	Pose geom.CameraPose

	// Features holds positions, colors and descriptors.
	Features FeatureSet

	// TrackIDs maps each feature to its track, or TrackIDUnassigned.
	TrackIDs []int32

	// spill holds compressed descriptors after SpillDescriptors.
	spill *descriptorSpill
}

// NewViewport returns a viewport with an invalid pose.
func NewViewport() Viewport {
	return Viewport{Pose: geom.NewCameraPose()}
}

// InitTrackIDs (re)allocates the track assignment array with every
// feature unassigned.
func (v *Viewport) InitTrackIDs() {
	v.TrackIDs = make([]int32, v.Features.Len())
	for i := range v.TrackIDs {
		v.TrackIDs[i] = TrackIDUnassigned
	}
}

// ViewportList is the owned collection handed between pipeline stages.
type ViewportList []Viewport

// Validate checks every viewport's feature invariants and that track
// assignment arrays, where present, are parallel to the feature lists.
func (vl ViewportList) Validate() error {
	for i := range vl {
		v := &vl[i]
		if err := v.Features.Validate(); err != nil {
			return &ErrViewport{View: i, Cause: err}
		}
		if v.TrackIDs != nil && len(v.TrackIDs) != v.Features.Len() {
			return &ErrViewport{
				View:  i,
				Cause: &ErrLengthMismatch{Positions: v.Features.Len(), Colors: len(v.TrackIDs)},
			}
		}
	}
	return nil
}

// ErrViewport wraps a validation error with the offending view id.
type ErrViewport struct {
	View  int
	Cause error
}

func (e *ErrViewport) Error() string {
	return fmt.Sprintf("viewport %d: %v", e.View, e.Cause)
}

func (e *ErrViewport) Unwrap() error { return e.Cause }
