// Package feature holds per-image feature data: positions, colors and the
// descriptor payloads consumed by the matching stages.
//
// Positions use centered image coordinates: the origin is the image center
// and the longer image side spans one unit. Feature lists are expected to
// arrive sorted by descending scale; the low-resolution matching shortcut
// relies on this ordering to truncate to the coarsest features.
package feature

import (
	"fmt"
)

// SiftDim and SurfDim are the fixed descriptor lengths per family.
const (
	SiftDim = 128
	SurfDim = 64
)

// FeatureSet contains the features of one image. Positions and colors are
// parallel arrays covering all features; the per-family descriptor slices
// cover disjoint contribution ranges, SIFT first, SURF after.
type FeatureSet struct {
	Positions [][2]float32
	Colors    [][3]uint8

	Sift [][]float32
	Surf [][]float32
}

// Len returns the number of features.
func (fs *FeatureSet) Len() int {
	return len(fs.Positions)
}

// Validate checks the structural invariants: positions and colors are
// parallel, every descriptor has its family's dimension, and the family
// contributions cover the feature count exactly. A set with no
// descriptors at all is valid: payloads are released after matching and
// the later pipeline stages work on positions alone.
func (fs *FeatureSet) Validate() error {
	if len(fs.Positions) != len(fs.Colors) {
		return &ErrLengthMismatch{Positions: len(fs.Positions), Colors: len(fs.Colors)}
	}
	if got := len(fs.Sift) + len(fs.Surf); got != 0 && got != len(fs.Positions) {
		return fmt.Errorf("descriptor count %d does not cover %d features", got, len(fs.Positions))
	}
	for i, d := range fs.Sift {
		if len(d) != SiftDim {
			return &ErrDescriptorDimension{Family: "sift", Index: i, Expected: SiftDim, Actual: len(d)}
		}
	}
	for i, d := range fs.Surf {
		if len(d) != SurfDim {
			return &ErrDescriptorDimension{Family: "surf", Index: i, Expected: SurfDim, Actual: len(d)}
		}
	}
	return nil
}

// ErrLengthMismatch indicates positions and colors are not parallel.
type ErrLengthMismatch struct {
	Positions int
	Colors    int
}

func (e *ErrLengthMismatch) Error() string {
	return fmt.Sprintf("length mismatch: %d positions, %d colors", e.Positions, e.Colors)
}

// ErrDescriptorDimension indicates a descriptor with the wrong length for
// its family.
type ErrDescriptorDimension struct {
	Family   string
	Index    int
	Expected int
	Actual   int
}

func (e *ErrDescriptorDimension) Error() string {
	return fmt.Sprintf("%s descriptor %d: expected dimension %d, got %d",
		e.Family, e.Index, e.Expected, e.Actual)
}
