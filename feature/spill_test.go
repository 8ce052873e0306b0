package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpillRestoreRoundTrip(t *testing.T) {
	vp := NewViewport()
	vp.Features = makeFeatureSet(4, 3)
	wantSift := vp.Features.Sift
	wantSurf := vp.Features.Surf

	require.NoError(t, vp.SpillDescriptors())
	assert.Nil(t, vp.Features.Sift)
	assert.Nil(t, vp.Features.Surf)

	// Positions and colors survive the spill.
	assert.Len(t, vp.Features.Positions, 7)

	require.NoError(t, vp.RestoreDescriptors())
	assert.Equal(t, wantSift, vp.Features.Sift)
	assert.Equal(t, wantSurf, vp.Features.Surf)

	// The blob is consumed by the restore.
	assert.ErrorIs(t, vp.RestoreDescriptors(), ErrNoSpilledDescriptors)
}

func TestSpillDescriptorsEmpty(t *testing.T) {
	vp := NewViewport()
	require.NoError(t, vp.SpillDescriptors())
	assert.ErrorIs(t, vp.RestoreDescriptors(), ErrNoSpilledDescriptors)
}

func TestCleanDescriptors(t *testing.T) {
	vp := NewViewport()
	vp.Features = makeFeatureSet(2, 2)
	require.NoError(t, vp.SpillDescriptors())

	vp.CleanDescriptors()
	assert.ErrorIs(t, vp.RestoreDescriptors(), ErrNoSpilledDescriptors)
	assert.Len(t, vp.Features.Positions, 4)
}
