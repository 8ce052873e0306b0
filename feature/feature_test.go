package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeFeatureSet(numSift, numSurf int) FeatureSet {
	var fs FeatureSet
	for i := 0; i < numSift+numSurf; i++ {
		fs.Positions = append(fs.Positions, [2]float32{float32(i) * 0.01, -float32(i) * 0.01})
		fs.Colors = append(fs.Colors, [3]uint8{uint8(i), uint8(i), uint8(i)})
	}
	for i := 0; i < numSift; i++ {
		d := make([]float32, SiftDim)
		d[i%SiftDim] = 1
		fs.Sift = append(fs.Sift, d)
	}
	for i := 0; i < numSurf; i++ {
		d := make([]float32, SurfDim)
		d[i%SurfDim] = 1
		fs.Surf = append(fs.Surf, d)
	}
	return fs
}

func TestFeatureSetValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		fs := makeFeatureSet(3, 2)
		assert.NoError(t, fs.Validate())
		assert.Equal(t, 5, fs.Len())
	})

	t.Run("cleaned set stays valid", func(t *testing.T) {
		fs := makeFeatureSet(3, 2)
		fs.Sift = nil
		fs.Surf = nil
		assert.NoError(t, fs.Validate())
	})

	t.Run("positions colors mismatch", func(t *testing.T) {
		fs := makeFeatureSet(2, 0)
		fs.Colors = fs.Colors[:1]
		var lm *ErrLengthMismatch
		assert.ErrorAs(t, fs.Validate(), &lm)
	})

	t.Run("descriptor shortfall", func(t *testing.T) {
		fs := makeFeatureSet(2, 2)
		fs.Surf = fs.Surf[:1]
		assert.Error(t, fs.Validate())
	})

	t.Run("wrong sift dimension", func(t *testing.T) {
		fs := makeFeatureSet(2, 0)
		fs.Sift[1] = fs.Sift[1][:64]
		var dd *ErrDescriptorDimension
		require.ErrorAs(t, fs.Validate(), &dd)
		assert.Equal(t, "sift", dd.Family)
		assert.Equal(t, 1, dd.Index)
	})

	t.Run("wrong surf dimension", func(t *testing.T) {
		fs := makeFeatureSet(0, 1)
		fs.Surf[0] = append(fs.Surf[0], 0)
		var dd *ErrDescriptorDimension
		require.ErrorAs(t, fs.Validate(), &dd)
		assert.Equal(t, "surf", dd.Family)
	})
}

func TestViewportInitTrackIDs(t *testing.T) {
	vp := NewViewport()
	vp.Features = makeFeatureSet(2, 1)
	vp.InitTrackIDs()

	require.Len(t, vp.TrackIDs, 3)
	for _, tid := range vp.TrackIDs {
		assert.Equal(t, int32(TrackIDUnassigned), tid)
	}
}

func TestViewportListValidate(t *testing.T) {
	vp1 := NewViewport()
	vp1.Features = makeFeatureSet(2, 0)
	vp2 := NewViewport()
	vp2.Features = makeFeatureSet(0, 3)

	vl := ViewportList{vp1, vp2}
	assert.NoError(t, vl.Validate())

	t.Run("reports offending view", func(t *testing.T) {
		bad := NewViewport()
		bad.Features = makeFeatureSet(1, 0)
		bad.Features.Colors = nil
		vl := ViewportList{vp1, bad}

		var ev *ErrViewport
		require.ErrorAs(t, vl.Validate(), &ev)
		assert.Equal(t, 1, ev.View)
	})

	t.Run("track id length mismatch", func(t *testing.T) {
		vp := NewViewport()
		vp.Features = makeFeatureSet(2, 0)
		vp.TrackIDs = []int32{0}
		vl := ViewportList{vp}
		assert.Error(t, vl.Validate())
	})
}
