package prebundle

import (
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/sfmgo/feature"
	"github.com/hupe1980/sfmgo/matching"
)

func testData() (feature.ViewportList, []matching.TwoViewMatching) {
	viewports := make(feature.ViewportList, 3)
	for v := range viewports {
		vp := feature.NewViewport()
		for f := 0; f < 4+v; f++ {
			vp.Features.Positions = append(vp.Features.Positions,
				[2]float32{0.1 * float32(f), -0.05 * float32(v)})
			vp.Features.Colors = append(vp.Features.Colors,
				[3]uint8{uint8(f), uint8(v), 200})
		}
		viewports[v] = vp
	}
	matches := []matching.TwoViewMatching{
		{View1: 0, View2: 1, Matches: [][2]int{{0, 1}, {3, 0}}},
		{View1: 1, View2: 2, Matches: [][2]int{{2, 5}}},
		{View1: 0, View2: 2, Matches: nil},
	}
	return viewports, matches
}

func TestRoundTrip(t *testing.T) {
	viewports, matches := testData()

	var buf bytes.Buffer
	require.NoError(t, Save(&buf, viewports, matches))

	loaded, loadedMatches, err := Load(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	require.Len(t, loaded, len(viewports))
	for v := range viewports {
		assert.Equal(t, viewports[v].Features.Positions, loaded[v].Features.Positions)
		assert.Equal(t, viewports[v].Features.Colors, loaded[v].Features.Colors)
		assert.Empty(t, loaded[v].Features.Sift, "descriptors are not part of the format")
	}
	require.Len(t, loadedMatches, len(matches))
	for i := range matches {
		assert.Equal(t, matches[i].View1, loadedMatches[i].View1)
		assert.Equal(t, matches[i].View2, loadedMatches[i].View2)
		assert.Len(t, loadedMatches[i].Matches, len(matches[i].Matches))
		for j := range matches[i].Matches {
			assert.Equal(t, matches[i].Matches[j], loadedMatches[i].Matches[j])
		}
	}

	t.Run("byte exact resave", func(t *testing.T) {
		var buf2 bytes.Buffer
		require.NoError(t, Save(&buf2, loaded, loadedMatches))
		assert.Equal(t, buf.Bytes(), buf2.Bytes())
	})
}

func TestLoadRejectsCorruptInput(t *testing.T) {
	viewports, matches := testData()
	var good bytes.Buffer
	require.NoError(t, Save(&good, viewports, matches))

	t.Run("wrong signature", func(t *testing.T) {
		data := append([]byte("SFM_SOMETHING\n"), good.Bytes()[len(Signature):]...)
		_, _, err := Load(bytes.NewReader(data))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("truncated", func(t *testing.T) {
		_, _, err := Load(bytes.NewReader(good.Bytes()[:len(good.Bytes())/2]))
		assert.ErrorIs(t, err, ErrCorruptFile)
	})

	t.Run("empty input", func(t *testing.T) {
		_, _, err := Load(bytes.NewReader(nil))
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("negative viewport count", func(t *testing.T) {
		var buf bytes.Buffer
		buf.WriteString(Signature)
		require.NoError(t, binary.Write(&buf, byteOrder, int32(-1)))
		_, _, err := Load(bytes.NewReader(buf.Bytes()))
		assert.ErrorIs(t, err, ErrCorruptFile)
	})

	t.Run("pair references unknown view", func(t *testing.T) {
		bad := []matching.TwoViewMatching{{View1: 0, View2: 7}}
		var buf bytes.Buffer
		require.NoError(t, Save(&buf, viewports, bad))
		_, _, err := Load(bytes.NewReader(buf.Bytes()))
		assert.ErrorIs(t, err, ErrCorruptFile)
	})

	t.Run("correspondence out of range", func(t *testing.T) {
		bad := []matching.TwoViewMatching{{View1: 0, View2: 1, Matches: [][2]int{{0, 400}}}}
		var buf bytes.Buffer
		require.NoError(t, Save(&buf, viewports, bad))
		_, _, err := Load(bytes.NewReader(buf.Bytes()))
		assert.ErrorIs(t, err, ErrCorruptFile)
	})
}

func TestSaveLoadFile(t *testing.T) {
	viewports, matches := testData()
	path := filepath.Join(t.TempDir(), "scene.prebundle")

	require.NoError(t, SaveFile(path, viewports, matches))
	loaded, loadedMatches, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, loaded, len(viewports))
	assert.Len(t, loadedMatches, len(matches))

	t.Run("missing file", func(t *testing.T) {
		_, _, err := LoadFile(filepath.Join(t.TempDir(), "nope.prebundle"))
		assert.Error(t, err)
	})
}
