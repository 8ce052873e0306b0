package nn

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscretize(t *testing.T) {
	s := Discretize([][]float32{
		{1, -1, 0.5},
		{0, 0.25, -0.5},
	}, 3)

	assert.Equal(t, 2, s.Count())
	assert.Equal(t, []int16{127, -127, 64}, s.Vector(0))
	assert.Equal(t, []int16{0, 32, -64}, s.Vector(1))
}

func TestBestTwo(t *testing.T) {
	// Unit vectors along axes: the query is closest to itself, then to
	// the nearest remaining axis by inner product.
	s := Discretize([][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
		{0.9, 0.43, 0},
	}, 3)
	query := s.Vector(0)

	t.Run("full scan", func(t *testing.T) {
		best1, best2, dist1, dist2 := s.BestTwo(query, nil)
		assert.Equal(t, 0, best1)
		assert.Equal(t, 3, best2)
		assert.InDelta(t, 0.0, dist1, 1e-6)
		assert.Greater(t, dist2, dist1)
	})

	t.Run("restricted candidates", func(t *testing.T) {
		best1, best2, _, _ := s.BestTwo(query, []int{1, 2})
		assert.Equal(t, 1, best1)
		assert.Equal(t, 2, best2)
	})

	t.Run("single candidate", func(t *testing.T) {
		best1, best2, _, dist2 := s.BestTwo(query, []int{2})
		assert.Equal(t, 2, best1)
		assert.Equal(t, NoMatch, best2)
		assert.True(t, math.IsInf(float64(dist2), 1))
	})

	t.Run("empty candidate list", func(t *testing.T) {
		best1, best2, _, _ := s.BestTwo(query, []int{})
		assert.Equal(t, NoMatch, best1)
		assert.Equal(t, NoMatch, best2)
	})
}

func TestBestTwoSelfMatch(t *testing.T) {
	// Querying a set against itself must return the query index as the
	// best match for every member.
	descs := [][]float32{
		{0.7, 0.7, 0, 0},
		{0, 0.6, 0.8, 0},
		{0.5, 0, 0, 0.86},
		{0.1, 0.2, 0.97, 0},
	}
	s := Discretize(descs, 4)
	for i := 0; i < s.Count(); i++ {
		best1, _, dist1, _ := s.BestTwo(s.Vector(i), nil)
		require.Equal(t, i, best1)
		assert.InDelta(t, 0.0, dist1, 1e-6)
	}
}

func TestTruncate(t *testing.T) {
	s := Discretize([][]float32{{1, 0}, {0, 1}, {1, 1}}, 2)

	tr := Truncate(s, 2)
	assert.Equal(t, 2, tr.Count())
	assert.Equal(t, s.Vector(0), tr.Vector(0))

	// Truncating beyond the count is a no-op.
	assert.Same(t, s, Truncate(s, 5))
}

func TestCountConsistent(t *testing.T) {
	fwd := []int32{1, NoMatch, 0, 2}
	bwd := []int32{2, 0, 3}
	// fwd[0]=1, bwd[1]=0: consistent. fwd[2]=0, bwd[0]=2: consistent.
	// fwd[3]=2, bwd[2]=3: consistent. fwd[1] unmatched.
	assert.Equal(t, 3, CountConsistent(fwd, bwd))
	assert.Equal(t, 0, CountConsistent(nil, nil))
}

func TestCombineFamilies(t *testing.T) {
	sift12 := []int32{2, NoMatch}
	sift21 := []int32{NoMatch, 0, 1}
	surf12 := []int32{0}
	surf21 := []int32{0}

	m12, m21 := CombineFamilies(sift12, sift21, surf12, surf21, 2, 3)

	// SURF indices are shifted past the SIFT block of the other view.
	assert.Equal(t, []int32{2, NoMatch, 3}, m12)
	assert.Equal(t, []int32{NoMatch, 0, 1, 2}, m21)
}
