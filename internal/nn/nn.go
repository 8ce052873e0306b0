// Package nn implements exact nearest-neighbor search over descriptor
// sets discretized to fixed-point integers. The inner product of two
// discretized vectors accumulates in int32, which is both faster than
// float math on large candidate sets and amenable to SIMD widening.
package nn

import (
	"math"

	"github.com/hupe1980/sfmgo/internal/simd"
)

// Scale is the fixed-point discretization factor. Normalized float
// descriptors in [-1, 1] map to integers in [-127, 127], so the inner
// product of two unit-length vectors is close to Scale*Scale.
const Scale = 127

// scaleSq converts integer squared distances back to the unit scale of
// the normalized float descriptors.
const scaleSq = Scale * Scale

// Set is a flattened, discretized descriptor set. NormSq caches the
// squared norm of each discretized vector so distances can be computed
// exactly in integer space.
type Set struct {
	Dim    int
	Data   []int16
	NormSq []int32
}

// Discretize converts normalized float descriptors with the given
// dimension into a fixed-point Set. Descriptors shorter or longer than
// dim must not occur; callers validate beforehand.
func Discretize(descriptors [][]float32, dim int) *Set {
	s := &Set{
		Dim:    dim,
		Data:   make([]int16, len(descriptors)*dim),
		NormSq: make([]int32, len(descriptors)),
	}
	for i, d := range descriptors {
		row := s.Data[i*dim : (i+1)*dim]
		for j, v := range d {
			row[j] = int16(math.Round(float64(v) * Scale))
		}
		s.NormSq[i] = simd.DotInt16(row, row)
	}
	return s
}

// Count returns the number of descriptors in the set.
func (s *Set) Count() int {
	if s.Dim == 0 {
		return 0
	}
	return len(s.Data) / s.Dim
}

// Vector returns the i-th discretized descriptor.
func (s *Set) Vector(i int) []int16 {
	return s.Data[i*s.Dim : (i+1)*s.Dim]
}

// BestTwo finds the best and second-best match for query among the given
// candidate indices (all set members when candidates is nil) by squared
// Euclidean distance. The distance |q-c|^2 = |q|^2 + |c|^2 - 2<q,c> is
// exact in integer space, so a query matched against a set containing
// itself reports distance zero. Indices are NoMatch (-1) when
// unavailable.
func (s *Set) BestTwo(query []int16, candidates []int) (best1, best2 int, dist1, dist2 float32) {
	best1, best2 = -1, -1
	queryNorm := simd.DotInt16(query, query)
	var d1, d2 int32 = math.MaxInt32, math.MaxInt32

	scan := func(i int) {
		d := queryNorm + s.NormSq[i] - 2*simd.DotInt16(query, s.Vector(i))
		switch {
		case d < d1:
			d2, best2 = d1, best1
			d1, best1 = d, i
		case d < d2:
			d2, best2 = d, i
		}
	}

	if candidates == nil {
		for i, n := 0, s.Count(); i < n; i++ {
			scan(i)
		}
	} else {
		for _, i := range candidates {
			scan(i)
		}
	}

	dist1, dist2 = float32(math.Inf(1)), float32(math.Inf(1))
	if best1 >= 0 {
		dist1 = float32(d1) / scaleSq
	}
	if best2 >= 0 {
		dist2 = float32(d2) / scaleSq
	}
	return best1, best2, dist1, dist2
}
