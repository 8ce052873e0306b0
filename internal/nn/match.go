package nn

// NoMatch marks a query without an accepted nearest neighbor.
const NoMatch = -1

// Truncate limits a set to its first n descriptors. Feature lists are
// sorted by descending scale, so this keeps the coarsest features.
func Truncate(s *Set, n int) *Set {
	if n >= s.Count() {
		return s
	}
	return &Set{Dim: s.Dim, Data: s.Data[:n*s.Dim], NormSq: s.NormSq[:n]}
}

// CountConsistent counts match entries on which both directions agree.
func CountConsistent(fwd, bwd []int32) int {
	count := 0
	for i, j := range fwd {
		if j != NoMatch && int(bwd[j]) == i {
			count++
		}
	}
	return count
}

// CombineFamilies merges per-family one-way results into feature-id
// space: SIFT features keep their indices, SURF features are offset by
// the view's SIFT count.
func CombineFamilies(sift12, sift21, surf12, surf21 []int32, siftCount1, siftCount2 int) (m12, m21 []int32) {
	m12 = make([]int32, 0, len(sift12)+len(surf12))
	m21 = make([]int32, 0, len(sift21)+len(surf21))
	m12 = AppendOffset(m12, sift12, 0)
	m12 = AppendOffset(m12, surf12, int32(siftCount2))
	m21 = AppendOffset(m21, sift21, 0)
	m21 = AppendOffset(m21, surf21, int32(siftCount1))
	return m12, m21
}

// AppendOffset appends src to dst, shifting matched indices by offset and
// passing NoMatch through unchanged.
func AppendOffset(dst, src []int32, offset int32) []int32 {
	for _, v := range src {
		if v == NoMatch {
			dst = append(dst, NoMatch)
		} else {
			dst = append(dst, v+offset)
		}
	}
	return dst
}
