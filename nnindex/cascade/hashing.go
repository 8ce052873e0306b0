package cascade

import (
	"math/rand"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/sfmgo/feature"
	"github.com/hupe1980/sfmgo/internal/nn"
	"github.com/hupe1980/sfmgo/internal/simd"
	"github.com/hupe1980/sfmgo/nnindex"
)

// familyIndex holds everything shared per descriptor family: the global
// mean, the projection matrices and the per-viewport hash data.
type familyIndex struct {
	dim       int
	hashBytes int
	groups    int
	bits      int
	minCand   int
	maxCand   int

	mean      []float32
	primary   [][]float32   // dim rows of length dim
	secondary [][][]float32 // groups x bits rows of length dim

	views []familyData
}

// familyData is the per-viewport search structure: the discretized
// descriptors for exact ranking, one compressed sign-hash per descriptor,
// and the bucket tables of every group.
type familyData struct {
	set       *nn.Set
	hashes    []byte   // count * hashBytes, bit r of descriptor i at hashes[i*hashBytes+r/8]
	bucketIDs []uint32 // count * groups
	buckets   [][][]uint32
}

func newFamilyIndex(dim int, opts Options, seed int64) *familyIndex {
	f := &familyIndex{
		dim:       dim,
		hashBytes: dim / 8,
		groups:    opts.BucketGroups,
		bits:      opts.BucketBits,
		minCand:   opts.MinCandidates,
		maxCand:   opts.MaxCandidates,
	}

	rng := rand.New(rand.NewSource(seed))
	f.primary = gaussianRows(rng, dim, dim)
	f.secondary = make([][][]float32, f.groups)
	for g := range f.secondary {
		f.secondary[g] = gaussianRows(rng, f.bits, dim)
	}
	return f
}

// gaussianRows generates rows of i.i.d. standard-normal projection
// vectors from the given source.
func gaussianRows(rng *rand.Rand, rows, dim int) [][]float32 {
	out := make([][]float32, rows)
	for r := range out {
		row := make([]float32, dim)
		for j := range row {
			row[j] = float32(rng.NormFloat64())
		}
		out[r] = row
	}
	return out
}

// computeMean averages all descriptors of the family across the working
// image set. The zero-mean transform centers the sign-hash hyperplanes.
func (f *familyIndex) computeMean(viewports feature.ViewportList, descsOf func(*feature.Viewport) [][]float32) {
	f.mean = make([]float32, f.dim)
	count := 0
	for i := range viewports {
		for _, d := range descsOf(&viewports[i]) {
			for j, v := range d {
				f.mean[j] += v
			}
			count++
		}
	}
	if count == 0 {
		return
	}
	inv := 1 / float32(count)
	for j := range f.mean {
		f.mean[j] *= inv
	}
}

// build hashes one viewport's descriptors into a familyData.
func (f *familyIndex) build(descs [][]float32) familyData {
	d := familyData{
		set:       nn.Discretize(descs, f.dim),
		hashes:    make([]byte, len(descs)*f.hashBytes),
		bucketIDs: make([]uint32, len(descs)*f.groups),
		buckets:   make([][][]uint32, f.groups),
	}
	for g := range d.buckets {
		d.buckets[g] = make([][]uint32, 1<<f.bits)
	}

	z := make([]float32, f.dim)
	for i, desc := range descs {
		for j, v := range desc {
			z[j] = v - f.mean[j]
		}

		hash := d.hashes[i*f.hashBytes : (i+1)*f.hashBytes]
		for r, row := range f.primary {
			if simd.Dot(z, row) > 0 {
				hash[r/8] |= 1 << (r % 8)
			}
		}

		for g := 0; g < f.groups; g++ {
			var id uint32
			for b, row := range f.secondary[g] {
				if simd.Dot(z, row) > 0 {
					id |= 1 << b
				}
			}
			d.bucketIDs[i*f.groups+g] = id
			d.buckets[g][id] = append(d.buckets[g][id], uint32(i))
		}
	}
	return d
}

// matchOneWay runs the cascade for every descriptor of the query view
// against the candidate view.
func (f *familyIndex) matchOneWay(viewQ, viewC int, opts nnindex.FamilyOptions) []int32 {
	q, c := &f.views[viewQ], &f.views[viewC]

	out := make([]int32, q.set.Count())
	for i := range out {
		shortlist := f.shortlist(q, i, c)
		best, _, d1, d2 := c.set.BestTwo(q.set.Vector(i), shortlist)
		if best >= 0 && opts.Accept(d1, d2) {
			out[i] = int32(best)
		} else {
			out[i] = nn.NoMatch
		}
	}
	return out
}

// shortlist collects the candidate ids for one query descriptor: the
// union of same-bucket members over all groups, bucketed by Hamming
// distance to the query hash and expanded distance group by distance
// group until the candidate count reaches the configured window.
func (f *familyIndex) shortlist(q *familyData, i int, c *familyData) []int {
	union := roaring.New()
	for g := 0; g < f.groups; g++ {
		id := q.bucketIDs[i*f.groups+g]
		union.AddMany(c.buckets[g][id])
	}
	if union.IsEmpty() {
		return []int{}
	}

	queryHash := q.hashes[i*f.hashBytes : (i+1)*f.hashBytes]
	byDistance := make([][]int, f.dim+1)
	it := union.Iterator()
	for it.HasNext() {
		id := int(it.Next())
		h := simd.Hamming(queryHash, c.hashes[id*f.hashBytes:(id+1)*f.hashBytes])
		byDistance[h] = append(byDistance[h], id)
	}

	shortlist := make([]int, 0, f.maxCand)
	for _, group := range byDistance {
		for _, id := range group {
			if len(shortlist) >= f.maxCand {
				return shortlist
			}
			shortlist = append(shortlist, id)
		}
		if len(shortlist) >= f.minCand {
			break
		}
	}
	return shortlist
}
