package track

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/hupe1980/sfmgo/feature"
	"github.com/hupe1980/sfmgo/matching"
)

// Build unions verified pairwise correspondences into tracks and assigns
// the resulting track ids back into the viewports.
//
// A connected component that references the same view through two or more
// features is a matching conflict. The resolution policy is
// deterministic: for each duplicated view the observation with the lowest
// feature id is kept and the others are dropped. This is the only point
// in the pipeline where raw match noise is discarded.
//
// Build is idempotent with respect to reference sets: running it twice on
// the same input yields tracks with identical (view, feature) sets.
// Malformed input (out-of-range view or feature indices) is fatal.
func Build(pairwise []matching.TwoViewMatching, viewports feature.ViewportList, logger *slog.Logger) (TrackList, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := viewports.Validate(); err != nil {
		return nil, err
	}

	// Flatten (view, feature) into contiguous node ids.
	offsets := make([]int, len(viewports)+1)
	for i := range viewports {
		offsets[i+1] = offsets[i] + viewports[i].Features.Len()
	}
	numNodes := offsets[len(viewports)]

	uf := newUnionFind(numNodes)
	for _, tvm := range pairwise {
		if tvm.View1 < 0 || tvm.View1 >= len(viewports) || tvm.View2 < 0 || tvm.View2 >= len(viewports) {
			return nil, fmt.Errorf("pairwise matching references unknown view pair (%d,%d)", tvm.View1, tvm.View2)
		}
		for _, m := range tvm.Matches {
			if m[0] >= viewports[tvm.View1].Features.Len() || m[1] >= viewports[tvm.View2].Features.Len() || m[0] < 0 || m[1] < 0 {
				return nil, fmt.Errorf("pair (%d,%d) references feature out of range", tvm.View1, tvm.View2)
			}
			uf.union(offsets[tvm.View1]+m[0], offsets[tvm.View2]+m[1])
		}
	}

	// Group nodes by component root. Singleton components never become
	// tracks and are skipped up front.
	sizes := make(map[int]int)
	for node := 0; node < numNodes; node++ {
		sizes[uf.find(node)]++
	}

	components := make(map[int][]int)
	var roots []int
	for node := 0; node < numNodes; node++ {
		root := uf.find(node)
		if sizes[root] < 2 {
			continue
		}
		if len(components[root]) == 0 {
			roots = append(roots, root)
		}
		components[root] = append(components[root], node)
	}
	// Track ids follow the smallest member node of each component, which
	// keeps the numbering stable across runs on identical input.
	sort.Slice(roots, func(a, b int) bool {
		return components[roots[a]][0] < components[roots[b]][0]
	})

	for i := range viewports {
		viewports[i].InitTrackIDs()
	}

	viewOf := func(node int) int {
		v := sort.SearchInts(offsets, node+1) - 1
		return v
	}

	tracks := make(TrackList, 0, len(roots))
	conflicts := 0
	for _, root := range roots {
		nodes := components[root]

		// Deterministic conflict policy: lowest feature id per view.
		// Nodes are collected in ascending order, and within one view a
		// lower node means a lower feature id, so the first occurrence
		// wins.
		refs := make([]Reference, 0, len(nodes))
		seenViews := make(map[int]bool, len(nodes))
		for _, node := range nodes {
			view := viewOf(node)
			if seenViews[view] {
				conflicts++
				continue
			}
			seenViews[view] = true
			refs = append(refs, Reference{View: view, Feature: node - offsets[view]})
		}
		if len(refs) < 2 {
			continue
		}

		t := NewTrack()
		t.References = refs
		t.Color = averageColor(viewports, refs)

		id := int32(len(tracks))
		for _, ref := range refs {
			viewports[ref.View].TrackIDs[ref.Feature] = id
		}
		tracks = append(tracks, t)
	}

	logger.Info("track building finished",
		"tracks", len(tracks),
		"droppedObservations", conflicts,
	)
	return tracks, nil
}

// averageColor averages the member feature colors for visualization.
func averageColor(viewports feature.ViewportList, refs []Reference) [3]uint8 {
	var sum [3]int
	for _, ref := range refs {
		c := viewports[ref.View].Features.Colors[ref.Feature]
		for k := 0; k < 3; k++ {
			sum[k] += int(c[k])
		}
	}
	var avg [3]uint8
	for k := 0; k < 3; k++ {
		avg[k] = uint8(sum[k] / len(refs))
	}
	return avg
}

// unionFind is a slice-based disjoint-set with path compression and
// union by rank.
type unionFind struct {
	parent []int32
	rank   []int8
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int32, n), rank: make([]int8, n)}
	for i := range uf.parent {
		uf.parent[i] = int32(i)
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for int(uf.parent[x]) != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = int(uf.parent[x])
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	switch {
	case uf.rank[ra] < uf.rank[rb]:
		uf.parent[ra] = int32(rb)
	case uf.rank[ra] > uf.rank[rb]:
		uf.parent[rb] = int32(ra)
	default:
		uf.parent[rb] = int32(ra)
		uf.rank[ra]++
	}
}
