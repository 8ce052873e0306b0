// Package sfmgo provides an incremental structure-from-motion core for Go.
//
// Given per-view feature sets (positions, colors, SIFT/SURF descriptors),
// the pipeline recovers camera poses and a sparse 3D point cloud:
//
//   - Pairwise matching: concurrent two-view descriptor matching with a
//     low-resolution prefilter and RANSAC fundamental-matrix verification.
//     Backends: exhaustive (exact) and cascade hashing (approximate).
//   - Track building: union-find over verified correspondences with
//     deterministic conflict resolution.
//   - Incremental reconstruction: relative pose of an initial pair,
//     then repeated P3P resection, triangulation, outlier pruning and
//     bundle adjustment until no further view can be posed.
//
// # Quick Start
//
//	ctx := context.Background()
//	p := sfmgo.New(
//	    sfmgo.WithCascadeMatching(),
//	    sfmgo.WithLogger(sfmgo.NewTextLogger(slog.LevelInfo)),
//	)
//	result, err := p.Run(ctx, viewports)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, point := range result.Bundle.Points {
//	    process(point.Pos, point.Color)
//	}
//
// # Backend Selection
//
// Choose the matching backend for your collection size:
//   - exhaustive: <500 views, exact matches
//   - cascade: larger collections, ~95%+ agreement with exhaustive at a
//     fraction of the cost
//
// # Intermediate Results
//
// Matching dominates runtime. Configure a prebundle path to persist its
// result and skip the stage on reruns:
//
//	p := sfmgo.New(sfmgo.WithPrebundle("./scene.prebundle"))
//
// Image coordinates are expected in centered convention: (0,0) is the
// image center and the larger dimension spans [-0.5, 0.5]. Focal lengths
// use the same unit.
//
// The stages are also usable individually via the matching, track and
// reconstruct packages; this package wires them together.
package sfmgo
