// Package geom provides the multi-view geometry primitives used by the
// matching and reconstruction stages: camera poses, fundamental/essential
// matrix estimation, triangulation and perspective-three-point resection.
//
// Conventions:
//
//   - Image coordinates are centered: the origin is the image center and the
//     longer image side spans one unit.
//   - Rotations are row-major 3x3 matrices; a pose maps world points into the
//     camera frame via x_cam = R*x + T.
//   - Dense decompositions (SVD, eigenvalues) are delegated to gonum.
package geom
