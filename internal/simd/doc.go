// Package simd provides the hot-loop kernels used by the descriptor matchers.
//
// # Operations
//
//   - Dot: float32 inner product (exact distance on the candidate shortlist)
//   - DotInt16: fixed-point inner product (discretized exhaustive scan)
//   - Hamming: popcount distance over packed sign-hash bytes
//
// Implementations are selected through package-level function pointers so that
// architecture-specific versions can override the generic Go fallbacks at
// init time without any per-call dispatch overhead.
package simd
