package simd

import "math/bits"

// Kernel function pointers - set once at init, zero runtime overhead.
// Generic implementations are the default; platform-specific init()
// functions override with SIMD versions when available.
var (
	kernelDot      = dotGeneric
	kernelDotInt16 = dotInt16Generic
	kernelHamming  = hammingGeneric
)

// Dot calculates the dot product of two float32 vectors.
//
// SAFETY: Assumes len(a) == len(b). Caller MUST ensure lengths match.
func Dot(a, b []float32) float32 {
	return kernelDot(a, b)
}

// DotInt16 calculates the dot product of two fixed-point int16 vectors,
// accumulating into int32.
//
// SAFETY: Assumes len(a) == len(b). Caller MUST ensure lengths match.
func DotInt16(a, b []int16) int32 {
	return kernelDotInt16(a, b)
}

// Hamming computes the Hamming distance between two byte slices.
//
// SAFETY: Assumes len(a) == len(b). Caller MUST ensure lengths match.
func Hamming(a, b []byte) int {
	return kernelHamming(a, b)
}

func dotGeneric(a, b []float32) float32 {
	var ret float32
	for i := range a {
		ret += a[i] * b[i]
	}

	return ret
}

func dotInt16Generic(a, b []int16) int32 {
	var ret int32
	for i := range a {
		ret += int32(a[i]) * int32(b[i])
	}

	return ret
}

func hammingGeneric(a, b []byte) int {
	count := 0

	// Process 8 bytes at a time where possible.
	i := 0
	for ; i+8 <= len(a); i += 8 {
		var x, y uint64
		for j := 0; j < 8; j++ {
			x |= uint64(a[i+j]) << (8 * j)
			y |= uint64(b[i+j]) << (8 * j)
		}
		count += bits.OnesCount64(x ^ y)
	}

	for ; i < len(a); i++ {
		count += bits.OnesCount8(a[i] ^ b[i])
	}

	return count
}
