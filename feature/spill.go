package feature

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/pierrec/lz4/v4"
)

// ErrNoSpilledDescriptors is returned by RestoreDescriptors when no spill
// blob is present.
var ErrNoSpilledDescriptors = errors.New("no spilled descriptors")

// descriptorSpill holds an LZ4-compressed copy of the descriptor payloads
// so the uncompressed slices can be released after matching.
type descriptorSpill struct {
	numSift int
	numSurf int
	rawSize int
	blob    []byte
}

// CleanDescriptors releases the descriptor payloads. Positions, colors and
// track assignments are unaffected. Use SpillDescriptors instead when the
// descriptors may be needed for a later matching pass.
func (v *Viewport) CleanDescriptors() {
	v.Features.Sift = nil
	v.Features.Surf = nil
	v.spill = nil
}

// SpillDescriptors compresses the descriptor payloads into an in-memory
// LZ4 blob and releases the uncompressed slices. Spilling an already
// spilled or descriptor-free viewport is a no-op.
func (v *Viewport) SpillDescriptors() error {
	numSift, numSurf := len(v.Features.Sift), len(v.Features.Surf)
	if numSift == 0 && numSurf == 0 {
		return nil
	}

	raw := make([]byte, 0, (numSift*SiftDim+numSurf*SurfDim)*4)
	for _, d := range v.Features.Sift {
		raw = appendFloats(raw, d)
	}
	for _, d := range v.Features.Surf {
		raw = appendFloats(raw, d)
	}

	blob := make([]byte, lz4.CompressBlockBound(len(raw)))
	n, err := lz4.CompressBlock(raw, blob, nil)
	if err != nil {
		return err
	}
	if n == 0 {
		// Incompressible input is stored as-is.
		blob = raw
		n = len(raw)
	}

	v.spill = &descriptorSpill{
		numSift: numSift,
		numSurf: numSurf,
		rawSize: len(raw),
		blob:    blob[:n],
	}
	v.Features.Sift = nil
	v.Features.Surf = nil
	return nil
}

// RestoreDescriptors decompresses a previous spill back into the feature
// set and drops the blob.
func (v *Viewport) RestoreDescriptors() error {
	if v.spill == nil {
		return ErrNoSpilledDescriptors
	}
	s := v.spill

	raw := s.blob
	if len(s.blob) != s.rawSize {
		raw = make([]byte, s.rawSize)
		if _, err := lz4.UncompressBlock(s.blob, raw); err != nil {
			return err
		}
	}

	v.Features.Sift = readDescriptors(raw, s.numSift, SiftDim)
	v.Features.Surf = readDescriptors(raw[s.numSift*SiftDim*4:], s.numSurf, SurfDim)
	v.spill = nil
	return nil
}

func appendFloats(buf []byte, vals []float32) []byte {
	for _, f := range vals {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(f))
	}
	return buf
}

func readDescriptors(raw []byte, count, dim int) [][]float32 {
	out := make([][]float32, count)
	for i := range out {
		d := make([]float32, dim)
		for j := range d {
			off := (i*dim + j) * 4
			d[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
		}
		out[i] = d
	}
	return out
}
