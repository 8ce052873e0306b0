// Package prebundle persists intermediate matching results so the
// expensive feature and matching stages can be skipped on reruns. The
// binary format stores per-viewport feature positions and colors plus
// all verified pairwise correspondences, byte-exact across load/save
// round trips.
package prebundle

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hupe1980/sfmgo/feature"
	"github.com/hupe1980/sfmgo/matching"
)

// Signature identifies prebundle files. It is written verbatim at the
// start of the file and the loader rejects anything else.
const Signature = "SFM_PREBUNDLE\n"

var (
	// ErrCorruptFile indicates a malformed prebundle or survey file.
	ErrCorruptFile = errors.New("corrupt file")
	// ErrInvalidSignature indicates a file that is not a prebundle.
	ErrInvalidSignature = errors.New("invalid file signature")
)

var byteOrder = binary.LittleEndian

// Save writes positions, colors and pairwise matches to w.
func Save(w io.Writer, viewports feature.ViewportList, matches []matching.TwoViewMatching) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(Signature); err != nil {
		return err
	}

	if err := binary.Write(bw, byteOrder, int32(len(viewports))); err != nil {
		return err
	}
	for i := range viewports {
		f := viewports[i].Features
		if err := binary.Write(bw, byteOrder, int32(len(f.Positions))); err != nil {
			return err
		}
		if err := binary.Write(bw, byteOrder, f.Positions); err != nil {
			return err
		}
		if err := binary.Write(bw, byteOrder, int32(len(f.Colors))); err != nil {
			return err
		}
		if err := binary.Write(bw, byteOrder, f.Colors); err != nil {
			return err
		}
	}

	if err := binary.Write(bw, byteOrder, int32(len(matches))); err != nil {
		return err
	}
	for i := range matches {
		m := &matches[i]
		hdr := [3]int32{int32(m.View1), int32(m.View2), int32(len(m.Matches))}
		if err := binary.Write(bw, byteOrder, hdr); err != nil {
			return err
		}
		for _, c := range m.Matches {
			pair := [2]int32{int32(c[0]), int32(c[1])}
			if err := binary.Write(bw, byteOrder, pair); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// Load reads a prebundle from r. Returned viewports carry positions and
// colors only; descriptors and track ids are not part of the format.
func Load(r io.Reader) (feature.ViewportList, []matching.TwoViewMatching, error) {
	br := bufio.NewReader(r)

	sig := make([]byte, len(Signature))
	if _, err := io.ReadFull(br, sig); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if string(sig) != Signature {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidSignature, sig)
	}

	numViews, err := readCount(br, "viewport count")
	if err != nil {
		return nil, nil, err
	}
	viewports := make(feature.ViewportList, numViews)
	for i := range viewports {
		vp := feature.NewViewport()

		numPos, err := readCount(br, "position count")
		if err != nil {
			return nil, nil, err
		}
		vp.Features.Positions = make([][2]float32, numPos)
		if err := binary.Read(br, byteOrder, vp.Features.Positions); err != nil {
			return nil, nil, fmt.Errorf("%w: positions: %v", ErrCorruptFile, err)
		}

		numColors, err := readCount(br, "color count")
		if err != nil {
			return nil, nil, err
		}
		vp.Features.Colors = make([][3]uint8, numColors)
		if err := binary.Read(br, byteOrder, vp.Features.Colors); err != nil {
			return nil, nil, fmt.Errorf("%w: colors: %v", ErrCorruptFile, err)
		}

		if numPos != numColors {
			return nil, nil, fmt.Errorf("%w: viewport %d has %d positions but %d colors",
				ErrCorruptFile, i, numPos, numColors)
		}
		viewports[i] = vp
	}

	numPairs, err := readCount(br, "pair count")
	if err != nil {
		return nil, nil, err
	}
	matches := make([]matching.TwoViewMatching, numPairs)
	for i := range matches {
		var hdr [3]int32
		if err := binary.Read(br, byteOrder, &hdr); err != nil {
			return nil, nil, fmt.Errorf("%w: pair header: %v", ErrCorruptFile, err)
		}
		v1, v2, numMatches := int(hdr[0]), int(hdr[1]), int(hdr[2])
		if v1 < 0 || v1 >= numViews || v2 < 0 || v2 >= numViews {
			return nil, nil, fmt.Errorf("%w: pair references view (%d,%d) of %d viewports",
				ErrCorruptFile, v1, v2, numViews)
		}
		if numMatches < 0 {
			return nil, nil, fmt.Errorf("%w: negative match count", ErrCorruptFile)
		}

		m := matching.TwoViewMatching{
			View1:   v1,
			View2:   v2,
			Matches: make([][2]int, numMatches),
		}
		for j := range m.Matches {
			var pair [2]int32
			if err := binary.Read(br, byteOrder, &pair); err != nil {
				return nil, nil, fmt.Errorf("%w: correspondence: %v", ErrCorruptFile, err)
			}
			f1, f2 := int(pair[0]), int(pair[1])
			if f1 < 0 || f1 >= len(viewports[v1].Features.Positions) ||
				f2 < 0 || f2 >= len(viewports[v2].Features.Positions) {
				return nil, nil, fmt.Errorf("%w: correspondence (%d,%d) out of range for pair (%d,%d)",
					ErrCorruptFile, f1, f2, v1, v2)
			}
			m.Matches[j] = [2]int{f1, f2}
		}
		matches[i] = m
	}

	return viewports, matches, nil
}

// SaveFile writes a prebundle to path, replacing any existing file.
func SaveFile(path string, viewports feature.ViewportList, matches []matching.TwoViewMatching) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("prebundle %s: %w", path, err)
	}
	if err := Save(f, viewports, matches); err != nil {
		f.Close()
		return fmt.Errorf("prebundle %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("prebundle %s: %w", path, err)
	}
	return nil
}

// LoadFile reads a prebundle from path.
func LoadFile(path string) (feature.ViewportList, []matching.TwoViewMatching, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("prebundle %s: %w", path, err)
	}
	defer f.Close()

	viewports, matches, err := Load(f)
	if err != nil {
		return nil, nil, fmt.Errorf("prebundle %s: %w", path, err)
	}
	return viewports, matches, nil
}

func readCount(r io.Reader, what string) (int, error) {
	var n int32
	if err := binary.Read(r, byteOrder, &n); err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrCorruptFile, what, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative %s", ErrCorruptFile, what)
	}
	return int(n), nil
}
