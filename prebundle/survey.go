package prebundle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/hupe1980/sfmgo/geom"
)

// SurveySignature is the first line of a survey file.
const SurveySignature = "SFM_SURVEY"

// SurveyObservation is one measurement of a survey point in one view.
// Coordinates are normalized image coordinates in [-0.5, 0.5].
type SurveyObservation struct {
	View int
	Pos  geom.Vec2
}

// SurveyPoint is a known 3D control point with its image observations.
type SurveyPoint struct {
	Pos          geom.Vec3
	Observations []SurveyObservation
}

// LoadSurvey parses the ASCII survey format: the signature line, a
// "<num_points> <num_observations>" line, num_points lines of "x y z",
// and num_observations lines of "<point_id> <view_id> <x> <y>".
func LoadSurvey(r io.Reader) ([]SurveyPoint, error) {
	sc := bufio.NewScanner(r)

	line, err := nextLine(sc)
	if err != nil {
		return nil, err
	}
	if line != SurveySignature {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSignature, line)
	}

	line, err = nextLine(sc)
	if err != nil {
		return nil, err
	}
	var numPoints, numObs int
	if _, err := fmt.Sscanf(line, "%d %d", &numPoints, &numObs); err != nil {
		return nil, fmt.Errorf("%w: header %q: %v", ErrCorruptFile, line, err)
	}
	if numPoints < 0 || numObs < 0 {
		return nil, fmt.Errorf("%w: negative count in header %q", ErrCorruptFile, line)
	}

	points := make([]SurveyPoint, numPoints)
	for i := range points {
		line, err := nextLine(sc)
		if err != nil {
			return nil, err
		}
		vals, err := parseFloats(line, 3)
		if err != nil {
			return nil, err
		}
		points[i].Pos = geom.Vec3{vals[0], vals[1], vals[2]}
	}

	for i := 0; i < numObs; i++ {
		line, err := nextLine(sc)
		if err != nil {
			return nil, err
		}
		fields := strings.Fields(line)
		if len(fields) != 4 {
			return nil, fmt.Errorf("%w: observation %q", ErrCorruptFile, line)
		}
		pointID, err1 := strconv.Atoi(fields[0])
		viewID, err2 := strconv.Atoi(fields[1])
		x, err3 := strconv.ParseFloat(fields[2], 64)
		y, err4 := strconv.ParseFloat(fields[3], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			return nil, fmt.Errorf("%w: observation %q", ErrCorruptFile, line)
		}
		if pointID < 0 || pointID >= numPoints {
			return nil, fmt.Errorf("%w: observation references point %d of %d",
				ErrCorruptFile, pointID, numPoints)
		}
		if viewID < 0 {
			return nil, fmt.Errorf("%w: negative view id in %q", ErrCorruptFile, line)
		}
		if x < -0.5 || x > 0.5 || y < -0.5 || y > 0.5 {
			return nil, fmt.Errorf("%w: observation (%g,%g) outside [-0.5,0.5]",
				ErrCorruptFile, x, y)
		}
		points[pointID].Observations = append(points[pointID].Observations,
			SurveyObservation{View: viewID, Pos: geom.Vec2{x, y}})
	}

	return points, nil
}

// SaveSurvey writes points in the ASCII survey format.
func SaveSurvey(w io.Writer, points []SurveyPoint) error {
	bw := bufio.NewWriter(w)

	numObs := 0
	for i := range points {
		numObs += len(points[i].Observations)
	}
	fmt.Fprintf(bw, "%s\n%d %d\n", SurveySignature, len(points), numObs)
	for i := range points {
		p := points[i].Pos
		fmt.Fprintf(bw, "%g %g %g\n", p[0], p[1], p[2])
	}
	for i := range points {
		for _, obs := range points[i].Observations {
			fmt.Fprintf(bw, "%d %d %g %g\n", i, obs.View, obs.Pos[0], obs.Pos[1])
		}
	}
	return bw.Flush()
}

// LoadSurveyFile reads a survey file from path.
func LoadSurveyFile(path string) ([]SurveyPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("survey %s: %w", path, err)
	}
	defer f.Close()

	points, err := LoadSurvey(f)
	if err != nil {
		return nil, fmt.Errorf("survey %s: %w", path, err)
	}
	return points, nil
}

func nextLine(sc *bufio.Scanner) (string, error) {
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" {
			return line, nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCorruptFile, err)
	}
	return "", fmt.Errorf("%w: unexpected end of file", ErrCorruptFile)
}

func parseFloats(line string, n int) ([]float64, error) {
	fields := strings.Fields(line)
	if len(fields) != n {
		return nil, fmt.Errorf("%w: expected %d values in %q", ErrCorruptFile, n, line)
	}
	vals := make([]float64, n)
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrCorruptFile, line, err)
		}
		vals[i] = v
	}
	return vals, nil
}
