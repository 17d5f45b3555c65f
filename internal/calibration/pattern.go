package calibration

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"

	"github.com/sensekit/depthsuite/internal/sensor"
)

const (
	// spacingTolerance bounds the relative deviation of the mean inter-corner
	// spacing from the configured square size
	spacingTolerance = 0.3

	// planarityToleranceMm is the largest point-to-plane distance accepted
	planarityToleranceMm = 10.0
)

// detection holds the 3D corner grid recovered from one depth frame.
type detection struct {
	corners []r3.Vector // row-major, rows x cols
	rows    int
	cols    int
}

// detectCheckerboard samples the depth frame at a rows x cols grid of evenly
// spaced pixels and unprojects the hits through the assumed-FOV pinhole
// model. A row counts only if every sample in it carries depth; the pattern
// counts only if every row does. The sampling is deterministic; there is no
// image-space corner search.
func detectCheckerboard(depth *sensor.DepthFrame, rows, cols int, fovDeg float64) (*detection, bool) {
	if depth == nil || depth.Width <= 0 || depth.Height <= 0 || rows <= 0 || cols <= 0 {
		return nil, false
	}

	fx, fy, cx, cy := pinhole(depth.Width, depth.Height, fovDeg)
	corners := make([]r3.Vector, 0, rows*cols)

	for r := 0; r < rows; r++ {
		py := depth.Height * (r + 1) / (rows + 1)
		for c := 0; c < cols; c++ {
			px := depth.Width * (c + 1) / (cols + 1)

			d := depth.At(px, py)
			if d == 0 {
				return nil, false // hole in this row, pattern not visible
			}

			z := float64(d)
			corners = append(corners, r3.Vector{
				X: (float64(px) - cx) * z / fx,
				Y: (float64(py) - cy) * z / fy,
				Z: z,
			})
		}
	}

	return &detection{corners: corners, rows: rows, cols: cols}, true
}

// pinhole derives intrinsic parameters from an assumed horizontal field of
// view, with square pixels and the principal point at the image center.
func pinhole(width, height int, fovDeg float64) (fx, fy, cx, cy float64) {
	fov := fovDeg * math.Pi / 180
	fx = float64(width) / (2 * math.Tan(fov/2))
	fy = fx
	cx = float64(width) / 2
	cy = float64(height) / 2
	return fx, fy, cx, cy
}

// validate checks a detection against the physical pattern: full corner
// count, mean neighbour spacing near the square size and near-planarity.
// A nil result means the capture is usable.
func (d *detection) validate(squareSize float64) error {
	if len(d.corners) != d.rows*d.cols {
		return fmt.Errorf("expected %d corners, detected %d", d.rows*d.cols, len(d.corners))
	}

	spacing := d.meanSpacing()
	if squareSize > 0 {
		if dev := math.Abs(spacing-squareSize) / squareSize; dev > spacingTolerance {
			return fmt.Errorf("corner spacing %.1fmm deviates %.0f%% from square size %.1fmm",
				spacing, dev*100, squareSize)
		}
	}

	deviation, ok := maxPlaneDeviation(d.corners)
	if !ok {
		return fmt.Errorf("corners are degenerate, no plane fit")
	}
	if deviation > planarityToleranceMm {
		return fmt.Errorf("pattern is not flat: %.1fmm from best-fit plane", deviation)
	}

	return nil
}

// meanSpacing averages the distance between horizontally and vertically
// adjacent corners.
func (d *detection) meanSpacing() float64 {
	var sum float64
	var n int

	at := func(r, c int) r3.Vector { return d.corners[r*d.cols+c] }

	for r := 0; r < d.rows; r++ {
		for c := 0; c+1 < d.cols; c++ {
			sum += at(r, c).Distance(at(r, c+1))
			n++
		}
	}
	for r := 0; r+1 < d.rows; r++ {
		for c := 0; c < d.cols; c++ {
			sum += at(r, c).Distance(at(r+1, c))
			n++
		}
	}

	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
