package sensor

import (
	"context"
	"time"
)

// DepthFrame is a single grid of depth samples produced by a depth sensor.
// Samples are distances in millimeters; zero marks an invalid reading.
// A frame is immutable once produced.
type DepthFrame struct {
	Width     int       `json:"width"`     // Grid width in pixels
	Height    int       `json:"height"`    // Grid height in pixels
	Data      []uint16  `json:"data"`      // Row-major depth samples in mm, len = Width*Height
	MinDepth  uint16    `json:"minDepth"`  // Minimum valid depth in mm
	MaxDepth  uint16    `json:"maxDepth"`  // Maximum valid depth in mm
	Number    uint64    `json:"number"`    // Monotonically increasing frame number
	Timestamp time.Time `json:"timestamp"` // Capture time
}

// At returns the depth sample at pixel (x, y), or zero when the
// coordinates fall outside the frame.
func (f *DepthFrame) At(x, y int) uint16 {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return 0
	}
	i := y*f.Width + x
	if i >= len(f.Data) {
		return 0
	}
	return f.Data[i]
}

// ColorFrame is an RGB image captured alongside a depth frame,
// three bytes per pixel in row-major order.
type ColorFrame struct {
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Data      []uint8   `json:"data"` // RGB, len = Width*Height*3
	Number    uint64    `json:"number"`
	Timestamp time.Time `json:"timestamp"`
}

// InfraredFrame is a 16-bit intensity image captured alongside a depth frame.
type InfraredFrame struct {
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Data      []uint16  `json:"data"` // Intensity, len = Width*Height
	Number    uint64    `json:"number"`
	Timestamp time.Time `json:"timestamp"`
}

// Frame is the envelope a frame source pushes per logical tick. Depth is
// always present on a live frame; the remaining payloads are optional and
// depend on the sensor and its configuration.
type Frame struct {
	SensorID  string    `json:"sensorId"`
	Number    uint64    `json:"number"`
	Timestamp time.Time `json:"timestamp"`

	Depth     *DepthFrame    `json:"depth,omitempty"`
	Color     *ColorFrame    `json:"color,omitempty"`
	Infrared  *InfraredFrame `json:"infrared,omitempty"`
	Cloud     *PointCloud    `json:"cloud,omitempty"`
	Skeletons []Skeleton     `json:"skeletons,omitempty"`
}

// Source is the upstream contract a sensor driver implements. The driver
// itself (device connection, raw capture) lives outside this module; the
// pipeline only consumes the pushed frames.
type Source interface {
	// Frames starts delivery and returns a channel of frames. The channel
	// is closed when the source is exhausted or ctx is cancelled.
	Frames(ctx context.Context) (<-chan Frame, error)

	// ID returns the identifier of the sensor this source reads from.
	ID() string
}
