package app

import (
	"math"
	"time"

	"github.com/sensekit/depthsuite/internal/sensor"
)

// Fallback bounds for recordings without a single valid depth sample,
// millimeters.
const (
	defaultNearDepth = 500.0
	defaultFarDepth  = 4000.0
)

// DepthSummary accumulates recording-wide statistics while scanning for the
// frame to render. Global depth bounds keep the color ramp comparable
// between frames of the same recording.
type DepthSummary struct {
	SensorID       string
	FrameCount     int
	TotalBytes     int64
	DepthMin       uint16
	DepthMax       uint16
	TimestampStart time.Time
	TimestampEnd   time.Time
}

func NewDepthSummary() *DepthSummary {
	return &DepthSummary{DepthMin: math.MaxUint16}
}

// Update folds one frame into the summary.
func (s *DepthSummary) Update(frame *sensor.Frame) {
	s.FrameCount++

	if s.SensorID == "" {
		s.SensorID = frame.SensorID
	}
	if s.TimestampStart.IsZero() || frame.Timestamp.Before(s.TimestampStart) {
		s.TimestampStart = frame.Timestamp
	}
	if s.TimestampEnd.IsZero() || frame.Timestamp.After(s.TimestampEnd) {
		s.TimestampEnd = frame.Timestamp
	}

	if frame.Depth == nil {
		return
	}
	for _, d := range frame.Depth.Data {
		if d == 0 {
			continue
		}
		if d < s.DepthMin {
			s.DepthMin = d
		}
		if d > s.DepthMax {
			s.DepthMax = d
		}
	}
}

// Bounds returns the observed depth range, falling back to a typical indoor
// range when the recording carried no valid samples.
func (s *DepthSummary) Bounds() DepthBounds {
	if s.DepthMax == 0 || s.DepthMin == math.MaxUint16 {
		return DepthBounds{Near: defaultNearDepth, Far: defaultFarDepth}
	}
	return DepthBounds{Near: float64(s.DepthMin), Far: float64(s.DepthMax)}
}
