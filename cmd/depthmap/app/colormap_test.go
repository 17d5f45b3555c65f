package app

import (
	"image/color"
	"testing"
	"time"

	"github.com/sensekit/depthsuite/internal/sensor"
)

func luminance(c color.Color) uint32 {
	r, g, b, _ := c.RGBA()
	return r + g + b
}

func TestDepthColorMapper_NearIsHot(t *testing.T) {
	for theme := range validDepthThemes {
		t.Run(string(theme), func(t *testing.T) {
			cm := newDepthColorMapper(theme, DepthBounds{Near: 500, Far: 4000})

			near := luminance(cm.colorFor(500))
			far := luminance(cm.colorFor(4000))

			if near <= far {
				t.Errorf("Expected the near reading to be brighter, got near %d, far %d", near, far)
			}
		})
	}
}

func TestDepthColorMapper_ZeroIsHole(t *testing.T) {
	cm := newDepthColorMapper(ThermalTheme, DepthBounds{Near: 500, Far: 4000})

	if got := cm.colorFor(0); got != noDepthColor {
		t.Errorf("Expected the hole color for a zero reading, got %v", got)
	}
}

func TestDepthColorMapper_ClampsOutOfRange(t *testing.T) {
	cm := newDepthColorMapper(ThermalTheme, DepthBounds{Near: 500, Far: 1000})

	if got, want := cm.colorFor(2000), cm.colorFor(1000); got != want {
		t.Errorf("Expected readings beyond the far bound to clamp, got %v, want %v", got, want)
	}
	if got, want := cm.colorFor(100), cm.colorFor(500); got != want {
		t.Errorf("Expected readings below the near bound to clamp, got %v, want %v", got, want)
	}
}

func TestDepthColorMapper_DegenerateBounds(t *testing.T) {
	cm := newDepthColorMapper(ThermalTheme, DepthBounds{Near: 1000, Far: 1000})

	// Must not divide by zero; any deterministic color will do.
	if got := cm.colorFor(1000); got == nil {
		t.Error("Expected a color for a degenerate range, got nil")
	}
}

func TestDepthSummary_Bounds(t *testing.T) {
	ts := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	sum := NewDepthSummary()

	sum.Update(&sensor.Frame{
		SensorID:  "cam0",
		Number:    1,
		Timestamp: ts,
		Depth:     &sensor.DepthFrame{Width: 2, Height: 2, Data: []uint16{0, 700, 1200, 0}},
	})
	sum.Update(&sensor.Frame{
		SensorID:  "cam0",
		Number:    2,
		Timestamp: ts.Add(33 * time.Millisecond),
		Depth:     &sensor.DepthFrame{Width: 2, Height: 2, Data: []uint16{650, 0, 0, 3100}},
	})

	if sum.FrameCount != 2 {
		t.Errorf("Expected 2 frames, got %d", sum.FrameCount)
	}
	if sum.SensorID != "cam0" {
		t.Errorf("Expected sensor cam0, got %q", sum.SensorID)
	}
	if !sum.TimestampEnd.After(sum.TimestampStart) {
		t.Error("Expected the end timestamp to trail the start")
	}

	bounds := sum.Bounds()
	if bounds.Near != 650 {
		t.Errorf("Expected near bound 650, got %g", bounds.Near)
	}
	if bounds.Far != 3100 {
		t.Errorf("Expected far bound 3100, got %g", bounds.Far)
	}
}

func TestDepthSummary_EmptyFallsBack(t *testing.T) {
	bounds := NewDepthSummary().Bounds()

	if bounds.Near != defaultNearDepth || bounds.Far != defaultFarDepth {
		t.Errorf("Expected fallback bounds, got %+v", bounds)
	}
}

func TestCalculateNiceDepthStep(t *testing.T) {
	tests := []struct {
		name   string
		range_ float64
		width  int
		want   float64
	}{
		{"room scale", 3500, 640, 1000},
		{"close range", 400, 640, 100},
		{"tiny range", 30, 640, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calculateNiceDepthStep(tt.range_, tt.width); got != tt.want {
				t.Errorf("Expected step %g, got %g", tt.want, got)
			}
		})
	}
}

func TestFormatDepth(t *testing.T) {
	if got := formatDepth(500); got != "500 mm" {
		t.Errorf("Expected %q, got %q", "500 mm", got)
	}
	if got := formatDepth(1500); got != "1.50 m" {
		t.Errorf("Expected %q, got %q", "1.50 m", got)
	}
}
