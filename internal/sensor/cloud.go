package sensor

import (
	"fmt"
	"time"

	"github.com/golang/geo/r3"
)

// PointCloud is a flat list of 3D points derived from one depth frame.
// Coordinates are millimeters in the sensor frame. Colors and Normals are
// optional parallel arrays; when present they must carry one triple per
// point, so their lengths match Points element for element.
type PointCloud struct {
	Points  []float32 `json:"points"`            // XYZ triples, len = 3*Count()
	Colors  []uint8   `json:"colors,omitempty"`  // RGB triples, len = 3*Count() when present
	Normals []float32 `json:"normals,omitempty"` // XYZ triples, len = 3*Count() when present

	Number    uint64    `json:"number"`
	Timestamp time.Time `json:"timestamp"`
	SensorID  string    `json:"sensorId"`
}

// Count returns the number of points in the cloud.
func (c *PointCloud) Count() int {
	return len(c.Points) / 3
}

// Point returns the i-th point as a vector. The caller must keep i within
// [0, Count()).
func (c *PointCloud) Point(i int) r3.Vector {
	return r3.Vector{
		X: float64(c.Points[i*3]),
		Y: float64(c.Points[i*3+1]),
		Z: float64(c.Points[i*3+2]),
	}
}

// Validate checks the parallel-array invariant: Points holds whole XYZ
// triples, and Colors/Normals, when present, are the same element length
// as Points.
func (c *PointCloud) Validate() error {
	if len(c.Points)%3 != 0 {
		return fmt.Errorf("points length %d is not a multiple of 3", len(c.Points))
	}
	if len(c.Colors) > 0 && len(c.Colors) != len(c.Points) {
		return fmt.Errorf("colors length %d does not match points length %d", len(c.Colors), len(c.Points))
	}
	if len(c.Normals) > 0 && len(c.Normals) != len(c.Points) {
		return fmt.Errorf("normals length %d does not match points length %d", len(c.Normals), len(c.Points))
	}
	return nil
}

// HasColors reports whether the cloud carries per-point colors.
func (c *PointCloud) HasColors() bool {
	return len(c.Colors) > 0
}

// HasNormals reports whether the cloud carries per-point normals.
func (c *PointCloud) HasNormals() bool {
	return len(c.Normals) > 0
}
