package calibration

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/golang/geo/r3"
)

// Intrinsics is the pinhole camera model estimated by a session.
type Intrinsics struct {
	Fx     float64 `json:"fx"` // focal length in pixels
	Fy     float64 `json:"fy"`
	Cx     float64 `json:"cx"` // principal point in pixels
	Cy     float64 `json:"cy"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

// Extrinsics is the sensor pose relative to a world origin. Sessions emit an
// identity placeholder; no extrinsic solve is performed.
type Extrinsics struct {
	Rotation    [9]float64 `json:"rotation"` // row-major 3x3
	Translation r3.Vector  `json:"translation"`
}

// Data is the immutable result of a completed calibration session.
type Data struct {
	Intrinsics Intrinsics  `json:"intrinsics"`
	Extrinsics *Extrinsics `json:"extrinsics,omitempty"`
	Distortion []float64   `json:"distortion,omitempty"` // k1 k2 p1 p2 k3, zeros until a solver exists
	Timestamp  time.Time   `json:"timestamp"`
	Accuracy   float64     `json:"accuracy"` // in [0,1], distance-spread heuristic
	SensorID   string      `json:"sensorId"`
}

// identityExtrinsics returns the placeholder pose stored on completion.
func identityExtrinsics() *Extrinsics {
	return &Extrinsics{Rotation: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// SaveData writes calibration data to a JSON file.
func SaveData(path string, data *Data) error {
	if data == nil {
		return fmt.Errorf("no calibration data to save")
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding calibration data: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("writing calibration data: %w", err)
	}
	return nil
}

// LoadData reads calibration data from a JSON file written by SaveData.
func LoadData(path string) (*Data, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading calibration data: %w", err)
	}

	var data Data
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("decoding calibration data: %w", err)
	}
	return &data, nil
}
