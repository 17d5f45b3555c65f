package tracking

import "time"

const (
	// DefaultMinConfidence is the minimum observation confidence accepted by the tracker
	DefaultMinConfidence = 0.5

	// DefaultSmoothingFactor is the exponential smoothing weight given to the previous pose
	DefaultSmoothingFactor = 0.5

	// DefaultMaxTrackingDistance is the largest center-of-mass jump (mm) treated as the same person
	DefaultMaxTrackingDistance = 4500.0

	// DefaultHistoryLimit is the number of smoothed skeletons retained per track
	DefaultHistoryLimit = 30

	// DefaultLostAfter is how long a track may go unobserved before cleanup removes it
	DefaultLostAfter = 2 * time.Second

	// DefaultPredictionFrames is how many frames ahead joint positions are extrapolated
	DefaultPredictionFrames = 5

	// DefaultFrameRate is the assumed sensor frame rate in frames per second
	DefaultFrameRate = 30.0
)

// velocityFilterWeight is the low-pass weight given to the previous velocity estimate.
const velocityFilterWeight = 0.3

// Config holds the tracker tuning parameters. Distances are millimetres,
// velocities millimetres per second.
type Config struct {
	MinConfidence       float64       // observations below this confidence are dropped
	SmoothingFactor     float64       // EMA weight of the previous pose, 0 disables smoothing history
	MaxTrackingDistance float64       // mm, larger center-of-mass jumps restart the track
	HistoryLimit        int           // smoothed skeletons kept per track
	LostAfter           time.Duration // idle time before a track is considered lost
	PredictionFrames    int           // frames ahead for joint prediction
	FrameRate           float64       // frames per second used to convert frames to seconds
}

// DefaultConfig returns the tracker configuration used when no overrides are given.
func DefaultConfig() Config {
	return Config{
		MinConfidence:       DefaultMinConfidence,
		SmoothingFactor:     DefaultSmoothingFactor,
		MaxTrackingDistance: DefaultMaxTrackingDistance,
		HistoryLimit:        DefaultHistoryLimit,
		LostAfter:           DefaultLostAfter,
		PredictionFrames:    DefaultPredictionFrames,
		FrameRate:           DefaultFrameRate,
	}
}
