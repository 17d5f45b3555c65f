package calibration

import "time"

// PatternKind names a calibration target pattern.
type PatternKind string

const (
	// PatternCheckerboard is the only pattern with a working detector.
	PatternCheckerboard PatternKind = "checkerboard"
	// PatternCircles and PatternAsymmetricCircles are recognized but have no
	// detector; captures using them are rejected.
	PatternCircles           PatternKind = "circles"
	PatternAsymmetricCircles PatternKind = "asymmetric-circles"
)

const (
	// DefaultCaptureCount is the number of validated captures a session collects
	DefaultCaptureCount = 20

	// DefaultPatternRows and DefaultPatternCols describe the checkerboard inner corners
	DefaultPatternRows = 7
	DefaultPatternCols = 9

	// DefaultSquareSize is the checkerboard square edge length in mm
	DefaultSquareSize = 25.0

	// DefaultMoveTimeout bounds how long an auto-mode session waits on a move step
	DefaultMoveTimeout = 2 * time.Second

	// DefaultCaptureDelay is the settle time before a capture step accepts a frame
	DefaultCaptureDelay = 500 * time.Millisecond

	// DefaultTargetFOV is the assumed horizontal field of view in degrees
	DefaultTargetFOV = 60.0
)

// Config holds the calibration session parameters.
type Config struct {
	CaptureCount int           // validated captures required
	Pattern      PatternKind   // calibration target pattern
	PatternRows  int           // checkerboard inner corner rows
	PatternCols  int           // checkerboard inner corner columns
	SquareSize   float64       // checkerboard square edge in mm
	Validate     bool          // reject captures failing geometry checks
	Auto         bool          // advance move steps on timeout instead of acknowledgement
	MoveTimeout  time.Duration // auto-mode move step timeout
	StepDelay    time.Duration // auto-mode pause after each completed step
	CaptureDelay time.Duration // settle time before a capture step accepts frames
	TargetFOV    float64       // assumed horizontal field of view in degrees
}

// DefaultConfig returns the calibration configuration used when no overrides
// are given. Validation is on by default.
func DefaultConfig() Config {
	return Config{
		CaptureCount: DefaultCaptureCount,
		Pattern:      PatternCheckerboard,
		PatternRows:  DefaultPatternRows,
		PatternCols:  DefaultPatternCols,
		SquareSize:   DefaultSquareSize,
		Validate:     true,
		MoveTimeout:  DefaultMoveTimeout,
		CaptureDelay: DefaultCaptureDelay,
		TargetFOV:    DefaultTargetFOV,
	}
}
