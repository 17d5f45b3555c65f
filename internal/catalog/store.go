package catalog

import (
	"context"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sensekit/depthsuite/internal/calibration"
	"github.com/sensekit/depthsuite/internal/recording"
)

// RecordingInfo is a catalog row describing a stored recording session.
// It carries the session counters and artifact paths as they were when the
// session was saved.
type RecordingInfo struct {
	ID         string           // Session identifier
	SensorID   string           // Sensor the session recorded
	Status     string           // recording, stopped or error
	Config     recording.Config // Recording configuration
	Files      []string         // Artifact paths on disk
	FrameCount int              // Frames persisted
	TotalBytes int64            // Bytes written to the artifacts
	StartTime  time.Time        // When the session started
	EndTime    *time.Time       // When the session stopped, nil while running
	Failure    string           // Writer failure message, empty unless errored
}

// Store provides an interface for cataloguing recording sessions and
// calibration results. It is safe for concurrent use; all write operations
// should be considered atomic.
type Store interface {
	// SaveRecording upserts a recording session keyed by its session id.
	// Saving the same session again replaces its status, counters and
	// artifact list, so a session can be saved mid-run and again after it
	// stops.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sess: The session to persist
	//
	// Returns:
	//   - error: If storage fails or context is cancelled
	SaveRecording(ctx context.Context, sess *recording.Session) error

	// Recordings returns all catalogued recording sessions, ordered by
	// start time in ascending order.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//
	// Returns:
	//   - recordings: Slice of catalog rows
	//   - error: If retrieval fails or context is cancelled
	Recordings(ctx context.Context) ([]*RecordingInfo, error)

	// Recording retrieves a single catalogued session by its id.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - id: Session identifier
	//
	// Returns:
	//   - info: The catalog row, nil when the id is unknown
	//   - error: If retrieval fails or context is cancelled
	Recording(ctx context.Context, id string) (*RecordingInfo, error)

	// SaveCalibration appends a calibration result for its sensor. Results
	// are never overwritten; the history of calibrations is kept.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - data: The calibration result to persist
	//
	// Returns:
	//   - error: If storage fails or context is cancelled
	SaveCalibration(ctx context.Context, data *calibration.Data) error

	// Calibrations returns the calibration history for a sensor, newest
	// first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sensorID: Sensor to look up
	//
	// Returns:
	//   - calibrations: Stored results, empty when the sensor has none
	//   - error: If retrieval fails or context is cancelled
	Calibrations(ctx context.Context, sensorID string) ([]*calibration.Data, error)

	// LatestCalibration retrieves the most recent calibration for a sensor.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeouts
	//   - sensorID: Sensor to look up
	//
	// Returns:
	//   - data: The newest result, nil when the sensor has none
	//   - error: If retrieval fails or context is cancelled
	LatestCalibration(ctx context.Context, sensorID string) (*calibration.Data, error)

	// Close releases all database connections and resources.
	// After Close is called, the store instance cannot be reused.
	// It is safe to call Close multiple times.
	//
	// Returns:
	//   - error: If closing fails or some resources cannot be released
	Close() error
}
