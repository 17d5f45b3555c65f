package recording

import (
	"fmt"
	"time"

	"github.com/sensekit/depthsuite/internal/sensor"
)

// writeSummary carries the session totals a writer may need to finalize its
// artifacts.
type writeSummary struct {
	frames     int // frames persisted through Write
	totalBytes int64
	start, end time.Time
}

// frameWriter is the per-format persistence strategy behind a session.
// Open creates the artifacts, Write appends one frame and reports the bytes
// written, Close finalizes headers or sidecars and releases the files.
// Implementations are not safe for concurrent use; the session serializes
// access.
type frameWriter interface {
	Open() error
	Write(frame *sensor.Frame) (int64, error)
	Close(sum writeSummary) error
	Files() []string
}

// newWriter creates the writer for the configured format. base is the output
// path without extension; writers derive their file names from it.
func newWriter(cfg Config, sensorID, base string) (frameWriter, error) {
	switch cfg.Format {
	case FormatPLY:
		return newPlyWriter(cfg, base), nil
	case FormatPCD:
		return newPcdWriter(cfg, base), nil
	case FormatOBJ:
		return newObjWriter(cfg, base), nil
	case FormatRAW:
		return newRawWriter(cfg, sensorID, base), nil
	default:
		return nil, fmt.Errorf("unknown recording format %q", cfg.Format)
	}
}

