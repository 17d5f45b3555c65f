package recording

import "fmt"

// Format selects the on-disk representation of a recording.
type Format string

const (
	FormatPLY Format = "ply" // single ASCII point cloud, vertex count finalized on stop
	FormatPCD Format = "pcd" // one PCD-style block per frame
	FormatOBJ Format = "obj" // wavefront geometry, optional sibling material file
	FormatRAW Format = "raw" // full frame stream with JSON sidecar, replayable
)

// validFormats guards Config validation; the zero Format is invalid.
var validFormats = map[Format]struct{}{
	FormatPLY: {},
	FormatPCD: {},
	FormatOBJ: {},
	FormatRAW: {},
}

// DefaultBufferSize is how many frames a session buffers before flushing to
// the writer.
const DefaultBufferSize = 30

// Config describes one recording session.
type Config struct {
	Format          Format `json:"format" yaml:"format"`
	IncludeColor    bool   `json:"includeColor" yaml:"include_color"`
	IncludeNormals  bool   `json:"includeNormals" yaml:"include_normals"`
	IncludeInfrared bool   `json:"includeInfrared" yaml:"include_infrared"`
	FrameRate       int    `json:"frameRate" yaml:"frame_rate"`
	OutputDir       string `json:"outputDir" yaml:"output_dir"`
}

// Validate checks the configuration before a session starts.
func (c *Config) Validate() error {
	if _, ok := validFormats[c.Format]; !ok {
		return fmt.Errorf("unknown recording format %q", c.Format)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.FrameRate < 0 {
		return fmt.Errorf("frame rate must not be negative, got %d", c.FrameRate)
	}
	return nil
}
