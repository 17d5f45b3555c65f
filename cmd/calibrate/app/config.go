package app

import (
	"errors"
	"flag"

	"github.com/sensekit/depthsuite/internal/calibration"
)

type Config struct {
	SensorID   string
	InputFile  string
	OutputFile string
	DBPath     string
	Rows       int
	Cols       int
	SquareSize float64
	Captures   int
	NoValidate bool
}

func NewConfigFromCLI() (*Config, error) {
	c := &Config{}

	flag.StringVar(&c.SensorID, "sensor", "", "Sensor ID to calibrate")
	flag.StringVar(&c.InputFile, "i", "", "Path to a raw recording supplying capture frames")
	flag.StringVar(&c.OutputFile, "o", "", "Path to the output calibration JSON")
	flag.StringVar(&c.DBPath, "db", "", "Catalog database to store the result in, optional")
	flag.IntVar(&c.Rows, "rows", calibration.DefaultPatternRows, "Checkerboard inner corner rows")
	flag.IntVar(&c.Cols, "cols", calibration.DefaultPatternCols, "Checkerboard inner corner columns")
	flag.Float64Var(&c.SquareSize, "square", calibration.DefaultSquareSize, "Checkerboard square edge in mm")
	flag.IntVar(&c.Captures, "n", calibration.DefaultCaptureCount, "Number of validated captures to collect")
	flag.BoolVar(&c.NoValidate, "no-validate", false, "Accept captures without geometry validation")
	flag.Parse()

	var err error
	if c.SensorID == "" {
		err = errors.New("sensor id is required")
	} else if c.InputFile == "" {
		err = errors.New("input recording is required")
	} else if c.OutputFile == "" {
		err = errors.New("output file is required")
	} else if c.Rows < 2 || c.Cols < 2 {
		err = errors.New("pattern must have at least 2x2 inner corners")
	} else if c.SquareSize <= 0 {
		err = errors.New("square size must be positive")
	} else if c.Captures <= 0 {
		err = errors.New("capture count must be positive")
	}

	if err != nil {
		flag.Usage()
		return nil, err
	}
	return c, nil
}

// CalibrationConfig converts the CLI settings into a session configuration.
// The CLI always runs in auto mode, the move poses come from the recording.
func (c *Config) CalibrationConfig() calibration.Config {
	cfg := calibration.DefaultConfig()
	cfg.Auto = true
	cfg.CaptureCount = c.Captures
	cfg.PatternRows = c.Rows
	cfg.PatternCols = c.Cols
	cfg.SquareSize = c.SquareSize
	cfg.Validate = !c.NoValidate
	return cfg
}
