package app

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sensekit/depthsuite/internal/recording"
	"github.com/sensekit/depthsuite/internal/tracking"
)

// Duration wraps time.Duration so yaml values can be written as "1s" or
// "250ms" instead of nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}

	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the main application configuration
type Config struct {
	Settings  Settings        `yaml:"settings"`
	Source    SourceConfig    `yaml:"source"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Recording RecordingConfig `yaml:"recording"`
	Catalog   CatalogConfig   `yaml:"catalog"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel string `yaml:"log_level"`
}

// Level returns the configured log level. Unset or unparsable values fall
// back to info; Validate rejects unparsable values up front.
func (s Settings) Level() slog.Level {
	if s.LogLevel == "" {
		return slog.LevelInfo
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// SourceConfig points the pipeline at a recorded frame stream.
type SourceConfig struct {
	Recording string  `yaml:"recording"` // path to a .raw capture to replay
	SensorID  string  `yaml:"sensor_id"` // overrides the recorded sensor identity
	Loop      bool    `yaml:"loop"`      // restart from the first frame on exhaustion
	Speed     float64 `yaml:"speed"`     // playback rate multiplier, 0 means real time
}

// TrackingConfig controls the skeletal tracker. Zero values fall back to the
// tracker defaults.
type TrackingConfig struct {
	Enabled             bool     `yaml:"enabled"`
	MinConfidence       float64  `yaml:"min_confidence"`
	SmoothingFactor     float64  `yaml:"smoothing_factor"`
	MaxTrackingDistance float64  `yaml:"max_tracking_distance"`
	HistoryLimit        int      `yaml:"history_limit"`
	LostAfter           Duration `yaml:"lost_after"`
	PredictionFrames    int      `yaml:"prediction_frames"`
	FrameRate           float64  `yaml:"frame_rate"`
	CleanupInterval     Duration `yaml:"cleanup_interval"`
}

// TrackerConfig converts the yaml settings into a tracker configuration,
// filling unset fields with the defaults.
func (c TrackingConfig) TrackerConfig() tracking.Config {
	cfg := tracking.DefaultConfig()

	if c.MinConfidence > 0 {
		cfg.MinConfidence = c.MinConfidence
	}
	if c.SmoothingFactor > 0 {
		cfg.SmoothingFactor = c.SmoothingFactor
	}
	if c.MaxTrackingDistance > 0 {
		cfg.MaxTrackingDistance = c.MaxTrackingDistance
	}
	if c.HistoryLimit > 0 {
		cfg.HistoryLimit = c.HistoryLimit
	}
	if c.LostAfter > 0 {
		cfg.LostAfter = c.LostAfter.Std()
	}
	if c.PredictionFrames > 0 {
		cfg.PredictionFrames = c.PredictionFrames
	}
	if c.FrameRate > 0 {
		cfg.FrameRate = c.FrameRate
	}
	return cfg
}

// RecordingConfig enables re-recording of the replayed stream.
type RecordingConfig struct {
	Enabled          bool `yaml:"enabled"`
	recording.Config `yaml:",inline"`
}

// CatalogConfig points at the session catalog database. An empty path
// disables the catalog.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// defaultCleanupInterval is how often lost tracks are reaped when the config
// does not say otherwise.
const defaultCleanupInterval = time.Second

// LoadConfig reads and validates a configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks the configuration for mistakes that would otherwise only
// surface mid-run.
func (c *Config) Validate() error {
	if c.Settings.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(c.Settings.LogLevel)); err != nil {
			return fmt.Errorf("invalid log level %q", c.Settings.LogLevel)
		}
	}

	if c.Source.Recording == "" {
		return fmt.Errorf("source recording path is required")
	}
	if c.Source.Speed < 0 {
		return fmt.Errorf("source speed must not be negative, got %g", c.Source.Speed)
	}

	if c.Tracking.LostAfter < 0 {
		return fmt.Errorf("tracking lost_after must not be negative")
	}
	if c.Tracking.CleanupInterval < 0 {
		return fmt.Errorf("tracking cleanup_interval must not be negative")
	}

	if c.Recording.Enabled {
		if err := c.Recording.Config.Validate(); err != nil {
			return fmt.Errorf("recording: %w", err)
		}
	}
	return nil
}
