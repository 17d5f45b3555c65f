package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sensekit/depthsuite/internal/catalog"
	"github.com/sensekit/depthsuite/internal/recording"
)

// Run replays the configured recording through the tracker and the recorder
// and blocks until the stream is exhausted or ctx is cancelled.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	var store catalog.Store
	if config.Catalog.Path != "" {
		sqliteStore := catalog.NewSqliteStore(config.Catalog.Path)
		defer func() {
			if err := sqliteStore.Close(); err != nil {
				logger.Error(fmt.Sprintf("Error closing catalog: %v", err))
			}
		}()

		store = sqliteStore
	}

	source := createSource(&config.Source)

	return newPipeline(source, config, store, logger).run(ctx)
}

// createSource builds the replay source from the yaml settings.
func createSource(config *SourceConfig) *recording.ReplaySource {
	var opts []func(s *recording.ReplaySource)

	if config.Loop {
		opts = append(opts, recording.WithLoop())
	}
	if config.Speed > 0 {
		opts = append(opts, recording.WithSpeed(config.Speed))
	}
	if config.SensorID != "" {
		opts = append(opts, recording.WithSensorID(config.SensorID))
	}
	return recording.NewReplaySource(config.Recording, opts...)
}
