package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sensekit/depthsuite/internal/catalog"
	"github.com/sensekit/depthsuite/internal/recording"
	"github.com/sensekit/depthsuite/internal/sensor"
	"github.com/sensekit/depthsuite/internal/tracking"
)

// pipeline fans one frame stream out to the tracker and the recorder and
// relays their event streams into the log.
type pipeline struct {
	config *Config
	logger *slog.Logger

	source   sensor.Source
	tracker  *tracking.Tracker
	recorder *recording.Recorder
	store    catalog.Store

	session *recording.Session
	wg      sync.WaitGroup
}

func newPipeline(source sensor.Source, config *Config, store catalog.Store, logger *slog.Logger) *pipeline {
	return &pipeline{
		config: config,
		logger: logger,
		source: source,
		tracker: tracking.New(
			tracking.WithLogger(logger),
			tracking.WithConfig(config.Tracking.TrackerConfig())),
		recorder: recording.New(recording.WithLogger(logger)),
		store:    store,
	}
}

// run drives the pipeline until the source is exhausted or ctx is cancelled.
func (p *pipeline) run(ctx context.Context) error {
	frames, err := p.source.Frames(ctx)
	if err != nil {
		return fmt.Errorf("starting frame source: %w", err)
	}

	if p.config.Recording.Enabled {
		session, err := p.recorder.Start(p.source.ID(), p.config.Recording.Config)
		if err != nil {
			return fmt.Errorf("starting recording session: %w", err)
		}

		p.session = session
		p.saveSession(ctx)
	}

	trackerEvents := p.tracker.Subscribe()
	recorderEvents := p.recorder.Subscribe()

	p.wg.Add(2)
	go p.handleTrackerEvents(trackerEvents)
	go p.handleRecorderEvents(recorderEvents)

	interval := p.config.Tracking.CleanupInterval.Std()
	if interval <= 0 {
		interval = defaultCleanupInterval
	}

	cleanup := time.NewTicker(interval)
	defer cleanup.Stop()

	p.logger.Info("pipeline started", slog.String("sensorID", p.source.ID()))

loop:
	for {
		select {
		case <-ctx.Done():
			break loop

		case <-cleanup.C:
			p.tracker.CleanupLostTracks()

		case frame, ok := <-frames:
			if !ok {
				break loop
			}
			p.handleFrame(frame)
		}
	}

	return p.shutdown()
}

// handleFrame feeds one frame to the recorder and its skeleton observations
// to the tracker.
func (p *pipeline) handleFrame(frame sensor.Frame) {
	if p.session != nil {
		p.recorder.RecordFrame(frame.SensorID, frame)
	}

	if !p.config.Tracking.Enabled {
		return
	}

	for _, skeleton := range frame.Skeletons {
		// Observation time follows the frame envelope, which replay keeps
		// monotonic across loops.
		skeleton.Timestamp = frame.Timestamp
		p.tracker.ProcessObservation(skeleton)
	}
}

// shutdown stops the tracker and the recorder, records the final session
// state in the catalog and waits for the event handlers to drain.
func (p *pipeline) shutdown() error {
	p.logger.Info("shutting down")

	p.tracker.Close()
	disposeErr := p.recorder.Dispose()
	p.wg.Wait()

	// The run context is cancelled by now; the final catalog write still has
	// to happen.
	p.saveSession(context.Background())

	var sourceErr error
	if src, ok := p.source.(interface{ Err() error }); ok {
		sourceErr = src.Err()
	}
	return errors.Join(sourceErr, disposeErr)
}

// saveSession upserts the current recording session into the catalog, when
// both exist.
func (p *pipeline) saveSession(ctx context.Context) {
	if p.store == nil || p.session == nil {
		return
	}

	if err := p.store.SaveRecording(ctx, p.session); err != nil {
		p.logger.Error(fmt.Sprintf("Error saving recording session: %v", err),
			slog.String("sessionID", p.session.ID()))
	}
}

// handleTrackerEvents logs tracker activity until the tracker closes its
// event stream.
func (p *pipeline) handleTrackerEvents(events <-chan tracking.Event) {
	defer p.wg.Done()

	for event := range events {
		switch event.Kind {
		case tracking.EventSkeletonUpdated:
			p.logger.Debug("track updated", slog.Int("trackID", event.TrackID))

		case tracking.EventSkeletonLost:
			p.logger.Info("track lost", slog.Int("trackID", event.TrackID))

		case tracking.EventGesture:
			attrs := []any{
				slog.Int("trackID", event.TrackID),
				slog.String("gesture", string(event.Gesture.Kind)),
				slog.String("hand", string(event.Gesture.Hand)),
				slog.Float64("confidence", event.Gesture.Confidence),
			}
			if event.Gesture.Direction != "" {
				attrs = append(attrs, slog.String("direction", event.Gesture.Direction))
			}
			p.logger.Info("gesture recognized", attrs...)
		}
	}
}

// handleRecorderEvents logs recorder activity until the recorder closes its
// event stream.
func (p *pipeline) handleRecorderEvents(events <-chan recording.Event) {
	defer p.wg.Done()

	for event := range events {
		switch event.Kind {
		case recording.EventStarted:
			p.logger.Info("recording started",
				slog.String("sensorID", event.SensorID),
				slog.String("sessionID", event.SessionID))

		case recording.EventStopped:
			p.logger.Info("recording stopped",
				slog.String("sensorID", event.SensorID),
				slog.String("sessionID", event.SessionID),
				slog.Int("frames", event.FrameCount))

		case recording.EventFrameRecorded:
			p.logger.Debug("frames flushed",
				slog.String("sensorID", event.SensorID),
				slog.Int("frames", event.FrameCount))

		case recording.EventError:
			p.logger.Error(fmt.Sprintf("Recording failed: %s", event.Message),
				slog.String("sensorID", event.SensorID),
				slog.String("sessionID", event.SessionID))
		}
	}
}
