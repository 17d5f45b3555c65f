package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sensekit/depthsuite/internal/calibration"
	"github.com/sensekit/depthsuite/internal/catalog"
	"github.com/sensekit/depthsuite/internal/recording"
)

// Run drives one guided calibration session end to end, feeding capture
// frames from the recording, and writes the resulting calibration JSON.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.InputFile); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("recording file '%s' does not exist: %w", config.InputFile, err)
	}

	manager := calibration.NewManager(
		calibration.WithLogger(logger),
		calibration.WithConfig(config.CalibrationConfig()))

	sess, err := manager.Start(config.SensorID)
	if err != nil {
		return fmt.Errorf("starting calibration session: %w", err)
	}

	fmt.Println("=== Guided Depth Camera Calibration ===")
	fmt.Printf("Sensor %s: %dx%d checkerboard, %.0f mm squares, %d captures from %s\n\n",
		config.SensorID, config.Rows, config.Cols, config.SquareSize, config.Captures, config.InputFile)

	feedCtx, stopFeeding := context.WithCancel(ctx)
	defer stopFeeding()

	// armed gates the feeder so each capture step consumes exactly one
	// validated capture from the stream.
	var armed atomic.Bool
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		relayEvents(sess, &armed)
	}()
	go func() {
		defer wg.Done()
		feedCaptures(feedCtx, config.InputFile, sess, &armed)
	}()

	var stepErr error
	for sess.Status() == calibration.StatusPending || sess.Status() == calibration.StatusInProgress {
		if stepErr = sess.ProcessNextStep(ctx); stepErr != nil {
			manager.CancelAll("interrupted")
			break
		}
	}

	stopFeeding()
	wg.Wait()

	if stepErr != nil {
		return stepErr
	}
	if sess.Status() != calibration.StatusCompleted {
		return fmt.Errorf("calibration failed: %s", sess.Failure())
	}

	data := sess.Data()
	if err = calibration.SaveData(config.OutputFile, data); err != nil {
		return fmt.Errorf("saving calibration: %w", err)
	}
	fmt.Printf("\nCalibration complete. Accuracy %.2f, written to %s\n", data.Accuracy, config.OutputFile)

	if config.DBPath != "" {
		if err = storeCalibration(ctx, config.DBPath, data); err != nil {
			return err
		}
		fmt.Printf("Result stored in catalog %s\n", config.DBPath)
	}
	return nil
}

// relayEvents prints operator guidance for session events. Move steps are
// acknowledged immediately: the pattern poses come from the recording, there
// is nothing to physically reposition.
func relayEvents(sess *calibration.Session, armed *atomic.Bool) {
	var lastReason string

	for event := range sess.Events() {
		switch event.Kind {
		case calibration.EventStepStarted:
			fmt.Printf("-> %s: %s\n", event.Step.Name, event.Step.Description)
			if event.Step.Kind == calibration.StepCapture {
				armed.Store(true)
			}

		case calibration.EventMoveTo:
			if event.Target != nil {
				fmt.Printf("   Target pose: x=%.0f y=%.0f z=%.0f mm, yaw %.0f deg\n",
					event.Target.Position.X, event.Target.Position.Y, event.Target.Position.Z,
					event.Target.Yaw)
			}
			sess.AcknowledgePosition()

		case calibration.EventCaptureValid:
			armed.Store(false)
			lastReason = ""
			fmt.Println("   Capture accepted")

		case calibration.EventCaptureInvalid:
			// The stream repeats rejections at frame rate, print each reason once.
			if event.Reason != lastReason {
				fmt.Printf("   Capture rejected: %s\n", event.Reason)
				lastReason = event.Reason
			}

		case calibration.EventFailed:
			fmt.Printf("\nCalibration failed: %s\n", event.Reason)
		}
	}
}

// feedCaptures replays the recording in a loop and forwards depth frames to
// the session while a capture step is armed. Failures cancel the session so
// the step loop does not wait on frames that will never come.
func feedCaptures(ctx context.Context, path string, sess *calibration.Session, armed *atomic.Bool) {
	source := recording.NewReplaySource(path, recording.WithLoop())

	frames, err := source.Frames(ctx)
	if err != nil {
		sess.Cancel(fmt.Sprintf("opening recording: %s", err))
		return
	}

	for frame := range frames {
		select {
		case <-sess.Done():
			return
		default:
		}

		if !armed.Load() || frame.Depth == nil {
			continue
		}
		if err := sess.CaptureFrame(frame.Depth, frame.Cloud); err != nil {
			sess.Cancel(fmt.Sprintf("feeding capture: %s", err))
			return
		}
	}

	if err := source.Err(); err != nil {
		sess.Cancel(fmt.Sprintf("reading recording: %s", err))
	}
}

// storeCalibration appends the result to the catalog's calibration history.
func storeCalibration(ctx context.Context, dbPath string, data *calibration.Data) (err error) {
	store := catalog.NewSqliteStore(dbPath)
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing catalog: %w", cerr)
		}
	}()

	if err = store.SaveCalibration(ctx, data); err != nil {
		return fmt.Errorf("saving calibration to catalog: %w", err)
	}
	return nil
}
