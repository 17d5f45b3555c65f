package recording

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sensekit/depthsuite/internal/sensor"
)

// timestampLayout names session artifacts down to the second.
const timestampLayout = "20060102_150405"

// WithLogger is an option to configure the recorder logger.
func WithLogger(logger *slog.Logger) func(r *Recorder) {
	return func(r *Recorder) {
		r.logger = logger.With(slog.String("component", "recording"))
	}
}

// Recorder manages one recording session per sensor. Starting a sensor that
// is already recording stops and finalizes the previous session first; a
// writer error fails only the owning session.
type Recorder struct {
	mu       sync.Mutex
	logger   *slog.Logger
	sessions map[string]*Session
	events   *broker
	now      func() time.Time
}

// New creates a Recorder.
func New(opts ...func(r *Recorder)) *Recorder {
	r := &Recorder{
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
		sessions: make(map[string]*Session),
		events:   newBroker(),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe registers a recorder event listener.
func (r *Recorder) Subscribe() <-chan Event {
	return r.events.subscribe()
}

// Unsubscribe removes a listener and closes its channel.
func (r *Recorder) Unsubscribe(ch <-chan Event) {
	r.events.unsubscribe(ch)
}

// Start begins a recording session for a sensor. An active session for the
// same sensor is stopped and finalized first. The output directory is
// created when missing.
func (r *Recorder) Start(sensorID string, cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old := r.sessions[sensorID]; old != nil {
		if err := r.finish(old); err != nil {
			r.logger.Error("stopping previous session",
				slog.String("sensorID", sensorID),
				slog.String("error", err.Error()))
		}
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	start := r.now()
	base := r.basePath(cfg, sensorID, start)
	writer, err := newWriter(cfg, sensorID, base)
	if err != nil {
		return nil, err
	}
	if err := writer.Open(); err != nil {
		return nil, fmt.Errorf("opening %s writer: %w", cfg.Format, err)
	}

	buffer, err := newFrameBuffer(DefaultBufferSize)
	if err != nil {
		return nil, err
	}

	sess := newSession(sensorID, cfg, writer, buffer, r.logger, start)
	r.sessions[sensorID] = sess

	r.logger.Info("recording started",
		slog.String("sensorID", sensorID),
		slog.String("sessionID", sess.ID()),
		slog.String("format", string(cfg.Format)),
		slog.String("dir", cfg.OutputDir))
	r.events.publish(Event{
		Kind:      EventStarted,
		SensorID:  sensorID,
		SessionID: sess.ID(),
		Timestamp: start,
	})
	return sess, nil
}

// basePath picks the artifact path prefix <dir>/<sensor>_<timestamp>,
// suffixing a counter when a session started within the same second left
// files behind.
func (r *Recorder) basePath(cfg Config, sensorID string, start time.Time) string {
	base := filepath.Join(cfg.OutputDir, fmt.Sprintf("%s_%s", sensorID, start.Format(timestampLayout)))
	ext := "." + string(cfg.Format)

	candidate := base
	for n := 2; ; n++ {
		if _, err := os.Stat(candidate + ext); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", base, n)
	}
}

// RecordFrame hands one frame to the sensor's active session. Without an
// active session, or once the session stopped or failed, the frame is
// silently dropped.
func (r *Recorder) RecordFrame(sensorID string, frame sensor.Frame) {
	r.mu.Lock()
	sess := r.sessions[sensorID]
	r.mu.Unlock()

	if sess == nil {
		return
	}

	flushed, err := sess.record(frame)
	switch {
	case err != nil:
		r.events.publish(Event{
			Kind:       EventError,
			SensorID:   sensorID,
			SessionID:  sess.ID(),
			FrameCount: sess.PersistedFrames(),
			Message:    sess.Failure(),
			Timestamp:  r.now(),
		})
	case flushed:
		r.events.publish(Event{
			Kind:       EventFrameRecorded,
			SensorID:   sensorID,
			SessionID:  sess.ID(),
			FrameCount: sess.FrameCount(),
			Timestamp:  r.now(),
		})
	}
}

// Stop flushes and finalizes the sensor's session and returns it, nil when
// the sensor has none. The session stays queryable afterwards.
func (r *Recorder) Stop(sensorID string) *Session {
	r.mu.Lock()
	sess := r.sessions[sensorID]
	r.mu.Unlock()

	if sess == nil {
		return nil
	}
	if err := r.finish(sess); err != nil {
		r.logger.Error("stopping session",
			slog.String("sensorID", sensorID),
			slog.String("error", err.Error()))
	}
	return sess
}

// Active returns the sessions still recording, ordered by sensor id.
func (r *Recorder) Active() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Session
	for _, sess := range r.sessions {
		if sess.Status() == StatusRecording {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SensorID() < out[j].SensorID() })
	return out
}

// Session returns the sensor's most recent session, nil when none exists.
func (r *Recorder) Session(sensorID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[sensorID]
}

// Dispose finalizes every session that has not ended yet, one goroutine per
// sensor, and shuts the event broker down. Errored sessions are finalized
// too, so their partial artifacts stay consistent. The joined stop errors
// are returned.
func (r *Recorder) Dispose() error {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.Unlock()

	errs := make([]error, len(sessions))
	var g errgroup.Group
	for i, sess := range sessions {
		i, sess := i, sess
		g.Go(func() error {
			errs[i] = r.finish(sess)
			return nil
		})
	}
	_ = g.Wait()

	r.events.close()
	return errors.Join(errs...)
}

// finish stops a session and publishes the stop or error events. It is
// safe on an already finished session and never takes r.mu, so Start can
// call it while holding the recorder lock.
func (r *Recorder) finish(sess *Session) error {
	stopped, err := sess.stop(r.now())
	if err != nil {
		r.events.publish(Event{
			Kind:       EventError,
			SensorID:   sess.SensorID(),
			SessionID:  sess.ID(),
			FrameCount: sess.PersistedFrames(),
			Message:    err.Error(),
			Timestamp:  r.now(),
		})
	}
	if stopped {
		r.events.publish(Event{
			Kind:       EventStopped,
			SensorID:   sess.SensorID(),
			SessionID:  sess.ID(),
			FrameCount: sess.PersistedFrames(),
			Timestamp:  r.now(),
		})
	}
	return err
}
