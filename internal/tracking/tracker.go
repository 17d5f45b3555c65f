package tracking

import (
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sensekit/depthsuite/internal/sensor"
)

// jumpWarnDistance is the single-frame joint displacement (mm) above which
// the tracker logs a warning. Real limbs do not move two metres between
// consecutive frames at typical sensor rates.
const jumpWarnDistance = 2000.0

// WithLogger sets the logger for the tracker
func WithLogger(logger *slog.Logger) func(t *Tracker) {
	return func(t *Tracker) {
		t.logger = logger.With(slog.String("component", "tracking"))
	}
}

// WithConfig replaces the default tracker configuration
func WithConfig(cfg Config) func(t *Tracker) {
	return func(t *Tracker) {
		t.cfg = cfg
	}
}

// Tracker consumes skeleton observations from one sensor stream, maintains a
// track per person and publishes update, loss and gesture events. All state
// mutation goes through a single mutex; event fan-out never blocks.
type Tracker struct {
	mu     sync.Mutex
	cfg    Config
	tracks map[int]*track

	events *broker
	logger *slog.Logger

	now func() time.Time
}

// New creates a Tracker with default configuration and a discard logger.
func New(options ...func(t *Tracker)) *Tracker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // nil logger

	t := Tracker{
		cfg:    DefaultConfig(),
		tracks: make(map[int]*track),
		events: newBroker(),
		logger: logger,
		now:    time.Now,
	}

	for _, option := range options {
		option(&t)
	}

	return &t
}

// Subscribe returns a channel receiving tracker events. The channel is
// buffered; events are dropped for subscribers that fall behind.
func (t *Tracker) Subscribe() <-chan Event {
	return t.events.subscribe()
}

// Unsubscribe removes a subscription and closes its channel.
func (t *Tracker) Unsubscribe(ch <-chan Event) {
	t.events.unsubscribe(ch)
}

// Close shuts down event delivery, closing all subscriber channels.
func (t *Tracker) Close() {
	t.events.close()
}

// ProcessObservation feeds one skeleton observation into the tracker.
// Observations below the confidence threshold are dropped. A new track id
// starts a fresh track; an implausible center-of-mass jump on an existing
// track restarts it from the observation alone. Accepted observations are
// smoothed against the previous pose, joint velocities and predictions are
// updated, and an update event is published before gesture detection runs.
func (t *Tracker) ProcessObservation(obs sensor.Skeleton) {
	if obs.Confidence < t.cfg.MinConfidence {
		t.logger.Debug("dropping low confidence observation",
			slog.Int("trackID", obs.TrackID),
			slog.Float64("confidence", obs.Confidence))
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	tr, ok := t.tracks[obs.TrackID]
	if !ok {
		tr = newTrack(obs.TrackID)
		t.tracks[obs.TrackID] = tr

		seed := obs.Clone()
		if com, ok := seed.ComputeCenterOfMass(); ok {
			seed.CenterOfMass = &com
		}
		tr.append(seed, t.cfg.HistoryLimit)
		tr.lastSeen = now

		t.logger.Info("new track", slog.Int("trackID", tr.id))
		t.publishSkeleton(EventSkeletonUpdated, tr.current(), obs.Timestamp)
		t.detectGestures(tr, obs.Timestamp)
		return
	}

	prev := tr.current()
	t.warnOnJump(prev, &obs)

	if prevCOM, okPrev := centerOf(prev); okPrev {
		if obsCOM, okObs := centerOf(&obs); okObs {
			if d := prevCOM.Distance(obsCOM); d > t.cfg.MaxTrackingDistance {
				seed := obs.Clone()
				seed.CenterOfMass = &obsCOM
				tr.restart(seed)
				tr.lastSeen = now

				t.logger.Info("track re-acquired",
					slog.Int("trackID", tr.id),
					slog.Float64("distanceMm", d))
				t.publishSkeleton(EventSkeletonUpdated, tr.current(), obs.Timestamp)
				t.detectGestures(tr, obs.Timestamp)
				return
			}
		}
	}

	smoothed := smoothSkeleton(prev, obs, t.cfg.SmoothingFactor)

	if dt := obs.Timestamp.Sub(prev.Timestamp).Seconds(); dt > 0 {
		t.updateVelocities(tr, prev, &smoothed, dt)
	}
	t.predict(tr, &smoothed)

	tr.append(smoothed, t.cfg.HistoryLimit)
	tr.lastSeen = now

	t.publishSkeleton(EventSkeletonUpdated, tr.current(), obs.Timestamp)
	t.detectGestures(tr, obs.Timestamp)
}

// CleanupLostTracks removes tracks that have not been observed within the
// lost timeout, publishing one loss event per removal. The host drives this
// periodically; the tracker keeps no timer of its own.
func (t *Tracker) CleanupLostTracks() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for id, tr := range t.tracks {
		if now.Sub(tr.lastSeen) <= t.cfg.LostAfter {
			continue
		}

		delete(t.tracks, id)
		t.logger.Info("track lost", slog.Int("trackID", id))
		t.events.publish(Event{Kind: EventSkeletonLost, TrackID: id, Timestamp: now})
	}
}

// Reset drops all tracks and accumulated state without publishing events.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tracks = make(map[int]*track)
}

// Tracks returns a snapshot of the current skeleton of every live track,
// ordered by track id.
func (t *Tracker) Tracks() []sensor.Skeleton {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]sensor.Skeleton, 0, len(t.tracks))
	for _, tr := range t.tracks {
		if cur := tr.current(); cur != nil {
			out = append(out, cur.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrackID < out[j].TrackID })
	return out
}

// Track returns a copy of the current skeleton for the given track id, or
// nil when the track does not exist.
func (t *Tracker) Track(id int) *sensor.Skeleton {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr, ok := t.tracks[id]
	if !ok || tr.current() == nil {
		return nil
	}
	cur := tr.current().Clone()
	return &cur
}

// warnOnJump logs when any joint moved implausibly far since the previous
// frame. One warning per observation.
func (t *Tracker) warnOnJump(prev, obs *sensor.Skeleton) {
	for i := range obs.Joints {
		j := &obs.Joints[i]
		p := prev.Joint(j.Type)
		if p == nil {
			continue
		}
		if d := j.Position.Distance(p.Position); d > jumpWarnDistance {
			t.logger.Warn("implausible joint displacement",
				slog.Int("trackID", obs.TrackID),
				slog.String("joint", j.Type.String()),
				slog.Float64("distanceMm", d))
			return
		}
	}
}

// updateVelocities differentiates joint positions between the previous and
// current smoothed skeletons and low-passes the result. Joints missing or
// untracked on either side keep their previous estimate.
func (t *Tracker) updateVelocities(tr *track, prev, curr *sensor.Skeleton, dt float64) {
	for i := range curr.Joints {
		j := &curr.Joints[i]
		if !j.Tracked {
			continue
		}
		p := prev.Joint(j.Type)
		if p == nil || !p.Tracked {
			continue
		}

		raw := j.Position.Sub(p.Position).Mul(1 / dt)
		filtered := tr.velocities[j.Type].Mul(velocityFilterWeight).Add(raw.Mul(1 - velocityFilterWeight))
		tr.velocities[j.Type] = filtered
	}
}

// predict extrapolates tracked joints along their filtered velocities over
// the configured prediction horizon.
func (t *Tracker) predict(tr *track, s *sensor.Skeleton) {
	if t.cfg.FrameRate <= 0 {
		return
	}

	horizon := float64(t.cfg.PredictionFrames) / t.cfg.FrameRate
	for i := range s.Joints {
		j := &s.Joints[i]
		if !j.Tracked {
			continue
		}
		p := j.Position.Add(tr.velocity(j.Type).Mul(horizon))
		j.Predicted = &p
	}
}

func (t *Tracker) publishSkeleton(kind EventKind, s *sensor.Skeleton, ts time.Time) {
	clone := s.Clone()
	t.events.publish(Event{
		Kind:      kind,
		TrackID:   s.TrackID,
		Skeleton:  &clone,
		Timestamp: ts,
	})
}
