package calibration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/sensekit/depthsuite/internal/sensor"
)

// Status is the lifecycle state of a calibration session.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// StepKind identifies what a session step waits for.
type StepKind string

const (
	StepWait    StepKind = "wait"    // sleeps out the step duration
	StepMove    StepKind = "move"    // waits for the operator to reposition the pattern
	StepCapture StepKind = "capture" // waits for a validated capture
)

// TargetPose is where a move step asks the operator to hold the pattern.
// Position is in sensor coordinates (mm), yaw in degrees about the vertical.
type TargetPose struct {
	Position r3.Vector `json:"position"`
	Yaw      float64   `json:"yaw"`
}

// Step is one stage of the guided calibration workflow.
type Step struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Kind        StepKind      `json:"kind"`
	Duration    time.Duration `json:"duration,omitempty"` // wait length or capture settle delay
	Target      *TargetPose   `json:"target,omitempty"`   // set on move steps
	Completed   bool          `json:"completed"`
}

const (
	setupDuration      = 2 * time.Second
	processingDuration = time.Second

	// idealPatternDepth is the capture distance (mm) at which the accuracy
	// heuristic scores 1; depthSpread is the distance error that drives it to 0.
	idealPatternDepth = 700.0
	depthSpread       = 100.0
)

// gridSpacingMm scales the capture grid: a gridSize-sized grid spans
// +-gridSize*gridSpacingMm in x and y.
const gridSpacingMm = 200.0

// captureDepths are cycled through the capture positions (mm).
var captureDepths = [...]float64{500, 700, 900}

// errSessionDone unblocks step waits when the session reaches a terminal
// state from another goroutine.
var errSessionDone = errors.New("calibration session finished")

// capture is one accepted frame with its detected corner grid.
type capture struct {
	depth   *sensor.DepthFrame
	cloud   *sensor.PointCloud
	corners []r3.Vector
}

// Session is one guided calibration run for a single sensor. The owning
// Manager creates it; the host drives it by calling ProcessNextStep in a
// loop while feeding frames through CaptureFrame from any goroutine.
type Session struct {
	id       string
	sensorID string
	cfg      Config
	logger   *slog.Logger

	mu          sync.Mutex
	status      Status
	steps       []Step
	captures    []capture
	data        *Data
	failure     string
	startedAt   time.Time
	completedAt time.Time

	events       chan Event
	eventsClosed bool
	ackCh        chan struct{}
	captureCh    chan struct{}
	done         chan struct{}
}

func newSession(sensorID string, cfg Config, logger *slog.Logger) *Session {
	return &Session{
		id:        uuid.NewString(),
		sensorID:  sensorID,
		cfg:       cfg,
		logger:    logger.With(slog.String("sensorID", sensorID)),
		status:    StatusPending,
		steps:     buildSteps(cfg),
		events:    make(chan Event, sessionEventBuffer),
		ackCh:     make(chan struct{}, 1),
		captureCh: make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// buildSteps lays out the guided workflow: a setup wait, a move and a
// capture step per target position, and a final processing wait.
func buildSteps(cfg Config) []Step {
	steps := make([]Step, 0, 2*cfg.CaptureCount+2)
	steps = append(steps, Step{
		Name:        "setup",
		Description: "Hold the calibration pattern flat and fully inside the sensor view",
		Kind:        StepWait,
		Duration:    setupDuration,
	})

	for i, target := range buildTargets(cfg.CaptureCount) {
		t := target
		steps = append(steps, Step{
			Name: fmt.Sprintf("move-%d", i+1),
			Description: fmt.Sprintf("Move the pattern to x=%.0f y=%.0f z=%.0f (mm), yaw %.0f degrees",
				t.Position.X, t.Position.Y, t.Position.Z, t.Yaw),
			Kind:   StepMove,
			Target: &t,
		})
		steps = append(steps, Step{
			Name:        fmt.Sprintf("capture-%d", i+1),
			Description: "Hold still while the frame is captured",
			Kind:        StepCapture,
			Duration:    cfg.CaptureDelay,
		})
	}

	steps = append(steps, Step{
		Name:        "processing",
		Description: "Computing calibration parameters",
		Kind:        StepWait,
		Duration:    processingDuration,
	})
	return steps
}

// buildTargets spreads n capture positions over a ceil(sqrt(n)) grid in x/y,
// cycling the depth and yawing the first five positions for angular coverage.
func buildTargets(n int) []TargetPose {
	if n <= 0 {
		return nil
	}

	gridSize := int(math.Ceil(math.Sqrt(float64(n))))
	span := float64(gridSize) * gridSpacingMm

	var step float64
	if gridSize > 1 {
		step = 2 * span / float64(gridSize-1)
	}

	targets := make([]TargetPose, 0, n)
	for i := 0; i < n; i++ {
		row := i / gridSize
		col := i % gridSize

		var yaw float64
		if i < 5 {
			yaw = 30 * float64(i+1)
		}

		targets = append(targets, TargetPose{
			Position: r3.Vector{
				X: -span + float64(col)*step,
				Y: -span + float64(row)*step,
				Z: captureDepths[i%len(captureDepths)],
			},
			Yaw: yaw,
		})
	}
	return targets
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// SensorID returns the sensor this session calibrates.
func (s *Session) SensorID() string { return s.sensorID }

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Steps returns a copy of the workflow steps with their completion flags.
func (s *Session) Steps() []Step {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}

// Data returns the calibration result, nil until the session completes.
func (s *Session) Data() *Data {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Failure returns the retained failure message, empty unless failed.
func (s *Session) Failure() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// Events returns the session's event channel. It is closed when the session
// reaches a terminal state.
func (s *Session) Events() <-chan Event { return s.events }

// Done returns a channel closed when the session completes, fails or is
// cancelled.
func (s *Session) Done() <-chan struct{} { return s.done }

// ProcessNextStep advances the workflow by one step: it finds the first
// incomplete step, performs its wait, and marks it complete. When every step
// is complete it runs the computation phase instead. Returns the context
// error when interrupted; a session cancelled from elsewhere returns nil
// with the failure retained on the session.
func (s *Session) ProcessNextStep(ctx context.Context) error {
	s.mu.Lock()
	switch s.status {
	case StatusCompleted, StatusFailed:
		s.mu.Unlock()
		return nil
	case StatusPending:
		s.status = StatusInProgress
		s.startedAt = time.Now()
	}

	idx := s.firstIncompleteLocked()
	if idx < 0 {
		s.mu.Unlock()
		return s.complete()
	}
	step := s.steps[idx]
	s.mu.Unlock()

	s.logger.Info("calibration step started",
		slog.String("step", step.Name),
		slog.String("kind", string(step.Kind)))
	s.publish(Event{Kind: EventStepStarted, Step: &step})

	var err error
	switch step.Kind {
	case StepWait:
		err = s.sleep(ctx, step.Duration)
	case StepMove:
		err = s.awaitMove(ctx, &step)
	case StepCapture:
		err = s.awaitCapture(ctx, &step)
	default:
		err = fmt.Errorf("unknown step kind %q", step.Kind)
	}
	if err != nil {
		if errors.Is(err, errSessionDone) {
			return nil
		}
		return err
	}

	s.mu.Lock()
	if s.status != StatusInProgress {
		s.mu.Unlock()
		return nil
	}
	s.steps[idx].Completed = true
	s.mu.Unlock()

	step.Completed = true
	s.publish(Event{Kind: EventStepCompleted, Step: &step})

	if s.cfg.Auto && s.cfg.StepDelay > 0 {
		if err := s.sleep(ctx, s.cfg.StepDelay); err != nil && !errors.Is(err, errSessionDone) {
			return err
		}
	}
	return nil
}

// CaptureFrame feeds one frame into the session. The frame runs pattern
// detection and, when validation is enabled, the geometry checks; rejected
// captures publish EventCaptureInvalid and do not count. A valid capture is
// buffered and unblocks the pending capture step. Calling after the session
// finished is a no-op.
func (s *Session) CaptureFrame(depth *sensor.DepthFrame, cloud *sensor.PointCloud) error {
	if depth == nil {
		return fmt.Errorf("capture requires a depth frame")
	}

	s.mu.Lock()
	if s.status == StatusCompleted || s.status == StatusFailed {
		s.mu.Unlock()
		return nil
	}
	cfg := s.cfg
	s.mu.Unlock()

	if cfg.Pattern != PatternCheckerboard {
		s.logger.Warn("no detector for pattern kind", slog.String("pattern", string(cfg.Pattern)))
		s.publish(Event{Kind: EventCaptureInvalid, Reason: fmt.Sprintf("no detector for pattern kind %q", cfg.Pattern)})
		return nil
	}

	det, ok := detectCheckerboard(depth, cfg.PatternRows, cfg.PatternCols, cfg.TargetFOV)
	if !ok {
		s.publish(Event{Kind: EventCaptureInvalid, Reason: "pattern not detected"})
		return nil
	}

	if cfg.Validate {
		if err := det.validate(cfg.SquareSize); err != nil {
			s.logger.Debug("capture rejected", slog.String("reason", err.Error()))
			s.publish(Event{Kind: EventCaptureInvalid, Reason: err.Error()})
			return nil
		}
	}

	s.mu.Lock()
	s.captures = append(s.captures, capture{depth: depth, cloud: cloud, corners: det.corners})
	count := len(s.captures)
	s.mu.Unlock()

	s.logger.Info("capture accepted", slog.Int("captures", count))
	s.publish(Event{Kind: EventCaptureValid})

	select {
	case s.captureCh <- struct{}{}:
	default:
	}
	return nil
}

// AcknowledgePosition reports that the operator reached the requested pose,
// unblocking a pending move step.
func (s *Session) AcknowledgePosition() {
	select {
	case s.ackCh <- struct{}{}:
	default:
	}
}

// Cancel fails the session with the given reason, discards capture buffers
// and unblocks any pending step wait.
func (s *Session) Cancel(reason string) {
	s.mu.Lock()
	if s.status == StatusCompleted || s.status == StatusFailed {
		s.mu.Unlock()
		return
	}
	s.status = StatusFailed
	s.failure = reason
	s.captures = nil
	s.completedAt = time.Now()
	close(s.done)
	s.mu.Unlock()

	s.logger.Info("calibration cancelled", slog.String("reason", reason))
	s.publish(Event{Kind: EventFailed, Reason: reason})
	s.closeEvents()
}

// firstIncompleteLocked returns the index of the first incomplete step, -1
// when every step is done. Caller holds s.mu.
func (s *Session) firstIncompleteLocked() int {
	for i := range s.steps {
		if !s.steps[i].Completed {
			return i
		}
	}
	return -1
}

func (s *Session) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return errSessionDone
		default:
			return nil
		}
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errSessionDone
	}
}

// awaitMove publishes the target and blocks until the position is
// acknowledged. Auto mode advances on the move timeout instead of waiting
// indefinitely.
func (s *Session) awaitMove(ctx context.Context, step *Step) error {
	s.publish(Event{Kind: EventMoveTo, Step: step, Target: step.Target})

	if s.cfg.Auto {
		t := time.NewTimer(s.cfg.MoveTimeout)
		defer t.Stop()

		select {
		case <-s.ackCh:
			return nil
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return errSessionDone
		}
	}

	select {
	case <-s.ackCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errSessionDone
	}
}

// awaitCapture sleeps out the settle delay, then blocks until a validated
// capture arrives.
func (s *Session) awaitCapture(ctx context.Context, step *Step) error {
	if err := s.sleep(ctx, step.Duration); err != nil {
		return err
	}

	select {
	case <-s.captureCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errSessionDone
	}
}

// complete runs the computation phase over the buffered captures. Any error
// fails the session with the message retained.
func (s *Session) complete() error {
	s.mu.Lock()
	if s.status != StatusInProgress {
		s.mu.Unlock()
		return nil
	}
	captures := s.captures
	cfg := s.cfg
	sensorID := s.sensorID
	s.mu.Unlock()

	data, err := computeData(sensorID, cfg, captures)
	if err != nil {
		s.fail(fmt.Sprintf("computing calibration: %s", err))
		return err
	}

	s.mu.Lock()
	if s.status != StatusInProgress {
		s.mu.Unlock()
		return nil
	}
	s.status = StatusCompleted
	s.data = data
	s.completedAt = time.Now()
	close(s.done)
	s.mu.Unlock()

	s.logger.Info("calibration completed",
		slog.Float64("accuracy", data.Accuracy),
		slog.Int("captures", len(captures)))
	s.publish(Event{Kind: EventCompleted, Data: data})
	s.closeEvents()
	return nil
}

func (s *Session) fail(reason string) {
	s.mu.Lock()
	if s.status == StatusCompleted || s.status == StatusFailed {
		s.mu.Unlock()
		return
	}
	s.status = StatusFailed
	s.failure = reason
	s.completedAt = time.Now()
	close(s.done)
	s.mu.Unlock()

	s.logger.Error("calibration failed", slog.String("reason", reason))
	s.publish(Event{Kind: EventFailed, Reason: reason})
	s.closeEvents()
}

func (s *Session) publish(e Event) {
	e.SensorID = s.sensorID
	e.Timestamp = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventsClosed {
		return
	}
	select {
	case s.events <- e:
	default: // consumer is not keeping up
	}
}

func (s *Session) closeEvents() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.eventsClosed {
		return
	}
	s.eventsClosed = true
	close(s.events)
}

// computeData derives the calibration result: intrinsics from the assumed
// field of view, placeholder extrinsics and distortion, and the accuracy
// heuristic over every validated corner depth.
func computeData(sensorID string, cfg Config, captures []capture) (*Data, error) {
	if len(captures) == 0 {
		return nil, fmt.Errorf("no captures collected")
	}

	depth := captures[0].depth
	if depth == nil || depth.Width <= 0 || depth.Height <= 0 {
		return nil, fmt.Errorf("invalid capture dimensions %dx%d", depth.Width, depth.Height)
	}

	fov := cfg.TargetFOV * math.Pi / 180
	if t := math.Tan(fov / 2); t <= 0 {
		return nil, fmt.Errorf("target FOV %.1f degrees yields no focal length", cfg.TargetFOV)
	}

	fx, fy, cx, cy := pinhole(depth.Width, depth.Height, cfg.TargetFOV)

	var deviations []float64
	for _, c := range captures {
		for _, p := range c.corners {
			deviations = append(deviations, math.Abs(p.Z-idealPatternDepth))
		}
	}

	accuracy := 1.0
	if len(deviations) > 0 {
		spread := stat.Mean(deviations, nil) / depthSpread
		accuracy = 1 - clamp(spread, 0, 1)
	}

	return &Data{
		Intrinsics: Intrinsics{
			Fx:     fx,
			Fy:     fy,
			Cx:     cx,
			Cy:     cy,
			Width:  depth.Width,
			Height: depth.Height,
		},
		// Extrinsics and distortion are placeholders; only intrinsics are
		// estimated here.
		Extrinsics: identityExtrinsics(),
		Distortion: make([]float64, 5),
		Timestamp:  time.Now(),
		Accuracy:   accuracy,
		SensorID:   sensorID,
	}, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
