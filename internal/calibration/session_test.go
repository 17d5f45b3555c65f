package calibration

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/geo/r3"
)

// fastConfig returns an auto-mode configuration sized for tests.
func fastConfig(captures int) Config {
	cfg := DefaultConfig()
	cfg.CaptureCount = captures
	cfg.Auto = true
	cfg.MoveTimeout = 10 * time.Millisecond
	cfg.CaptureDelay = 0
	cfg.StepDelay = 0
	cfg.SquareSize = 80 // matches the sampled spacing of a flat 700 mm frame
	return cfg
}

// zeroWaits removes the fixed setup and processing pauses so tests run fast.
func zeroWaits(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.steps {
		if s.steps[i].Kind == StepWait {
			s.steps[i].Duration = 0
		}
	}
}

func TestManagerStart_DuplicateSession(t *testing.T) {
	m := NewManager()

	s, err := m.Start("sensor-1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if _, err := m.Start("sensor-1"); !errors.Is(err, ErrSessionInProgress) {
		t.Errorf("second Start() error = %v, want ErrSessionInProgress", err)
	}

	// a different sensor is unaffected
	if _, err := m.Start("sensor-2"); err != nil {
		t.Errorf("Start() for another sensor returned %v", err)
	}

	// a finished session is replaced
	s.Cancel("test teardown")
	if _, err := m.Start("sensor-1"); err != nil {
		t.Errorf("Start() after cancel returned %v", err)
	}
}

func TestManagerSession_Lookup(t *testing.T) {
	m := NewManager()

	if got := m.Session("missing"); got != nil {
		t.Errorf("Session(missing) = %v, want nil", got)
	}

	s, err := m.Start("sensor-1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := m.Session("sensor-1"); got != s {
		t.Error("Session() did not return the started session")
	}
}

func TestBuildTargets_GridLayout(t *testing.T) {
	targets := buildTargets(20)
	if len(targets) != 20 {
		t.Fatalf("target count = %d, want 20", len(targets))
	}

	// 20 captures use a 5x5 grid spanning +-1000 mm with a 500 mm pitch
	first := targets[0]
	if first.Position.X != -1000 || first.Position.Y != -1000 {
		t.Errorf("first target at (%f, %f), want (-1000, -1000)", first.Position.X, first.Position.Y)
	}
	if targets[1].Position.X != -500 {
		t.Errorf("second target x = %f, want -500", targets[1].Position.X)
	}
	if targets[4].Position.X != 1000 {
		t.Errorf("fifth target x = %f, want 1000", targets[4].Position.X)
	}
	if targets[5].Position.Y != -500 {
		t.Errorf("sixth target y = %f, want -500 on the second row", targets[5].Position.Y)
	}

	// depth cycles 500, 700, 900
	for i, want := range []float64{500, 700, 900, 500} {
		if got := targets[i].Position.Z; got != want {
			t.Errorf("target %d depth = %f, want %f", i, got, want)
		}
	}

	// the first five targets carry increasing yaw, the rest none
	for i := 0; i < 5; i++ {
		if want := 30 * float64(i+1); targets[i].Yaw != want {
			t.Errorf("target %d yaw = %f, want %f", i, targets[i].Yaw, want)
		}
	}
	if targets[5].Yaw != 0 {
		t.Errorf("target 5 yaw = %f, want 0", targets[5].Yaw)
	}
}

func TestBuildSteps_Layout(t *testing.T) {
	steps := buildSteps(fastConfig(3))

	// setup + (move, capture) per target + processing
	if len(steps) != 8 {
		t.Fatalf("step count = %d, want 8", len(steps))
	}
	if steps[0].Kind != StepWait || steps[0].Name != "setup" {
		t.Errorf("first step = %s/%s, want wait/setup", steps[0].Kind, steps[0].Name)
	}
	if steps[1].Kind != StepMove || steps[1].Target == nil {
		t.Error("second step is not a move with a target")
	}
	if steps[2].Kind != StepCapture {
		t.Errorf("third step kind = %s, want capture", steps[2].Kind)
	}
	if last := steps[len(steps)-1]; last.Kind != StepWait || last.Name != "processing" {
		t.Errorf("last step = %s/%s, want wait/processing", last.Kind, last.Name)
	}
}

func TestSession_AutoRun(t *testing.T) {
	m := NewManager(WithConfig(fastConfig(2)))

	s, err := m.Start("sensor-1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	zeroWaits(s)

	// feed valid frames until the session finishes
	frame := flatDepthFrame(640, 480, 700)
	go func() {
		for {
			select {
			case <-s.Done():
				return
			default:
			}
			if err := s.CaptureFrame(frame, nil); err != nil {
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for i := 0; i < 100; i++ {
		if st := s.Status(); st == StatusCompleted || st == StatusFailed {
			break
		}
		if err := s.ProcessNextStep(ctx); err != nil {
			t.Fatalf("ProcessNextStep() error = %v", err)
		}
	}

	if got := s.Status(); got != StatusCompleted {
		t.Fatalf("session status = %s, want completed (failure: %q)", got, s.Failure())
	}

	data := s.Data()
	if data == nil {
		t.Fatal("completed session has no data")
	}

	wantFx := 640 / (2 * math.Tan(30*math.Pi/180))
	if math.Abs(data.Intrinsics.Fx-wantFx) > 1e-9 {
		t.Errorf("fx = %f, want %f", data.Intrinsics.Fx, wantFx)
	}
	if data.Intrinsics.Fy != data.Intrinsics.Fx {
		t.Error("fy differs from fx for square pixels")
	}
	if data.Intrinsics.Cx != 320 || data.Intrinsics.Cy != 240 {
		t.Errorf("principal point = (%f, %f), want (320, 240)", data.Intrinsics.Cx, data.Intrinsics.Cy)
	}
	// every corner sat exactly at the ideal depth
	if data.Accuracy != 1 {
		t.Errorf("accuracy = %f, want 1", data.Accuracy)
	}
	if data.SensorID != "sensor-1" {
		t.Errorf("sensor id = %q, want sensor-1", data.SensorID)
	}
	if data.Extrinsics == nil || data.Extrinsics.Rotation != [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1} {
		t.Error("extrinsics placeholder is not the identity")
	}

	// the event stream saw the whole lifecycle and was closed
	var moves, valids, completed int
	for e := range s.Events() {
		switch e.Kind {
		case EventMoveTo:
			moves++
		case EventCaptureValid:
			valids++
		case EventCompleted:
			completed++
		}
	}
	if moves < 2 || valids < 2 || completed != 1 {
		t.Errorf("event counts: moves=%d valids=%d completed=%d", moves, valids, completed)
	}
}

func TestSession_CancelUnblocksMove(t *testing.T) {
	cfg := fastConfig(1)
	cfg.Auto = false // manual move waits indefinitely

	m := NewManager(WithConfig(cfg))
	s, err := m.Start("sensor-1")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	zeroWaits(s)

	// complete the setup step, then block on the move
	if err := s.ProcessNextStep(context.Background()); err != nil {
		t.Fatalf("setup step error = %v", err)
	}

	ret := make(chan error, 1)
	go func() { ret <- s.ProcessNextStep(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	s.Cancel("operator aborted")

	select {
	case err := <-ret:
		if err != nil {
			t.Errorf("unblocked ProcessNextStep() error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Cancel did not unblock the pending move step")
	}

	if got := s.Status(); got != StatusFailed {
		t.Errorf("session status = %s, want failed", got)
	}
	if got := s.Failure(); got != "operator aborted" {
		t.Errorf("failure = %q, want the cancel reason", got)
	}

	// capture after cancel is a no-op
	if err := s.CaptureFrame(flatDepthFrame(640, 480, 700), nil); err != nil {
		t.Errorf("CaptureFrame after cancel returned %v, want nil", err)
	}
}

func TestSession_AcknowledgeUnblocksMove(t *testing.T) {
	cfg := fastConfig(1)
	cfg.Auto = false

	m := NewManager(WithConfig(cfg))
	s, _ := m.Start("sensor-1")
	zeroWaits(s)

	if err := s.ProcessNextStep(context.Background()); err != nil {
		t.Fatalf("setup step error = %v", err)
	}

	// a buffered acknowledgement completes the move without blocking
	s.AcknowledgePosition()
	if err := s.ProcessNextStep(context.Background()); err != nil {
		t.Fatalf("move step error = %v", err)
	}

	steps := s.Steps()
	if !steps[1].Completed {
		t.Error("move step not completed after acknowledgement")
	}
}

func TestSession_ContextCancel(t *testing.T) {
	m := NewManager(WithConfig(fastConfig(1)))
	s, _ := m.Start("sensor-1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// the setup wait still has its full duration and must yield to ctx
	if err := s.ProcessNextStep(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ProcessNextStep() error = %v, want context.Canceled", err)
	}
	if s.Steps()[0].Completed {
		t.Error("interrupted step was marked complete")
	}
	if got := s.Status(); got != StatusInProgress {
		t.Errorf("session status = %s, want in_progress after ctx cancel", got)
	}
}

func TestCaptureFrame_NilDepth(t *testing.T) {
	m := NewManager()
	s, _ := m.Start("sensor-1")

	if err := s.CaptureFrame(nil, nil); err == nil {
		t.Error("CaptureFrame(nil) did not return an error")
	}
}

func TestCaptureFrame_UnsupportedPattern(t *testing.T) {
	cfg := fastConfig(1)
	cfg.Pattern = PatternCircles

	m := NewManager(WithConfig(cfg))
	s, _ := m.Start("sensor-1")

	if err := s.CaptureFrame(flatDepthFrame(640, 480, 700), nil); err != nil {
		t.Fatalf("CaptureFrame() error = %v", err)
	}

	s.mu.Lock()
	captured := len(s.captures)
	s.mu.Unlock()
	if captured != 0 {
		t.Errorf("capture buffered despite unsupported pattern, count = %d", captured)
	}

	select {
	case e := <-s.Events():
		if e.Kind != EventCaptureInvalid {
			t.Errorf("event kind = %v, want EventCaptureInvalid", e.Kind)
		}
	default:
		t.Error("no rejection event published")
	}
}

func TestComputeData_Accuracy(t *testing.T) {
	testCases := []struct {
		name  string
		depth float64
		want  float64
	}{
		{"ideal distance", 700, 1},
		{"50mm off", 750, 0.5},
		{"100mm off", 800, 0},
		{"clamped", 900, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			corners := []r3.Vector{{Z: tc.depth}, {Z: tc.depth}, {Z: tc.depth}}
			captures := []capture{{depth: flatDepthFrame(640, 480, 700), corners: corners}}

			data, err := computeData("s", DefaultConfig(), captures)
			if err != nil {
				t.Fatalf("computeData() error = %v", err)
			}
			if math.Abs(data.Accuracy-tc.want) > 1e-9 {
				t.Errorf("accuracy = %f, want %f", data.Accuracy, tc.want)
			}
		})
	}
}

func TestComputeData_NoCaptures(t *testing.T) {
	if _, err := computeData("s", DefaultConfig(), nil); err == nil {
		t.Error("computeData() accepted an empty capture set")
	}
}

func TestDataRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.json")

	in := &Data{
		Intrinsics: Intrinsics{Fx: 554.25, Fy: 554.25, Cx: 320, Cy: 240, Width: 640, Height: 480},
		Extrinsics: identityExtrinsics(),
		Distortion: make([]float64, 5),
		Timestamp:  time.Now().UTC().Truncate(time.Second),
		Accuracy:   0.93,
		SensorID:   "sensor-1",
	}

	if err := SaveData(path, in); err != nil {
		t.Fatalf("SaveData() error = %v", err)
	}

	out, err := LoadData(path)
	if err != nil {
		t.Fatalf("LoadData() error = %v", err)
	}

	if out.Intrinsics != in.Intrinsics {
		t.Errorf("intrinsics = %+v, want %+v", out.Intrinsics, in.Intrinsics)
	}
	if out.Accuracy != in.Accuracy || out.SensorID != in.SensorID {
		t.Errorf("got accuracy=%f sensor=%q, want accuracy=%f sensor=%q",
			out.Accuracy, out.SensorID, in.Accuracy, in.SensorID)
	}
	if out.Extrinsics == nil || out.Extrinsics.Rotation != in.Extrinsics.Rotation {
		t.Error("extrinsics did not survive the round trip")
	}
	if !out.Timestamp.Equal(in.Timestamp) {
		t.Errorf("timestamp = %v, want %v", out.Timestamp, in.Timestamp)
	}

	if err := SaveData(path, nil); err == nil {
		t.Error("SaveData(nil) did not return an error")
	}
	if _, err := LoadData(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("LoadData() on a missing file did not return an error")
	}
}
