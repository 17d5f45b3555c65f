package tracking

import (
	"math"
	"testing"
	"time"

	"github.com/sensekit/depthsuite/internal/sensor"
)

// feedFrames runs a sequence of hand positions through a pass-through
// tracker and returns the gesture events it published.
func feedFrames(t *testing.T, tk *Tracker, frames []sensor.Skeleton) []Gesture {
	t.Helper()

	ch := tk.Subscribe()
	defer tk.Unsubscribe(ch)

	for _, f := range frames {
		tk.ProcessObservation(f)
	}

	var gestures []Gesture
	for _, e := range drainEvents(ch) {
		if e.Kind == EventGesture && e.Gesture != nil {
			gestures = append(gestures, *e.Gesture)
		}
	}
	return gestures
}

func passthroughTracker() *Tracker {
	cfg := DefaultConfig()
	cfg.SmoothingFactor = 0
	return New(WithConfig(cfg))
}

func TestDetectWave(t *testing.T) {
	base := time.Now()
	tk := passthroughTracker()

	// hand held above the elbow, moving laterally at 500 mm/s raw
	frames := []sensor.Skeleton{
		testSkeleton(1, base,
			trackedJoint(sensor.JointHandLeft, 0, 500, 1000),
			trackedJoint(sensor.JointElbowLeft, 0, 300, 1000)),
		testSkeleton(1, base.Add(100*time.Millisecond),
			trackedJoint(sensor.JointHandLeft, 50, 500, 1000),
			trackedJoint(sensor.JointElbowLeft, 0, 300, 1000)),
	}

	gestures := feedFrames(t, tk, frames)
	if len(gestures) != 1 {
		t.Fatalf("Expected 1 gesture, got %d: %v", len(gestures), gestures)
	}

	g := gestures[0]
	if g.Kind != GestureWave {
		t.Errorf("gesture kind = %q, want %q", g.Kind, GestureWave)
	}
	if g.Hand != HandLeft {
		t.Errorf("gesture hand = %q, want %q", g.Hand, HandLeft)
	}
	if g.Direction != "right" {
		t.Errorf("gesture direction = %q, want %q", g.Direction, "right")
	}
	// filtered velocity 350 mm/s against a 400 mm/s saturation point
	if !almostEqual(g.Confidence, 0.875) {
		t.Errorf("gesture confidence = %f, want 0.875", g.Confidence)
	}
	if g.TrackID != 1 {
		t.Errorf("gesture track id = %d, want 1", g.TrackID)
	}
}

func TestDetectWave_RequiresElevation(t *testing.T) {
	base := time.Now()
	tk := passthroughTracker()

	// same lateral speed but the hand sits below the elbow
	frames := []sensor.Skeleton{
		testSkeleton(1, base,
			trackedJoint(sensor.JointHandLeft, 0, 200, 1000),
			trackedJoint(sensor.JointElbowLeft, 0, 300, 1000)),
		testSkeleton(1, base.Add(100*time.Millisecond),
			trackedJoint(sensor.JointHandLeft, 50, 200, 1000),
			trackedJoint(sensor.JointElbowLeft, 0, 300, 1000)),
	}

	for _, g := range feedFrames(t, tk, frames) {
		if g.Kind == GestureWave {
			t.Fatalf("wave fired without elevation: %v", g)
		}
	}
}

func TestDetectSwipe(t *testing.T) {
	base := time.Now()
	tk := passthroughTracker()

	// 1000 mm/s raw lateral speed; without an elbow joint the wave detector
	// cannot fire
	frames := []sensor.Skeleton{
		testSkeleton(1, base, trackedJoint(sensor.JointHandRight, 0, 0, 1000)),
		testSkeleton(1, base.Add(100*time.Millisecond), trackedJoint(sensor.JointHandRight, 100, 0, 1000)),
	}

	gestures := feedFrames(t, tk, frames)
	if len(gestures) != 1 {
		t.Fatalf("Expected 1 gesture, got %d: %v", len(gestures), gestures)
	}

	g := gestures[0]
	if g.Kind != GestureSwipe {
		t.Errorf("gesture kind = %q, want %q", g.Kind, GestureSwipe)
	}
	if g.Hand != HandRight {
		t.Errorf("gesture hand = %q, want %q", g.Hand, HandRight)
	}
	if g.Direction != "right" {
		t.Errorf("gesture direction = %q, want %q", g.Direction, "right")
	}
	if !almostEqual(g.Confidence, 0.7) {
		t.Errorf("gesture confidence = %f, want 0.7", g.Confidence)
	}
}

func TestDetectPushPull(t *testing.T) {
	testCases := []struct {
		name     string
		dz       float64
		wantKind GestureKind
		wantDir  string
	}{
		{"push away", 60, GesturePush, "away"},
		{"pull toward", -60, GesturePull, "toward"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			base := time.Now()
			tk := passthroughTracker()

			frames := []sensor.Skeleton{
				testSkeleton(1, base, trackedJoint(sensor.JointHandRight, 0, 0, 1000)),
				testSkeleton(1, base.Add(100*time.Millisecond), trackedJoint(sensor.JointHandRight, 0, 0, 1000+tc.dz)),
			}

			gestures := feedFrames(t, tk, frames)
			if len(gestures) != 1 {
				t.Fatalf("Expected 1 gesture, got %d: %v", len(gestures), gestures)
			}

			g := gestures[0]
			if g.Kind != tc.wantKind {
				t.Errorf("gesture kind = %q, want %q", g.Kind, tc.wantKind)
			}
			if g.Direction != tc.wantDir {
				t.Errorf("gesture direction = %q, want %q", g.Direction, tc.wantDir)
			}
			// raw 600 mm/s low-passed to 420, against a 500 mm/s saturation point
			if !almostEqual(g.Confidence, 0.84) {
				t.Errorf("gesture confidence = %f, want 0.84", g.Confidence)
			}
		})
	}
}

// circleFrames spreads n hand positions evenly over one full revolution, so
// the trace holds a closed loop when the n-th observation lands.
func circleFrames(id int, base time.Time, n int, radius float64) []sensor.Skeleton {
	frames := make([]sensor.Skeleton, 0, n)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		frames = append(frames, testSkeleton(id, base.Add(time.Duration(i)*100*time.Millisecond),
			trackedJoint(sensor.JointHandRight, radius*math.Cos(theta), radius*math.Sin(theta), 1000)))
	}
	return frames
}

func TestDetectCircle(t *testing.T) {
	base := time.Now()
	tk := passthroughTracker()

	gestures := feedFrames(t, tk, circleFrames(1, base, circleMinSamples, 100))

	var circles []Gesture
	for _, g := range gestures {
		if g.Kind == GestureCircle {
			circles = append(circles, g)
		}
	}
	if len(circles) != 1 {
		t.Fatalf("Expected exactly 1 circle gesture, got %d", len(circles))
	}

	g := circles[0]
	if g.Hand != HandRight {
		t.Errorf("gesture hand = %q, want %q", g.Hand, HandRight)
	}
	if g.Direction != "counterclockwise" {
		t.Errorf("gesture direction = %q, want %q", g.Direction, "counterclockwise")
	}
	if g.Confidence < 0.9 {
		t.Errorf("gesture confidence = %f, want near 1 for a clean circle", g.Confidence)
	}

	// the trace was cleared on detection
	if got := len(tk.tracks[1].circles[sensor.JointHandRight].xs); got >= circleMinSamples {
		t.Errorf("trace not cleared after detection, %d samples remain", got)
	}
}

func TestDetectCircle_RejectsSmallRadius(t *testing.T) {
	base := time.Now()
	tk := passthroughTracker()

	for _, g := range feedFrames(t, tk, circleFrames(1, base, 24, 30)) {
		if g.Kind == GestureCircle {
			t.Fatalf("circle fired for a 30 mm radius: %v", g)
		}
	}
}

func TestDetectCircle_PartialArcLowConfidence(t *testing.T) {
	base := time.Now()
	tk := passthroughTracker()

	// 20 of 24 positions cover 285 degrees; the off-center fit still passes
	// tolerance but scores well below a closed loop
	frames := circleFrames(1, base, 24, 100)[:circleMinSamples]

	var circles []Gesture
	for _, g := range feedFrames(t, tk, frames) {
		if g.Kind == GestureCircle {
			circles = append(circles, g)
		}
	}
	if len(circles) != 1 {
		t.Fatalf("Expected 1 circle gesture for a partial arc, got %d", len(circles))
	}
	if c := circles[0].Confidence; c <= 0 || c >= 0.9 {
		t.Errorf("partial arc confidence = %f, want in (0, 0.9)", c)
	}
}

func TestDetectCircle_RejectsLine(t *testing.T) {
	base := time.Now()
	tk := passthroughTracker()

	// straight-line motion has a radius spread far beyond the fit tolerance
	frames := make([]sensor.Skeleton, 0, 24)
	for i := 0; i < 24; i++ {
		frames = append(frames, testSkeleton(1, base.Add(time.Duration(i)*100*time.Millisecond),
			trackedJoint(sensor.JointHandRight, float64(i)*20, 0, 1000)))
	}

	for _, g := range feedFrames(t, tk, frames) {
		if g.Kind == GestureCircle {
			t.Fatalf("circle fired for straight-line motion: %v", g)
		}
	}
}

func TestGestures_MissingJointsAreSkipped(t *testing.T) {
	base := time.Now()
	tk := passthroughTracker()

	// observations with no hands at all must not panic or emit
	frames := []sensor.Skeleton{
		testSkeleton(1, base, trackedJoint(sensor.JointHead, 0, 1700, 2000)),
		testSkeleton(1, base.Add(100*time.Millisecond), trackedJoint(sensor.JointHead, 100, 1700, 2000)),
	}

	if gestures := feedFrames(t, tk, frames); len(gestures) != 0 {
		t.Errorf("Expected no gestures without hand joints, got %v", gestures)
	}
}
