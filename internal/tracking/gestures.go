package tracking

import (
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/sensekit/depthsuite/internal/sensor"
)

const (
	// waveElevation is how far (mm) the hand must sit above its elbow
	waveElevation = 100.0
	// waveMinSpeed is the lateral hand speed (mm/s) required for a wave
	waveMinSpeed = 200.0
	// waveFullSpeed is the lateral speed at which wave confidence saturates
	waveFullSpeed = 400.0

	// swipeMinSpeed is the horizontal-plane hand speed (mm/s) required for a swipe
	swipeMinSpeed = 500.0
	// swipeFullSpeed is the speed at which swipe confidence saturates
	swipeFullSpeed = 1000.0

	// pushPullMinSpeed is the depth-axis hand speed (mm/s) required for push or pull
	pushPullMinSpeed = 300.0
	// pushPullFullSpeed is the depth-axis speed at which confidence saturates
	pushPullFullSpeed = 500.0

	// circleTraceSize is the rolling window of hand positions kept per hand
	circleTraceSize = 30
	// circleMinSamples is the minimum trace length before a circle fit is attempted
	circleMinSamples = 20
	// circleMinRadius is the smallest mean radius (mm) accepted as a circle
	circleMinRadius = 50.0
	// circleFitTolerance bounds the radius spread relative to the mean radius
	circleFitTolerance = 0.3
)

// gestureHands pairs each hand with the joints its detectors consult.
var gestureHands = []struct {
	hand  Hand
	joint sensor.JointType
	elbow sensor.JointType
}{
	{HandLeft, sensor.JointHandLeft, sensor.JointElbowLeft},
	{HandRight, sensor.JointHandRight, sensor.JointElbowRight},
}

// pathTrace is a rolling window of hand positions projected onto the sensor
// x/y plane, consumed by the circle detector.
type pathTrace struct {
	xs []float64
	ys []float64
}

func (p *pathTrace) add(x, y float64) {
	if len(p.xs) >= circleTraceSize {
		n := copy(p.xs, p.xs[1:])
		p.xs = p.xs[:n]
		n = copy(p.ys, p.ys[1:])
		p.ys = p.ys[:n]
	}
	p.xs = append(p.xs, x)
	p.ys = append(p.ys, y)
}

func (p *pathTrace) reset() {
	p.xs = p.xs[:0]
	p.ys = p.ys[:0]
}

// detectGestures runs every detector once against the track's latest state
// and publishes at most one event per detector. Caller holds the tracker
// mutex.
func (t *Tracker) detectGestures(tr *track, ts time.Time) {
	cur := tr.current()
	if cur == nil {
		return
	}

	t.recordTraces(tr, cur)

	detectors := []func(tr *track, cur *sensor.Skeleton) *Gesture{
		t.detectWave,
		t.detectSwipe,
		t.detectPush,
		t.detectPull,
		t.detectCircle,
	}

	for _, detect := range detectors {
		g := detect(tr, cur)
		if g == nil {
			continue
		}
		g.TrackID = tr.id
		g.Timestamp = ts

		t.logger.Debug("gesture detected",
			slog.Int("trackID", tr.id),
			slog.String("kind", string(g.Kind)),
			slog.String("hand", string(g.Hand)))
		t.events.publish(Event{Kind: EventGesture, TrackID: tr.id, Gesture: g, Timestamp: ts})
	}
}

// recordTraces appends the current tracked hand positions to the per-hand
// circle traces.
func (t *Tracker) recordTraces(tr *track, cur *sensor.Skeleton) {
	for _, h := range gestureHands {
		j := cur.Joint(h.joint)
		if j == nil || !j.Tracked {
			continue
		}
		trace := tr.circles[h.joint]
		if trace == nil {
			trace = &pathTrace{}
			tr.circles[h.joint] = trace
		}
		trace.add(j.Position.X, j.Position.Y)
	}
}

// detectWave fires when a hand held above its elbow moves laterally fast
// enough. Direction follows the velocity sign.
func (t *Tracker) detectWave(tr *track, cur *sensor.Skeleton) *Gesture {
	for _, h := range gestureHands {
		hand := cur.Joint(h.joint)
		elbow := cur.Joint(h.elbow)
		if hand == nil || elbow == nil || !hand.Tracked || !elbow.Tracked {
			continue
		}
		if hand.Position.Y <= elbow.Position.Y+waveElevation {
			continue
		}

		vx := tr.velocity(h.joint).X
		if math.Abs(vx) <= waveMinSpeed {
			continue
		}

		direction := "right"
		if vx < 0 {
			direction = "left"
		}
		return &Gesture{
			Kind:       GestureWave,
			Hand:       h.hand,
			Direction:  direction,
			Confidence: math.Min(math.Abs(vx)/waveFullSpeed, 1),
		}
	}
	return nil
}

// detectSwipe fires on fast horizontal-plane hand motion.
func (t *Tracker) detectSwipe(tr *track, cur *sensor.Skeleton) *Gesture {
	for _, h := range gestureHands {
		hand := cur.Joint(h.joint)
		if hand == nil || !hand.Tracked {
			continue
		}

		v := tr.velocity(h.joint)
		speed := math.Hypot(v.X, v.Z)
		if speed <= swipeMinSpeed {
			continue
		}

		direction := "right"
		if v.X < 0 {
			direction = "left"
		}
		return &Gesture{
			Kind:       GestureSwipe,
			Hand:       h.hand,
			Direction:  direction,
			Confidence: math.Min(speed/swipeFullSpeed, 1),
		}
	}
	return nil
}

// detectPush fires when a hand moves away from the sensor along the depth axis.
func (t *Tracker) detectPush(tr *track, cur *sensor.Skeleton) *Gesture {
	for _, h := range gestureHands {
		hand := cur.Joint(h.joint)
		if hand == nil || !hand.Tracked {
			continue
		}

		vz := tr.velocity(h.joint).Z
		if vz <= pushPullMinSpeed {
			continue
		}
		return &Gesture{
			Kind:       GesturePush,
			Hand:       h.hand,
			Direction:  "away",
			Confidence: math.Min(vz/pushPullFullSpeed, 1),
		}
	}
	return nil
}

// detectPull fires when a hand moves toward the sensor along the depth axis.
func (t *Tracker) detectPull(tr *track, cur *sensor.Skeleton) *Gesture {
	for _, h := range gestureHands {
		hand := cur.Joint(h.joint)
		if hand == nil || !hand.Tracked {
			continue
		}

		vz := tr.velocity(h.joint).Z
		if vz >= -pushPullMinSpeed {
			continue
		}
		return &Gesture{
			Kind:       GesturePull,
			Hand:       h.hand,
			Direction:  "toward",
			Confidence: math.Min(math.Abs(vz)/pushPullFullSpeed, 1),
		}
	}
	return nil
}

// detectCircle fits a circle to the rolling hand trace: centroid plus mean
// radius, accepted when the radius spread stays within tolerance. The trace
// is cleared on detection so the same loop is not reported twice.
func (t *Tracker) detectCircle(tr *track, _ *sensor.Skeleton) *Gesture {
	for _, h := range gestureHands {
		trace := tr.circles[h.joint]
		if trace == nil || len(trace.xs) < circleMinSamples {
			continue
		}

		cx := stat.Mean(trace.xs, nil)
		cy := stat.Mean(trace.ys, nil)

		radii := make([]float64, len(trace.xs))
		for i := range trace.xs {
			radii[i] = math.Hypot(trace.xs[i]-cx, trace.ys[i]-cy)
		}

		meanRadius := stat.Mean(radii, nil)
		if meanRadius <= circleMinRadius {
			continue
		}

		tolerance := circleFitTolerance * meanRadius
		variance := stat.Variance(radii, nil)
		if variance >= tolerance*tolerance {
			continue
		}

		direction := "counterclockwise"
		if signedArea(trace.xs, trace.ys) < 0 {
			direction = "clockwise"
		}

		confidence := 1 - math.Sqrt(variance)/tolerance
		if confidence < 0 {
			confidence = 0
		}

		trace.reset()
		return &Gesture{
			Kind:       GestureCircle,
			Hand:       h.hand,
			Direction:  direction,
			Confidence: confidence,
		}
	}
	return nil
}

// signedArea computes twice the shoelace area of the trace polygon. Positive
// means counterclockwise winding in the sensor x/y plane.
func signedArea(xs, ys []float64) float64 {
	var sum float64
	n := len(xs)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += xs[i]*ys[j] - xs[j]*ys[i]
	}
	return sum
}
