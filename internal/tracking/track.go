package tracking

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"

	"github.com/sensekit/depthsuite/internal/sensor"
)

// track holds the mutable state of one tracked person. All access is
// serialized by the owning Tracker's mutex.
type track struct {
	id         int
	history    []sensor.Skeleton               // smoothed observations, oldest first
	velocities map[sensor.JointType]r3.Vector  // filtered joint velocities in mm/s
	circles    map[sensor.JointType]*pathTrace // per-hand traces for circle detection
	lastSeen   time.Time
}

func newTrack(id int) *track {
	return &track{
		id:         id,
		velocities: make(map[sensor.JointType]r3.Vector),
		circles:    make(map[sensor.JointType]*pathTrace),
	}
}

// current returns the most recent smoothed skeleton, or nil for an empty track.
func (tr *track) current() *sensor.Skeleton {
	if len(tr.history) == 0 {
		return nil
	}
	return &tr.history[len(tr.history)-1]
}

// append adds a skeleton to the history, evicting the oldest entry beyond limit.
func (tr *track) append(s sensor.Skeleton, limit int) {
	if limit > 0 && len(tr.history) >= limit {
		n := copy(tr.history, tr.history[1:])
		tr.history = tr.history[:n]
	}
	tr.history = append(tr.history, s)
}

// restart drops all accumulated state and seeds the track from a single
// observation, as when the person re-enters the tracking volume.
func (tr *track) restart(s sensor.Skeleton) {
	tr.history = tr.history[:0]
	tr.history = append(tr.history, s)
	tr.velocities = make(map[sensor.JointType]r3.Vector)
	tr.circles = make(map[sensor.JointType]*pathTrace)
}

// velocity returns the filtered velocity for a joint type, zero when unknown.
func (tr *track) velocity(t sensor.JointType) r3.Vector {
	return tr.velocities[t]
}

// smoothSkeleton blends the previous smoothed pose into the current
// observation. Position uses an exponential moving average weighted by alpha
// towards the previous pose; orientation uses a shortest-arc slerp. Joints
// missing or untracked on either side pass through unchanged.
func smoothSkeleton(prev *sensor.Skeleton, obs sensor.Skeleton, alpha float64) sensor.Skeleton {
	out := obs.Clone()

	for i := range out.Joints {
		j := &out.Joints[i]
		p := prev.Joint(j.Type)
		if p == nil || !p.Tracked || !j.Tracked {
			continue
		}

		j.Position = p.Position.Mul(alpha).Add(j.Position.Mul(1 - alpha))

		if j.Orientation != nil && p.Orientation != nil {
			q := slerp(*p.Orientation, *j.Orientation, 1-alpha)
			j.Orientation = &q
		}
	}

	if com, ok := out.ComputeCenterOfMass(); ok {
		out.CenterOfMass = &com
	}
	return out
}

// slerp spherically interpolates from a to b by t along the shortest arc.
// Nearly parallel quaternions fall back to a normalized linear blend.
func slerp(a, b mgl64.Quat, t float64) mgl64.Quat {
	dot := a.Dot(b)
	if dot < 0 {
		b = b.Scale(-1)
		dot = -dot
	}
	if dot > 1 {
		dot = 1
	}

	theta := math.Acos(dot)
	sinTheta := math.Sin(theta)
	if sinTheta < 0.001 {
		return a.Scale(1 - t).Add(b.Scale(t)).Normalize()
	}

	wa := math.Sin((1-t)*theta) / sinTheta
	wb := math.Sin(t*theta) / sinTheta
	return a.Scale(wa).Add(b.Scale(wb)).Normalize()
}

// centerOf returns the skeleton's center of mass, preferring the precomputed
// field over deriving it from the joints.
func centerOf(s *sensor.Skeleton) (r3.Vector, bool) {
	if s.CenterOfMass != nil {
		return *s.CenterOfMass, true
	}
	return s.ComputeCenterOfMass()
}
