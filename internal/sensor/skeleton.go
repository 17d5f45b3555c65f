package sensor

import (
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/golang/geo/r3"
)

// JointType identifies one of the twenty body landmarks a skeleton frame
// may carry. The enumeration is fixed; skeleton math indexes velocity and
// history state by it.
type JointType int

const (
	JointHipCenter JointType = iota
	JointSpine
	JointShoulderCenter
	JointHead
	JointShoulderLeft
	JointElbowLeft
	JointWristLeft
	JointHandLeft
	JointShoulderRight
	JointElbowRight
	JointWristRight
	JointHandRight
	JointHipLeft
	JointKneeLeft
	JointAnkleLeft
	JointFootLeft
	JointHipRight
	JointKneeRight
	JointAnkleRight
	JointFootRight

	// NumJointTypes is the size of the enumeration, handy for sizing
	// per-joint lookup tables.
	NumJointTypes = 20
)

var jointNames = [NumJointTypes]string{
	"hip-center", "spine", "shoulder-center", "head",
	"shoulder-left", "elbow-left", "wrist-left", "hand-left",
	"shoulder-right", "elbow-right", "wrist-right", "hand-right",
	"hip-left", "knee-left", "ankle-left", "foot-left",
	"hip-right", "knee-right", "ankle-right", "foot-right",
}

func (t JointType) String() string {
	if t < 0 || int(t) >= len(jointNames) {
		return "unknown"
	}
	return jointNames[t]
}

// Bones lists the joint pairs connected by the skeletal topology. Consumers
// drawing or validating a skeleton walk these pairs; joints missing from an
// observation simply leave their bones undrawn.
var Bones = [][2]JointType{
	{JointHipCenter, JointSpine},
	{JointSpine, JointShoulderCenter},
	{JointShoulderCenter, JointHead},
	{JointShoulderCenter, JointShoulderLeft},
	{JointShoulderLeft, JointElbowLeft},
	{JointElbowLeft, JointWristLeft},
	{JointWristLeft, JointHandLeft},
	{JointShoulderCenter, JointShoulderRight},
	{JointShoulderRight, JointElbowRight},
	{JointElbowRight, JointWristRight},
	{JointWristRight, JointHandRight},
	{JointHipCenter, JointHipLeft},
	{JointHipLeft, JointKneeLeft},
	{JointKneeLeft, JointAnkleLeft},
	{JointAnkleLeft, JointFootLeft},
	{JointHipCenter, JointHipRight},
	{JointHipRight, JointKneeRight},
	{JointKneeRight, JointAnkleRight},
	{JointAnkleRight, JointFootRight},
}

// Joint is a single tracked body landmark.
type Joint struct {
	Type        JointType   `json:"type"`
	Position    r3.Vector   `json:"position"`              // Sensor-frame position in mm
	Orientation *mgl64.Quat `json:"orientation,omitempty"` // Optional bone orientation
	Confidence  float64     `json:"confidence"`            // Per-joint confidence in [0,1]
	Tracked     bool        `json:"tracked"`               // False when the joint is inferred
	Predicted   *r3.Vector  `json:"predicted,omitempty"`   // Tracker-filled short-horizon prediction
}

// Box is an axis-aligned bounding box in sensor coordinates.
type Box struct {
	Min r3.Vector `json:"min"`
	Max r3.Vector `json:"max"`
}

// Skeleton is one per-frame observation of a tracked body. It is only
// meaningful relative to the frame that produced it; the tracker links
// successive observations into a track by TrackID.
type Skeleton struct {
	TrackID      int        `json:"trackId"`
	Joints       []Joint    `json:"joints"`
	Confidence   float64    `json:"confidence"` // Aggregate confidence in [0,1]
	Tracked      bool       `json:"tracked"`
	Timestamp    time.Time  `json:"timestamp"`
	CenterOfMass *r3.Vector `json:"centerOfMass,omitempty"`
	Bounds       *Box       `json:"bounds,omitempty"`
}

// Joint returns the joint of the given type, or nil when the observation
// does not carry it.
func (s *Skeleton) Joint(t JointType) *Joint {
	for i := range s.Joints {
		if s.Joints[i].Type == t {
			return &s.Joints[i]
		}
	}
	return nil
}

// ComputeCenterOfMass returns the mean position of all tracked joints and
// false when the skeleton has none.
func (s *Skeleton) ComputeCenterOfMass() (r3.Vector, bool) {
	var sum r3.Vector
	var n int
	for i := range s.Joints {
		if !s.Joints[i].Tracked {
			continue
		}
		sum = sum.Add(s.Joints[i].Position)
		n++
	}
	if n == 0 {
		return r3.Vector{}, false
	}
	return sum.Mul(1 / float64(n)), true
}

// Clone returns a deep copy of the skeleton. Consumers holding a clone are
// isolated from later in-place updates by the producer.
func (s *Skeleton) Clone() Skeleton {
	out := *s
	out.Joints = make([]Joint, len(s.Joints))
	copy(out.Joints, s.Joints)

	for i := range out.Joints {
		if o := out.Joints[i].Orientation; o != nil {
			q := *o
			out.Joints[i].Orientation = &q
		}
		if p := out.Joints[i].Predicted; p != nil {
			v := *p
			out.Joints[i].Predicted = &v
		}
	}
	if s.CenterOfMass != nil {
		v := *s.CenterOfMass
		out.CenterOfMass = &v
	}
	if s.Bounds != nil {
		b := *s.Bounds
		out.Bounds = &b
	}
	return out
}
