package calibration

import "time"

// sessionEventBuffer sizes the per-session event channel. Publishing never
// blocks; events beyond the buffer are dropped.
const sessionEventBuffer = 128

// EventKind identifies the type of a calibration session event.
type EventKind int

const (
	EventStepStarted    EventKind = iota // a step began executing
	EventStepCompleted                   // a step finished
	EventMoveTo                          // the operator should move the pattern to Target
	EventCaptureValid                    // a capture passed detection and validation
	EventCaptureInvalid                  // a capture was rejected, Reason says why
	EventCompleted                       // the session finished, Data carries the result
	EventFailed                          // the session failed, Reason carries the message
)

// String returns a human-readable event kind name.
func (k EventKind) String() string {
	switch k {
	case EventStepStarted:
		return "step-started"
	case EventStepCompleted:
		return "step-completed"
	case EventMoveTo:
		return "move-to"
	case EventCaptureValid:
		return "capture-valid"
	case EventCaptureInvalid:
		return "capture-invalid"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is published on a session's event channel as it advances.
type Event struct {
	Kind      EventKind
	SensorID  string
	Step      *Step       // step events carry a copy of the step
	Target    *TargetPose // move events carry the requested pose
	Reason    string      // rejection or failure message
	Data      *Data       // set on completion
	Timestamp time.Time
}
