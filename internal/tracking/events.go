package tracking

import (
	"sync"
	"time"

	"github.com/sensekit/depthsuite/internal/sensor"
)

// eventBufferSize is the per-subscriber channel buffer. Slow subscribers
// drop events rather than stall the tracker.
const eventBufferSize = 64

// EventKind identifies the type of a tracker event.
type EventKind int

const (
	EventSkeletonUpdated EventKind = iota // a track received a new smoothed skeleton
	EventSkeletonLost                     // a track went unobserved past the lost timeout
	EventGesture                          // a gesture detector fired
)

// String returns a human-readable event kind name.
func (k EventKind) String() string {
	switch k {
	case EventSkeletonUpdated:
		return "skeleton-updated"
	case EventSkeletonLost:
		return "skeleton-lost"
	case EventGesture:
		return "gesture"
	default:
		return "unknown"
	}
}

// GestureKind identifies a recognized gesture.
type GestureKind string

const (
	GestureWave   GestureKind = "wave"
	GestureSwipe  GestureKind = "swipe"
	GesturePush   GestureKind = "push"
	GesturePull   GestureKind = "pull"
	GestureCircle GestureKind = "circle"
)

// Hand identifies which hand performed a gesture.
type Hand string

const (
	HandLeft  Hand = "left"
	HandRight Hand = "right"
)

// Gesture describes a single recognized gesture.
type Gesture struct {
	Kind       GestureKind `json:"kind"`
	Hand       Hand        `json:"hand"`
	Direction  string      `json:"direction,omitempty"` // left, right, away, toward, clockwise, counterclockwise
	Confidence float64     `json:"confidence"`
	TrackID    int         `json:"trackId"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Event is published by the tracker on every track update, loss or gesture.
type Event struct {
	Kind      EventKind
	TrackID   int
	Skeleton  *sensor.Skeleton // deep copy, set for skeleton updates
	Gesture   *Gesture         // set for gesture events
	Timestamp time.Time
}

// broker fans tracker events out to subscribers. Sends never block: when a
// subscriber's buffer is full the event is dropped for that subscriber.
type broker struct {
	mu          sync.RWMutex
	subscribers map[<-chan Event]chan Event
}

func newBroker() *broker {
	return &broker{subscribers: make(map[<-chan Event]chan Event)}
}

func (b *broker) subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, eventBufferSize)
	b.subscribers[ch] = ch
	return ch
}

func (b *broker) unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(sub)
	}
}

func (b *broker) publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub <- e:
		default: // subscriber is not keeping up
		}
	}
}

func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, sub := range b.subscribers {
		delete(b.subscribers, key)
		close(sub)
	}
}
