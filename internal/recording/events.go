package recording

import (
	"sync"
	"time"
)

// eventBufferSize is the per-subscriber channel buffer. Slow subscribers
// drop events rather than stall recording.
const eventBufferSize = 64

// EventKind identifies the type of a recorder event.
type EventKind int

const (
	EventStarted       EventKind = iota // a session began recording
	EventStopped                        // a session was stopped and finalized
	EventFrameRecorded                  // a buffer flush persisted frames
	EventError                          // a write or finalize error failed the session
)

// String returns a human-readable event kind name.
func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventStopped:
		return "stopped"
	case EventFrameRecorded:
		return "frame-recorded"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is published by the recorder as sessions start, progress and stop.
type Event struct {
	Kind       EventKind
	SensorID   string
	SessionID  string
	FrameCount int    // frames accepted so far
	Message    string // error detail for EventError
	Timestamp  time.Time
}

// broker fans recorder events out to subscribers. Sends never block: when a
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
