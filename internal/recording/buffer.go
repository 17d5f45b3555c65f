package recording

import (
	"fmt"
	"sync"

	"github.com/sensekit/depthsuite/internal/sensor"
)

// node is an internal linked list node for the frame buffer.
type node struct {
	frame *sensor.Frame
	next  *node
}

// frameBuffer is a thread-safe staging buffer for frames awaiting a flush to
// the format writer. Frames are kept ordered by frame number so a flush
// writes them in capture order even when a source delivers them slightly out
// of order.
type frameBuffer struct {
	capacity int // frames held before the owner must flush

	mu   sync.Mutex
	head *node
	size int
}

// newFrameBuffer creates a buffer holding up to capacity frames.
// Returns an error if capacity is invalid.
func newFrameBuffer(capacity int) (*frameBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid buffer capacity: %d", capacity)
	}
	return &frameBuffer{capacity: capacity}, nil
}

// Insert adds a frame in frame-number order. Frames with equal numbers keep
// their arrival order. Returns an error if the frame is nil.
func (fb *frameBuffer) Insert(frame *sensor.Frame) error {
	if frame == nil {
		return fmt.Errorf("cannot insert nil frame")
	}

	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.head == nil {
		fb.head = &node{frame: frame}
		fb.size++
		return nil
	}

	// Special case: frame belongs before head
	if frame.Number < fb.head.frame.Number {
		fb.head = &node{frame: frame, next: fb.head}
		fb.size++
		return nil
	}

	current := fb.head
	for current.next != nil && current.next.frame.Number <= frame.Number {
		current = current.next
	}
	current.next = &node{frame: frame, next: current.next}
	fb.size++
	return nil
}

// IsFull returns true if the buffer has reached its capacity.
func (fb *frameBuffer) IsFull() bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	return fb.size >= fb.capacity
}

// DrainAll removes and returns all buffered frames in order.
// Returns nil if the buffer is empty.
func (fb *frameBuffer) DrainAll() []*sensor.Frame {
	fb.mu.Lock()
	defer fb.mu.Unlock()

	if fb.head == nil || fb.size == 0 {
		return nil
	}

	frames := make([]*sensor.Frame, 0, fb.size) // Preallocate with capacity
	current := fb.head
	for current != nil {
		frames = append(frames, current.frame)
		current = current.next
	}

	fb.head = nil
	fb.size = 0
	return frames
}

// Size returns the current number of buffered frames.
func (fb *frameBuffer) Size() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.size
}
