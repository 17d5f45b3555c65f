package recording

import (
	"testing"
	"time"

	"github.com/sensekit/depthsuite/internal/sensor"
)

func frameNumbered(n uint64) *sensor.Frame {
	return &sensor.Frame{SensorID: "cam0", Number: n, Timestamp: time.Now()}
}

func TestFrameBuffer_Ordering(t *testing.T) {
	fb, err := newFrameBuffer(10)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	// Out-of-order arrival, as a source recovering from a stall delivers
	for _, n := range []uint64{5, 2, 9, 1, 7} {
		if err := fb.Insert(frameNumbered(n)); err != nil {
			t.Errorf("Failed to insert frame %d: %v", n, err)
		}
	}

	if size := fb.Size(); size != 5 {
		t.Errorf("Expected buffer size 5, got %d", size)
	}

	results := fb.DrainAll()
	expected := []uint64{1, 2, 5, 7, 9}
	if len(results) != len(expected) {
		t.Fatalf("Expected %d results, got %d", len(expected), len(results))
	}
	for i, f := range results {
		if f.Number != expected[i] {
			t.Errorf("Position %d: expected frame %d, got %d", i, expected[i], f.Number)
		}
	}

	if size := fb.Size(); size != 0 {
		t.Errorf("Expected empty buffer after drain, got size %d", size)
	}
	if results := fb.DrainAll(); results != nil {
		t.Errorf("Expected nil drain on empty buffer, got %d frames", len(results))
	}
}

func TestFrameBuffer_EqualNumbersKeepArrivalOrder(t *testing.T) {
	fb, err := newFrameBuffer(4)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	first := &sensor.Frame{Number: 3, SensorID: "a"}
	second := &sensor.Frame{Number: 3, SensorID: "b"}
	for _, f := range []*sensor.Frame{frameNumbered(1), first, second} {
		if err := fb.Insert(f); err != nil {
			t.Fatalf("Failed to insert frame: %v", err)
		}
	}

	results := fb.DrainAll()
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	if results[1] != first || results[2] != second {
		t.Error("Expected equal-numbered frames to keep arrival order")
	}
}

func TestFrameBuffer_InvalidCapacity(t *testing.T) {
	if _, err := newFrameBuffer(0); err == nil {
		t.Error("Expected error for zero capacity")
	}
	if _, err := newFrameBuffer(-1); err == nil {
		t.Error("Expected error for negative capacity")
	}
}

func TestFrameBuffer_InsertNil(t *testing.T) {
	fb, err := newFrameBuffer(2)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}
	if err := fb.Insert(nil); err == nil {
		t.Error("Expected error inserting nil frame")
	}
}

func TestFrameBuffer_IsFull(t *testing.T) {
	fb, err := newFrameBuffer(2)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}

	if fb.IsFull() {
		t.Error("Expected new buffer not to be full")
	}
	for n := uint64(1); n <= 2; n++ {
		if err := fb.Insert(frameNumbered(n)); err != nil {
			t.Fatalf("Failed to insert frame %d: %v", n, err)
		}
	}
	if !fb.IsFull() {
		t.Error("Expected buffer at capacity to be full")
	}
}
