package recording

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sensekit/depthsuite/internal/sensor"
)

// writeTestRecording produces a small .raw recording with depth-only frames
// 33ms apart and returns its path.
func writeTestRecording(t *testing.T, dir string, frames int) string {
	t.Helper()

	cfg := Config{Format: FormatRAW, OutputDir: dir, FrameRate: 30}
	base := filepath.Join(dir, "cam0_rec")
	w := newRawWriter(cfg, "cam0", base)
	if err := w.Open(); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	start := time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC)
	var total int64
	for i := 0; i < frames; i++ {
		frame := sensor.Frame{
			SensorID:  "cam0",
			Number:    uint64(i + 1),
			Timestamp: start.Add(time.Duration(i) * 33 * time.Millisecond),
			Depth: &sensor.DepthFrame{
				Width: 1, Height: 1,
				Data:   []uint16{uint16(500 + i)},
				Number: uint64(i + 1),
			},
		}
		n, err := w.Write(&frame)
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		total += n
	}

	end := start.Add(time.Duration(frames) * 33 * time.Millisecond)
	if err := w.Close(writeSummary{frames: frames, totalBytes: total, start: start, end: end}); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	return base + ".raw"
}

func TestReplaySource_PlaysRecording(t *testing.T) {
	path := writeTestRecording(t, t.TempDir(), 3)

	src := NewReplaySource(path, WithSpeed(0))
	if src.ID() != "cam0" {
		t.Errorf("Expected sensor id from sidecar, got %q", src.ID())
	}

	ch, err := src.Frames(context.Background())
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}

	var got []sensor.Frame
	for f := range ch {
		got = append(got, f)
	}

	if len(got) != 3 {
		t.Fatalf("Expected 3 frames, got %d", len(got))
	}
	for i, f := range got {
		if f.Number != uint64(i+1) {
			t.Errorf("Frame %d: expected number %d, got %d", i, i+1, f.Number)
		}
		if f.SensorID != "cam0" {
			t.Errorf("Frame %d: expected sensor cam0, got %q", i, f.SensorID)
		}
		if f.Depth == nil || f.Depth.Data[0] != uint16(500+i) {
			t.Errorf("Frame %d: depth payload mismatch", i)
		}
	}
	if err := src.Err(); err != nil {
		t.Errorf("Expected clean playback, got %v", err)
	}
}

func TestReplaySource_LoopRenumbers(t *testing.T) {
	path := writeTestRecording(t, t.TempDir(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := NewReplaySource(path, WithSpeed(0), WithLoop())
	ch, err := src.Frames(ctx)
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}

	var got []sensor.Frame
	for f := range ch {
		got = append(got, f)
		if len(got) == 6 {
			cancel()
		}
	}

	if len(got) < 6 {
		t.Fatalf("Expected at least 6 frames across loops, got %d", len(got))
	}
	for i, f := range got {
		if f.Number != uint64(i+1) {
			t.Errorf("Frame %d: expected continuous number %d, got %d", i, i+1, f.Number)
		}
		if i > 0 && f.Timestamp.Before(got[i-1].Timestamp) {
			t.Errorf("Frame %d: timestamp moved backwards across the loop seam", i)
		}
	}
	if err := src.Err(); err != nil {
		t.Errorf("Expected cancellation to end playback cleanly, got %v", err)
	}
}

func TestReplaySource_SensorIDOverride(t *testing.T) {
	path := writeTestRecording(t, t.TempDir(), 1)

	src := NewReplaySource(path, WithSpeed(0), WithSensorID("lab7"))
	if src.ID() != "lab7" {
		t.Errorf("Expected overridden id lab7, got %q", src.ID())
	}

	ch, err := src.Frames(context.Background())
	if err != nil {
		t.Fatalf("Frames failed: %v", err)
	}
	for f := range ch {
		if f.SensorID != "lab7" {
			t.Errorf("Expected frames stamped lab7, got %q", f.SensorID)
		}
	}
}

func TestReplaySource_MissingFile(t *testing.T) {
	src := NewReplaySource(filepath.Join(t.TempDir(), "absent.raw"))
	if _, err := src.Frames(context.Background()); err == nil {
		t.Error("Expected an error for a missing recording")
	}
}
