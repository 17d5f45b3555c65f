package recording

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sensekit/depthsuite/internal/sensor"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func drainRecorderEvents(ch <-chan Event) []Event {
	var events []Event
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, e)
		default:
			return events
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid ply", Config{Format: FormatPLY, OutputDir: "out"}, false},
		{"valid raw", Config{Format: FormatRAW, OutputDir: "out", FrameRate: 30}, false},
		{"unknown format", Config{Format: "stl", OutputDir: "out"}, true},
		{"missing output dir", Config{Format: FormatPLY}, true},
		{"negative frame rate", Config{Format: FormatPLY, OutputDir: "out", FrameRate: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecorderStartStop(t *testing.T) {
	r := New()
	cfg := Config{Format: FormatPLY, OutputDir: t.TempDir()}

	sess, err := r.Start("cam0", cfg)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if sess.Status() != StatusRecording {
		t.Errorf("Expected status recording, got %s", sess.Status())
	}
	if files := sess.Files(); len(files) != 1 || !strings.HasSuffix(files[0], ".ply") {
		t.Errorf("Expected a single .ply artifact, got %v", files)
	}
	if r.Session("cam0") != sess {
		t.Error("Expected Session to return the started session")
	}
	if active := r.Active(); len(active) != 1 || active[0] != sess {
		t.Errorf("Expected one active session, got %d", len(active))
	}

	got := r.Stop("cam0")
	if got != sess {
		t.Error("Expected Stop to return the session")
	}
	if sess.Status() != StatusStopped {
		t.Errorf("Expected status stopped, got %s", sess.Status())
	}
	if sess.EndTime() == nil {
		t.Error("Expected end time after stop")
	}
	if active := r.Active(); len(active) != 0 {
		t.Errorf("Expected no active sessions, got %d", len(active))
	}
	if r.Session("cam0") != sess {
		t.Error("Expected stopped session to stay queryable")
	}
	if r.Stop("other") != nil {
		t.Error("Expected nil stopping an unknown sensor")
	}
}

func TestRecorder_StartRejectsInvalidConfig(t *testing.T) {
	r := New()
	if _, err := r.Start("cam0", Config{Format: "stl", OutputDir: "out"}); err == nil {
		t.Error("Expected an error for an invalid config")
	}
	if r.Session("cam0") != nil {
		t.Error("Expected no session after a rejected start")
	}
}

func TestRecordFrame_FlushAtCapacity(t *testing.T) {
	r := New()
	ch := r.Subscribe()
	defer r.Unsubscribe(ch)

	sess, err := r.Start("cam0", Config{Format: FormatPLY, OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	ts := time.Date(2025, time.March, 14, 10, 0, 0, 0, time.UTC)
	for n := 1; n < DefaultBufferSize; n++ {
		r.RecordFrame("cam0", pointsFrame(uint64(n), 1, ts))
	}
	if got := sess.PersistedFrames(); got != 0 {
		t.Errorf("Expected no frames persisted before capacity, got %d", got)
	}
	if got := sess.Buffered(); got != DefaultBufferSize-1 {
		t.Errorf("Expected %d buffered frames, got %d", DefaultBufferSize-1, got)
	}

	// Capacity frame triggers the flush
	r.RecordFrame("cam0", pointsFrame(uint64(DefaultBufferSize), 1, ts))
	if got := sess.PersistedFrames(); got != DefaultBufferSize {
		t.Errorf("Expected %d frames persisted after flush, got %d", DefaultBufferSize, got)
	}
	if got := sess.Buffered(); got != 0 {
		t.Errorf("Expected empty buffer after flush, got %d", got)
	}
	if got := sess.FrameCount(); got != DefaultBufferSize {
		t.Errorf("Expected frame count %d, got %d", DefaultBufferSize, got)
	}
	if sess.TotalBytes() <= 0 {
		t.Error("Expected bytes accounted after flush")
	}

	var progress int
	for _, e := range drainRecorderEvents(ch) {
		if e.Kind == EventFrameRecorded {
			progress++
			if e.FrameCount != DefaultBufferSize {
				t.Errorf("Expected progress frame count %d, got %d", DefaultBufferSize, e.FrameCount)
			}
		}
	}
	if progress != 1 {
		t.Errorf("Expected one progress event, got %d", progress)
	}

	// Remainder is flushed on stop and the header finalized
	r.RecordFrame("cam0", pointsFrame(uint64(DefaultBufferSize+1), 1, ts))
	r.Stop("cam0")
	if got := sess.PersistedFrames(); got != DefaultBufferSize+1 {
		t.Errorf("Expected %d frames persisted after stop, got %d", DefaultBufferSize+1, got)
	}

	data, err := os.ReadFile(sess.Files()[0])
	if err != nil {
		t.Fatalf("Failed to read artifact: %v", err)
	}
	want := "element vertex 31"
	if !strings.Contains(string(data), want) {
		t.Errorf("Expected finalized header %q", want)
	}
}

func TestRecordFrame_NoActiveSession(t *testing.T) {
	r := New()
	// Unknown sensor: dropped silently
	r.RecordFrame("cam0", pointsFrame(1, 1, time.Now()))

	sess, err := r.Start("cam0", Config{Format: FormatPLY, OutputDir: t.TempDir()})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.Stop("cam0")

	r.RecordFrame("cam0", pointsFrame(1, 1, time.Now()))
	if got := sess.FrameCount(); got != 0 {
		t.Errorf("Expected stopped session to reject frames, got count %d", got)
	}
}

func TestRecorder_StartReplacesSession(t *testing.T) {
	r := New()
	dir := t.TempDir()
	cfg := Config{Format: FormatPLY, OutputDir: dir}

	first, err := r.Start("cam0", cfg)
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	r.RecordFrame("cam0", pointsFrame(1, 2, time.Now()))

	second, err := r.Start("cam0", cfg)
	if err != nil {
		t.Fatalf("Second start failed: %v", err)
	}

	if first.Status() != StatusStopped {
		t.Errorf("Expected first session stopped, got %s", first.Status())
	}
	if got := first.PersistedFrames(); got != 1 {
		t.Errorf("Expected first session to flush its frame, got %d", got)
	}
	if second.ID() == first.ID() {
		t.Error("Expected a fresh session id")
	}
	if second.Files()[0] == first.Files()[0] {
		t.Error("Expected a distinct artifact for the new session")
	}
	if r.Session("cam0") != second {
		t.Error("Expected lookup to return the new session")
	}
}

// failingWriter fails after a fixed number of writes to exercise the
// session error path.
type failingWriter struct {
	failAfter int
	writes    int
	closed    bool
}

func (w *failingWriter) Open() error { return nil }

func (w *failingWriter) Write(*sensor.Frame) (int64, error) {
	w.writes++
	if w.writes > w.failAfter {
		return 0, errors.New("disk full")
	}
	return 10, nil
}

func (w *failingWriter) Close(writeSummary) error {
	w.closed = true
	return nil
}

func (w *failingWriter) Files() []string { return nil }

func TestSession_WriterFailure(t *testing.T) {
	w := &failingWriter{failAfter: 1}
	buffer, err := newFrameBuffer(3)
	if err != nil {
		t.Fatalf("Failed to create buffer: %v", err)
	}
	sess := newSession("cam0", Config{Format: FormatPLY, OutputDir: "out"}, w, buffer, discardLogger(), time.Now())

	ts := time.Now()
	for n := uint64(1); n <= 2; n++ {
		if _, err := sess.record(pointsFrame(n, 1, ts)); err != nil {
			t.Fatalf("Unexpected error before capacity: %v", err)
		}
	}

	// Third frame fills the buffer; the second write fails
	flushed, err := sess.record(pointsFrame(3, 1, ts))
	if flushed {
		t.Error("Expected no successful flush")
	}
	if err == nil {
		t.Fatal("Expected a write error")
	}

	if sess.Status() != StatusError {
		t.Errorf("Expected status error, got %s", sess.Status())
	}
	if got := sess.PersistedFrames(); got != 1 {
		t.Errorf("Expected 1 persisted frame, got %d", got)
	}
	if got := sess.Buffered(); got != 2 {
		t.Errorf("Expected 2 frames retained for diagnostics, got %d", got)
	}
	if !strings.Contains(sess.Failure(), "disk full") {
		t.Errorf("Expected failure message to carry the cause, got %q", sess.Failure())
	}

	// Errored session ignores further frames
	if _, err := sess.record(pointsFrame(4, 1, ts)); err != nil {
		t.Errorf("Expected errored session to no-op, got %v", err)
	}
	if got := sess.FrameCount(); got != 3 {
		t.Errorf("Expected frame count unchanged at 3, got %d", got)
	}

	// Stop still finalizes and keeps the error status
	stopped, err := sess.stop(time.Now())
	if !stopped {
		t.Error("Expected stop to run")
	}
	if err != nil {
		t.Errorf("Unexpected stop error: %v", err)
	}
	if !w.closed {
		t.Error("Expected the writer to be finalized")
	}
	if sess.Status() != StatusError {
		t.Errorf("Expected status to stay error, got %s", sess.Status())
	}
	if sess.EndTime() == nil {
		t.Error("Expected end time on an errored session")
	}
}

func TestRecorder_Dispose(t *testing.T) {
	r := New()
	ch := r.Subscribe()
	dir := t.TempDir()

	a, err := r.Start("cam0", Config{Format: FormatPLY, OutputDir: dir})
	if err != nil {
		t.Fatalf("Start cam0 failed: %v", err)
	}
	b, err := r.Start("cam1", Config{Format: FormatRAW, OutputDir: dir, FrameRate: 30})
	if err != nil {
		t.Fatalf("Start cam1 failed: %v", err)
	}
	r.RecordFrame("cam0", pointsFrame(1, 1, time.Now()))
	r.RecordFrame("cam1", pointsFrame(1, 1, time.Now()))

	if err := r.Dispose(); err != nil {
		t.Fatalf("Dispose failed: %v", err)
	}

	if a.Status() != StatusStopped || b.Status() != StatusStopped {
		t.Errorf("Expected both sessions stopped, got %s and %s", a.Status(), b.Status())
	}

	// Broker is shut down: the channel drains and closes
	var stops int
	for e := range ch {
		if e.Kind == EventStopped {
			stops++
		}
	}
	if stops != 2 {
		t.Errorf("Expected 2 stop events, got %d", stops)
	}
}

func TestEventKindString(t *testing.T) {
	tests := []struct {
		kind EventKind
		want string
	}{
		{EventStarted, "started"},
		{EventStopped, "stopped"},
		{EventFrameRecorded, "frame-recorded"},
		{EventError, "error"},
		{EventKind(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("EventKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
