package recording

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sensekit/depthsuite/internal/sensor"
)

// Status is the lifecycle state of a recording session.
type Status string

const (
	// StatusRecording marks a session accepting frames.
	StatusRecording Status = "recording"

	// StatusStopped marks a session that flushed and finalized cleanly.
	StatusStopped Status = "stopped"

	// StatusError marks a session whose writer failed. The session stops
	// accepting frames but keeps its partial artifacts and counters.
	StatusError Status = "error"
)

// Session is one recording run for one sensor. It owns the format writer
// and the in-memory frame buffer; the recorder serializes access through
// the session mutex.
type Session struct {
	id       string
	sensorID string
	cfg      Config
	logger   *slog.Logger

	mu         sync.Mutex
	status     Status
	writer     frameWriter
	buffer     *frameBuffer
	frameCount int        // frames accepted while recording
	persisted  int        // frames flushed through the writer
	totalBytes int64      // bytes reported by the writer
	startTime  time.Time  // set by the recorder on start
	endTime    *time.Time // set by the recorder on stop
	failure    string     // writer failure message, when status is error
}

func newSession(sensorID string, cfg Config, writer frameWriter, buffer *frameBuffer, logger *slog.Logger, start time.Time) *Session {
	s := &Session{
		id:        uuid.NewString(),
		sensorID:  sensorID,
		cfg:       cfg,
		writer:    writer,
		buffer:    buffer,
		status:    StatusRecording,
		startTime: start,
	}
	s.logger = logger.With(
		slog.String("sensorID", sensorID),
		slog.String("sessionID", s.id))
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// SensorID returns the sensor this session records.
func (s *Session) SensorID() string {
	return s.sensorID
}

// Config returns the session's recording configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// StartTime returns when the session started.
func (s *Session) StartTime() time.Time {
	return s.startTime
}

// EndTime returns when the session stopped, or nil while it is running.
func (s *Session) EndTime() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.endTime == nil {
		return nil
	}
	t := *s.endTime
	return &t
}

// FrameCount returns the number of frames accepted, buffered or persisted.
func (s *Session) FrameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameCount
}

// PersistedFrames returns the number of frames written through the format
// writer. It trails FrameCount by whatever is still buffered.
func (s *Session) PersistedFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persisted
}

// TotalBytes returns the bytes written to the session's artifacts.
func (s *Session) TotalBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalBytes
}

// Buffered returns the number of frames held in memory. After a writer
// failure the unwritten frames remain here for diagnostics.
func (s *Session) Buffered() int {
	return s.buffer.Size()
}

// Files returns the artifact paths the session writes.
func (s *Session) Files() []string {
	return s.writer.Files()
}

// Failure returns the writer failure message, empty unless the status
// is error.
func (s *Session) Failure() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failure
}

// record buffers one frame, flushing through the writer when the buffer
// fills. It reports whether a flush happened so the recorder can emit
// progress, and returns the writer error that failed the session, if any.
func (s *Session) record(frame sensor.Frame) (flushed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusRecording {
		return false, nil
	}
	s.frameCount++

	if frame.Cloud != nil {
		if verr := frame.Cloud.Validate(); verr != nil {
			s.logger.Warn("dropping malformed point cloud",
				slog.Uint64("frame", frame.Number),
				slog.String("reason", verr.Error()))
			frame.Cloud = nil
		}
	}

	if err = s.buffer.Insert(&frame); err != nil {
		return false, err
	}
	if !s.buffer.IsFull() {
		return false, nil
	}

	if err = s.flushLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// flushLocked drains the buffer through the writer in frame order. On a
// write error the unwritten remainder is put back in the buffer and the
// session is failed. The caller must hold s.mu.
func (s *Session) flushLocked() error {
	frames := s.buffer.DrainAll()
	for i, f := range frames {
		n, err := s.writer.Write(f)
		s.totalBytes += n
		if err != nil {
			for _, pending := range frames[i:] {
				_ = s.buffer.Insert(pending)
			}
			s.failLocked(fmt.Sprintf("writing frame %d: %s", f.Number, err))
			return err
		}
		s.persisted++
	}
	return nil
}

// stop flushes the remainder, finalizes the writer and stamps the end
// time. A session that already failed is still finalized so its partial
// artifacts stay consistent; its status remains error. The bool reports
// whether this call performed the stop.
func (s *Session) stop(now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.endTime != nil {
		return false, nil
	}

	var flushErr error
	if s.status == StatusRecording {
		flushErr = s.flushLocked()
	}

	closeErr := s.writer.Close(writeSummary{
		frames:     s.persisted,
		totalBytes: s.totalBytes,
		start:      s.startTime,
		end:        now,
	})
	if closeErr != nil && s.status == StatusRecording {
		s.failLocked(fmt.Sprintf("finalizing recording: %s", closeErr))
	}

	s.endTime = &now
	if s.status == StatusRecording {
		s.status = StatusStopped
	}

	s.logger.Info("recording stopped",
		slog.String("status", string(s.status)),
		slog.Int("frames", s.persisted),
		slog.Int64("bytes", s.totalBytes))
	return true, errors.Join(flushErr, closeErr)
}

// failLocked marks the session errored, keeping the persisted counters.
// The caller must hold s.mu.
func (s *Session) failLocked(msg string) {
	s.status = StatusError
	s.failure = msg
	s.logger.Error("recording failed",
		slog.String("reason", msg),
		slog.Int("persisted", s.persisted),
		slog.Int("buffered", s.buffer.Size()))
}
