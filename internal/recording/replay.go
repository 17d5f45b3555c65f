package recording

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sensekit/depthsuite/internal/sensor"
)

// defaultFrameGap paces looped playback across the seam between passes
// when the recording does not carry a frame rate.
const defaultFrameGap = 33 * time.Millisecond

// WithLoop restarts playback from the beginning when the recording ends.
func WithLoop() func(s *ReplaySource) {
	return func(s *ReplaySource) {
		s.loop = true
	}
}

// WithSpeed scales playback pacing; 2 plays twice as fast as recorded.
// Zero or negative disables pacing entirely.
func WithSpeed(speed float64) func(s *ReplaySource) {
	return func(s *ReplaySource) {
		s.speed = speed
	}
}

// WithSensorID overrides the sensor id stamped onto replayed frames.
func WithSensorID(id string) func(s *ReplaySource) {
	return func(s *ReplaySource) {
		s.sensorID = id
	}
}

// ReplaySource plays a .raw recording back as a live frame source, paced
// by the recorded timestamps. With looping enabled the stream restarts at
// the end: envelope frame numbers keep increasing and timestamps are
// shifted forward by the span of each pass, so consumers see a continuous
// monotonic stream. Payload frames keep their recorded numbers.
type ReplaySource struct {
	path     string
	sensorID string
	loop     bool
	speed    float64

	mu  sync.Mutex
	err error
}

// NewReplaySource creates a source reading from a .raw recording. The
// sensor id comes from the sidecar when present, falling back to the
// file name.
func NewReplaySource(path string, opts ...func(s *ReplaySource)) *ReplaySource {
	s := &ReplaySource{path: path, speed: 1}
	if meta, err := ReadMeta(path); err == nil && meta.SensorID != "" {
		s.sensorID = meta.SensorID
	} else {
		s.sensorID = strings.TrimSuffix(filepath.Base(path), ".raw")
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the identifier of the sensor this source replays.
func (s *ReplaySource) ID() string {
	return s.sensorID
}

// Err returns the read error that ended playback, nil after a clean end
// or cancellation.
func (s *ReplaySource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Frames starts playback and returns the frame channel. The channel is
// closed when the recording is exhausted, a read fails, or ctx is
// cancelled; Err reports the failure.
func (s *ReplaySource) Frames(ctx context.Context) (<-chan sensor.Frame, error) {
	rd, err := OpenReader(s.path)
	if err != nil {
		return nil, err
	}

	gap := defaultFrameGap
	if m := rd.Meta(); m != nil && m.Config.FrameRate > 0 {
		gap = time.Second / time.Duration(m.Config.FrameRate)
	}

	out := make(chan sensor.Frame)
	go s.run(ctx, rd, gap, out)
	return out, nil
}

func (s *ReplaySource) run(ctx context.Context, rd *RawReader, gap time.Duration, out chan<- sensor.Frame) {
	defer close(out)

	var next uint64
	var shift time.Duration

	for {
		span, err := s.playPass(ctx, rd, out, shift, &next)
		if cerr := rd.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			s.setErr(err)
			return
		}
		if !s.loop || ctx.Err() != nil {
			return
		}
		shift += span + gap

		if rd, err = OpenReader(s.path); err != nil {
			s.setErr(err)
			return
		}
	}
}

// playPass emits one full read of the recording and returns the recorded
// time span it covered. A nil error with ctx cancelled means playback was
// interrupted, not failed.
func (s *ReplaySource) playPass(ctx context.Context, rd *RawReader, out chan<- sensor.Frame, shift time.Duration, next *uint64) (span time.Duration, err error) {
	var first, prev time.Time

	for rd.Next() {
		frame := rd.Current()

		if !prev.IsZero() {
			if d := s.scale(frame.Timestamp.Sub(prev)); d > 0 {
				t := time.NewTimer(d)
				select {
				case <-ctx.Done():
					t.Stop()
					return span, nil
				case <-t.C:
				}
			}
		}
		if first.IsZero() {
			first = frame.Timestamp
		}
		prev = frame.Timestamp
		span = prev.Sub(first)

		*next++
		frame.Number = *next
		frame.SensorID = s.sensorID
		frame.Timestamp = frame.Timestamp.Add(shift)

		select {
		case out <- frame:
		case <-ctx.Done():
			return span, nil
		}
	}
	return span, rd.Error()
}

func (s *ReplaySource) scale(d time.Duration) time.Duration {
	if s.speed <= 0 {
		return 0
	}
	if s.speed == 1 {
		return d
	}
	return time.Duration(float64(d) / s.speed)
}

func (s *ReplaySource) setErr(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}
