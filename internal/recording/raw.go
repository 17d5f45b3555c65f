package recording

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/sensekit/depthsuite/internal/sensor"
)

// rawVersion is the container version stamped into the sidecar. Bump it
// when the frame layout changes.
const rawVersion = 1

// RawMeta is the .meta.json sidecar next to a .raw stream. It is written
// once when the recording starts and rewritten with the final counters when
// it stops, so a crashed recording still carries its start metadata.
type RawMeta struct {
	Version         int        `json:"version"`
	SensorID        string     `json:"sensorId"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	FrameCount      int        `json:"frameCount"`
	TotalBytes      int64      `json:"totalBytes"`
	DurationSeconds float64    `json:"durationSeconds"`
	Config          Config     `json:"config"`
}

// rawFrameHeader is the JSON descriptor preceding each frame's payload
// blocks. Presence flags and counts give the reader the exact layout of the
// blocks that follow.
type rawFrameHeader struct {
	Number    uint64    `json:"number"`
	Timestamp time.Time `json:"timestamp"`

	HasDepth    bool `json:"hasDepth"`
	HasColor    bool `json:"hasColor"`
	HasInfrared bool `json:"hasInfrared"`
	HasCloud    bool `json:"hasCloud"`

	DepthWidth     int    `json:"depthWidth,omitempty"`
	DepthHeight    int    `json:"depthHeight,omitempty"`
	DepthMin       uint16 `json:"depthMin,omitempty"`
	DepthMax       uint16 `json:"depthMax,omitempty"`
	ColorWidth     int    `json:"colorWidth,omitempty"`
	ColorHeight    int    `json:"colorHeight,omitempty"`
	InfraredWidth  int    `json:"infraredWidth,omitempty"`
	InfraredHeight int    `json:"infraredHeight,omitempty"`

	PointCount   int  `json:"pointCount,omitempty"`
	CloudColors  bool `json:"cloudColors,omitempty"`
	CloudNormals bool `json:"cloudNormals,omitempty"`

	SkeletonCount int `json:"skeletonCount,omitempty"`
}

// rawWriter persists frames as length-prefixed binary blocks with a JSON
// sidecar describing the stream. Every block is prefixed with its byte
// length as a little-endian uint32; numeric payloads are little-endian.
type rawWriter struct {
	cfg      Config
	sensorID string
	path     string
	metaPath string

	f     *os.File
	w     *bufio.Writer
	start time.Time
}

func newRawWriter(cfg Config, sensorID, base string) *rawWriter {
	return &rawWriter{
		cfg:      cfg,
		sensorID: sensorID,
		path:     base + ".raw",
		metaPath: base + ".meta.json",
	}
}

func (r *rawWriter) Open() (err error) {
	r.start = time.Now()
	if err = r.writeMeta(RawMeta{
		Version:   rawVersion,
		SensorID:  r.sensorID,
		StartTime: r.start,
		Config:    r.cfg,
	}); err != nil {
		return err
	}

	r.f, err = os.Create(r.path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", r.path, err)
	}
	r.w = bufio.NewWriter(r.f)
	return nil
}

func (r *rawWriter) Write(frame *sensor.Frame) (int64, error) {
	hdr := rawFrameHeader{
		Number:        frame.Number,
		Timestamp:     frame.Timestamp,
		HasDepth:      frame.Depth != nil,
		HasColor:      r.cfg.IncludeColor && frame.Color != nil,
		HasInfrared:   r.cfg.IncludeInfrared && frame.Infrared != nil,
		HasCloud:      frame.Cloud != nil,
		SkeletonCount: len(frame.Skeletons),
	}
	if hdr.HasDepth {
		hdr.DepthWidth = frame.Depth.Width
		hdr.DepthHeight = frame.Depth.Height
		hdr.DepthMin = frame.Depth.MinDepth
		hdr.DepthMax = frame.Depth.MaxDepth
	}
	if hdr.HasColor {
		hdr.ColorWidth = frame.Color.Width
		hdr.ColorHeight = frame.Color.Height
	}
	if hdr.HasInfrared {
		hdr.InfraredWidth = frame.Infrared.Width
		hdr.InfraredHeight = frame.Infrared.Height
	}
	if hdr.HasCloud {
		hdr.PointCount = frame.Cloud.Count()
		hdr.CloudColors = r.cfg.IncludeColor && frame.Cloud.HasColors()
		hdr.CloudNormals = r.cfg.IncludeNormals && frame.Cloud.HasNormals()
	}

	desc, err := json.Marshal(hdr)
	if err != nil {
		return 0, fmt.Errorf("encoding frame descriptor: %w", err)
	}

	var written int64
	n, err := writeBlock(r.w, desc)
	written += n
	if err != nil {
		return written, fmt.Errorf("writing frame descriptor: %w", err)
	}

	if hdr.HasDepth {
		n, err = writeBlock(r.w, uint16Bytes(frame.Depth.Data))
		written += n
		if err != nil {
			return written, fmt.Errorf("writing depth payload: %w", err)
		}
	}
	if hdr.HasColor {
		n, err = writeBlock(r.w, frame.Color.Data)
		written += n
		if err != nil {
			return written, fmt.Errorf("writing color payload: %w", err)
		}
	}
	if hdr.HasInfrared {
		n, err = writeBlock(r.w, uint16Bytes(frame.Infrared.Data))
		written += n
		if err != nil {
			return written, fmt.Errorf("writing infrared payload: %w", err)
		}
	}
	if hdr.HasCloud {
		n, err = writeBlock(r.w, cloudBytes(frame.Cloud, hdr.CloudColors, hdr.CloudNormals))
		written += n
		if err != nil {
			return written, fmt.Errorf("writing cloud payload: %w", err)
		}
	}
	if hdr.SkeletonCount > 0 {
		var payload []byte
		if payload, err = json.Marshal(frame.Skeletons); err != nil {
			return written, fmt.Errorf("encoding skeletons: %w", err)
		}
		n, err = writeBlock(r.w, payload)
		written += n
		if err != nil {
			return written, fmt.Errorf("writing skeleton payload: %w", err)
		}
	}

	return written, nil
}

func (r *rawWriter) Close(sum writeSummary) (err error) {
	if r.f == nil {
		return nil
	}

	if err = r.w.Flush(); err != nil {
		err = fmt.Errorf("flushing raw stream: %w", err)
	}
	if cerr := r.f.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("closing raw stream: %w", cerr)
	}
	r.f = nil
	if err != nil {
		return err
	}

	start := sum.start
	if start.IsZero() {
		start = r.start
	}
	end := sum.end
	if end.IsZero() {
		end = time.Now()
	}
	return r.writeMeta(RawMeta{
		Version:         rawVersion,
		SensorID:        r.sensorID,
		StartTime:       start,
		EndTime:         &end,
		FrameCount:      sum.frames,
		TotalBytes:      sum.totalBytes,
		DurationSeconds: end.Sub(start).Seconds(),
		Config:          r.cfg,
	})
}

func (r *rawWriter) Files() []string {
	return []string{r.path, r.metaPath}
}

func (r *rawWriter) writeMeta(meta RawMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	if err := os.WriteFile(r.metaPath, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", r.metaPath, err)
	}
	return nil
}

// writeBlock writes a length-prefixed block and returns the bytes written
// including the prefix.
func writeBlock(w *bufio.Writer, b []byte) (int64, error) {
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(b)))
	if _, err := w.Write(prefix[:]); err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(4 + n), err
}

func uint16Bytes(data []uint16) []byte {
	out := make([]byte, 2*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint16(out[2*i:], v)
	}
	return out
}

func float32Bytes(data []float32) []byte {
	out := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
	}
	return out
}

// cloudBytes packs a point cloud into one block: XYZ float32 triples, then
// RGB bytes when colors are kept, then normal float32 triples. The
// descriptor's point count and flags fix the section offsets.
func cloudBytes(cloud *sensor.PointCloud, colors, normals bool) []byte {
	out := float32Bytes(cloud.Points)
	if colors {
		out = append(out, cloud.Colors...)
	}
	if normals {
		out = append(out, float32Bytes(cloud.Normals)...)
	}
	return out
}
