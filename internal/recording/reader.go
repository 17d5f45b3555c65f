package recording

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/sensekit/depthsuite/internal/sensor"
)

// maxBlockBytes caps a single length-prefixed block. A larger prefix marks
// a corrupt or truncated stream, not a legitimate payload.
const maxBlockBytes = 1 << 30

// RawReader is an iterator over the frames of a .raw recording. The stream
// is self-describing, so the sidecar is optional for reading; when present
// it supplies the sensor id stamped onto reconstructed frames.
type RawReader struct {
	f *os.File
	r *bufio.Reader

	meta    *RawMeta
	current *sensor.Frame
	err     error
}

// OpenReader opens a .raw recording for iteration.
func OpenReader(path string) (*RawReader, error) {
	meta, err := ReadMeta(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return &RawReader{
		f:    f,
		r:    bufio.NewReaderSize(f, 1<<16),
		meta: meta,
	}, nil
}

// Meta returns the sidecar metadata, nil when the recording has none.
func (rr *RawReader) Meta() *RawMeta {
	return rr.meta
}

// Next advances the iterator and returns true when another frame was read,
// false at the end of the stream or on error.
func (rr *RawReader) Next() bool {
	if rr.err != nil || rr.r == nil {
		return false
	}

	desc, err := rr.readBlock()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false
		}
		rr.err = fmt.Errorf("reading frame descriptor: %w", err)
		return false
	}

	var hdr rawFrameHeader
	if err := json.Unmarshal(desc, &hdr); err != nil {
		rr.err = fmt.Errorf("decoding frame descriptor: %w", err)
		return false
	}

	frame := sensor.Frame{
		Number:    hdr.Number,
		Timestamp: hdr.Timestamp,
	}
	if rr.meta != nil {
		frame.SensorID = rr.meta.SensorID
	}

	if hdr.HasDepth {
		if frame.Depth, rr.err = rr.readDepth(hdr); rr.err != nil {
			return false
		}
	}
	if hdr.HasColor {
		if frame.Color, rr.err = rr.readColor(hdr); rr.err != nil {
			return false
		}
	}
	if hdr.HasInfrared {
		if frame.Infrared, rr.err = rr.readInfrared(hdr); rr.err != nil {
			return false
		}
	}
	if hdr.HasCloud {
		if frame.Cloud, rr.err = rr.readCloud(hdr); rr.err != nil {
			return false
		}
	}
	if hdr.SkeletonCount > 0 {
		payload, err := rr.readBlock()
		if err != nil {
			rr.err = fmt.Errorf("reading skeleton payload: %w", err)
			return false
		}
		if err := json.Unmarshal(payload, &frame.Skeletons); err != nil {
			rr.err = fmt.Errorf("decoding skeletons: %w", err)
			return false
		}
	}

	rr.current = &frame
	return true
}

// Current returns the frame read by the last successful Next. If called
// after Next returns false, the behavior is undefined.
func (rr *RawReader) Current() sensor.Frame {
	if rr.current == nil {
		return sensor.Frame{}
	}
	return *rr.current
}

// Error returns the error that stopped iteration, nil after a clean end
// of stream.
func (rr *RawReader) Error() error {
	return rr.err
}

// Close releases the underlying file. The reader must not be used after.
func (rr *RawReader) Close() error {
	if rr.f == nil {
		return nil
	}
	err := rr.f.Close()
	rr.f = nil
	rr.r = nil
	rr.current = nil
	return err
}

func (rr *RawReader) readBlock() ([]byte, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(rr.r, prefix[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(prefix[:])
	if n > maxBlockBytes {
		return nil, fmt.Errorf("block length %d exceeds limit", n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(rr.r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func (rr *RawReader) readDepth(hdr rawFrameHeader) (*sensor.DepthFrame, error) {
	payload, err := rr.readBlock()
	if err != nil {
		return nil, fmt.Errorf("reading depth payload: %w", err)
	}
	want := 2 * hdr.DepthWidth * hdr.DepthHeight
	if len(payload) != want {
		return nil, fmt.Errorf("depth payload is %d bytes, want %d", len(payload), want)
	}
	return &sensor.DepthFrame{
		Width:     hdr.DepthWidth,
		Height:    hdr.DepthHeight,
		Data:      bytesToUint16(payload),
		MinDepth:  hdr.DepthMin,
		MaxDepth:  hdr.DepthMax,
		Number:    hdr.Number,
		Timestamp: hdr.Timestamp,
	}, nil
}

func (rr *RawReader) readColor(hdr rawFrameHeader) (*sensor.ColorFrame, error) {
	payload, err := rr.readBlock()
	if err != nil {
		return nil, fmt.Errorf("reading color payload: %w", err)
	}
	want := 3 * hdr.ColorWidth * hdr.ColorHeight
	if len(payload) != want {
		return nil, fmt.Errorf("color payload is %d bytes, want %d", len(payload), want)
	}
	return &sensor.ColorFrame{
		Width:     hdr.ColorWidth,
		Height:    hdr.ColorHeight,
		Data:      payload,
		Number:    hdr.Number,
		Timestamp: hdr.Timestamp,
	}, nil
}

func (rr *RawReader) readInfrared(hdr rawFrameHeader) (*sensor.InfraredFrame, error) {
	payload, err := rr.readBlock()
	if err != nil {
		return nil, fmt.Errorf("reading infrared payload: %w", err)
	}
	want := 2 * hdr.InfraredWidth * hdr.InfraredHeight
	if len(payload) != want {
		return nil, fmt.Errorf("infrared payload is %d bytes, want %d", len(payload), want)
	}
	return &sensor.InfraredFrame{
		Width:     hdr.InfraredWidth,
		Height:    hdr.InfraredHeight,
		Data:      bytesToUint16(payload),
		Number:    hdr.Number,
		Timestamp: hdr.Timestamp,
	}, nil
}

func (rr *RawReader) readCloud(hdr rawFrameHeader) (*sensor.PointCloud, error) {
	payload, err := rr.readBlock()
	if err != nil {
		return nil, fmt.Errorf("reading cloud payload: %w", err)
	}

	pointBytes := 12 * hdr.PointCount
	want := pointBytes
	if hdr.CloudColors {
		want += 3 * hdr.PointCount
	}
	if hdr.CloudNormals {
		want += 12 * hdr.PointCount
	}
	if len(payload) != want {
		return nil, fmt.Errorf("cloud payload is %d bytes, want %d", len(payload), want)
	}

	cloud := &sensor.PointCloud{
		Points:    bytesToFloat32(payload[:pointBytes]),
		Number:    hdr.Number,
		Timestamp: hdr.Timestamp,
	}
	if rr.meta != nil {
		cloud.SensorID = rr.meta.SensorID
	}
	offset := pointBytes
	if hdr.CloudColors {
		cloud.Colors = payload[offset : offset+3*hdr.PointCount]
		offset += 3 * hdr.PointCount
	}
	if hdr.CloudNormals {
		cloud.Normals = bytesToFloat32(payload[offset:])
	}
	return cloud, nil
}

// ReadMeta loads the .meta.json sidecar for a recording. The path may be
// either the .raw stream or the sidecar itself.
func ReadMeta(path string) (*RawMeta, error) {
	metaPath := path
	if !strings.HasSuffix(metaPath, ".meta.json") {
		metaPath = strings.TrimSuffix(metaPath, ".raw") + ".meta.json"
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", metaPath, err)
	}

	var meta RawMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", metaPath, err)
	}
	if meta.Version > rawVersion {
		return nil, fmt.Errorf("unsupported container version %d", meta.Version)
	}
	return &meta, nil
}

func bytesToUint16(b []byte) []uint16 {
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return out
}

func bytesToFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}
