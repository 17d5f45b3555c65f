package recording

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/sensekit/depthsuite/internal/sensor"
)

// plyVertexPlaceholder is written into the header on open and replaced with
// the real vertex count when the file is finalized.
const plyVertexPlaceholder = "element vertex 0"

// plyWriter streams points into a single ASCII PLY file. The vertex count is
// unknown until the session stops, so the header carries a placeholder that
// finalization rewrites by re-reading the file.
type plyWriter struct {
	cfg  Config
	path string

	f *os.File
	w *bufio.Writer
}

func newPlyWriter(cfg Config, base string) *plyWriter {
	return &plyWriter{cfg: cfg, path: base + ".ply"}
}

func (p *plyWriter) Open() (err error) {
	p.f, err = os.Create(p.path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", p.path, err)
	}
	p.w = bufio.NewWriter(p.f)

	var b strings.Builder
	b.WriteString("ply\n")
	b.WriteString("format ascii 1.0\n")
	b.WriteString(plyVertexPlaceholder + "\n")
	b.WriteString("property float x\n")
	b.WriteString("property float y\n")
	b.WriteString("property float z\n")
	if p.cfg.IncludeColor {
		b.WriteString("property uchar red\n")
		b.WriteString("property uchar green\n")
		b.WriteString("property uchar blue\n")
	}
	if p.cfg.IncludeNormals {
		b.WriteString("property float nx\n")
		b.WriteString("property float ny\n")
		b.WriteString("property float nz\n")
	}
	b.WriteString("end_header\n")

	if _, err := p.w.WriteString(b.String()); err != nil {
		return fmt.Errorf("writing PLY header: %w", err)
	}
	return nil
}

func (p *plyWriter) Write(frame *sensor.Frame) (int64, error) {
	cloud := frame.Cloud
	if cloud == nil {
		return 0, nil
	}

	var written int64
	for i := 0; i < cloud.Count(); i++ {
		v := cloud.Point(i)

		var line strings.Builder
		fmt.Fprintf(&line, "%.4f %.4f %.4f", v.X, v.Y, v.Z)
		if p.cfg.IncludeColor {
			r, g, b := pointColor(cloud, i)
			fmt.Fprintf(&line, " %d %d %d", r, g, b)
		}
		if p.cfg.IncludeNormals {
			nx, ny, nz := pointNormal(cloud, i)
			fmt.Fprintf(&line, " %.4f %.4f %.4f", nx, ny, nz)
		}
		line.WriteByte('\n')

		n, err := p.w.WriteString(line.String())
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("writing PLY vertex: %w", err)
		}
	}
	return written, nil
}

func (p *plyWriter) Close(writeSummary) (err error) {
	if p.f == nil {
		return nil
	}

	if err = p.w.Flush(); err != nil {
		err = fmt.Errorf("flushing PLY data: %w", err)
	}
	if cerr := p.f.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("closing PLY file: %w", cerr)
	}
	p.f = nil
	if err != nil {
		return err
	}

	return finalizePly(p.path)
}

func (p *plyWriter) Files() []string {
	return []string{p.path}
}

// finalizePly replaces the vertex count placeholder with the number of data
// lines actually present. The file is re-read so the count always matches
// the artifact, then atomically swapped into place.
func finalizePly(path string) error {
	vertices, err := countPlyVertices(path)
	if err != nil {
		return err
	}

	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reopening %s: %w", path, err)
	}
	defer in.Close()

	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}

	w := bufio.NewWriter(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	replaced := false
	for scanner.Scan() {
		line := scanner.Text()
		if !replaced && line == plyVertexPlaceholder {
			line = fmt.Sprintf("element vertex %d", vertices)
			replaced = true
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			out.Close()
			return fmt.Errorf("rewriting PLY: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		out.Close()
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := w.Flush(); err != nil {
		out.Close()
		return fmt.Errorf("flushing rewritten PLY: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing rewritten PLY: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

// countPlyVertices counts the data lines after end_header.
func countPlyVertices(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var vertices int
	inData := false

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if inData {
			if len(scanner.Bytes()) > 0 {
				vertices++
			}
			continue
		}
		if scanner.Text() == "end_header" {
			inData = true
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("counting vertices in %s: %w", path, err)
	}
	if !inData {
		return 0, fmt.Errorf("%s has no end_header", path)
	}
	return vertices, nil
}

// pointColor returns the cloud color for point i, white when absent.
func pointColor(cloud *sensor.PointCloud, i int) (r, g, b uint8) {
	if !cloud.HasColors() || 3*i+2 >= len(cloud.Colors) {
		return 255, 255, 255
	}
	return cloud.Colors[3*i], cloud.Colors[3*i+1], cloud.Colors[3*i+2]
}

// pointNormal returns the cloud normal for point i, zero when absent.
func pointNormal(cloud *sensor.PointCloud, i int) (nx, ny, nz float64) {
	if !cloud.HasNormals() || 3*i+2 >= len(cloud.Normals) {
		return 0, 0, 0
	}
	return float64(cloud.Normals[3*i]), float64(cloud.Normals[3*i+1]), float64(cloud.Normals[3*i+2])
}
