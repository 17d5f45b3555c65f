package recording

import (
	"bufio"
	"fmt"
	"os"

	"github.com/sensekit/depthsuite/internal/sensor"
)

// pcdWriter appends one PCD-style block per frame: each frame gets a fresh
// mini-header followed by its points. A standard .pcd file carries a single
// header, so most PCD tools will read only the first block of these files;
// the per-frame layout keeps recordings splittable with plain text tools and
// is kept as the on-disk convention.
type pcdWriter struct {
	cfg  Config
	path string

	f *os.File
	w *bufio.Writer
}

func newPcdWriter(cfg Config, base string) *pcdWriter {
	return &pcdWriter{cfg: cfg, path: base + ".pcd"}
}

func (p *pcdWriter) Open() (err error) {
	p.f, err = os.Create(p.path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", p.path, err)
	}
	p.w = bufio.NewWriter(p.f)
	return nil
}

func (p *pcdWriter) Write(frame *sensor.Frame) (int64, error) {
	cloud := frame.Cloud
	if cloud == nil {
		return 0, nil
	}

	count := cloud.Count()
	withColor := p.cfg.IncludeColor

	cw := &countingWriter{w: p.w}

	fmt.Fprintln(cw, "VERSION .7")
	if withColor {
		fmt.Fprintln(cw, "FIELDS x y z rgb")
		fmt.Fprintln(cw, "SIZE 4 4 4 4")
		fmt.Fprintln(cw, "TYPE F F F U")
		fmt.Fprintln(cw, "COUNT 1 1 1 1")
	} else {
		fmt.Fprintln(cw, "FIELDS x y z")
		fmt.Fprintln(cw, "SIZE 4 4 4")
		fmt.Fprintln(cw, "TYPE F F F")
		fmt.Fprintln(cw, "COUNT 1 1 1")
	}
	fmt.Fprintf(cw, "WIDTH %d\n", count)
	fmt.Fprintln(cw, "HEIGHT 1")
	fmt.Fprintln(cw, "VIEWPOINT 0 0 0 1 0 0 0")
	fmt.Fprintf(cw, "POINTS %d\n", count)
	fmt.Fprintln(cw, "DATA ascii")

	for i := 0; i < count; i++ {
		v := cloud.Point(i)
		if withColor {
			r, g, b := pointColor(cloud, i)
			packed := uint32(r)<<16 | uint32(g)<<8 | uint32(b)
			fmt.Fprintf(cw, "%.4f %.4f %.4f %d\n", v.X, v.Y, v.Z, packed)
		} else {
			fmt.Fprintf(cw, "%.4f %.4f %.4f\n", v.X, v.Y, v.Z)
		}
	}

	if cw.err != nil {
		return cw.n, fmt.Errorf("writing PCD block: %w", cw.err)
	}
	return cw.n, nil
}

func (p *pcdWriter) Close(writeSummary) (err error) {
	if p.f == nil {
		return nil
	}

	if err = p.w.Flush(); err != nil {
		err = fmt.Errorf("flushing PCD data: %w", err)
	}
	if cerr := p.f.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("closing PCD file: %w", cerr)
	}
	p.f = nil
	return err
}

func (p *pcdWriter) Files() []string {
	return []string{p.path}
}

// countingWriter tracks bytes written and the first error, so block writes
// need no per-line error handling.
type countingWriter struct {
	w   *bufio.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(b []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(b)
	c.n += int64(n)
	c.err = err
	return n, err
}
