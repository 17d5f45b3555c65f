package recording

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sensekit/depthsuite/internal/sensor"
)

// objWriter streams Wavefront OBJ vertex data. OBJ has no per-vertex color,
// so when color is requested the writer emits a sibling .mtl with a single
// flat material instead. Frames are delimited with comment markers.
type objWriter struct {
	cfg     Config
	path    string
	mtlPath string

	f *os.File
	w *bufio.Writer
}

func newObjWriter(cfg Config, base string) *objWriter {
	return &objWriter{
		cfg:     cfg,
		path:    base + ".obj",
		mtlPath: base + ".mtl",
	}
}

func (o *objWriter) Open() (err error) {
	if o.cfg.IncludeColor {
		if err = o.writeMaterial(); err != nil {
			return err
		}
	}

	o.f, err = os.Create(o.path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", o.path, err)
	}
	o.w = bufio.NewWriter(o.f)

	if o.cfg.IncludeColor {
		fmt.Fprintf(o.w, "mtllib %s\n", filepath.Base(o.mtlPath))
		fmt.Fprintln(o.w, "usemtl scan")
	}
	return nil
}

func (o *objWriter) writeMaterial() error {
	var b []byte
	b = append(b, "newmtl scan\n"...)
	b = append(b, "Ka 1.000 1.000 1.000\n"...)
	b = append(b, "Kd 1.000 1.000 1.000\n"...)
	b = append(b, "Ks 0.000 0.000 0.000\n"...)
	if err := os.WriteFile(o.mtlPath, b, 0o644); err != nil {
		return fmt.Errorf("creating %s: %w", o.mtlPath, err)
	}
	return nil
}

func (o *objWriter) Write(frame *sensor.Frame) (int64, error) {
	cloud := frame.Cloud
	if cloud == nil {
		return 0, nil
	}

	cw := &countingWriter{w: o.w}

	fmt.Fprintf(cw, "# frame %d\n", frame.Number)
	for i := 0; i < cloud.Count(); i++ {
		v := cloud.Point(i)
		fmt.Fprintf(cw, "v %.4f %.4f %.4f\n", v.X, v.Y, v.Z)
		if o.cfg.IncludeNormals {
			nx, ny, nz := pointNormal(cloud, i)
			fmt.Fprintf(cw, "vn %.4f %.4f %.4f\n", nx, ny, nz)
		}
	}

	if cw.err != nil {
		return cw.n, fmt.Errorf("writing OBJ vertices: %w", cw.err)
	}
	return cw.n, nil
}

func (o *objWriter) Close(writeSummary) (err error) {
	if o.f == nil {
		return nil
	}

	if err = o.w.Flush(); err != nil {
		err = fmt.Errorf("flushing OBJ data: %w", err)
	}
	if cerr := o.f.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("closing OBJ file: %w", cerr)
	}
	o.f = nil
	return err
}

func (o *objWriter) Files() []string {
	if o.cfg.IncludeColor {
		return []string{o.path, o.mtlPath}
	}
	return []string{o.path}
}
