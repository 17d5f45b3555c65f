package calibration

import (
	"math"

	"github.com/golang/geo/r3"
)

// fitPlane fits a plane to the points by centroid and covariance. The normal
// is the cross product of two covariance rows, which span the plane for any
// non-degenerate point set; no eigen-decomposition is performed. Reports
// false when the points do not define a plane.
func fitPlane(points []r3.Vector) (normal, centroid r3.Vector, ok bool) {
	if len(points) < 3 {
		return r3.Vector{}, r3.Vector{}, false
	}

	for _, p := range points {
		centroid = centroid.Add(p)
	}
	centroid = centroid.Mul(1 / float64(len(points)))

	var xx, xy, xz, yy, yz float64
	for _, p := range points {
		d := p.Sub(centroid)
		xx += d.X * d.X
		xy += d.X * d.Y
		xz += d.X * d.Z
		yy += d.Y * d.Y
		yz += d.Y * d.Z
	}

	u := r3.Vector{X: xx, Y: xy, Z: xz}
	v := r3.Vector{X: xy, Y: yy, Z: yz}

	n := u.Cross(v)
	if n.Norm() < 1e-9 {
		return r3.Vector{}, r3.Vector{}, false
	}
	return n.Normalize(), centroid, true
}

// maxPlaneDeviation fits a plane and returns the largest absolute
// point-to-plane distance.
func maxPlaneDeviation(points []r3.Vector) (float64, bool) {
	normal, centroid, ok := fitPlane(points)
	if !ok {
		return 0, false
	}

	var worst float64
	for _, p := range points {
		if d := math.Abs(p.Sub(centroid).Dot(normal)); d > worst {
			worst = d
		}
	}
	return worst, true
}
