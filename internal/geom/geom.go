package geom

import (
	"math"

	"github.com/golang/geo/r2"
)

// parallelEpsilon bounds the determinant below which two segments are
// treated as parallel.
const parallelEpsilon = 1e-12

type Segment struct {
	A r2.Point `json:"a"`
	B r2.Point `json:"b"`
}

// Hit is an intersection found along a segment. Offset is the fractional
// position of Point along the first segment, 0 at its start and 1 at its end.
type Hit struct {
	Point  r2.Point `json:"point"`
	Offset float64  `json:"offset"`
}

type Polygon []r2.Point

func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

func LerpPoint(a, b r2.Point, t float64) r2.Point {
	return r2.Point{X: Lerp(a.X, b.X, t), Y: Lerp(a.Y, b.Y, t)}
}

// Intersect solves AB and CD for their crossing point. Parallel segments and
// crossings outside either segment report ok=false.
func Intersect(a, b, c, d r2.Point) (Hit, bool) {
	ab := b.Sub(a)
	cd := d.Sub(c)
	ac := a.Sub(c)

	bottom := cd.Y*ab.X - cd.X*ab.Y
	if math.Abs(bottom) < parallelEpsilon {
		return Hit{}, false
	}

	tTop := cd.X*ac.Y - cd.Y*ac.X
	uTop := ac.Y*ab.X - ac.X*ab.Y
	t := tTop / bottom
	u := uTop / bottom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return Hit{}, false
	}
	return Hit{Point: LerpPoint(a, b, t), Offset: t}, true
}

func IntersectSegments(s, other Segment) (Hit, bool) {
	return Intersect(s.A, s.B, other.A, other.B)
}

func (s Segment) Bounds() r2.Rect {
	return r2.RectFromPoints(s.A, s.B)
}

func (p Polygon) Bounds() r2.Rect {
	return r2.RectFromPoints(p...)
}

// PolygonsOverlap reports whether any edge of p crosses any edge of q.
// Containment without an edge crossing is not an overlap.
func PolygonsOverlap(p, q Polygon) bool {
	if len(p) < 2 || len(q) < 2 {
		return false
	}
	if !p.Bounds().Intersects(q.Bounds()) {
		return false
	}
	for i := range p {
		a, b := p[i], p[(i+1)%len(p)]
		for j := range q {
			if _, ok := Intersect(a, b, q[j], q[(j+1)%len(q)]); ok {
				return true
			}
		}
	}
	return false
}

// PolygonTouchesSegment reports whether any edge of p crosses s.
func PolygonTouchesSegment(p Polygon, s Segment) bool {
	if len(p) < 2 {
		return false
	}
	if !p.Bounds().Intersects(s.Bounds()) {
		return false
	}
	for i := range p {
		if _, ok := Intersect(p[i], p[(i+1)%len(p)], s.A, s.B); ok {
			return true
		}
	}
	return false
}
