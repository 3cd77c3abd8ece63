package sensor

import (
	"math"

	"github.com/golang/geo/r2"

	"drivenet/internal/geom"
	"drivenet/internal/track"
)

const (
	DefaultRayCount  = 9
	DefaultRayLength = 180.0
	DefaultRaySpread = math.Pi * 0.75
)

// Reading is what one ray saw on the last update. Detected is false when the
// ray reached its far end without touching anything.
type Reading struct {
	Detected bool
	Point    r2.Point
	Offset   float64
}

// Sensor is a fan of probe rays spread symmetrically around a heading.
type Sensor struct {
	RayCount  int
	RayLength float64
	RaySpread float64

	Rays     []geom.Segment
	Readings []Reading
}

func New(rayCount int, rayLength, raySpread float64) *Sensor {
	if rayCount <= 0 {
		rayCount = DefaultRayCount
	}
	if rayLength <= 0 {
		rayLength = DefaultRayLength
	}
	return &Sensor{
		RayCount:  rayCount,
		RayLength: rayLength,
		RaySpread: raySpread,
		Rays:      make([]geom.Segment, rayCount),
		Readings:  make([]Reading, rayCount),
	}
}

// RayAngle is the heading of ray i. Ray 0 sits at +spread/2 (left of the
// heading), the last ray at -spread/2. A single ray points straight ahead.
func (s *Sensor) RayAngle(heading float64, i int) float64 {
	fraction := 0.5
	if s.RayCount > 1 {
		fraction = float64(i) / float64(s.RayCount-1)
	}
	return heading + geom.Lerp(s.RaySpread/2, -s.RaySpread/2, fraction)
}

// Cast rebuilds the rays from a pose without reading anything.
func (s *Sensor) Cast(pose track.Pose) {
	for i := 0; i < s.RayCount; i++ {
		angle := s.RayAngle(pose.Heading, i)
		end := r2.Point{
			X: pose.Position.X - math.Sin(angle)*s.RayLength,
			Y: pose.Position.Y - math.Cos(angle)*s.RayLength,
		}
		s.Rays[i] = geom.Segment{A: pose.Position, B: end}
	}
}

// Update casts the rays from pose and keeps, per ray, the nearest crossing
// with any border or any obstacle edge.
func (s *Sensor) Update(pose track.Pose, borders []geom.Segment, obstacles []geom.Polygon) {
	s.Cast(pose)
	for i, ray := range s.Rays {
		s.Readings[i] = nearest(ray, borders, obstacles)
	}
}

func nearest(ray geom.Segment, borders []geom.Segment, obstacles []geom.Polygon) Reading {
	var best Reading
	consider := func(hit geom.Hit) {
		if !best.Detected || hit.Offset < best.Offset {
			best = Reading{Detected: true, Point: hit.Point, Offset: hit.Offset}
		}
	}

	for _, border := range borders {
		if hit, ok := geom.IntersectSegments(ray, border); ok {
			consider(hit)
		}
	}
	for _, poly := range obstacles {
		for j := range poly {
			if hit, ok := geom.Intersect(ray.A, ray.B, poly[j], poly[(j+1)%len(poly)]); ok {
				consider(hit)
			}
		}
	}
	return best
}

// Proximities converts readings to controller inputs: 0 for no hit, rising
// to 1 as the obstacle approaches the ray origin.
func (s *Sensor) Proximities() []float64 {
	out := make([]float64, len(s.Readings))
	for i, r := range s.Readings {
		if r.Detected {
			out[i] = 1 - r.Offset
		}
	}
	return out
}

// Front is the reading of the middle ray.
func (s *Sensor) Front() Reading {
	return s.Readings[s.RayCount/2]
}

// Clearance is the mean offset over rays that hit something. ok is false
// when no ray detected anything.
func (s *Sensor) Clearance() (float64, bool) {
	total := 0.0
	hits := 0
	for _, r := range s.Readings {
		if !r.Detected {
			continue
		}
		total += r.Offset
		hits++
	}
	if hits == 0 {
		return 0, false
	}
	return total / float64(hits), true
}
