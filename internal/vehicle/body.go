package vehicle

import (
	"math"

	"github.com/golang/geo/r2"

	"drivenet/internal/geom"
	"drivenet/internal/track"
)

// footprintScale sets the corner radius to hypot(width, height)/footprintScale.
const footprintScale = 1.5

// Body is the kinematic state shared by learners and traffic.
type Body struct {
	Position r2.Point
	Heading  float64
	Speed    float64
	Width    float64
	Height   float64
	Damaged  bool

	Polygon geom.Polygon
}

func (b *Body) Pose() track.Pose {
	return track.Pose{Position: b.Position, Heading: b.Heading}
}

// UpdatePolygon recomputes the rotated footprint rectangle from the current
// position and heading.
func (b *Body) UpdatePolygon() {
	b.Polygon = Footprint(b.Pose(), b.Width, b.Height)
}

func Footprint(pose track.Pose, width, height float64) geom.Polygon {
	rad := math.Hypot(width, height) / footprintScale
	alpha := math.Atan2(width, height)
	corner := func(angle float64) r2.Point {
		return r2.Point{
			X: pose.Position.X - math.Sin(angle)*rad,
			Y: pose.Position.Y - math.Cos(angle)*rad,
		}
	}
	return geom.Polygon{
		corner(pose.Heading - alpha),
		corner(pose.Heading + alpha),
		corner(math.Pi + pose.Heading - alpha),
		corner(math.Pi + pose.Heading + alpha),
	}
}

// collides reports whether the footprint touches a border or overlaps any obstacle.
func (b *Body) collides(borders []geom.Segment, obstacles []geom.Polygon) bool {
	for _, border := range borders {
		if geom.PolygonTouchesSegment(b.Polygon, border) {
			return true
		}
	}
	for _, obstacle := range obstacles {
		if geom.PolygonsOverlap(b.Polygon, obstacle) {
			return true
		}
	}
	return false
}
