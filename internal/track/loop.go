package track

import (
	"math"
	"sync/atomic"

	"github.com/golang/geo/r2"

	"drivenet/internal/geom"
)

const (
	defaultArcSegments   = 30
	defaultHeightRatio   = 0.38
	defaultStraightRatio = 0.48

	locateRange = 0.3
	locateStep  = 0.02
)

type LoopConfig struct {
	// Origin is reported as the lane centre until dimensions are known.
	Origin        r2.Point
	Width         float64
	LaneCount     int
	ArcSegments   int
	HeightRatio   float64
	StraightRatio float64
}

// Loop is an oval of two straights joined by two semicircular arcs. The
// parameter t runs clockwise: top straight [0, π/2), right arc [π/2, π),
// bottom straight [π, 3π/2), left arc [3π/2, 2π).
type Loop struct {
	cfg      LoopConfig
	geometry atomic.Pointer[loopGeometry]
}

// loopGeometry is derived from the viewport and never mutated once published.
type loopGeometry struct {
	viewWidth  float64
	viewHeight float64
	center     r2.Point
	left       r2.Point
	right      r2.Point
	radius     float64
	perimeter  float64
	borders    []geom.Segment
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.ArcSegments <= 0 {
		cfg.ArcSegments = defaultArcSegments
	}
	if cfg.HeightRatio <= 0 {
		cfg.HeightRatio = defaultHeightRatio
	}
	if cfg.StraightRatio <= 0 {
		cfg.StraightRatio = defaultStraightRatio
	}
	if cfg.LaneCount <= 0 {
		cfg.LaneCount = 1
	}
	return &Loop{cfg: cfg}
}

func (l *Loop) Kind() Kind { return KindLoop }

func (l *Loop) LaneCount() int { return l.cfg.LaneCount }

func (l *Loop) StartLane() int { return l.cfg.LaneCount / 2 }

func (l *Loop) Period() float64 { return Circuit }

// ready reports whether UpdateDimensions has been called.
func (l *Loop) ready() bool { return l.geometry.Load() != nil }

// Borders returns nil until the first UpdateDimensions call.
func (l *Loop) Borders() []geom.Segment {
	g := l.geometry.Load()
	if g == nil {
		return nil
	}
	return g.borders
}

// center is the oval centre, or the configured origin before dimensions are known.
func (l *Loop) center() r2.Point {
	g := l.geometry.Load()
	if g == nil {
		return l.cfg.Origin
	}
	return g.center
}

// arcs returns the two arc centres and the centre-lane radius.
func (l *Loop) arcs() (left, right r2.Point, radius float64, ok bool) {
	g := l.geometry.Load()
	if g == nil {
		return r2.Point{}, r2.Point{}, 0, false
	}
	return g.left, g.right, g.radius, true
}

// UpdateDimensions rebuilds the geometry for a viewport and publishes it in a
// single swap, so concurrent readers see either the old or the new border set.
func (l *Loop) UpdateDimensions(width, height float64) {
	if width <= 0 || height <= 0 {
		return
	}
	if current := l.geometry.Load(); current != nil && current.viewWidth == width && current.viewHeight == height {
		return
	}
	l.geometry.Store(l.buildGeometry(width, height))
}

func (l *Loop) buildGeometry(width, height float64) *loopGeometry {
	center := r2.Point{X: width / 2, Y: height / 2}
	radius := height * l.cfg.HeightRatio
	straight := width * l.cfg.StraightRatio

	g := &loopGeometry{
		viewWidth:  width,
		viewHeight: height,
		center:     center,
		left:       r2.Point{X: center.X - straight/2, Y: center.Y},
		right:      r2.Point{X: center.X + straight/2, Y: center.Y},
		radius:     radius,
		perimeter:  2*straight + 2*math.Pi*radius,
	}
	g.borders = l.buildBorders(g)
	return g
}

func (l *Loop) buildBorders(g *loopGeometry) []geom.Segment {
	segments := l.cfg.ArcSegments
	outer := g.radius + l.cfg.Width/2
	inner := g.radius - l.cfg.Width/2

	borders := make([]geom.Segment, 0, segments*4+4)
	arcPoint := func(c r2.Point, radius, angle float64) r2.Point {
		return r2.Point{X: c.X + math.Cos(angle)*radius, Y: c.Y + math.Sin(angle)*radius}
	}
	for i := 1; i <= segments; i++ {
		t1 := float64(i-1) / float64(segments)
		t2 := float64(i) / float64(segments)

		// Right arc sweeps -π/2 → π/2, left arc π/2 → 3π/2.
		r1 := -math.Pi/2 + t1*math.Pi
		r2a := -math.Pi/2 + t2*math.Pi
		l1 := math.Pi/2 + t1*math.Pi
		l2 := math.Pi/2 + t2*math.Pi

		borders = append(borders,
			geom.Segment{A: arcPoint(g.right, outer, r1), B: arcPoint(g.right, outer, r2a)},
			geom.Segment{A: arcPoint(g.right, inner, r1), B: arcPoint(g.right, inner, r2a)},
			geom.Segment{A: arcPoint(g.left, outer, l1), B: arcPoint(g.left, outer, l2)},
			geom.Segment{A: arcPoint(g.left, inner, l1), B: arcPoint(g.left, inner, l2)},
		)
	}

	borders = append(borders,
		geom.Segment{A: r2.Point{X: g.left.X, Y: g.left.Y - outer}, B: r2.Point{X: g.right.X, Y: g.right.Y - outer}},
		geom.Segment{A: r2.Point{X: g.left.X, Y: g.left.Y - inner}, B: r2.Point{X: g.right.X, Y: g.right.Y - inner}},
		geom.Segment{A: r2.Point{X: g.left.X, Y: g.left.Y + outer}, B: r2.Point{X: g.right.X, Y: g.right.Y + outer}},
		geom.Segment{A: r2.Point{X: g.left.X, Y: g.left.Y + inner}, B: r2.Point{X: g.right.X, Y: g.right.Y + inner}},
	)
	return borders
}

// LaneCenter maps a lane and track parameter to a world pose. Lane offsets
// are applied perpendicular to the local direction of travel; lane 0 is the
// outer lane.
func (l *Loop) LaneCenter(lane int, t float64) Pose {
	g := l.geometry.Load()
	if g == nil {
		return Pose{Position: l.cfg.Origin, Heading: DefaultHeading}
	}
	return g.laneCenter(l.laneOffset(lane), Wrap(t))
}

func (l *Loop) laneOffset(lane int) float64 {
	lane = clampLane(lane, l.cfg.LaneCount)
	laneWidth := l.cfg.Width / float64(l.cfg.LaneCount)
	middle := float64(l.cfg.LaneCount-1) / 2
	return (float64(lane) - middle) * laneWidth
}

func (g *loopGeometry) laneCenter(offset, t float64) Pose {
	const quarter = math.Pi / 2

	var centre r2.Point
	var direction float64 // travel direction, standard math angle
	switch {
	case t < quarter:
		progress := t / quarter
		centre = r2.Point{X: geom.Lerp(g.left.X, g.right.X, progress), Y: g.center.Y - g.radius}
		direction = 0
	case t < 2*quarter:
		angle := -math.Pi/2 + (t-quarter)/quarter*math.Pi
		centre = r2.Point{X: g.right.X + math.Cos(angle)*g.radius, Y: g.right.Y + math.Sin(angle)*g.radius}
		direction = angle + math.Pi/2
	case t < 3*quarter:
		progress := (t - 2*quarter) / quarter
		centre = r2.Point{X: geom.Lerp(g.right.X, g.left.X, progress), Y: g.center.Y + g.radius}
		direction = math.Pi
	default:
		angle := math.Pi/2 + (t-3*quarter)/quarter*math.Pi
		centre = r2.Point{X: g.left.X + math.Cos(angle)*g.radius, Y: g.left.Y + math.Sin(angle)*g.radius}
		direction = angle + math.Pi/2
	}

	normal := direction + math.Pi/2
	position := centre.Add(r2.Point{X: math.Cos(normal), Y: math.Sin(normal)}.Mul(offset))
	return Pose{
		Position: position,
		Heading:  math.Atan2(-math.Cos(direction), -math.Sin(direction)),
	}
}

// Locate scans a bounded window around hint across every lane and returns
// the wrapped parameter whose lane centre is nearest pos.
func (l *Loop) Locate(pos r2.Point, hint float64) float64 {
	g := l.geometry.Load()
	if g == nil {
		return Wrap(hint)
	}

	best := Wrap(hint)
	bestDistance := math.Inf(1)
	steps := int(math.Round(2 * locateRange / locateStep))
	for i := 0; i <= steps; i++ {
		candidate := Wrap(hint - locateRange + float64(i)*locateStep)
		for lane := 0; lane < l.cfg.LaneCount; lane++ {
			p := g.laneCenter(l.laneOffset(lane), candidate).Position
			if d := p.Sub(pos).Norm(); d < bestDistance {
				bestDistance = d
				best = candidate
			}
		}
	}
	return best
}

// Progress returns the wrapped parameter change scaled to centre-lane
// distance. Crossing the 0/2π seam counts as a small step, not a lap.
func (l *Loop) Progress(prevT, t float64) float64 {
	delta := t - prevT
	if delta < -math.Pi {
		delta += Circuit
	}
	if delta > math.Pi {
		delta -= Circuit
	}
	g := l.geometry.Load()
	if g == nil {
		return 0
	}
	return delta * g.perimeter / Circuit
}
