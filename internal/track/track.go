package track

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"drivenet/internal/geom"
)

type Kind string

const (
	KindLinear Kind = "linear"
	KindLoop   Kind = "loop"
)

// Circuit is one full lap of the closed-loop track parameter.
const Circuit = 2 * math.Pi

// DefaultHeading faces right along the top straight and is used whenever a
// heading cannot be derived from a direction vector.
const DefaultHeading = -math.Pi / 2

// minDirectionLength is the shortest look-ahead vector a heading is derived from.
const minDirectionLength = 0.001

// Pose is a world position plus a heading. Heading 0 points up (negative y)
// and grows clockwise, so a unit step forward is (-sin h, -cos h).
type Pose struct {
	Position r2.Point
	Heading  float64
}

// Track is the drivable surface shared read-only by every vehicle in a world.
type Track interface {
	Kind() Kind
	LaneCount() int
	// StartLane is the lane learners spawn in.
	StartLane() int
	LaneCenter(lane int, t float64) Pose
	// Borders returns the current immutable boundary set. Callers must not
	// modify the returned slice.
	Borders() []geom.Segment
	// Period is the parameter length of one lap, or 0 for open tracks.
	Period() float64
	// Locate estimates the track parameter closest to pos, searching near hint.
	Locate(pos r2.Point, hint float64) float64
	// Progress converts a parameter change into signed distance along the track.
	Progress(prevT, t float64) float64
	UpdateDimensions(width, height float64)
}

type Options struct {
	CenterX       float64
	Width         float64
	LaneCount     int
	ArcSegments   int
	HeightRatio   float64
	StraightRatio float64
}

func New(kind Kind, opts Options) (Track, error) {
	if opts.LaneCount <= 0 {
		return nil, fmt.Errorf("lane count must be > 0, got %d", opts.LaneCount)
	}
	if opts.Width <= 0 {
		return nil, fmt.Errorf("track width must be > 0, got %f", opts.Width)
	}
	switch kind {
	case KindLinear:
		return NewLinear(opts.CenterX, opts.Width, opts.LaneCount), nil
	case KindLoop:
		return NewLoop(LoopConfig{
			Origin:        r2.Point{X: opts.CenterX},
			Width:         opts.Width,
			LaneCount:     opts.LaneCount,
			ArcSegments:   opts.ArcSegments,
			HeightRatio:   opts.HeightRatio,
			StraightRatio: opts.StraightRatio,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported track kind: %s", kind)
	}
}

// HeadingToward returns the heading that faces from a to b. Vectors too
// short to carry a direction report ok=false.
func HeadingToward(a, b r2.Point) (float64, bool) {
	d := b.Sub(a)
	if d.Norm() <= minDirectionLength {
		return DefaultHeading, false
	}
	return math.Atan2(-d.X, -d.Y), true
}

// Wrap maps t into [0, Circuit).
func Wrap(t float64) float64 {
	t = math.Mod(t, Circuit)
	if t < 0 {
		t += Circuit
	}
	if t >= Circuit {
		t = 0
	}
	return t
}

func clampLane(lane, laneCount int) int {
	if lane < 0 {
		return 0
	}
	if lane >= laneCount {
		return laneCount - 1
	}
	return lane
}
