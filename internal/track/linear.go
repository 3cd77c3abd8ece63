package track

import (
	"github.com/golang/geo/r2"

	"drivenet/internal/geom"
)

// linearReach clamps the "infinite" corridor borders.
const linearReach = 1_000_000

// Linear is a straight corridor running up the y axis. Its parameter t is
// distance travelled upward, so a lane centre sits at y = -t.
type Linear struct {
	centerX   float64
	width     float64
	laneCount int
	left      float64
	right     float64
	borders   []geom.Segment
}

func NewLinear(centerX, width float64, laneCount int) *Linear {
	left := centerX - width/2
	right := centerX + width/2
	return &Linear{
		centerX:   centerX,
		width:     width,
		laneCount: laneCount,
		left:      left,
		right:     right,
		borders: []geom.Segment{
			{A: r2.Point{X: left, Y: -linearReach}, B: r2.Point{X: left, Y: linearReach}},
			{A: r2.Point{X: right, Y: -linearReach}, B: r2.Point{X: right, Y: linearReach}},
		},
	}
}

func (l *Linear) Kind() Kind { return KindLinear }

func (l *Linear) LaneCount() int { return l.laneCount }

func (l *Linear) StartLane() int { return l.laneCount / 2 }

func (l *Linear) Period() float64 { return 0 }

func (l *Linear) Borders() []geom.Segment { return l.borders }

func (l *Linear) LaneCenter(lane int, t float64) Pose {
	laneWidth := l.width / float64(l.laneCount)
	lane = clampLane(lane, l.laneCount)
	return Pose{
		Position: r2.Point{X: l.left + laneWidth/2 + float64(lane)*laneWidth, Y: -t},
		Heading:  0,
	}
}

func (l *Linear) Locate(pos r2.Point, _ float64) float64 {
	return -pos.Y
}

func (l *Linear) Progress(prevT, t float64) float64 {
	return t - prevT
}

// UpdateDimensions is a no-op: the corridor does not depend on the viewport.
func (l *Linear) UpdateDimensions(_, _ float64) {}
