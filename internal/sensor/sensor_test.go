package sensor

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivenet/internal/geom"
	"drivenet/internal/track"
)

var origin = track.Pose{Position: r2.Point{}, Heading: 0}

func horizontalWall(y float64) geom.Segment {
	return geom.Segment{A: r2.Point{X: -500, Y: y}, B: r2.Point{X: 500, Y: y}}
}

func square(cx, cy, half float64) geom.Polygon {
	return geom.Polygon{
		{X: cx - half, Y: cy - half},
		{X: cx + half, Y: cy - half},
		{X: cx + half, Y: cy + half},
		{X: cx - half, Y: cy + half},
	}
}

func TestRayFanIsSymmetric(t *testing.T) {
	s := New(3, 100, math.Pi/2)
	s.Cast(origin)

	require.Len(t, s.Rays, 3)
	assert.InDelta(t, math.Pi/4, s.RayAngle(0, 0), 1e-12)
	assert.InDelta(t, 0, s.RayAngle(0, 1), 1e-12)
	assert.InDelta(t, -math.Pi/4, s.RayAngle(0, 2), 1e-12)

	assert.InDelta(t, 0, s.Rays[1].B.X, 1e-9)
	assert.InDelta(t, -100, s.Rays[1].B.Y, 1e-9)
	assert.InDelta(t, -s.Rays[0].B.X, s.Rays[2].B.X, 1e-9)
	assert.Less(t, s.Rays[0].B.X, 0.0, "ray 0 sweeps to the left")
}

func TestSingleRayPointsAhead(t *testing.T) {
	s := New(1, 50, math.Pi)
	assert.InDelta(t, 0.3, s.RayAngle(0.3, 0), 1e-12)
}

func TestUpdateKeepsNearestHit(t *testing.T) {
	s := New(3, 100, math.Pi/2)
	walls := []geom.Segment{horizontalWall(-80), horizontalWall(-50)}

	s.Update(origin, walls, nil)
	front := s.Front()
	require.True(t, front.Detected)
	assert.InDelta(t, 0.5, front.Offset, 1e-9)
	assert.InDelta(t, -50, front.Point.Y, 1e-9)

	s.Update(origin, walls, []geom.Polygon{square(0, -25, 5)})
	front = s.Front()
	require.True(t, front.Detected)
	assert.InDelta(t, 0.2, front.Offset, 1e-9)
}

func TestAddingObstaclesNeverLengthensReadings(t *testing.T) {
	s := New(9, 180, DefaultRaySpread)
	pose := track.Pose{Position: r2.Point{X: 10, Y: 5}, Heading: 0.2}
	walls := []geom.Segment{horizontalWall(-120), {A: r2.Point{X: -60, Y: -300}, B: r2.Point{X: -60, Y: 300}}}

	s.Update(pose, walls, nil)
	before := append([]Reading(nil), s.Readings...)

	s.Update(pose, walls, []geom.Polygon{square(30, -40, 12), square(-20, -70, 8)})
	for i, r := range s.Readings {
		if !before[i].Detected {
			continue
		}
		require.True(t, r.Detected, "ray %d lost its hit", i)
		assert.LessOrEqual(t, r.Offset, before[i].Offset, "ray %d", i)
	}
}

func TestProximitiesAndClearance(t *testing.T) {
	s := New(3, 100, math.Pi/2)

	s.Update(origin, nil, nil)
	assert.Equal(t, []float64{0, 0, 0}, s.Proximities())
	_, ok := s.Clearance()
	assert.False(t, ok)

	s.Update(origin, []geom.Segment{horizontalWall(-40)}, nil)
	proximities := s.Proximities()
	require.Len(t, proximities, 3)
	assert.InDelta(t, 0.6, proximities[1], 1e-9)
	for _, p := range proximities {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}

	clearance, ok := s.Clearance()
	require.True(t, ok)
	// Side rays at 45° reach y=-40 after 40·√2 units.
	want := (0.4 + 2*0.4*math.Sqrt2) / 3
	assert.InDelta(t, want, clearance, 1e-9)
}
