package vehicle

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivenet/internal/geom"
	"drivenet/internal/model"
	"drivenet/internal/nn"
	"drivenet/internal/sensor"
	"drivenet/internal/track"
)

func defaultLearnerConfig() LearnerConfig {
	return LearnerConfig{
		Width:    28,
		Height:   50,
		Physics:  DefaultPhysics(),
		Controls: DefaultControlConfig(),
		Fitness:  DefaultFitnessWeights(),
	}
}

// constantNetwork ignores its inputs and always emits tanh(outputBiases).
func constantNetwork(t *testing.T, counts []int, outputBiases []float64) *nn.Network {
	t.Helper()
	snapshot := model.Network{}
	for i := 0; i+1 < len(counts); i++ {
		weights := make([][]float64, counts[i])
		for r := range weights {
			weights[r] = make([]float64, counts[i+1])
		}
		biases := make([]float64, counts[i+1])
		if i+2 == len(counts) {
			copy(biases, outputBiases)
		}
		snapshot.Layers = append(snapshot.Layers, model.Layer{Weights: weights, Biases: biases, Activation: "tanh"})
	}
	n, err := nn.FromSnapshot(snapshot)
	require.NoError(t, err)
	return n
}

func fullThrottle(t *testing.T) *nn.Network {
	return constantNetwork(t, []int{sensor.DefaultRayCount + 2, 16, 10, 4}, []float64{10, 0, 0, -10})
}

func newDefaultSensor() *sensor.Sensor {
	return sensor.New(sensor.DefaultRayCount, sensor.DefaultRayLength, sensor.DefaultRaySpread)
}

func TestFootprintIsRotatedRectangle(t *testing.T) {
	poly := Footprint(track.Pose{Position: r2.Point{X: 10, Y: 20}}, 28, 50)
	require.Len(t, poly, 4)

	rad := math.Hypot(28, 50) / 1.5
	for _, p := range poly {
		assert.InDelta(t, rad, p.Sub(r2.Point{X: 10, Y: 20}).Norm(), 1e-9)
	}
	// Heading 0 faces up: the first two corners are the front edge.
	assert.Less(t, poly[0].Y, 20.0)
	assert.Less(t, poly[1].Y, 20.0)
	assert.InDelta(t, poly[0].Y, poly[1].Y, 1e-9)
	assert.InDelta(t, poly[0].X-10, -(poly[1].X - 10), 1e-9)

	turned := Footprint(track.Pose{Position: r2.Point{X: 10, Y: 20}, Heading: math.Pi}, 28, 50)
	assert.InDelta(t, poly[0].X, turned[2].X, 1e-9)
	assert.InDelta(t, poly[0].Y, turned[2].Y, 1e-9)
}

func TestIntegrate(t *testing.T) {
	p := DefaultPhysics()

	t.Run("forward floor from rest", func(t *testing.T) {
		b := &Body{}
		p.Integrate(b, Controls{Forward: 1})
		assert.InDelta(t, p.MinSpeed, b.Speed, 1e-12)
		assert.InDelta(t, -p.MinSpeed, b.Position.Y, 1e-12)
		assert.InDelta(t, 0, b.Position.X, 1e-12)
	})

	t.Run("stall replaced by stall speed", func(t *testing.T) {
		b := &Body{Speed: 0.03}
		p.Integrate(b, Controls{})
		assert.InDelta(t, p.StallSpeed, b.Speed, 1e-12)
	})

	t.Run("max speed clamp before friction", func(t *testing.T) {
		b := &Body{Speed: p.MaxSpeed}
		p.Integrate(b, Controls{Forward: 1})
		assert.InDelta(t, p.MaxSpeed-p.Friction, b.Speed, 1e-12)
	})

	t.Run("reverse allowed", func(t *testing.T) {
		rp := p
		rp.AllowReverse = true
		b := &Body{}
		rp.Integrate(b, Controls{Reverse: 1})
		assert.InDelta(t, -rp.Acceleration+rp.Friction, b.Speed, 1e-12)
		assert.Greater(t, b.Position.Y, 0.0)

		for i := 0; i < 100; i++ {
			rp.Integrate(b, Controls{Reverse: 1})
		}
		assert.InDelta(t, -rp.MaxSpeed/2+rp.Friction, b.Speed, 1e-12)
	})

	t.Run("turn scales with speed", func(t *testing.T) {
		slow := &Body{Speed: 0.5}
		fast := &Body{Speed: 2.5}
		p.Integrate(slow, Controls{Left: 1})
		p.Integrate(fast, Controls{Left: 1})
		assert.Greater(t, slow.Heading, 0.0)
		assert.Greater(t, fast.Heading, slow.Heading)
		assert.LessOrEqual(t, fast.Heading, p.TurnRate+1e-12)
	})
}

func TestDecoder(t *testing.T) {
	clear := sensor.Reading{}
	blocked := sensor.Reading{Detected: true, Offset: 0.2}

	t.Run("near tie damps both sides", func(t *testing.T) {
		d := NewDecoder(DefaultControlConfig())
		c := d.Decode([]float64{1, 0.8, 0.75, -1}, 2, clear)
		assert.InDelta(t, 1, c.Forward, 1e-12)
		assert.InDelta(t, 0.4, c.Left, 1e-12)
		assert.InDelta(t, 0.375, c.Right, 1e-12)
		assert.Zero(t, c.Reverse)
	})

	t.Run("clear winner keeps capped side", func(t *testing.T) {
		d := NewDecoder(DefaultControlConfig())
		c := d.Decode([]float64{0, 0.95, 0.3, -1}, 2, clear)
		assert.InDelta(t, 0.9, c.Left, 1e-12)
		assert.InDelta(t, 0.09, c.Right, 1e-12)
	})

	t.Run("smoothing blends with previous step", func(t *testing.T) {
		d := NewDecoder(DefaultControlConfig())
		d.Decode([]float64{1, 0, 0, -1}, 2, clear)
		c := d.Decode([]float64{0, 0, 0, -1}, 2, clear)
		assert.InDelta(t, 1*0.7+0.5*0.3, c.Forward, 1e-12)
		assert.Equal(t, c, d.Current())
	})

	t.Run("reverse needs a high activation", func(t *testing.T) {
		d := NewDecoder(DefaultControlConfig())
		c := d.Decode([]float64{-1, 0, 0, 0.5}, 1, clear)
		assert.Zero(t, c.Reverse)

		d = NewDecoder(DefaultControlConfig())
		c = d.Decode([]float64{-1, 0, 0, 1}, 1, clear)
		assert.InDelta(t, 0.2, c.Reverse, 1e-12)
	})

	t.Run("cruise clears reverse", func(t *testing.T) {
		d := NewDecoder(DefaultControlConfig())
		c := d.Decode([]float64{1, 0, 0, 1}, 2, clear)
		assert.Zero(t, c.Reverse)
	})

	t.Run("low speed recovery only when front is clear", func(t *testing.T) {
		d := NewDecoder(DefaultControlConfig())
		c := d.Decode([]float64{-1, 0, 0, 1}, 0.1, blocked)
		assert.InDelta(t, 0.2, c.Forward, 1e-12)
		assert.InDelta(t, 0.2, c.Reverse, 1e-12)

		d = NewDecoder(DefaultControlConfig())
		c = d.Decode([]float64{-1, 0, 0, 1}, 0.1, clear)
		assert.InDelta(t, 0.6, c.Forward, 1e-12)
		assert.Zero(t, c.Reverse)
	})
}

func TestNewLearnerRejectsMismatchedController(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	brain, err := nn.New(rng, "", 7, 4)
	require.NoError(t, err)
	_, err = NewLearner(track.Pose{}, defaultLearnerConfig(), newDefaultSensor(), brain)
	assert.ErrorIs(t, err, ErrControllerInputs)

	brain, err = nn.New(rng, "", 11, 3)
	require.NoError(t, err)
	_, err = NewLearner(track.Pose{}, defaultLearnerConfig(), newDefaultSensor(), brain)
	assert.ErrorIs(t, err, ErrControllerOutputs)
}

func TestLearnerInputs(t *testing.T) {
	l, err := NewLearner(track.Pose{Heading: -math.Pi / 2}, defaultLearnerConfig(), newDefaultSensor(), fullThrottle(t))
	require.NoError(t, err)
	l.Speed = 1.45

	inputs := l.Inputs()
	require.Len(t, inputs, sensor.DefaultRayCount+2)
	assert.InDelta(t, 0.5, inputs[sensor.DefaultRayCount], 1e-12)
	assert.InDelta(t, 0.75, inputs[sensor.DefaultRayCount+1], 1e-12)
}

func TestDamageIsSticky(t *testing.T) {
	road := track.NewLinear(100, 90, 3)
	// Half the footprint width is ~18.7, so x=60 overlaps the left border at 55.
	l, err := NewLearner(track.Pose{Position: r2.Point{X: 60, Y: 100}}, defaultLearnerConfig(), newDefaultSensor(), fullThrottle(t))
	require.NoError(t, err)

	require.NoError(t, l.Step(road, nil))
	require.True(t, l.Damaged)
	frozen := l.Body
	fitness := l.Fitness()

	for i := 0; i < 20; i++ {
		require.NoError(t, l.Step(road, nil))
		assert.True(t, l.Damaged)
		assert.Equal(t, frozen.Position, l.Position)
		assert.Equal(t, frozen.Heading, l.Heading)
		assert.Equal(t, frozen.Speed, l.Speed)
		assert.Equal(t, fitness, l.Fitness())
	}
}

func TestForwardProgressOutscoresReversing(t *testing.T) {
	w := DefaultFitnessWeights()
	require.NoError(t, w.Validate())

	var forward, reversing, idle Tracker
	for i := 0; i < 50; i++ {
		common := Sample{Moved: 2, Speed: 2, Controls: Controls{Forward: 1}}
		f := common
		f.Progress = 2
		r := common
		r.Progress = -2
		forward.Observe(f, w)
		reversing.Observe(r, w)
		idle.Observe(common, w)
	}
	assert.Greater(t, forward.Fitness, idle.Fitness)
	assert.Greater(t, idle.Fitness, reversing.Fitness)
	assert.InDelta(t, 100, forward.Progress(), 1e-9)
	assert.InDelta(t, -100, reversing.Progress(), 1e-9)
}

func TestFitnessWeightsValidate(t *testing.T) {
	w := DefaultFitnessWeights()
	w.BackwardProgress = w.Distance
	assert.Error(t, w.Validate())

	w = DefaultFitnessWeights()
	w.ForwardProgress = 0
	assert.Error(t, w.Validate())
}

func TestScriptedFollowsLoopAndWraps(t *testing.T) {
	loop := track.NewLoop(track.LoopConfig{Width: 200, LaneCount: 3})
	loop.UpdateDimensions(1200, 800)

	car := NewScripted(loop, 0, track.Circuit-0.002, 0.004, 30, 50)
	car.Step(loop)
	assert.InDelta(t, 0.002, car.T, 1e-12)
	assert.Equal(t, loop.LaneCenter(0, car.T).Position, car.Position)
	assert.InDelta(t, loop.LaneCenter(0, car.T).Heading, car.Heading, 1e-2)
	assert.Len(t, car.Polygon, 4)

	for i := 0; i < 2000; i++ {
		car.Step(loop)
		require.False(t, car.Damaged)
		require.GreaterOrEqual(t, car.T, 0.0)
		require.LessOrEqual(t, car.T, track.Circuit)
	}
}

func TestScriptedSpeedIsWorldDistancePerStep(t *testing.T) {
	loop := track.NewLoop(track.LoopConfig{Width: 200, LaneCount: 3})
	loop.UpdateDimensions(1200, 800)

	const steps = 1000
	car := NewScripted(loop, 1, 0, track.Circuit/steps, 30, 50)
	assert.InDelta(t, loop.Progress(0, car.TrackSpeed), car.Speed, 1e-12)

	// Over one lap of the centre lane the distance moved matches the
	// reported speed summed over every step.
	moved := 0.0
	for i := 0; i < steps; i++ {
		prev := car.Position
		car.Step(loop)
		moved += car.Position.Sub(prev).Norm()
	}
	assert.InEpsilon(t, car.Speed*steps, moved, 0.01)

	road := track.NewLinear(100, 90, 3)
	straight := NewScripted(road, 1, 20, 0.5, 30, 50)
	assert.Equal(t, 0.5, straight.Speed)
	prev := straight.Position
	straight.Step(road)
	assert.InDelta(t, straight.Speed, straight.Position.Sub(prev).Norm(), 1e-12)
}

func TestStraightTrackRearEndScenario(t *testing.T) {
	road := track.NewLinear(100, 90, 3)
	traffic := NewScripted(road, 1, 20, 0.1, 30, 50)
	learner, err := NewLearner(road.LaneCenter(1, -100), defaultLearnerConfig(), newDefaultSensor(), fullThrottle(t))
	require.NoError(t, err)

	var offsets []float64
	damagedAt := -1
	for step := 0; step < 400 && damagedAt < 0; step++ {
		traffic.Step(road)
		overlapBefore := geom.PolygonsOverlap(learner.Polygon, traffic.Polygon)
		require.False(t, overlapBefore, "step %d: overlap before damage", step)

		require.NoError(t, learner.Step(road, []geom.Polygon{traffic.Polygon}))
		front := learner.Sensor.Front()
		require.True(t, front.Detected, "step %d: front ray lost the car ahead", step)
		offsets = append(offsets, front.Offset)

		if learner.Damaged {
			damagedAt = step
			assert.True(t, geom.PolygonsOverlap(learner.Polygon, traffic.Polygon))
		}
	}
	require.GreaterOrEqual(t, damagedAt, 0, "learner never reached the car ahead")

	for i := 1; i < len(offsets); i++ {
		assert.Less(t, offsets[i], offsets[i-1], "offset did not shrink at step %d", i)
	}
	assert.InDelta(t, 100, learner.Position.X, 1e-9)
	assert.Greater(t, learner.Tracker.Forward, 0.0)
	assert.Zero(t, learner.Tracker.Backward)
}
