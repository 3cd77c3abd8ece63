package vehicle

import (
	"errors"
	"fmt"

	"drivenet/internal/geom"
	"drivenet/internal/nn"
	"drivenet/internal/sensor"
	"drivenet/internal/track"
)

// ControlOutputs is the number of controller outputs: forward, left, right, reverse.
const ControlOutputs = 4

// kinematicInputs are the controller inputs appended after the ray proximities.
const kinematicInputs = 2

var (
	ErrControllerInputs  = errors.New("controller input count must equal ray count + 2")
	ErrControllerOutputs = errors.New("controller must have 4 outputs")
)

type LearnerConfig struct {
	Width    float64
	Height   float64
	Physics  Physics
	Controls ControlConfig
	Fitness  FitnessWeights
}

// Learner is a vehicle driven by its own controller network.
type Learner struct {
	Body
	Sensor  *sensor.Sensor
	Brain   *nn.Network
	Physics Physics
	Weights FitnessWeights
	Tracker Tracker
	// TrackT is the last located track parameter. Set it to the spawn
	// parameter before the first Step; the first lookup searches around it.
	TrackT float64

	decoder  *Decoder
	anchored bool
}

func NewLearner(pose track.Pose, cfg LearnerConfig, s *sensor.Sensor, brain *nn.Network) (*Learner, error) {
	if s == nil || brain == nil {
		return nil, errors.New("learner requires a sensor and a controller")
	}
	if brain.InputCount() != s.RayCount+kinematicInputs {
		return nil, fmt.Errorf("%w: rays=%d inputs=%d", ErrControllerInputs, s.RayCount, brain.InputCount())
	}
	if brain.OutputCount() != ControlOutputs {
		return nil, fmt.Errorf("%w: got %d", ErrControllerOutputs, brain.OutputCount())
	}
	l := &Learner{
		Body: Body{
			Position: pose.Position,
			Heading:  pose.Heading,
			Width:    cfg.Width,
			Height:   cfg.Height,
		},
		Sensor:  s,
		Brain:   brain,
		Physics: cfg.Physics,
		Weights: cfg.Fitness,
		decoder: NewDecoder(cfg.Controls),
	}
	l.UpdatePolygon()
	s.Cast(pose)
	return l, nil
}

func (l *Learner) Fitness() float64 { return l.Tracker.Fitness }

// Inputs builds the controller input vector from the latest sensor readings.
func (l *Learner) Inputs() []float64 {
	inputs := l.Sensor.Proximities()
	return append(inputs,
		l.Speed/l.Physics.MaxSpeed,
		track.Wrap(l.Heading)/track.Circuit,
	)
}

// Step runs one learner step against the current traffic polygons:
// sense, evaluate, decode, integrate, check damage, then score. A damaged
// learner only senses.
func (l *Learner) Step(tr track.Track, obstacles []geom.Polygon) error {
	borders := tr.Borders()
	l.Sensor.Update(l.Pose(), borders, obstacles)
	if l.Damaged {
		return nil
	}
	if !l.anchored {
		l.TrackT = tr.Locate(l.Position, l.TrackT)
		l.anchored = true
	}

	outputs, err := l.Brain.Forward(l.Inputs())
	if err != nil {
		return err
	}
	controls := l.decoder.Decode(outputs, l.Speed, l.Sensor.Front())

	prev := l.Position
	l.Physics.Integrate(&l.Body, controls)
	l.UpdatePolygon()
	if l.collides(borders, obstacles) {
		l.Damaged = true
		return nil
	}

	prevT := l.TrackT
	l.TrackT = tr.Locate(l.Position, prevT)
	clearance, ok := l.Sensor.Clearance()
	l.Tracker.Observe(Sample{
		Moved:        l.Position.Sub(prev).Norm(),
		Progress:     tr.Progress(prevT, l.TrackT),
		Speed:        l.Speed,
		Controls:     controls,
		Clearance:    clearance,
		HasClearance: ok,
	}, l.Weights)
	return nil
}
