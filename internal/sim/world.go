package sim

import (
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"drivenet/internal/evo"
	"drivenet/internal/geom"
	"drivenet/internal/nn"
	"drivenet/internal/sensor"
	"drivenet/internal/track"
	"drivenet/internal/vehicle"
)

type SensorConfig struct {
	RayCount  int     `json:"ray_count" yaml:"ray_count"`
	RayLength float64 `json:"ray_length" yaml:"ray_length"`
	RaySpread float64 `json:"ray_spread" yaml:"ray_spread"`
}

func DefaultSensorConfig() SensorConfig {
	return SensorConfig{
		RayCount:  sensor.DefaultRayCount,
		RayLength: sensor.DefaultRayLength,
		RaySpread: sensor.DefaultRaySpread,
	}
}

type Config struct {
	Track   track.Track
	Sensor  SensorConfig
	Learner vehicle.LearnerConfig
	Traffic []TrafficSpec
	// SpawnT is the track parameter learners start at, in the start lane.
	SpawnT   float64
	Selector evo.Selector
	// Workers bounds concurrent learner evaluation; <= 1 is sequential.
	Workers int
}

// World is one generation's simulation context: the shared track, the
// traffic, and the learner population.
type World struct {
	Track      track.Track
	Traffic    []*vehicle.Scripted
	Population *evo.Population
	Workers    int

	steps int
}

// NewWorld spawns one learner per controller at the shared start pose.
func NewWorld(cfg Config, brains []*nn.Network) (*World, error) {
	if cfg.Track == nil {
		return nil, errors.New("track is required")
	}
	if len(brains) == 0 {
		return nil, errors.New("at least one controller is required")
	}

	spawn := cfg.Track.LaneCenter(cfg.Track.StartLane(), cfg.SpawnT)
	learners := make([]*vehicle.Learner, len(brains))
	for i, brain := range brains {
		s := sensor.New(cfg.Sensor.RayCount, cfg.Sensor.RayLength, cfg.Sensor.RaySpread)
		l, err := vehicle.NewLearner(spawn, cfg.Learner, s, brain)
		if err != nil {
			return nil, fmt.Errorf("learner %d: %w", i, err)
		}
		l.TrackT = cfg.SpawnT
		learners[i] = l
	}

	pop, err := evo.NewPopulation(learners, cfg.Selector)
	if err != nil {
		return nil, err
	}
	return &World{
		Track:      cfg.Track,
		Traffic:    BuildTraffic(cfg.Track, cfg.Traffic),
		Population: pop,
		Workers:    cfg.Workers,
	}, nil
}

func (w *World) Steps() int { return w.steps }

// Done reports whether every learner is damaged.
func (w *World) Done() bool {
	return w.Population.Survivors() == 0
}

// Step advances the world once and returns the retained best learner.
func (w *World) Step() (*vehicle.Learner, error) {
	best, err := Advance(w.Track, w.Traffic, w.Population, w.Workers)
	if err != nil {
		return nil, err
	}
	w.steps++
	return best, nil
}

// Advance moves every traffic car, then every learner against the updated
// traffic polygons, then re-selects the best learner. Learners only write
// their own state, so they are evaluated concurrently when workers > 1.
func Advance(tr track.Track, traffic []*vehicle.Scripted, pop *evo.Population, workers int) (*vehicle.Learner, error) {
	for _, car := range traffic {
		car.Step(tr)
	}
	obstacles := make([]geom.Polygon, len(traffic))
	for i, car := range traffic {
		obstacles[i] = car.Polygon
	}

	if workers <= 1 {
		for i, l := range pop.Learners {
			if err := l.Step(tr, obstacles); err != nil {
				return nil, fmt.Errorf("learner %d: %w", i, err)
			}
		}
	} else {
		var g errgroup.Group
		g.SetLimit(workers)
		for i, l := range pop.Learners {
			i, l := i, l
			g.Go(func() error {
				if err := l.Step(tr, obstacles); err != nil {
					return fmt.Errorf("learner %d: %w", i, err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	return pop.UpdateBest(), nil
}
