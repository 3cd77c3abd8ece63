package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"drivenet/internal/evo"
	"drivenet/internal/nn"
	"drivenet/internal/sim"
	"drivenet/internal/track"
	"drivenet/internal/vehicle"
)

// Config holds every tunable of a training run.
type Config struct {
	Track      TrackConfig            `yaml:"track" json:"track"`
	Sensor     sim.SensorConfig       `yaml:"sensor" json:"sensor"`
	Vehicle    VehicleConfig          `yaml:"vehicle" json:"vehicle"`
	Controls   vehicle.ControlConfig  `yaml:"controls" json:"controls"`
	Controller ControllerConfig       `yaml:"controller" json:"controller"`
	Fitness    vehicle.FitnessWeights `yaml:"fitness" json:"fitness"`
	Population PopulationConfig       `yaml:"population" json:"population"`
	Traffic    []sim.TrafficSpec      `yaml:"traffic" json:"traffic"`
	Run        RunConfig              `yaml:"run" json:"run"`
}

type TrackConfig struct {
	Kind           track.Kind `yaml:"kind" json:"kind"`
	CenterX        float64    `yaml:"center_x" json:"center_x"`
	Width          float64    `yaml:"width" json:"width"`
	LaneCount      int        `yaml:"lane_count" json:"lane_count"`
	ArcSegments    int        `yaml:"arc_segments" json:"arc_segments"`
	HeightRatio    float64    `yaml:"height_ratio" json:"height_ratio"`
	StraightRatio  float64    `yaml:"straight_ratio" json:"straight_ratio"`
	ViewportWidth  float64    `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight float64    `yaml:"viewport_height" json:"viewport_height"`
	// SpawnT is the learner start parameter in the start lane.
	SpawnT float64 `yaml:"spawn_t" json:"spawn_t"`
}

// VehicleConfig is the learner footprint plus its physics.
type VehicleConfig struct {
	Width           float64 `yaml:"width" json:"width"`
	Height          float64 `yaml:"height" json:"height"`
	vehicle.Physics `yaml:",inline"`
}

type ControllerConfig struct {
	Hidden     []int  `yaml:"hidden" json:"hidden"`
	Activation string `yaml:"activation" json:"activation"`
}

type PopulationConfig struct {
	Size int `yaml:"size" json:"size"`
	// Selector is strict-max, hysteresis, or leading. Empty picks by track kind.
	Selector         string         `yaml:"selector" json:"selector"`
	HysteresisMargin float64        `yaml:"hysteresis_margin" json:"hysteresis_margin"`
	Seed             evo.SeedPolicy `yaml:"seed" json:"seed"`
}

type RunConfig struct {
	Generations        int    `yaml:"generations" json:"generations"`
	StepsPerGeneration int    `yaml:"steps_per_generation" json:"steps_per_generation"`
	Workers            int    `yaml:"workers" json:"workers"`
	Seed               int64  `yaml:"seed" json:"seed"`
	Store              string `yaml:"store" json:"store"`
	DBPath             string `yaml:"db_path" json:"db_path"`
	ArtifactsDir       string `yaml:"artifacts_dir" json:"artifacts_dir"`
	// Slot names the stored champion. Empty uses the track kind.
	Slot string `yaml:"slot" json:"slot"`
}

// Default returns the stock configuration for a track kind.
func Default(kind track.Kind) *Config {
	cfg := &Config{
		Track: TrackConfig{
			Kind:           track.KindLoop,
			CenterX:        600,
			Width:          200,
			LaneCount:      3,
			ArcSegments:    30,
			HeightRatio:    0.38,
			StraightRatio:  0.48,
			ViewportWidth:  1200,
			ViewportHeight: 800,
			SpawnT:         sim.DefaultSpawnT(track.KindLoop),
		},
		Sensor: sim.DefaultSensorConfig(),
		Vehicle: VehicleConfig{
			Width:   28,
			Height:  50,
			Physics: vehicle.DefaultPhysics(),
		},
		Controls: vehicle.DefaultControlConfig(),
		Controller: ControllerConfig{
			Hidden:     []int{16, 10},
			Activation: nn.DefaultActivation,
		},
		Fitness: vehicle.DefaultFitnessWeights(),
		Population: PopulationConfig{
			Size:             50,
			HysteresisMargin: evo.DefaultHysteresisMargin,
			Seed:             evo.DefaultSeedPolicy(),
		},
		Traffic: sim.DefaultTraffic(track.KindLoop),
		Run: RunConfig{
			Generations:        10,
			StepsPerGeneration: 3000,
			Workers:            runtime.NumCPU(),
			Seed:               1,
			Store:              "sqlite",
			DBPath:             "drivenet.db",
			ArtifactsDir:       "runs",
		},
	}
	if kind == track.KindLinear {
		cfg.Track.Kind = track.KindLinear
		cfg.Track.CenterX = 100
		cfg.Track.SpawnT = sim.DefaultSpawnT(track.KindLinear)
		cfg.Vehicle.MaxSpeed = 3
		cfg.Population.Size = 1000
		cfg.Traffic = sim.DefaultTraffic(track.KindLinear)
		cfg.Run.StepsPerGeneration = 2000
	}
	return cfg
}

// Load reads a YAML file and overlays it on the defaults for the track kind
// it names. Sequences in the file replace the defaults wholesale.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var head struct {
		Track struct {
			Kind track.Kind `yaml:"kind"`
		} `yaml:"track"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	kind := head.Track.Kind
	if kind == "" {
		kind = track.KindLoop
	}

	cfg := Default(kind)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Topology is the controller neuron count per level, inputs first.
func (c *Config) Topology() []int {
	counts := []int{c.Sensor.RayCount + 2}
	counts = append(counts, c.Controller.Hidden...)
	return append(counts, vehicle.ControlOutputs)
}

func (c *Config) ChampionSlot() string {
	if c.Run.Slot != "" {
		return c.Run.Slot
	}
	return string(c.Track.Kind)
}

func (c *Config) TrackOptions() track.Options {
	return track.Options{
		CenterX:       c.Track.CenterX,
		Width:         c.Track.Width,
		LaneCount:     c.Track.LaneCount,
		ArcSegments:   c.Track.ArcSegments,
		HeightRatio:   c.Track.HeightRatio,
		StraightRatio: c.Track.StraightRatio,
	}
}

func (c *Config) LearnerConfig() vehicle.LearnerConfig {
	return vehicle.LearnerConfig{
		Width:    c.Vehicle.Width,
		Height:   c.Vehicle.Height,
		Physics:  c.Vehicle.Physics,
		Controls: c.Controls,
		Fitness:  c.Fitness,
	}
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Track.Kind {
	case track.KindLinear, track.KindLoop:
	default:
		add("track.kind must be %q or %q, got %q", track.KindLinear, track.KindLoop, c.Track.Kind)
	}
	if c.Track.Width <= 0 {
		add("track.width must be > 0")
	}
	if c.Track.LaneCount <= 0 {
		add("track.lane_count must be > 0")
	}
	if c.Track.Kind == track.KindLoop {
		if c.Track.ViewportWidth <= 0 || c.Track.ViewportHeight <= 0 {
			add("track.viewport_width and track.viewport_height must be > 0 for a loop")
		}
		if c.Track.HeightRatio*c.Track.ViewportHeight <= c.Track.Width/2 {
			add("track.height_ratio leaves no room for the inner border")
		}
	}

	if c.Sensor.RayCount <= 0 {
		add("sensor.ray_count must be > 0")
	}
	if c.Sensor.RayLength <= 0 {
		add("sensor.ray_length must be > 0")
	}
	if c.Sensor.RaySpread < 0 {
		add("sensor.ray_spread must be >= 0")
	}

	if c.Vehicle.Width <= 0 || c.Vehicle.Height <= 0 {
		add("vehicle.width and vehicle.height must be > 0")
	}
	if c.Vehicle.MaxSpeed <= 0 {
		add("vehicle.max_speed must be > 0")
	}
	if c.Vehicle.Acceleration <= 0 {
		add("vehicle.acceleration must be > 0")
	}
	if c.Vehicle.Friction < 0 {
		add("vehicle.friction must be >= 0")
	}

	if c.Controls.Smoothing < 0 || c.Controls.Smoothing >= 1 {
		add("controls.smoothing must be within [0, 1)")
	}

	for i, h := range c.Controller.Hidden {
		if h <= 0 {
			add("controller.hidden[%d] must be > 0", i)
		}
	}
	if _, err := nn.GetActivation(c.Controller.Activation); err != nil {
		add("controller.activation: %w (available: %v)", err, nn.ListActivations())
	}

	if err := c.Fitness.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Population.Size <= 0 {
		add("population.size must be > 0")
	}
	if c.Population.HysteresisMargin < 0 {
		add("population.hysteresis_margin must be >= 0")
	}
	if _, err := evo.NewSelector(c.Population.Selector, c.Track.Kind, c.Population.HysteresisMargin); err != nil {
		add("population.selector: %w (available: %v)", err, evo.ListSelectors())
	}
	if err := c.Population.Seed.Validate(); err != nil {
		errs = append(errs, err)
	}

	for i, spec := range c.Traffic {
		if spec.Lane < 0 || spec.Lane >= c.Track.LaneCount {
			add("traffic[%d].lane %d outside [0, %d)", i, spec.Lane, c.Track.LaneCount)
		}
		if spec.Width <= 0 || spec.Height <= 0 {
			add("traffic[%d] footprint must be > 0", i)
		}
	}

	if c.Run.Generations <= 0 {
		add("run.generations must be > 0")
	}
	if c.Run.StepsPerGeneration <= 0 {
		add("run.steps_per_generation must be > 0")
	}
	switch c.Run.Store {
	case "", "memory", "sqlite":
	default:
		add("run.store must be memory or sqlite, got %q", c.Run.Store)
	}
	if c.Run.Store == "sqlite" && c.Run.DBPath == "" {
		add("run.db_path is required for the sqlite store")
	}

	return errors.Join(errs...)
}
