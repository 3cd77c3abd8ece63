package vehicle

import (
	"math"

	"drivenet/internal/sensor"
)

// Controls are the actuation signals applied by Physics.Integrate.
type Controls struct {
	Forward float64 `json:"forward"`
	Left    float64 `json:"left"`
	Right   float64 `json:"right"`
	Reverse float64 `json:"reverse"`
}

// ControlConfig shapes raw controller outputs into Controls.
type ControlConfig struct {
	// Smoothing is the weight kept from the previous step's signal.
	Smoothing        float64 `json:"smoothing" yaml:"smoothing"`
	ForwardFloor     float64 `json:"forward_floor" yaml:"forward_floor"`
	ReverseThreshold float64 `json:"reverse_threshold" yaml:"reverse_threshold"`

	ConflictThreshold float64 `json:"conflict_threshold" yaml:"conflict_threshold"`
	ConflictMargin    float64 `json:"conflict_margin" yaml:"conflict_margin"`
	TieDamping        float64 `json:"tie_damping" yaml:"tie_damping"`
	WeakDamping       float64 `json:"weak_damping" yaml:"weak_damping"`
	StrongCap         float64 `json:"strong_cap" yaml:"strong_cap"`

	CruiseForward float64 `json:"cruise_forward" yaml:"cruise_forward"`
	CruiseSpeed   float64 `json:"cruise_speed" yaml:"cruise_speed"`

	RecoverySpeed    float64 `json:"recovery_speed" yaml:"recovery_speed"`
	RecoveryForward  float64 `json:"recovery_forward" yaml:"recovery_forward"`
	FrontClearOffset float64 `json:"front_clear_offset" yaml:"front_clear_offset"`
}

func DefaultControlConfig() ControlConfig {
	return ControlConfig{
		Smoothing:         0.7,
		ForwardFloor:      0.2,
		ReverseThreshold:  0.8,
		ConflictThreshold: 0.2,
		ConflictMargin:    0.15,
		TieDamping:        0.5,
		WeakDamping:       0.3,
		StrongCap:         0.9,
		CruiseForward:     0.6,
		CruiseSpeed:       1.5,
		RecoverySpeed:     0.3,
		RecoveryForward:   0.6,
		FrontClearOffset:  0.4,
	}
}

// Decoder turns the four raw controller outputs into Controls, carrying the
// smoothed signals from one step to the next.
type Decoder struct {
	cfg     ControlConfig
	current Controls
}

func NewDecoder(cfg ControlConfig) *Decoder {
	return &Decoder{cfg: cfg}
}

func (d *Decoder) Current() Controls { return d.current }

// Decode expects raw = (forward, left, right, reverse) in [-1, 1].
func (d *Decoder) Decode(raw []float64, speed float64, front sensor.Reading) Controls {
	cfg := d.cfg
	target := Controls{
		Forward: math.Max(cfg.ForwardFloor, (raw[0]+1)/2),
		Left:    math.Max(0, raw[1]),
		Right:   math.Max(0, raw[2]),
		Reverse: math.Max(0, (raw[3]+1)/2-cfg.ReverseThreshold),
	}

	c := Controls{
		Forward: d.smooth(d.current.Forward, target.Forward),
		Left:    d.smooth(d.current.Left, target.Left),
		Right:   d.smooth(d.current.Right, target.Right),
		Reverse: d.smooth(d.current.Reverse, target.Reverse),
	}

	if c.Left > cfg.ConflictThreshold && c.Right > cfg.ConflictThreshold {
		switch {
		case math.Abs(c.Left-c.Right) < cfg.ConflictMargin:
			c.Left *= cfg.TieDamping
			c.Right *= cfg.TieDamping
		case c.Left > c.Right:
			c.Right *= cfg.WeakDamping
			c.Left = math.Min(c.Left, cfg.StrongCap)
		default:
			c.Left *= cfg.WeakDamping
			c.Right = math.Min(c.Right, cfg.StrongCap)
		}
	}

	if c.Forward > cfg.CruiseForward && speed > cfg.CruiseSpeed {
		c.Reverse = 0
	}

	if speed < cfg.RecoverySpeed && (!front.Detected || front.Offset > cfg.FrontClearOffset) {
		c.Forward = math.Max(c.Forward, cfg.RecoveryForward)
		c.Reverse = 0
	}

	d.current = c
	return c
}

// smooth blends toward target. A channel that was exactly zero jumps
// straight to the new target.
func (d *Decoder) smooth(prev, target float64) float64 {
	if prev == 0 {
		return target
	}
	return prev*d.cfg.Smoothing + target*(1-d.cfg.Smoothing)
}
