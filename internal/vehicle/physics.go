package vehicle

import "math"

// Physics holds the point-mass kinematics parameters of a controller-driven
// vehicle. There is no slip or mass model.
type Physics struct {
	MaxSpeed     float64 `json:"max_speed" yaml:"max_speed"`
	Acceleration float64 `json:"acceleration" yaml:"acceleration"`
	Friction     float64 `json:"friction" yaml:"friction"`
	// TurnRate is the heading change per step at full steering and speed.
	TurnRate float64 `json:"turn_rate" yaml:"turn_rate"`
	// StallSpeed replaces any speed that friction would bring to rest.
	StallSpeed float64 `json:"stall_speed" yaml:"stall_speed"`
	// MinSpeed is the forward floor applied when AllowReverse is false.
	MinSpeed     float64 `json:"min_speed" yaml:"min_speed"`
	AllowReverse bool    `json:"allow_reverse" yaml:"allow_reverse"`
}

func DefaultPhysics() Physics {
	return Physics{
		MaxSpeed:     2.9,
		Acceleration: 0.17,
		Friction:     0.05,
		TurnRate:     0.02,
		StallSpeed:   0.4,
		MinSpeed:     0.2,
	}
}

// Integrate advances b by one step under controls c.
func (p Physics) Integrate(b *Body, c Controls) {
	b.Speed += p.Acceleration * c.Forward
	b.Speed -= p.Acceleration * c.Reverse

	if b.Speed > p.MaxSpeed {
		b.Speed = p.MaxSpeed
	}
	if b.Speed < -p.MaxSpeed/2 {
		b.Speed = -p.MaxSpeed / 2
	}

	if b.Speed > 0 {
		b.Speed -= p.Friction
	} else if b.Speed < 0 {
		b.Speed += p.Friction
	}
	if math.Abs(b.Speed) < p.Friction {
		b.Speed = p.StallSpeed
	}
	if !p.AllowReverse && b.Speed < p.MinSpeed {
		b.Speed = p.MinSpeed
	}

	if b.Speed != 0 {
		flip := 1.0
		if b.Speed < 0 {
			flip = -1
		}
		rate := p.TurnRate * math.Min(math.Abs(b.Speed)/p.MaxSpeed+0.3, 1)
		b.Heading += rate * flip * c.Left
		b.Heading -= rate * flip * c.Right
	}

	b.Position.X -= math.Sin(b.Heading) * b.Speed
	b.Position.Y -= math.Cos(b.Heading) * b.Speed
}
