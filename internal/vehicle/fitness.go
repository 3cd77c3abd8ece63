package vehicle

import (
	"errors"
	"math"
)

// FitnessWeights are the reward-shaping coefficients. Distance and progress
// weights are per world unit; the rest are per-step bonuses or penalties.
type FitnessWeights struct {
	Survival         float64 `json:"survival" yaml:"survival"`
	Distance         float64 `json:"distance" yaml:"distance"`
	ForwardProgress  float64 `json:"forward_progress" yaml:"forward_progress"`
	BackwardProgress float64 `json:"backward_progress" yaml:"backward_progress"`

	SpeedReward    float64 `json:"speed_reward" yaml:"speed_reward"`
	ReversePenalty float64 `json:"reverse_penalty" yaml:"reverse_penalty"`

	SpeedBandMin   float64 `json:"speed_band_min" yaml:"speed_band_min"`
	SpeedBandMax   float64 `json:"speed_band_max" yaml:"speed_band_max"`
	SpeedBandBonus float64 `json:"speed_band_bonus" yaml:"speed_band_bonus"`

	MovingSpeed  float64 `json:"moving_speed" yaml:"moving_speed"`
	MovingBonus  float64 `json:"moving_bonus" yaml:"moving_bonus"`
	StallPenalty float64 `json:"stall_penalty" yaml:"stall_penalty"`

	SmoothTurnBelow  float64 `json:"smooth_turn_below" yaml:"smooth_turn_below"`
	SmoothTurnBonus  float64 `json:"smooth_turn_bonus" yaml:"smooth_turn_bonus"`
	SharpTurnAbove   float64 `json:"sharp_turn_above" yaml:"sharp_turn_above"`
	SharpTurnPenalty float64 `json:"sharp_turn_penalty" yaml:"sharp_turn_penalty"`

	SafeClearance float64 `json:"safe_clearance" yaml:"safe_clearance"`
	SafetyBonus   float64 `json:"safety_bonus" yaml:"safety_bonus"`
}

func DefaultFitnessWeights() FitnessWeights {
	return FitnessWeights{
		Survival:         3,
		Distance:         6,
		ForwardProgress:  24,
		BackwardProgress: 36,
		SpeedReward:      8,
		ReversePenalty:   100,
		SpeedBandMin:     1.2,
		SpeedBandMax:     2.6,
		SpeedBandBonus:   25,
		MovingSpeed:      0.5,
		MovingBonus:      20,
		StallPenalty:     15,
		SmoothTurnBelow:  0.3,
		SmoothTurnBonus:  5,
		SharpTurnAbove:   0.6,
		SharpTurnPenalty: 10,
		SafeClearance:    0.3,
		SafetyBonus:      10,
	}
}

// Validate enforces that reversing over some distance always scores below
// standing still, and forward progress scores above it.
func (w FitnessWeights) Validate() error {
	var errs []error
	if w.ForwardProgress <= 0 {
		errs = append(errs, errors.New("fitness.forward_progress must be > 0"))
	}
	if w.BackwardProgress <= w.Distance {
		errs = append(errs, errors.New("fitness.backward_progress must exceed fitness.distance"))
	}
	if w.Distance < 0 || w.Survival < 0 {
		errs = append(errs, errors.New("fitness.distance and fitness.survival must be >= 0"))
	}
	if w.SpeedBandMin > w.SpeedBandMax {
		errs = append(errs, errors.New("fitness.speed_band_min must not exceed fitness.speed_band_max"))
	}
	return errors.Join(errs...)
}

// Tracker accumulates the cumulative state fitness is derived from.
type Tracker struct {
	TimeAlive int
	Distance  float64
	Forward   float64
	Backward  float64
	Fitness   float64
}

// Progress is net signed distance along the track.
func (t *Tracker) Progress() float64 {
	return t.Forward - t.Backward
}

// Sample is what one surviving step contributes.
type Sample struct {
	Moved        float64
	Progress     float64
	Speed        float64
	Controls     Controls
	Clearance    float64
	HasClearance bool
}

// Observe folds one step into the cumulative state and recomputes fitness.
func (t *Tracker) Observe(s Sample, w FitnessWeights) {
	t.TimeAlive++
	t.Distance += s.Moved
	if s.Progress > 0 {
		t.Forward += s.Progress
	} else {
		t.Backward -= s.Progress
	}

	fitness := w.Survival*float64(t.TimeAlive) +
		w.Distance*t.Distance +
		w.ForwardProgress*t.Forward -
		w.BackwardProgress*t.Backward

	if s.Speed > 0 {
		fitness += s.Speed * w.SpeedReward
	} else {
		fitness += s.Speed * w.ReversePenalty
	}
	if s.Speed > w.SpeedBandMin && s.Speed < w.SpeedBandMax {
		fitness += w.SpeedBandBonus
	}
	if s.Speed > w.MovingSpeed {
		fitness += w.MovingBonus
	} else {
		fitness -= w.StallPenalty
	}

	steer := math.Abs(s.Controls.Left - s.Controls.Right)
	if steer > w.SharpTurnAbove {
		fitness -= w.SharpTurnPenalty
	}
	if steer < w.SmoothTurnBelow {
		fitness += w.SmoothTurnBonus
	}

	if s.HasClearance && s.Clearance > w.SafeClearance {
		fitness += w.SafetyBonus
	}
	t.Fitness = fitness
}
