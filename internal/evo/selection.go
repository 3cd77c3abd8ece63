package evo

import (
	"math"

	"drivenet/internal/track"
	"drivenet/internal/vehicle"
)

const DefaultHysteresisMargin = 0.05

// Selector picks the retained best learner. current is the previously
// retained index, or -1 when there is none.
type Selector interface {
	Name() string
	Best(learners []*vehicle.Learner, current int) int
}

// StrictMaxSelector always follows the highest fitness; ties keep the
// earliest learner.
type StrictMaxSelector struct{}

func (StrictMaxSelector) Name() string {
	return "strict-max"
}

func (StrictMaxSelector) Best(learners []*vehicle.Learner, _ int) int {
	return argmaxFitness(learners)
}

// HysteresisSelector only replaces the retained best when a challenger beats
// it by Margin relative to its own magnitude.
type HysteresisSelector struct {
	Margin float64
}

func (HysteresisSelector) Name() string {
	return "hysteresis"
}

func (s HysteresisSelector) Best(learners []*vehicle.Learner, current int) int {
	challenger := argmaxFitness(learners)
	if current < 0 || current >= len(learners) || challenger < 0 {
		return challenger
	}
	retained := learners[current].Fitness()
	if learners[challenger].Fitness() > retained+s.Margin*math.Abs(retained) {
		return challenger
	}
	return current
}

// LeadingSelector picks the learner furthest up a straight track.
type LeadingSelector struct{}

func (LeadingSelector) Name() string {
	return "leading"
}

func (LeadingSelector) Best(learners []*vehicle.Learner, _ int) int {
	best := -1
	for i, l := range learners {
		if best < 0 || l.Position.Y < learners[best].Position.Y {
			best = i
		}
	}
	return best
}

func argmaxFitness(learners []*vehicle.Learner) int {
	best := -1
	for i, l := range learners {
		if best < 0 || l.Fitness() > learners[best].Fitness() {
			best = i
		}
	}
	return best
}

// NewSelector resolves a registered selector by name. An empty name picks
// the default for the track kind: hysteresis on loops, leading on straight
// tracks.
func NewSelector(name string, kind track.Kind, margin float64) (Selector, error) {
	if name == "" {
		if kind == track.KindLinear {
			name = "leading"
		} else {
			name = "hysteresis"
		}
	}
	return ResolveSelector(name, kind, margin)
}
