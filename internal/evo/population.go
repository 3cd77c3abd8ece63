package evo

import (
	"errors"
	"fmt"
	"math/rand"

	"drivenet/internal/nn"
	"drivenet/internal/vehicle"
)

// Population is the fixed-size set of learners of one generation together
// with the retained best reference.
type Population struct {
	Learners []*vehicle.Learner
	Selector Selector

	best int
}

func NewPopulation(learners []*vehicle.Learner, selector Selector) (*Population, error) {
	if len(learners) == 0 {
		return nil, errors.New("population must not be empty")
	}
	if selector == nil {
		selector = StrictMaxSelector{}
	}
	return &Population{Learners: learners, Selector: selector, best: 0}, nil
}

// Best returns the currently retained best learner.
func (p *Population) Best() *vehicle.Learner {
	return p.Learners[p.best]
}

func (p *Population) BestIndex() int { return p.best }

// UpdateBest re-evaluates the retained best against current fitness.
func (p *Population) UpdateBest() *vehicle.Learner {
	if idx := p.Selector.Best(p.Learners, p.best); idx >= 0 {
		p.best = idx
	}
	return p.Best()
}

// Survivors counts learners that are not damaged.
func (p *Population) Survivors() int {
	n := 0
	for _, l := range p.Learners {
		if !l.Damaged {
			n++
		}
	}
	return n
}

func (p *Population) Fitnesses() []float64 {
	out := make([]float64, len(p.Learners))
	for i, l := range p.Learners {
		out[i] = l.Fitness()
	}
	return out
}

// MutationTier applies Strength to ranks below Fraction of the population.
type MutationTier struct {
	Fraction float64 `json:"fraction" yaml:"fraction"`
	Strength float64 `json:"strength" yaml:"strength"`
}

// SeedPolicy grades mutation strength by rank. Rank 0 is never mutated.
type SeedPolicy struct {
	Tiers []MutationTier `json:"tiers" yaml:"tiers"`
	Rest  float64        `json:"rest" yaml:"rest"`
}

func DefaultSeedPolicy() SeedPolicy {
	return SeedPolicy{
		Tiers: []MutationTier{
			{Fraction: 0.1, Strength: 0.05},
			{Fraction: 0.3, Strength: 0.15},
		},
		Rest: 0.25,
	}
}

func (s SeedPolicy) Validate() error {
	var errs []error
	prev := 0.0
	for i, tier := range s.Tiers {
		if tier.Fraction <= prev || tier.Fraction > 1 {
			errs = append(errs, fmt.Errorf("population.seed.tiers[%d].fraction must increase within (0, 1]", i))
		}
		if tier.Strength < 0 || tier.Strength > 1 {
			errs = append(errs, fmt.Errorf("population.seed.tiers[%d].strength must be within [0, 1]", i))
		}
		prev = tier.Fraction
	}
	if s.Rest < 0 || s.Rest > 1 {
		errs = append(errs, errors.New("population.seed.rest must be within [0, 1]"))
	}
	return errors.Join(errs...)
}

// StrengthFor returns the mutation strength for member rank out of n.
func (s SeedPolicy) StrengthFor(rank, n int) float64 {
	if rank == 0 {
		return 0
	}
	for _, tier := range s.Tiers {
		if float64(rank) < float64(n)*tier.Fraction {
			return tier.Strength
		}
	}
	return s.Rest
}

// Seed clones champion into n controllers and mutates each by its rank's
// strength. Index 0 is an exact copy of the champion.
func Seed(rng *rand.Rand, champion *nn.Network, n int, policy SeedPolicy) ([]*nn.Network, error) {
	if champion == nil {
		return nil, errors.New("champion controller is required")
	}
	if n <= 0 {
		return nil, fmt.Errorf("invalid population size: %d", n)
	}
	out := make([]*nn.Network, n)
	for i := range out {
		clone := champion.Clone()
		if strength := policy.StrengthFor(i, n); strength > 0 {
			if err := clone.Mutate(rng, strength); err != nil {
				return nil, fmt.Errorf("seed member %d: %w", i, err)
			}
		}
		out[i] = clone
	}
	return out, nil
}

// Random builds n independently initialized controllers.
func Random(rng *rand.Rand, n int, activation string, counts ...int) ([]*nn.Network, error) {
	out := make([]*nn.Network, n)
	for i := range out {
		network, err := nn.New(rng, activation, counts...)
		if err != nil {
			return nil, err
		}
		out[i] = network
	}
	return out, nil
}
