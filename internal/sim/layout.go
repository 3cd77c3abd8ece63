package sim

import (
	"math"

	"drivenet/internal/track"
	"drivenet/internal/vehicle"
)

// TrafficSpec places one scripted car. Speed is the per-step track
// parameter increment: radians on a loop, world units on a straight.
type TrafficSpec struct {
	Lane   int     `json:"lane" yaml:"lane"`
	T      float64 `json:"t" yaml:"t"`
	Speed  float64 `json:"speed" yaml:"speed"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// DefaultTraffic is the stock layout for a track kind.
func DefaultTraffic(kind track.Kind) []TrafficSpec {
	if kind == track.KindLinear {
		return []TrafficSpec{
			{Lane: 0, T: 300, Speed: 1.9, Width: 30, Height: 40},
			{Lane: 2, T: 300, Speed: 1.9, Width: 30, Height: 50},
			{Lane: 1, T: 100, Speed: 1.9, Width: 30, Height: 50},
		}
	}
	return []TrafficSpec{
		{Lane: 0, T: 0, Speed: 0.003, Width: 30, Height: 50},
		{Lane: 1, T: math.Pi / 4, Speed: 0.004, Width: 30, Height: 50},
		{Lane: 2, T: math.Pi / 2, Speed: 0.0023, Width: 30, Height: 50},
		{Lane: 0, T: 3 * math.Pi / 4, Speed: 0.0025, Width: 30, Height: 50},
		{Lane: 1, T: math.Pi, Speed: 0.0045, Width: 30, Height: 50},
		{Lane: 2, T: 5 * math.Pi / 4, Speed: 0.003, Width: 30, Height: 50},
		{Lane: 1, T: 3 * math.Pi / 2, Speed: 0.004, Width: 30, Height: 50},
	}
}

// DefaultSpawnT is where learners start: the top of the loop, or 100 units
// behind the origin on a straight.
func DefaultSpawnT(kind track.Kind) float64 {
	if kind == track.KindLinear {
		return -100
	}
	return 0
}

func BuildTraffic(tr track.Track, specs []TrafficSpec) []*vehicle.Scripted {
	out := make([]*vehicle.Scripted, 0, len(specs))
	for _, s := range specs {
		out = append(out, vehicle.NewScripted(tr, s.Lane, s.T, s.Speed, s.Width, s.Height))
	}
	return out
}
