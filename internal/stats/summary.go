package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes one generation's fitness distribution.
type Summary struct {
	Best   float64 `json:"best"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	StdDev float64 `json:"std_dev"`
}

// Summarize returns the zero Summary for an empty slice.
func Summarize(fitnesses []float64) Summary {
	if len(fitnesses) == 0 {
		return Summary{}
	}
	mean, std := stat.MeanStdDev(fitnesses, nil)
	if len(fitnesses) == 1 {
		std = 0
	}
	return Summary{
		Best:   floats.Max(fitnesses),
		Mean:   mean,
		Min:    floats.Min(fitnesses),
		StdDev: std,
	}
}

// Improvement is the change in best fitness from the first generation to the
// last.
func Improvement(bestByGeneration []float64) float64 {
	if len(bestByGeneration) < 2 {
		return 0
	}
	return bestByGeneration[len(bestByGeneration)-1] - bestByGeneration[0]
}
