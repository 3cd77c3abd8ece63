package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Network is the structural form of a feedforward controller: an ordered
// layer list, each layer a weight matrix plus a bias vector.
type Network struct {
	Layers []Layer `json:"layers"`
}

// Layer weights are input-major: Weights[i][j] connects input i to output j.
type Layer struct {
	Weights    [][]float64 `json:"weights"`
	Biases     []float64   `json:"biases"`
	Activation string      `json:"activation"`
}

// Champion is the controller retained at the end of a generation, stored
// under a slot name so the next run can resume from it.
type Champion struct {
	VersionedRecord
	ID         string    `json:"id"`
	Slot       string    `json:"slot"`
	RunID      string    `json:"run_id"`
	Generation int       `json:"generation"`
	Fitness    float64   `json:"fitness"`
	SavedAt    time.Time `json:"saved_at"`
	Network    Network   `json:"network"`
}

type GenerationDiagnostics struct {
	Generation   int     `json:"generation"`
	Steps        int     `json:"steps"`
	BestFitness  float64 `json:"best_fitness"`
	MeanFitness  float64 `json:"mean_fitness"`
	MinFitness   float64 `json:"min_fitness"`
	Survivors    int     `json:"survivors"`
	Population   int     `json:"population"`
	BestDistance float64 `json:"best_distance"`
	BestProgress float64 `json:"best_progress"`
}
