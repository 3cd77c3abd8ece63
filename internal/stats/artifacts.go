package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"drivenet/internal/model"
)

const (
	runIndexFile        = "run_index.json"
	configFile          = "config.json"
	historyFile         = "fitness_history.json"
	diagnosticsFile     = "generation_diagnostics.json"
	championFile        = "champion.json"
	fitnessPlotFile     = "fitness.png"
	defaultArtifactsDir = "runs"
)

// RunConfig is the reproducible description of a training run.
type RunConfig struct {
	RunID              string  `json:"run_id"`
	TrackKind          string  `json:"track_kind"`
	Slot               string  `json:"slot"`
	Topology           []int   `json:"topology"`
	Activation         string  `json:"activation"`
	PopulationSize     int     `json:"population_size"`
	Generations        int     `json:"generations"`
	StepsPerGeneration int     `json:"steps_per_generation"`
	Selector           string  `json:"selector"`
	TrafficCount       int     `json:"traffic_count"`
	Seed               int64   `json:"seed"`
	Workers            int     `json:"workers"`
	Store              string  `json:"store"`
	ResumedFrom        string  `json:"resumed_from,omitempty"`
	MaxSpeed           float64 `json:"max_speed"`
	// Settings is the full resolved configuration.
	Settings any `json:"settings,omitempty"`
}

type RunArtifacts struct {
	Config                RunConfig                     `json:"config"`
	BestByGeneration      []float64                     `json:"best_by_generation"`
	GenerationDiagnostics []model.GenerationDiagnostics `json:"generation_diagnostics,omitempty"`
	FinalBestFitness      float64                       `json:"final_best_fitness"`
	Champion              *model.Champion               `json:"champion,omitempty"`
}

type RunIndexEntry struct {
	RunID            string  `json:"run_id"`
	TrackKind        string  `json:"track_kind"`
	Slot             string  `json:"slot"`
	PopulationSize   int     `json:"population_size"`
	Generations      int     `json:"generations"`
	Seed             int64   `json:"seed"`
	Workers          int     `json:"workers"`
	FinalBestFitness float64 `json:"final_best_fitness"`
	CreatedAtUTC     string  `json:"created_at_utc"`
}

// WriteRunArtifacts writes every artifact of a run under baseDir/<run id>
// and returns that directory.
func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	runID := strings.TrimSpace(artifacts.Config.RunID)
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}
	if baseDir == "" {
		baseDir = defaultArtifactsDir
	}

	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, configFile), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, historyFile), map[string]any{"best_by_generation": artifacts.BestByGeneration, "final_best_fitness": artifacts.FinalBestFitness}); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, diagnosticsFile), artifacts.GenerationDiagnostics); err != nil {
		return "", err
	}
	if artifacts.Champion != nil {
		if err := writeJSON(filepath.Join(runDir, championFile), artifacts.Champion); err != nil {
			return "", err
		}
	}
	if len(artifacts.GenerationDiagnostics) > 0 {
		if err := WriteFitnessPlot(filepath.Join(runDir, fitnessPlotFile), artifacts.Config.RunID, artifacts.GenerationDiagnostics); err != nil {
			return "", err
		}
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

// ListRunIndex returns indexed runs, newest first.
func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(baseDir, runIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	order := make(map[string]int, len(entries))
	for i, entry := range entries {
		order[entry.RunID] = i
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].CreatedAtUTC == entries[j].CreatedAtUTC {
			// Later appends win ties.
			return order[entries[i].RunID] > order[entries[j].RunID]
		}
		return entries[i].CreatedAtUTC > entries[j].CreatedAtUTC
	})
	return entries, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, configFile), &cfg)
	if err != nil || !ok {
		return RunConfig{}, ok, err
	}
	return cfg, true, nil
}

// ReadFitnessHistory loads the best-per-generation series written for a run.
func ReadFitnessHistory(baseDir, runID string) ([]float64, bool, error) {
	var history struct {
		BestByGeneration []float64 `json:"best_by_generation"`
	}
	ok, err := readJSON(filepath.Join(baseDir, runID, historyFile), &history)
	if err != nil || !ok {
		return nil, ok, err
	}
	return history.BestByGeneration, true, nil
}

func ReadGenerationDiagnostics(baseDir, runID string) ([]model.GenerationDiagnostics, bool, error) {
	var diagnostics []model.GenerationDiagnostics
	ok, err := readJSON(filepath.Join(baseDir, runID, diagnosticsFile), &diagnostics)
	if err != nil || !ok {
		return nil, ok, err
	}
	return diagnostics, true, nil
}

func readJSON(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
