package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"drivenet/internal/config"
	"drivenet/internal/evo"
	"drivenet/internal/model"
	"drivenet/internal/nn"
	"drivenet/internal/sim"
	"drivenet/internal/stats"
	"drivenet/internal/storage"
	"drivenet/internal/track"
)

// Trainer runs the generation loop: simulate a population, keep the best
// controller, reseed, repeat.
type Trainer struct {
	store storage.Store
	log   logrus.FieldLogger
	now   func() time.Time
}

type TrainerOption func(*Trainer)

func WithLogger(log logrus.FieldLogger) TrainerOption {
	return func(t *Trainer) {
		if log != nil {
			t.log = log
		}
	}
}

// WithClock overrides the time source stamped on champions and index entries.
func WithClock(now func() time.Time) TrainerOption {
	return func(t *Trainer) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTrainer expects an initialized store.
func NewTrainer(store storage.Store, opts ...TrainerOption) *Trainer {
	discard := logrus.New()
	discard.SetOutput(io.Discard)
	t := &Trainer{
		store: store,
		log:   discard,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type RunRequest struct {
	Config *config.Config
	// RunID is generated when empty.
	RunID string
	// Fresh ignores any stored champion and starts from random controllers.
	Fresh bool
	// OnGeneration observes each finished generation.
	OnGeneration func(model.GenerationDiagnostics)
}

type RunResult struct {
	RunID                 string
	BestByGeneration      []float64
	GenerationDiagnostics []model.GenerationDiagnostics
	Champion              model.Champion
	// ResumedFrom is the ID of the stored champion the run was seeded from.
	ResumedFrom  string
	ArtifactsDir string
}

func (t *Trainer) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	if t.store == nil {
		return RunResult{}, errors.New("store is required")
	}
	cfg := req.Config
	if cfg == nil {
		return RunResult{}, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return RunResult{}, fmt.Errorf("invalid config: %w", err)
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := t.log.WithFields(logrus.Fields{"run_id": runID, "track": cfg.Track.Kind})

	tr, err := track.New(cfg.Track.Kind, cfg.TrackOptions())
	if err != nil {
		return RunResult{}, err
	}
	tr.UpdateDimensions(cfg.Track.ViewportWidth, cfg.Track.ViewportHeight)

	selector, err := evo.NewSelector(cfg.Population.Selector, cfg.Track.Kind, cfg.Population.HysteresisMargin)
	if err != nil {
		return RunResult{}, err
	}

	rng := rand.New(rand.NewSource(cfg.Run.Seed))
	brains, resumedFrom, err := t.initialBrains(ctx, rng, cfg, req.Fresh)
	if err != nil {
		return RunResult{}, err
	}
	if resumedFrom != "" {
		log.WithField("champion_id", resumedFrom).Info("seeding population from stored champion")
	} else {
		log.Info("seeding population with random controllers")
	}

	result := RunResult{
		RunID:       runID,
		ResumedFrom: resumedFrom,
	}
	var (
		bestBrain   *nn.Network
		bestFitness float64
		bestGen     int
	)

	for gen := 0; gen < cfg.Run.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}

		world, err := sim.NewWorld(sim.Config{
			Track:    tr,
			Sensor:   cfg.Sensor,
			Learner:  cfg.LearnerConfig(),
			Traffic:  cfg.Traffic,
			SpawnT:   cfg.Track.SpawnT,
			Selector: selector,
			Workers:  cfg.Run.Workers,
		}, brains)
		if err != nil {
			return RunResult{}, fmt.Errorf("generation %d: %w", gen, err)
		}
		for world.Steps() < cfg.Run.StepsPerGeneration && !world.Done() {
			if err := ctx.Err(); err != nil {
				return RunResult{}, err
			}
			if _, err := world.Step(); err != nil {
				return RunResult{}, fmt.Errorf("generation %d step %d: %w", gen, world.Steps(), err)
			}
		}

		best := world.Population.Best()
		summary := stats.Summarize(world.Population.Fitnesses())
		diag := model.GenerationDiagnostics{
			Generation:   gen,
			Steps:        world.Steps(),
			BestFitness:  best.Fitness(),
			MeanFitness:  summary.Mean,
			MinFitness:   summary.Min,
			Survivors:    world.Population.Survivors(),
			Population:   len(world.Population.Learners),
			BestDistance: best.Tracker.Distance,
			BestProgress: best.Tracker.Progress(),
		}
		result.GenerationDiagnostics = append(result.GenerationDiagnostics, diag)
		result.BestByGeneration = append(result.BestByGeneration, diag.BestFitness)

		log.WithFields(logrus.Fields{
			"generation":   gen,
			"steps":        diag.Steps,
			"best_fitness": diag.BestFitness,
			"mean_fitness": diag.MeanFitness,
			"survivors":    diag.Survivors,
		}).Info("generation complete")
		if req.OnGeneration != nil {
			req.OnGeneration(diag)
		}

		if bestBrain == nil || diag.BestFitness > bestFitness {
			bestBrain = best.Brain.Clone()
			bestFitness = diag.BestFitness
			bestGen = gen
		}
		if gen+1 < cfg.Run.Generations {
			brains, err = evo.Seed(rng, best.Brain, cfg.Population.Size, cfg.Population.Seed)
			if err != nil {
				return RunResult{}, fmt.Errorf("reseed after generation %d: %w", gen, err)
			}
		}
	}

	result.Champion = model.Champion{
		VersionedRecord: storage.CurrentVersion(),
		ID:              uuid.NewString(),
		Slot:            cfg.ChampionSlot(),
		RunID:           runID,
		Generation:      bestGen,
		Fitness:         bestFitness,
		SavedAt:         t.now().UTC(),
		Network:         bestBrain.Snapshot(),
	}
	if err := t.persist(ctx, result); err != nil {
		return RunResult{}, err
	}
	log.WithFields(logrus.Fields{
		"champion_id":  result.Champion.ID,
		"slot":         result.Champion.Slot,
		"best_fitness": bestFitness,
		"improvement":  stats.Improvement(result.BestByGeneration),
	}).Info("champion saved")

	if cfg.Run.ArtifactsDir != "" {
		dir, err := t.writeArtifacts(cfg, result)
		if err != nil {
			return RunResult{}, fmt.Errorf("write artifacts: %w", err)
		}
		result.ArtifactsDir = dir
	}
	return result, nil
}

// initialBrains seeds from the stored champion for the configured slot. A
// champion whose topology no longer matches the config is ignored.
func (t *Trainer) initialBrains(ctx context.Context, rng *rand.Rand, cfg *config.Config, fresh bool) ([]*nn.Network, string, error) {
	topology := cfg.Topology()
	if !fresh {
		champion, ok, err := t.store.GetChampion(ctx, cfg.ChampionSlot())
		if err != nil {
			return nil, "", fmt.Errorf("load champion: %w", err)
		}
		if ok {
			network, err := nn.FromSnapshot(champion.Network)
			switch {
			case err != nil:
				t.log.WithError(err).WithField("slot", cfg.ChampionSlot()).Warn("stored champion is unreadable, starting fresh")
			case !slices.Equal(network.Counts(), topology):
				t.log.WithFields(logrus.Fields{
					"slot":     cfg.ChampionSlot(),
					"stored":   network.Counts(),
					"topology": topology,
				}).Warn("stored champion topology differs, starting fresh")
			default:
				brains, err := evo.Seed(rng, network, cfg.Population.Size, cfg.Population.Seed)
				if err != nil {
					return nil, "", err
				}
				return brains, champion.ID, nil
			}
		}
	}
	brains, err := evo.Random(rng, cfg.Population.Size, cfg.Controller.Activation, topology...)
	if err != nil {
		return nil, "", err
	}
	return brains, "", nil
}

func (t *Trainer) persist(ctx context.Context, result RunResult) error {
	if err := t.store.SaveChampion(ctx, result.Champion); err != nil {
		return fmt.Errorf("save champion: %w", err)
	}
	if err := t.store.SaveFitnessHistory(ctx, result.RunID, result.BestByGeneration); err != nil {
		return fmt.Errorf("save fitness history: %w", err)
	}
	if err := t.store.SaveGenerationDiagnostics(ctx, result.RunID, result.GenerationDiagnostics); err != nil {
		return fmt.Errorf("save diagnostics: %w", err)
	}
	return nil
}

func (t *Trainer) writeArtifacts(cfg *config.Config, result RunResult) (string, error) {
	champion := result.Champion
	dir, err := stats.WriteRunArtifacts(cfg.Run.ArtifactsDir, stats.RunArtifacts{
		Config:                runConfig(cfg, result),
		BestByGeneration:      result.BestByGeneration,
		GenerationDiagnostics: result.GenerationDiagnostics,
		FinalBestFitness:      champion.Fitness,
		Champion:              &champion,
	})
	if err != nil {
		return "", err
	}
	err = stats.AppendRunIndex(cfg.Run.ArtifactsDir, stats.RunIndexEntry{
		RunID:            result.RunID,
		TrackKind:        string(cfg.Track.Kind),
		Slot:             cfg.ChampionSlot(),
		PopulationSize:   cfg.Population.Size,
		Generations:      cfg.Run.Generations,
		Seed:             cfg.Run.Seed,
		Workers:          cfg.Run.Workers,
		FinalBestFitness: champion.Fitness,
		CreatedAtUTC:     t.now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}
	return dir, nil
}

func runConfig(cfg *config.Config, result RunResult) stats.RunConfig {
	selector := cfg.Population.Selector
	if s, err := evo.NewSelector(selector, cfg.Track.Kind, cfg.Population.HysteresisMargin); err == nil {
		selector = s.Name()
	}
	return stats.RunConfig{
		RunID:              result.RunID,
		TrackKind:          string(cfg.Track.Kind),
		Slot:               cfg.ChampionSlot(),
		Topology:           cfg.Topology(),
		Activation:         cfg.Controller.Activation,
		PopulationSize:     cfg.Population.Size,
		Generations:        cfg.Run.Generations,
		StepsPerGeneration: cfg.Run.StepsPerGeneration,
		Selector:           selector,
		TrafficCount:       len(cfg.Traffic),
		Seed:               cfg.Run.Seed,
		Workers:            cfg.Run.Workers,
		Store:              cfg.Run.Store,
		ResumedFrom:        result.ResumedFrom,
		MaxSpeed:           cfg.Vehicle.MaxSpeed,
		Settings:           cfg,
	}
}
