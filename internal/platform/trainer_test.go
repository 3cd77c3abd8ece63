package platform

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivenet/internal/config"
	"drivenet/internal/model"
	"drivenet/internal/nn"
	"drivenet/internal/storage"
	"drivenet/internal/track"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default(track.KindLinear)
	cfg.Population.Size = 6
	cfg.Run.Generations = 2
	cfg.Run.StepsPerGeneration = 60
	cfg.Run.Workers = 2
	cfg.Run.Seed = 7
	cfg.Run.ArtifactsDir = ""
	return cfg
}

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Init(context.Background()))
	return store
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestTrainerRunPersistsChampionAndArtifacts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	cfg := testConfig(t)
	cfg.Run.ArtifactsDir = t.TempDir()

	var observed []model.GenerationDiagnostics
	result, err := NewTrainer(store, WithClock(fixedClock)).Run(ctx, RunRequest{
		Config:       cfg,
		RunID:        "run-1",
		OnGeneration: func(d model.GenerationDiagnostics) { observed = append(observed, d) },
	})
	require.NoError(t, err)

	assert.Equal(t, "run-1", result.RunID)
	assert.Empty(t, result.ResumedFrom)
	require.Len(t, result.BestByGeneration, 2)
	require.Len(t, result.GenerationDiagnostics, 2)
	assert.Equal(t, result.GenerationDiagnostics, observed)
	for i, d := range result.GenerationDiagnostics {
		assert.Equal(t, i, d.Generation)
		assert.Equal(t, 6, d.Population)
		assert.Greater(t, d.Steps, 0)
		assert.LessOrEqual(t, d.Steps, 60)
		assert.LessOrEqual(t, d.MinFitness, d.MeanFitness+1e-9, "generation %d", i)
		assert.LessOrEqual(t, d.MinFitness, d.BestFitness, "generation %d", i)
	}

	champion := result.Champion
	assert.Equal(t, "linear", champion.Slot)
	assert.Equal(t, "run-1", champion.RunID)
	assert.NotEmpty(t, champion.ID)
	assert.Equal(t, slices.Max(result.BestByGeneration), champion.Fitness, "champion is the best generation")
	assert.True(t, champion.SavedAt.Equal(fixedClock()), "saved_at=%s", champion.SavedAt)
	network, err := nn.FromSnapshot(champion.Network)
	require.NoError(t, err)
	assert.Equal(t, cfg.Topology(), network.Counts())

	stored, ok, err := store.GetChampion(ctx, "linear")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, champion.ID, stored.ID)
	history, ok, err := store.GetFitnessHistory(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.BestByGeneration, history)

	assert.Equal(t, filepath.Join(cfg.Run.ArtifactsDir, "run-1"), result.ArtifactsDir)
	for _, name := range []string{"config.json", "fitness_history.json", "generation_diagnostics.json", "champion.json", "fitness.png"} {
		_, err := os.Stat(filepath.Join(result.ArtifactsDir, name))
		assert.NoError(t, err, name)
	}
	_, err = os.Stat(filepath.Join(cfg.Run.ArtifactsDir, "run_index.json"))
	assert.NoError(t, err)
}

func TestTrainerResumesFromStoredChampion(t *testing.T) {
	ctx := context.Background()
	trainer := NewTrainer(newTestStore(t))

	first, err := trainer.Run(ctx, RunRequest{Config: testConfig(t)})
	require.NoError(t, err)
	require.NotEmpty(t, first.RunID)

	second, err := trainer.Run(ctx, RunRequest{Config: testConfig(t)})
	require.NoError(t, err)
	assert.Equal(t, first.Champion.ID, second.ResumedFrom)
	assert.NotEqual(t, first.RunID, second.RunID)

	fresh, err := trainer.Run(ctx, RunRequest{Config: testConfig(t), Fresh: true})
	require.NoError(t, err)
	assert.Empty(t, fresh.ResumedFrom)
}

func TestTrainerIgnoresMismatchedChampion(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	network, err := nn.New(rand.New(rand.NewSource(1)), "", 3, 4)
	require.NoError(t, err)
	require.NoError(t, store.SaveChampion(ctx, model.Champion{
		VersionedRecord: storage.CurrentVersion(),
		ID:              "stale",
		Slot:            "linear",
		Network:         network.Snapshot(),
	}))

	result, err := NewTrainer(store).Run(ctx, RunRequest{Config: testConfig(t)})
	require.NoError(t, err)
	assert.Empty(t, result.ResumedFrom)
}

func TestTrainerIsDeterministicForSeed(t *testing.T) {
	ctx := context.Background()

	a, err := NewTrainer(newTestStore(t)).Run(ctx, RunRequest{Config: testConfig(t)})
	require.NoError(t, err)
	b, err := NewTrainer(newTestStore(t)).Run(ctx, RunRequest{Config: testConfig(t)})
	require.NoError(t, err)
	assert.Equal(t, a.BestByGeneration, b.BestByGeneration)
}

func TestTrainerLoopSpawnAwayFromOrigin(t *testing.T) {
	cfg := config.Default(track.KindLoop)
	cfg.Track.SpawnT = track.Circuit / 2
	cfg.Traffic = nil
	cfg.Population.Size = 4
	cfg.Run.Generations = 1
	cfg.Run.StepsPerGeneration = 5
	cfg.Run.Workers = 1
	cfg.Run.ArtifactsDir = ""

	result, err := NewTrainer(newTestStore(t)).Run(context.Background(), RunRequest{Config: cfg})
	require.NoError(t, err)
	require.Len(t, result.GenerationDiagnostics, 1)
	d := result.GenerationDiagnostics[0]
	// Net progress cannot outrun the distance driven by more than one
	// lookup step of rounding.
	assert.InDelta(t, 0, d.BestProgress, d.BestDistance+15)
}

func TestTrainerStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewTrainer(newTestStore(t)).Run(ctx, RunRequest{Config: testConfig(t)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrainerRejectsInvalidRequests(t *testing.T) {
	ctx := context.Background()
	_, err := NewTrainer(nil).Run(ctx, RunRequest{Config: testConfig(t)})
	assert.Error(t, err, "missing store")
	_, err = NewTrainer(newTestStore(t)).Run(ctx, RunRequest{})
	assert.Error(t, err, "missing config")

	cfg := testConfig(t)
	cfg.Population.Size = 0
	_, err = NewTrainer(newTestStore(t)).Run(ctx, RunRequest{Config: cfg})
	assert.Error(t, err, "invalid config")
}
