package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drivenet/internal/model"
)

func testChampion(slot string, fitness float64) model.Champion {
	return model.Champion{
		VersionedRecord: CurrentVersion(),
		ID:              "champion-" + slot,
		Slot:            slot,
		RunID:           "run-1",
		Generation:      2,
		Fitness:         fitness,
		SavedAt:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Network: model.Network{Layers: []model.Layer{{
			Weights:    [][]float64{{0.5, -0.5}, {0.25, 1}},
			Biases:     []float64{0, 0.1},
			Activation: "tanh",
		}}},
	}
}

// exerciseStore runs the behaviour every backend shares against an
// initialized store.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := store.GetChampion(ctx, "loop")
	require.NoError(t, err)
	assert.False(t, ok, "slot should start empty")

	first := testChampion("loop", 10)
	require.NoError(t, store.SaveChampion(ctx, first))
	replacement := testChampion("loop", 25)
	replacement.ID = "champion-loop-2"
	require.NoError(t, store.SaveChampion(ctx, replacement))
	require.NoError(t, store.SaveChampion(ctx, testChampion("linear", 3)))

	loaded, ok, err := store.GetChampion(ctx, "loop")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "champion-loop-2", loaded.ID, "slot was not replaced")
	assert.Equal(t, 25.0, loaded.Fitness)
	assert.Equal(t, replacement.Network, loaded.Network)

	stale := testChampion("loop", 1)
	stale.SchemaVersion = CurrentSchemaVersion + 1
	assert.ErrorIs(t, store.SaveChampion(ctx, stale), ErrVersionMismatch)

	deleted, err := store.DeleteChampion(ctx, "loop")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = store.DeleteChampion(ctx, "loop")
	require.NoError(t, err)
	assert.False(t, deleted)
	_, ok, err = store.GetChampion(ctx, "linear")
	require.NoError(t, err)
	assert.True(t, ok, "delete removed an unrelated slot")

	history := []float64{0.1, 0.2, 0.3}
	require.NoError(t, store.SaveFitnessHistory(ctx, "run-1", history))
	gotHistory, ok, err := store.GetFitnessHistory(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, history, gotHistory)
	_, ok, err = store.GetFitnessHistory(ctx, "run-missing")
	require.NoError(t, err)
	assert.False(t, ok)

	diagnostics := []model.GenerationDiagnostics{
		{Generation: 0, Steps: 100, BestFitness: 12, MeanFitness: 4, MinFitness: -1, Survivors: 3, Population: 5, BestDistance: 80, BestProgress: 0.2},
		{Generation: 1, Steps: 100, BestFitness: 20, MeanFitness: 9, MinFitness: 0, Survivors: 1, Population: 5, BestDistance: 140, BestProgress: 0.35},
	}
	require.NoError(t, store.SaveGenerationDiagnostics(ctx, "run-1", diagnostics))
	gotDiagnostics, ok, err := store.GetGenerationDiagnostics(ctx, "run-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, diagnostics, gotDiagnostics)
}
