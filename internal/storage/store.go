package storage

import (
	"context"

	"drivenet/internal/model"
)

// Store persists trained controllers and per-run training history.
type Store interface {
	Init(ctx context.Context) error
	SaveChampion(ctx context.Context, champion model.Champion) error
	GetChampion(ctx context.Context, slot string) (model.Champion, bool, error)
	// DeleteChampion reports whether a champion was stored under slot.
	DeleteChampion(ctx context.Context, slot string) (bool, error)
	SaveFitnessHistory(ctx context.Context, runID string, history []float64) error
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
	SaveGenerationDiagnostics(ctx context.Context, runID string, diagnostics []model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
}
