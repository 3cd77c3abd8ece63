package storage

import (
	"context"
	"errors"
	"sync"

	"drivenet/internal/model"
)

var errNotInitialized = errors.New("store is not initialized")

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	champions   map[string]model.Champion
	history     map[string][]float64
	diagnostics map[string][]model.GenerationDiagnostics
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.champions = make(map[string]model.Champion)
	s.history = make(map[string][]float64)
	s.diagnostics = make(map[string][]model.GenerationDiagnostics)
	return nil
}

func (s *MemoryStore) SaveChampion(_ context.Context, champion model.Champion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	if err := checkVersion(champion.VersionedRecord); err != nil {
		return err
	}
	s.champions[champion.Slot] = champion
	return nil
}

func (s *MemoryStore) GetChampion(_ context.Context, slot string) (model.Champion, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	champion, ok := s.champions[slot]
	return champion, ok, nil
}

func (s *MemoryStore) DeleteChampion(_ context.Context, slot string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.champions[slot]
	delete(s.champions, slot)
	return ok, nil
}

func (s *MemoryStore) SaveFitnessHistory(_ context.Context, runID string, history []float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.history[runID] = append([]float64(nil), history...)
	return nil
}

func (s *MemoryStore) GetFitnessHistory(_ context.Context, runID string) ([]float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.history[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]float64(nil), history...), true, nil
}

func (s *MemoryStore) SaveGenerationDiagnostics(_ context.Context, runID string, diagnostics []model.GenerationDiagnostics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return errNotInitialized
	}
	s.diagnostics[runID] = append([]model.GenerationDiagnostics(nil), diagnostics...)
	return nil
}

func (s *MemoryStore) GetGenerationDiagnostics(_ context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	diagnostics, ok := s.diagnostics[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.GenerationDiagnostics(nil), diagnostics...), true, nil
}
