package evo

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"drivenet/internal/track"
)

var (
	ErrSelectorExists       = errors.New("selector already registered")
	ErrSelectorNotFound     = errors.New("selector not found")
	ErrSelectorIncompatible = errors.New("selector incompatible with track")
)

// SelectorFactory builds a selector for the configured hysteresis margin.
type SelectorFactory func(margin float64) Selector

type SelectorSpec struct {
	Name    string
	Factory SelectorFactory
	// Kinds restricts the selector to these track kinds. Empty allows all.
	Kinds []track.Kind
}

var selectorRegistry = struct {
	mu sync.RWMutex
	m  map[string]SelectorSpec
}{
	m: make(map[string]SelectorSpec),
}

func init() {
	initializeBuiltInSelectors()
}

func initializeBuiltInSelectors() {
	mustRegisterSelector(SelectorSpec{
		Name:    "strict-max",
		Factory: func(float64) Selector { return StrictMaxSelector{} },
	})
	mustRegisterSelector(SelectorSpec{
		Name:    "hysteresis",
		Factory: func(margin float64) Selector { return HysteresisSelector{Margin: margin} },
	})
	// Leading compares raw y, which only orders progress on a straight.
	mustRegisterSelector(SelectorSpec{
		Name:    "leading",
		Factory: func(float64) Selector { return LeadingSelector{} },
		Kinds:   []track.Kind{track.KindLinear},
	})
}

func RegisterSelector(spec SelectorSpec) error {
	if spec.Name == "" {
		return errors.New("selector name is required")
	}
	if spec.Factory == nil {
		return errors.New("selector factory is required")
	}

	selectorRegistry.mu.Lock()
	defer selectorRegistry.mu.Unlock()

	if _, exists := selectorRegistry.m[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrSelectorExists, spec.Name)
	}
	spec.Kinds = slices.Clone(spec.Kinds)
	selectorRegistry.m[spec.Name] = spec
	return nil
}

func mustRegisterSelector(spec SelectorSpec) {
	if err := RegisterSelector(spec); err != nil {
		panic(err)
	}
}

// ResolveSelector returns a registered selector only if it supports kind.
func ResolveSelector(name string, kind track.Kind, margin float64) (Selector, error) {
	selectorRegistry.mu.RLock()
	spec, ok := selectorRegistry.m[name]
	selectorRegistry.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSelectorNotFound, name)
	}
	if len(spec.Kinds) > 0 && !slices.Contains(spec.Kinds, kind) {
		return nil, fmt.Errorf("%w: selector=%s track=%s", ErrSelectorIncompatible, name, kind)
	}
	return spec.Factory(margin), nil
}

func ListSelectors() []string {
	selectorRegistry.mu.RLock()
	defer selectorRegistry.mu.RUnlock()

	names := make([]string, 0, len(selectorRegistry.m))
	for name := range selectorRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetSelectorRegistryForTests() {
	selectorRegistry.mu.Lock()
	selectorRegistry.m = make(map[string]SelectorSpec)
	selectorRegistry.mu.Unlock()
	initializeBuiltInSelectors()
}
