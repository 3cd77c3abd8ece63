package nn

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// DefaultActivation is the saturating nonlinearity used by every layer
// unless configured otherwise.
const DefaultActivation = "tanh"

var (
	ErrActivationExists   = errors.New("activation already registered")
	ErrActivationNotFound = errors.New("activation not found")
)

type ActivationFunc func(x float64) float64

var activationRegistry = struct {
	mu sync.RWMutex
	m  map[string]ActivationFunc
}{
	m: make(map[string]ActivationFunc),
}

func init() {
	initializeBuiltInActivations()
}

func initializeBuiltInActivations() {
	MustRegisterActivation("tanh", math.Tanh)
	MustRegisterActivation("sigmoid", func(x float64) float64 {
		return 1.0 / (1.0 + math.Exp(-x))
	})
	MustRegisterActivation("softsign", func(x float64) float64 {
		return x / (1 + math.Abs(x))
	})
	MustRegisterActivation("identity", func(x float64) float64 { return x })
}

func RegisterActivation(name string, fn ActivationFunc) error {
	if name == "" {
		return errors.New("activation name is required")
	}
	if fn == nil {
		return errors.New("activation function is required")
	}

	activationRegistry.mu.Lock()
	defer activationRegistry.mu.Unlock()

	if _, exists := activationRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrActivationExists, name)
	}
	activationRegistry.m[name] = fn
	return nil
}

func MustRegisterActivation(name string, fn ActivationFunc) {
	if err := RegisterActivation(name, fn); err != nil {
		panic(err)
	}
}

func GetActivation(name string) (ActivationFunc, error) {
	activationRegistry.mu.RLock()
	fn, ok := activationRegistry.m[name]
	activationRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActivationNotFound, name)
	}
	return fn, nil
}

func ListActivations() []string {
	activationRegistry.mu.RLock()
	defer activationRegistry.mu.RUnlock()

	names := make([]string, 0, len(activationRegistry.m))
	for name := range activationRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetActivationRegistryForTests() {
	activationRegistry.mu.Lock()
	activationRegistry.m = make(map[string]ActivationFunc)
	activationRegistry.mu.Unlock()
	initializeBuiltInActivations()
}
