package repair

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrStepNotFound = errors.New("repair step not found")

// Step is one unit of repair or migration work.
type Step interface {
	// Name is the human readable name shown while the step runs.
	Name() string
	Run(ctx context.Context, out Output) error
}

// StepFactory builds a fresh step for each run.
type StepFactory func() Step

// Registry maps stable step keys, as stored in job arguments, to factories.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]StepFactory
}

func NewRegistry() *Registry {
	return &Registry{
		steps: make(map[string]StepFactory),
	}
}

// Register adds a step factory.
// Returns an error if the key is empty or already taken.
func (r *Registry) Register(key string, factory StepFactory) error {
	if key == "" || factory == nil {
		return fmt.Errorf("repair step needs a key and a factory")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.steps[key]; exists {
		return fmt.Errorf("repair step %q already registered", key)
	}
	r.steps[key] = factory
	return nil
}

// Resolve builds the step registered under key.
func (r *Registry) Resolve(key string) (Step, error) {
	r.mu.RLock()
	factory, exists := r.steps[key]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%q: %w", key, ErrStepNotFound)
	}
	step := factory()
	if step == nil {
		return nil, fmt.Errorf("%q built no step: %w", key, ErrStepNotFound)
	}
	return step, nil
}

// List returns all registered keys, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.steps))
	for key := range r.steps {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.steps)
}
