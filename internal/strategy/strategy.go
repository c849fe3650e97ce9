package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Side is a directional recommendation.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
	Hold Side = "hold"
)

// Direction maps a side onto the signed axis used for consensus math.
func (s Side) Direction() float64 {
	switch s {
	case Buy:
		return 1
	case Sell:
		return -1
	default:
		return 0
	}
}

// Valid reports whether the side is one of the three known values.
func (s Side) Valid() bool {
	return s == Buy || s == Sell || s == Hold
}

// Signal is the immutable output of one evaluator for one cycle.
type Signal struct {
	Strategy string
	Side     Side
	Strength float64
	Metrics  map[string]float64
}

// Evaluator maps a price series snapshot to a signal. Implementations must be
// pure: no I/O, no shared mutable state, deterministic for identical input.
type Evaluator func(closes []float64) Signal

// Definition pairs a registered evaluator with its name and consensus weight.
type Definition struct {
	Name     string
	Weight   float64
	Evaluate Evaluator
}

// Registry holds named strategies. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	defs  map[string]Definition
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a named evaluator. Weight <= 0 defaults to 1.
func (r *Registry) Register(name string, weight float64, eval Evaluator) error {
	if name == "" {
		return fmt.Errorf("strategy name required")
	}
	if eval == nil {
		return fmt.Errorf("strategy %s: evaluator required", name)
	}
	if weight <= 0 {
		weight = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[name]; exists {
		return fmt.Errorf("strategy %s already registered", name)
	}
	r.defs[name] = Definition{Name: name, Weight: weight, Evaluate: eval}
	r.order = append(r.order, name)
	return nil
}

// SetWeight overrides the consensus weight of a registered strategy.
func (r *Registry) SetWeight(name string, weight float64) error {
	if weight <= 0 {
		return fmt.Errorf("strategy %s: weight must be greater than zero", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	def, exists := r.defs[name]
	if !exists {
		return fmt.Errorf("strategy %s not registered", name)
	}
	def.Weight = weight
	r.defs[name] = def
	return nil
}

// Active returns all registered strategies in registration order.
func (r *Registry) Active() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.defs[name])
	}
	return out
}

// Names returns registered strategy names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.order))
	copy(out, r.order)
	sort.Strings(out)
	return out
}

// Len reports the number of registered strategies.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.defs)
}

func hold(name string) Signal {
	return Signal{Strategy: name, Side: Hold, Strength: 0}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
