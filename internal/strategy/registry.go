package strategy

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages a named collection of strategies and the symbols each one
// trades. It is safe for concurrent use.
type Registry struct {
	strategies map[string]Strategy
	symbols    map[string][]string // strategy name -> symbols it trades
	mu         sync.RWMutex
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[string]Strategy),
		symbols:    make(map[string][]string),
	}
}

// Register adds a strategy to the registry for the given symbols. If a
// strategy with the same name already exists it will be replaced.
func (r *Registry) Register(s Strategy, symbols []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Name()] = s
	r.symbols[s.Name()] = append([]string(nil), symbols...)
}

// Get retrieves a strategy by name. It returns an error when the name is not
// registered.
func (r *Registry) Get(name string) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("strategy %q: not registered", name)
	}
	return s, nil
}

// List returns the names of all registered strategies in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for n := range r.strategies {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// StrategiesFor returns the strategies registered for the given symbol, in
// sorted name order so evaluation order is deterministic.
func (r *Registry) StrategiesFor(symbol string) []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.strategies))
	for name, syms := range r.symbols {
		for _, s := range syms {
			if s == symbol {
				names = append(names, name)
				break
			}
		}
	}
	sort.Strings(names)

	out := make([]Strategy, 0, len(names))
	for _, n := range names {
		out = append(out, r.strategies[n])
	}
	return out
}

// Symbols returns the union of all symbols traded by registered strategies,
// sorted.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := map[string]bool{}
	for _, syms := range r.symbols {
		for _, s := range syms {
			seen[s] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
