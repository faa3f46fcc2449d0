package script

import (
	"context"
	"fmt"
	"sort"
)

// ErrCyclicDependency is returned by GlobalRegistry.Order when the
// registered globals' Dependencies() form a cycle and no injection order
// exists.
type ErrCyclicDependency struct {
	Remaining []string
}

func (e *ErrCyclicDependency) Error() string {
	return fmt.Sprintf("script: cyclic global dependency among %v", e.Remaining)
}

// GlobalRegistry holds the set of host globals available for injection,
// keyed by name, and computes a dependency-respecting injection order the
// same way coreengine/hooks' registry orders hook execution — except where
// hooks order by priority-then-sequence, globals order by a Kahn's-algorithm
// topological sort over declared Dependencies().
type GlobalRegistry struct {
	byName map[string]Global
	seq    map[string]int
	next   int
}

// NewGlobalRegistry returns an empty registry.
func NewGlobalRegistry() *GlobalRegistry {
	return &GlobalRegistry{
		byName: make(map[string]Global),
		seq:    make(map[string]int),
	}
}

// Register adds g to the registry, replacing any prior global of the same
// name. Registration order only matters as a tie-breaker among globals with
// no dependency relationship, so that Order is deterministic.
func (r *GlobalRegistry) Register(g Global) {
	r.byName[g.Name()] = g
	r.seq[g.Name()] = r.next
	r.next++
}

// Get returns the global registered under name, if any.
func (r *GlobalRegistry) Get(name string) (Global, bool) {
	g, ok := r.byName[name]
	return g, ok
}

// Names returns every registered global's name, unordered.
func (r *GlobalRegistry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	return out
}

// Order computes the injection order: a topological sort over each global's
// Dependencies() via Kahn's algorithm, breaking ties by registration
// sequence so the result is stable across calls. A dependency naming a
// global that was never registered is ignored (treated as already
// satisfied) rather than rejected, since optional/soft dependencies are
// common (e.g. Debug depending on Session only when a session exists).
func (r *GlobalRegistry) Order() ([]Global, error) {
	inDegree := make(map[string]int, len(r.byName))
	dependents := make(map[string][]string, len(r.byName))

	for name, g := range r.byName {
		if _, ok := inDegree[name]; !ok {
			inDegree[name] = 0
		}
		for _, dep := range g.Dependencies() {
			if _, ok := r.byName[dep]; !ok {
				continue
			}
			inDegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	var ready []string
	for name, deg := range inDegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return r.seq[ready[i]] < r.seq[ready[j]] })

	var order []Global
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, r.byName[name])

		var freed []string
		for _, dependent := range dependents[name] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				freed = append(freed, dependent)
			}
		}
		sort.Slice(freed, func(i, j int) bool { return r.seq[freed[i]] < r.seq[freed[j]] })

		merged := make([]string, 0, len(ready)+len(freed))
		merged = append(merged, ready...)
		merged = append(merged, freed...)
		sort.SliceStable(merged, func(i, j int) bool { return r.seq[merged[i]] < r.seq[merged[j]] })
		ready = merged
	}

	if len(order) != len(r.byName) {
		var remaining []string
		for name, deg := range inDegree {
			if deg > 0 {
				remaining = append(remaining, name)
			}
		}
		sort.Strings(remaining)
		return nil, &ErrCyclicDependency{Remaining: remaining}
	}
	return order, nil
}

// InitializeAll calls Initialize on every registered global, in dependency
// order, stopping at the first error.
func (r *GlobalRegistry) InitializeAll(ctx context.Context) error {
	order, err := r.Order()
	if err != nil {
		return err
	}
	for _, g := range order {
		if err := g.Initialize(ctx); err != nil {
			return fmt.Errorf("script: initializing global %q: %w", g.Name(), err)
		}
	}
	return nil
}
