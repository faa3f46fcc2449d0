package script

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// DefaultInjectionBudget is the total time budget for injecting the
// default global set: a proactive check made after each global's Inject
// call returns, not a context deadline imposed on the call itself, since a
// goja/gopher-lua binding has no way to honor mid-call cancellation.
const DefaultInjectionBudget = 5 * time.Millisecond

// InjectionMetrics reports per-global and total timing for one Inject call,
// plus the cache hit rate accumulated across all calls to this Injector.
type InjectionMetrics struct {
	EngineKind   EngineKind
	PerGlobal    map[string]time.Duration
	OverBudget   []string
	Total        time.Duration
	CacheHits    int
	CacheMisses  int
}

// HitRate returns the fraction of globals served from the injection cache
// in this call, or 0 if nothing was looked up.
func (m *InjectionMetrics) HitRate() float64 {
	total := m.CacheHits + m.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(m.CacheHits) / float64(total)
}

// injectionCacheKey is the (global_name, engine_kind) pair InjectionCache
// keys on.
type injectionCacheKey struct {
	name string
	kind EngineKind
}

// InjectionCache records, per (global, engine kind), whether that global's
// Initialize step has already run and doesn't need to run again — script
// engines are typically short-lived per request, but a warmed global (e.g.
// Template's compiled-template cache) should survive across engines of the
// same kind within a process.
type InjectionCache struct {
	mu      sync.Mutex
	warm    map[injectionCacheKey]bool
	hits    int
	misses  int
}

// NewInjectionCache returns an empty cache.
func NewInjectionCache() *InjectionCache {
	return &InjectionCache{warm: make(map[injectionCacheKey]bool)}
}

func (c *InjectionCache) checkAndMark(name string, kind EngineKind) (hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := injectionCacheKey{name: name, kind: kind}
	hit = c.warm[key]
	if hit {
		c.hits++
	} else {
		c.misses++
		c.warm[key] = true
	}
	return hit
}

// Stats returns the cumulative hit/miss counts across every Injector call
// sharing this cache.
func (c *InjectionCache) Stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Injector drives one engine's worth of global injection: it asks the
// registry for an order, then calls Initialize/Inject on each global in
// turn, skipping Initialize when the cache already reports that
// (global, engine kind) pair warm.
type Injector struct {
	registry *GlobalRegistry
	cache    *InjectionCache
	budget   time.Duration
	logger   Logger
}

// Logger is the subset of coreengine/kernel's Logger interface the injector
// needs to warn about budget overruns without taking a hard kernel
// dependency.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
}

// NewInjector builds an Injector. A nil logger or cache is replaced with a
// no-op logger / fresh cache respectively.
func NewInjector(registry *GlobalRegistry, cache *InjectionCache, logger Logger) *Injector {
	if cache == nil {
		cache = NewInjectionCache()
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Injector{registry: registry, cache: cache, budget: DefaultInjectionBudget, logger: logger}
}

// WithBudget returns a copy of the injector using budget instead of
// DefaultInjectionBudget.
func (in *Injector) WithBudget(budget time.Duration) *Injector {
	cp := *in
	cp.budget = budget
	return &cp
}

// Inject initializes (where not already cached warm) and injects every
// registered global, in dependency order, into engine. It always attempts
// every global — a single over-budget global is logged, not fatal, since
// the budget is a monitoring signal, not a hard cutoff.
func (in *Injector) Inject(ctx context.Context, engine Engine) (*InjectionMetrics, error) {
	order, err := in.registry.Order()
	if err != nil {
		return nil, err
	}

	metrics := &InjectionMetrics{
		EngineKind: engine.Kind(),
		PerGlobal:  make(map[string]time.Duration, len(order)),
	}

	start := time.Now()
	for _, g := range order {
		globalStart := time.Now()

		if !in.cache.checkAndMark(g.Name(), engine.Kind()) {
			metrics.CacheMisses++
			if err := g.Initialize(ctx); err != nil {
				return metrics, fmt.Errorf("script: initializing global %q for %s: %w", g.Name(), engine.Kind(), err)
			}
		} else {
			metrics.CacheHits++
		}

		if err := g.Inject(ctx, engine.Handle()); err != nil {
			return metrics, fmt.Errorf("script: injecting global %q into %s: %w", g.Name(), engine.Kind(), err)
		}

		elapsed := time.Since(globalStart)
		metrics.PerGlobal[g.Name()] = elapsed
		if elapsed > in.budget {
			metrics.OverBudget = append(metrics.OverBudget, g.Name())
			in.logger.Warn("script: global injection exceeded budget",
				"global", g.Name(), "engine", engine.Kind(), "elapsed", elapsed, "budget", in.budget)
		}
	}
	metrics.Total = time.Since(start)
	return metrics, nil
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}
