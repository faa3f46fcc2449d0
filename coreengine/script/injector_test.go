package script

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowGlobal struct {
	fakeGlobal
	sleep time.Duration
}

func (g *slowGlobal) Initialize(ctx context.Context) error {
	time.Sleep(g.sleep)
	return g.fakeGlobal.Initialize(ctx)
}

type fakeEngine struct{ kind EngineKind }

func (e fakeEngine) Kind() EngineKind { return e.kind }
func (e fakeEngine) Handle() any      { return nil }

func TestInjector_InjectsInDependencyOrder(t *testing.T) {
	var injected []string
	track := func(name string) *fakeGlobal {
		return &fakeGlobal{name: name}
	}
	_ = injected

	r := NewGlobalRegistry()
	r.Register(track("State"))
	r.Register(track("Session"))

	in := NewInjector(r, nil, nil)
	metrics, err := in.Inject(context.Background(), fakeEngine{kind: EngineGoja})
	require.NoError(t, err)
	assert.Len(t, metrics.PerGlobal, 2)
	assert.Equal(t, EngineGoja, metrics.EngineKind)
}

func TestInjector_FlagsOverBudgetNonFatally(t *testing.T) {
	r := NewGlobalRegistry()
	r.Register(&slowGlobal{fakeGlobal: fakeGlobal{name: "Slow"}, sleep: 10 * time.Millisecond})

	in := NewInjector(r, nil, nil).WithBudget(1 * time.Millisecond)
	metrics, err := in.Inject(context.Background(), fakeEngine{kind: EngineLua})
	require.NoError(t, err, "exceeding the budget must be a warning, not an error")
	assert.Contains(t, metrics.OverBudget, "Slow")
}

func TestInjector_CacheAvoidsReinitializing(t *testing.T) {
	calls := 0
	r := NewGlobalRegistry()
	r.Register(&fakeGlobal{name: "Template", init: func(context.Context) error {
		calls++
		return nil
	}})

	cache := NewInjectionCache()
	in := NewInjector(r, cache, nil)

	_, err := in.Inject(context.Background(), fakeEngine{kind: EngineGoja})
	require.NoError(t, err)
	_, err = in.Inject(context.Background(), fakeEngine{kind: EngineGoja})
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "second injection into the same engine kind must hit the cache")

	hits, misses := cache.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)
}

func TestInjector_CacheIsPerEngineKind(t *testing.T) {
	calls := 0
	r := NewGlobalRegistry()
	r.Register(&fakeGlobal{name: "Template", init: func(context.Context) error {
		calls++
		return nil
	}})

	cache := NewInjectionCache()
	in := NewInjector(r, cache, nil)

	_, err := in.Inject(context.Background(), fakeEngine{kind: EngineGoja})
	require.NoError(t, err)
	_, err = in.Inject(context.Background(), fakeEngine{kind: EngineLua})
	require.NoError(t, err)

	assert.Equal(t, 2, calls, "distinct engine kinds must not share a cache entry")
}

func TestInjectionMetrics_HitRate(t *testing.T) {
	m := &InjectionMetrics{CacheHits: 3, CacheMisses: 1}
	assert.Equal(t, 0.75, m.HitRate())

	empty := &InjectionMetrics{}
	assert.Equal(t, float64(0), empty.HitRate())
}
