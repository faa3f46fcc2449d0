package script

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGlobal struct {
	name string
	deps []string
	init func(context.Context) error
}

func (f *fakeGlobal) Name() string                     { return f.name }
func (f *fakeGlobal) Dependencies() []string            { return f.deps }
func (f *fakeGlobal) Initialize(ctx context.Context) error {
	if f.init != nil {
		return f.init(ctx)
	}
	return nil
}
func (f *fakeGlobal) Inject(ctx context.Context, engine any) error { return nil }

func indexOf(order []Global, name string) int {
	for i, g := range order {
		if g.Name() == name {
			return i
		}
	}
	return -1
}

func TestGlobalRegistry_OrderRespectsDependencies(t *testing.T) {
	r := NewGlobalRegistry()
	r.Register(&fakeGlobal{name: "Session", deps: []string{"State"}})
	r.Register(&fakeGlobal{name: "State"})
	r.Register(&fakeGlobal{name: "Artifact", deps: []string{"Session"}})

	order, err := r.Order()
	require.NoError(t, err)
	require.Len(t, order, 3)

	assert.Less(t, indexOf(order, "State"), indexOf(order, "Session"))
	assert.Less(t, indexOf(order, "Session"), indexOf(order, "Artifact"))
}

func TestGlobalRegistry_OrderIsDeterministic(t *testing.T) {
	r := NewGlobalRegistry()
	r.Register(&fakeGlobal{name: "Agent"})
	r.Register(&fakeGlobal{name: "Tool"})
	r.Register(&fakeGlobal{name: "State"})

	first, err := r.Order()
	require.NoError(t, err)
	second, err := r.Order()
	require.NoError(t, err)

	var firstNames, secondNames []string
	for _, g := range first {
		firstNames = append(firstNames, g.Name())
	}
	for _, g := range second {
		secondNames = append(secondNames, g.Name())
	}
	assert.Equal(t, firstNames, secondNames)
	assert.Equal(t, []string{"Agent", "Tool", "State"}, firstNames)
}

func TestGlobalRegistry_CycleRejected(t *testing.T) {
	r := NewGlobalRegistry()
	r.Register(&fakeGlobal{name: "A", deps: []string{"B"}})
	r.Register(&fakeGlobal{name: "B", deps: []string{"A"}})

	_, err := r.Order()
	require.Error(t, err)
	var cycleErr *ErrCyclicDependency
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"A", "B"}, cycleErr.Remaining)
}

func TestGlobalRegistry_UnregisteredDependencyIgnored(t *testing.T) {
	r := NewGlobalRegistry()
	r.Register(&fakeGlobal{name: "Debug", deps: []string{"Session"}})

	order, err := r.Order()
	require.NoError(t, err)
	require.Len(t, order, 1)
	assert.Equal(t, "Debug", order[0].Name())
}

func TestGlobalRegistry_InitializeAllStopsOnError(t *testing.T) {
	r := NewGlobalRegistry()
	errBoom := assert.AnError
	r.Register(&fakeGlobal{name: "A"})
	r.Register(&fakeGlobal{name: "B", deps: []string{"A"}, init: func(context.Context) error { return errBoom }})
	r.Register(&fakeGlobal{name: "C", deps: []string{"B"}})

	err := r.InitializeAll(context.Background())
	require.Error(t, err)
}
