package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/agents"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/config"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/envelope"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/events"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/hooks"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/testutil"
)

// TestDAGExecutor_PublishesStageEventsAndRunsHooks runs a single-stage echo
// pipeline through DAGExecutor with both EventBus and Hooks wired, and
// checks that a stage completion shows up on both.
func TestDAGExecutor_PublishesStageEventsAndRunsHooks(t *testing.T) {
	cfg := &config.PipelineConfig{
		Name:          "echo_test",
		MaxIterations: 3,
		MaxLLMCalls:   10,
		MaxAgentHops:  21,
		Agents: []*config.AgentConfig{
			{Name: "echo", StageOrder: 0, OutputKey: "echo"},
		},
	}
	require.NoError(t, cfg.Validate())

	echoAgent, err := agents.NewAgent(cfg.Agents[0], testutil.NewMockLogger(), nil, nil)
	require.NoError(t, err)
	echoAgent.UseMock = true
	echoAgent.MockHandler = func(env *envelope.GenericEnvelope) (map[string]any, error) {
		return map[string]any{"text": env.RawInput}, nil
	}

	bus := events.NewBus(nil)
	received := make(chan events.UniversalEvent, 4)
	unsubscribe, err := bus.Subscribe("workflow.stage.*", events.DropNew, 4, func(ev events.UniversalEvent) {
		received <- ev
	})
	require.NoError(t, err)
	defer unsubscribe()

	registry := hooks.NewRegistry()
	hookRan := make(chan hooks.HookPoint, 4)
	observe := hooks.NewFnHook(hooks.HookMetadata{Name: "observe"}, func(ctx *hooks.HookContext) (hooks.HookResult, error) {
		hookRan <- ctx.Point
		return hooks.Continue(), nil
	})
	require.NoError(t, registry.Register(hooks.HookPointBeforeWorkflowStage, hooks.HookMetadata{Name: "observe"}, observe))
	require.NoError(t, registry.Register(hooks.HookPointAfterWorkflowStage, hooks.HookMetadata{Name: "observe"}, observe))
	executor := hooks.NewExecutor(registry, nil, nil)

	dag := NewDAGExecutor(cfg, map[string]*agents.UnifiedAgent{"echo": echoAgent}, testutil.NewMockLogger())
	dag.EventBus = bus
	dag.Hooks = executor

	env := envelope.NewGenericEnvelope()
	env.RawInput = "hello"

	result, err := dag.Execute(context.Background(), env, "")
	require.NoError(t, err)
	assert.True(t, result.IsStageCompleted("echo"))

	select {
	case ev := <-received:
		assert.Equal(t, "workflow.stage.completed", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a stage event to be published")
	}

	seen := map[hooks.HookPoint]bool{}
	for i := 0; i < 2; i++ {
		select {
		case point := <-hookRan:
			seen[point] = true
		case <-time.After(time.Second):
			t.Fatalf("expected 2 hook invocations, got %d", i)
		}
	}
	assert.True(t, seen[hooks.HookPointBeforeWorkflowStage])
	assert.True(t, seen[hooks.HookPointAfterWorkflowStage])
}

// TestDAGExecutor_PublishesFailureEvent confirms a failing stage publishes a
// workflow.stage.failed event and runs the OnError hook chain.
func TestDAGExecutor_PublishesFailureEvent(t *testing.T) {
	cfg := &config.PipelineConfig{
		Name:          "fail_test",
		MaxIterations: 3,
		MaxLLMCalls:   10,
		MaxAgentHops:  21,
		Agents: []*config.AgentConfig{
			{Name: "boom", StageOrder: 0, OutputKey: "boom"},
		},
	}
	require.NoError(t, cfg.Validate())

	boomAgent, err := agents.NewAgent(cfg.Agents[0], testutil.NewMockLogger(), nil, nil)
	require.NoError(t, err)
	boomAgent.UseMock = true
	boomAgent.MockHandler = func(env *envelope.GenericEnvelope) (map[string]any, error) {
		return nil, assert.AnError
	}

	bus := events.NewBus(nil)
	received := make(chan events.UniversalEvent, 4)
	unsubscribe, err := bus.Subscribe("workflow.stage.*", events.DropNew, 4, func(ev events.UniversalEvent) {
		received <- ev
	})
	require.NoError(t, err)
	defer unsubscribe()

	registry := hooks.NewRegistry()
	onError := make(chan struct{}, 1)
	require.NoError(t, registry.Register(hooks.HookPointOnError, hooks.HookMetadata{Name: "observe_error"}, hooks.NewFnHook(
		hooks.HookMetadata{Name: "observe_error"},
		func(ctx *hooks.HookContext) (hooks.HookResult, error) {
			onError <- struct{}{}
			return hooks.Continue(), nil
		},
	)))
	executor := hooks.NewExecutor(registry, nil, nil)

	dag := NewDAGExecutor(cfg, map[string]*agents.UnifiedAgent{"boom": boomAgent}, testutil.NewMockLogger())
	dag.EventBus = bus
	dag.Hooks = executor

	env := envelope.NewGenericEnvelope()
	env.RawInput = "hello"

	_, err = dag.Execute(context.Background(), env, "")
	require.Error(t, err)

	select {
	case ev := <-received:
		assert.Equal(t, "workflow.stage.failed", ev.Type)
	case <-time.After(time.Second):
		t.Fatal("expected a stage failure event to be published")
	}

	select {
	case <-onError:
	case <-time.After(time.Second):
		t.Fatal("expected the OnError hook to run")
	}
}
