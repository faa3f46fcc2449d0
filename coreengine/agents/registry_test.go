package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_CreateAndList(t *testing.T) {
	r := NewRegistry(&MockLogger{}, &MockLLMProvider{response: "hi"}, &MockToolExecutor{})

	name, err := r.Create(map[string]any{
		"name":       "greeter",
		"has_llm":    true,
		"model_role": "default",
		"prompt_key": "greeting",
	})
	require.NoError(t, err)
	assert.Equal(t, "greeter", name)
	assert.Equal(t, []string{"greeter"}, r.List())
}

func TestRegistry_Create_MissingName(t *testing.T) {
	r := NewRegistry(&MockLogger{}, nil, nil)

	_, err := r.Create(map[string]any{"has_llm": false})
	require.Error(t, err)
}

func TestRegistry_Execute_UnknownAgent(t *testing.T) {
	r := NewRegistry(&MockLogger{}, nil, nil)

	_, err := r.Execute(context.Background(), "missing", map[string]any{})
	require.Error(t, err)
}

func TestRegistry_Execute_RunsRegisteredAgent(t *testing.T) {
	r := NewRegistry(&MockLogger{}, &MockLLMProvider{response: `{"response": "hello there"}`}, &MockToolExecutor{})

	name, err := r.Create(map[string]any{
		"name":       "greeter",
		"has_llm":    true,
		"model_role": "default",
	})
	require.NoError(t, err)

	output, err := r.Execute(context.Background(), name, map[string]any{
		"raw_input": "say hi",
		"user_id":   "u1",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", output["response"])
}

func TestRegistry_DiscoverTools_NoneAccess(t *testing.T) {
	r := NewRegistry(&MockLogger{}, nil, nil)

	name, err := r.Create(map[string]any{
		"name":        "reasoner",
		"tool_access": "none",
	})
	require.NoError(t, err)

	tools, err := r.DiscoverTools(name)
	require.NoError(t, err)
	assert.Empty(t, tools)
}

func TestRegistry_DiscoverTools_AllowedSubset(t *testing.T) {
	r := NewRegistry(&MockLogger{}, nil, &MockToolExecutor{})

	name, err := r.Create(map[string]any{
		"name":          "worker",
		"has_tools":     true,
		"tool_access":   "read",
		"allowed_tools": map[string]any{"search": true, "delete": false},
	})
	require.NoError(t, err)

	tools, err := r.DiscoverTools(name)
	require.NoError(t, err)
	assert.Equal(t, []string{"search"}, tools)
}
