package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/config"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/envelope"
)

// Registry is the concrete agent host a script engine's Agent.* bindings
// bind to (coreengine/script.AgentProvider's List/Create/Execute/
// DiscoverTools method set): a name -> *Agent map built on top of the
// single-class Agent type, the same way coreengine/tools.ToolExecutor hosts
// named tools behind Execute/Has/List.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	logger Logger
	llm    LLMProvider
	tools  ToolExecutor
}

// NewRegistry creates an empty agent registry. llm and tools are shared
// providers handed to every agent created through Create; individual agents
// that don't declare HasLLM/HasTools simply leave them unused.
func NewRegistry(logger Logger, llm LLMProvider, tools ToolExecutor) *Registry {
	return &Registry{
		agents: make(map[string]*Agent),
		logger: logger,
		llm:    llm,
		tools:  tools,
	}
}

// List returns the names of all registered agents.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}

// Create builds an Agent from a generic config map (e.g. as decoded from a
// script engine's JS/Lua object) and registers it under cfg["name"].
// Unknown keys are ignored, matching config.CoreConfigFromMap's convention.
func (r *Registry) Create(configMap map[string]any) (string, error) {
	raw, err := json.Marshal(configMap)
	if err != nil {
		return "", fmt.Errorf("agent config is not serializable: %w", err)
	}

	cfg := &config.AgentConfig{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return "", fmt.Errorf("agent config does not match expected shape: %w", err)
	}
	if cfg.Name == "" {
		return "", fmt.Errorf("agent config missing required field: name")
	}

	agent, err := NewAgent(cfg, r.logger, r.llm, r.tools)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[cfg.Name] = agent
	return cfg.Name, nil
}

// Execute runs the named agent against a synthetic single-stage envelope
// built from input, and returns the agent's Outputs entry for that stage.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any) (map[string]any, error) {
	agent, err := r.get(name)
	if err != nil {
		return nil, err
	}

	env := envelope.NewGenericEnvelope()
	env.StageOrder = []string{name}
	if userID, ok := input["user_id"].(string); ok {
		env.UserID = userID
	}
	if sessionID, ok := input["session_id"].(string); ok {
		env.SessionID = sessionID
	}
	if rawInput, ok := input["raw_input"].(string); ok {
		env.RawInput = rawInput
	}
	env.Outputs[name] = input

	result, err := agent.Process(ctx, env)
	if err != nil {
		return nil, err
	}
	return result.Outputs[agent.Config.OutputKey], nil
}

// DiscoverTools reports the tool names the named agent is permitted to
// invoke, per its ToolAccess/AllowedTools configuration.
func (r *Registry) DiscoverTools(name string) ([]string, error) {
	agent, err := r.get(name)
	if err != nil {
		return nil, err
	}
	if agent.Config.ToolAccess == config.ToolAccessNone {
		return []string{}, nil
	}

	names := make([]string, 0, len(agent.Config.AllowedTools))
	for toolName, allowed := range agent.Config.AllowedTools {
		if allowed {
			names = append(names, toolName)
		}
	}
	return names, nil
}

func (r *Registry) get(name string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[name]
	if !ok {
		return nil, fmt.Errorf("agent not found: %s", name)
	}
	return agent, nil
}
