package agents

import (
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/events"
)

// BusEventContext implements EventContext on top of an events.Bus, so agent
// lifecycle (start/complete) shows up as UniversalEvents alongside whatever
// else the bus carries, instead of going nowhere.
type BusEventContext struct {
	Bus           *events.Bus
	CorrelationID string
}

// EmitAgentStarted publishes an "agent.execution.started" event.
func (c *BusEventContext) EmitAgentStarted(agentName string) error {
	ev, err := events.NewUniversalEvent("agent.execution.started", "agents", c.CorrelationID, map[string]any{
		"agent": agentName,
	})
	if err != nil {
		return err
	}
	c.Bus.Publish(ev)
	return nil
}

// EmitAgentCompleted publishes an "agent.execution.completed" event.
func (c *BusEventContext) EmitAgentCompleted(agentName string, status string, durationMS int, err error) error {
	payload := map[string]any{
		"agent":       agentName,
		"status":      status,
		"duration_ms": durationMS,
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	ev, buildErr := events.NewUniversalEvent("agent.execution.completed", "agents", c.CorrelationID, payload)
	if buildErr != nil {
		return buildErr
	}
	c.Bus.Publish(ev)
	return nil
}
