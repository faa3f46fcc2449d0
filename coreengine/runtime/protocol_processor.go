package runtime

import (
	"context"
	"encoding/json"

	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/agents"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/config"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/envelope"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/events"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/hooks"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/protocol"
)

// PipelineProcessor answers LRP execute_request frames by running pipeline
// through a fresh DAGExecutor, and otherwise delegates to an embedded
// NullProcessor for kernel_info/shutdown/interrupt.
type PipelineProcessor struct {
	*protocol.NullProcessor

	pipeline  *config.PipelineConfig
	agents    map[string]*agents.UnifiedAgent
	logger    agents.Logger
	eventBus  *events.Bus
	hooksExec *hooks.Executor
}

// NewPipelineProcessor builds a processor that runs pipeline over agentsMap
// for every execute_request it receives. eventBus and hooksExec are
// forwarded to the DAGExecutor it builds per request; either may be nil.
func NewPipelineProcessor(
	pipeline *config.PipelineConfig,
	agentsMap map[string]*agents.UnifiedAgent,
	logger agents.Logger,
	eventBus *events.Bus,
	hooksExec *hooks.Executor,
) *PipelineProcessor {
	return &PipelineProcessor{
		NullProcessor: protocol.NewNullProcessor(),
		pipeline:      pipeline,
		agents:        agentsMap,
		logger:        logger,
		eventBus:      eventBus,
		hooksExec:     hooksExec,
	}
}

// Capabilities claims the REPL capability: DispatchLRP always routes
// through whichever processor holds it.
func (p *PipelineProcessor) Capabilities() []string {
	return []string{protocol.CapabilityREPL}
}

// executeReply is execute_request's response: the envelope's outputs map
// once the pipeline finishes (or stops early on a bounds/failure exit).
type executeReply struct {
	Status  string                     `json:"status"`
	Outputs map[string]map[string]any `json:"outputs,omitempty"`
	Error   string                     `json:"error,omitempty"`
}

// ProcessLRP runs the pipeline for execute_request and delegates every
// other LRP request type to the embedded NullProcessor.
func (p *PipelineProcessor) ProcessLRP(msgType string, content json.RawMessage) (json.RawMessage, error) {
	if protocol.LRPRequestType(msgType) != protocol.ExecuteRequestType {
		return p.NullProcessor.ProcessLRP(msgType, content)
	}

	var req protocol.ExecuteRequest
	if err := json.Unmarshal(content, &req); err != nil {
		return nil, err
	}

	env := envelope.NewGenericEnvelope()
	env.RawInput = req.Code

	executor := NewDAGExecutor(p.pipeline, p.agents, p.logger)
	executor.EventBus = p.eventBus
	executor.Hooks = p.hooksExec

	result, err := executor.Execute(context.Background(), env, "")
	if err != nil {
		return json.Marshal(executeReply{Status: "error", Error: err.Error()})
	}
	return json.Marshal(executeReply{Status: "ok", Outputs: result.Outputs})
}
