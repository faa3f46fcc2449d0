package kernel

import (
	"encoding/json"
	"fmt"

	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/protocol"
)

// ExecutionManagerProcessor answers LDP debug requests against the
// Kernel's DebugSession registry: the wire-protocol face of the
// breakpoint/step/continue state machine in debug.go.
type ExecutionManagerProcessor struct {
	kernel *Kernel
}

// NewExecutionManagerProcessor builds a processor serving k's debug
// sessions.
func NewExecutionManagerProcessor(k *Kernel) *ExecutionManagerProcessor {
	return &ExecutionManagerProcessor{kernel: k}
}

// Capabilities reports the execution_manager capability name.
func (p *ExecutionManagerProcessor) Capabilities() []string {
	return []string{protocol.CapabilityExecutionManager}
}

// ProcessLRP rejects every request with UnknownRequestError: this processor
// only answers LDP debug requests.
func (p *ExecutionManagerProcessor) ProcessLRP(msgType string, content json.RawMessage) (json.RawMessage, error) {
	return nil, &protocol.UnknownRequestError{Kind: msgType}
}

// debugStateReply is the wire shape returned for any command that reports
// session state (start, set_breakpoint, remove_breakpoint, continue/step*,
// state).
type debugStateReply struct {
	PID         string        `json:"pid"`
	State       string        `json:"state"`
	Breakpoints []*Breakpoint `json:"breakpoints,omitempty"`
}

// ProcessLDP dispatches req.Content.Command against the DebugSession
// registered for req.Content.Args["pid"], creating one on "start".
func (p *ExecutionManagerProcessor) ProcessLDP(req protocol.DebugRequest) (json.RawMessage, error) {
	args := req.Content.Args
	pid, _ := args["pid"].(string)
	if pid == "" {
		return nil, fmt.Errorf("execution_manager: missing pid")
	}

	if req.Content.Command == "start" {
		requestID, _ := args["request_id"].(string)
		userID, _ := args["user_id"].(string)
		sessionID, _ := args["session_id"].(string)
		envelopeID, _ := args["envelope_id"].(string)
		session := p.kernel.StartDebugSession(pid, requestID, userID, sessionID, envelopeID)
		return json.Marshal(debugStateReply{PID: pid, State: session.State(), Breakpoints: session.Breakpoints()})
	}

	session := p.kernel.GetDebugSession(pid)
	if session == nil {
		return nil, fmt.Errorf("execution_manager: no debug session for pid %s", pid)
	}

	switch req.Content.Command {
	case "set_breakpoint":
		id, _ := args["id"].(string)
		location, _ := args["location"].(string)
		condition, _ := args["condition"].(string)
		session.SetBreakpoint(id, location, condition)
		return json.Marshal(debugStateReply{PID: pid, State: session.State(), Breakpoints: session.Breakpoints()})

	case "remove_breakpoint":
		id, _ := args["id"].(string)
		session.RemoveBreakpoint(id)
		return json.Marshal(debugStateReply{PID: pid, State: session.State(), Breakpoints: session.Breakpoints()})

	case "continue":
		return p.resumeReply(pid, session, session.Continue())
	case "step_in":
		return p.resumeReply(pid, session, session.StepIn())
	case "step_over":
		return p.resumeReply(pid, session, session.StepOver())
	case "step_out":
		return p.resumeReply(pid, session, session.StepOut())

	case "state":
		return json.Marshal(debugStateReply{PID: pid, State: session.State(), Breakpoints: session.Breakpoints()})

	case "terminate":
		reason, _ := args["reason"].(string)
		if err := session.Terminate(reason); err != nil {
			return nil, err
		}
		p.kernel.EndDebugSession(pid)
		return json.Marshal(debugStateReply{PID: pid, State: "terminated"})

	default:
		return nil, &protocol.UnknownRequestError{Kind: req.Content.Command}
	}
}

func (p *ExecutionManagerProcessor) resumeReply(pid string, session *DebugSession, err error) (json.RawMessage, error) {
	if err != nil {
		return nil, err
	}
	return json.Marshal(debugStateReply{PID: pid, State: session.State(), Breakpoints: session.Breakpoints()})
}
