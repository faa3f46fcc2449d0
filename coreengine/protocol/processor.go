package protocol

import "encoding/json"

// MessageProcessor is a capability object addressed by name: it answers
// both LRP frames and LDP debug requests and reports which capability
// names it claims. The Engine selects a
// processor per request family via the LRP msg_type or the LDP request's
// CapabilityName(); an unmatched request type returns ErrorReply, never a
// panic or a leaked internal error.
type MessageProcessor interface {
	// ProcessLRP handles one LRP frame, keyed by msgType (e.g.
	// "execute_request").
	ProcessLRP(msgType string, content json.RawMessage) (json.RawMessage, error)
	// ProcessLDP handles one LDP debug request.
	ProcessLDP(req DebugRequest) (json.RawMessage, error)
	// Capabilities lists the capability names this processor answers for,
	// used by the Engine to build its capability->processor routing table.
	Capabilities() []string
}

// UnknownRequestError is returned by a MessageProcessor (or surfaced by the
// Engine itself) for a request type/capability nothing can service.
type UnknownRequestError struct {
	Kind string
}

func (e *UnknownRequestError) Error() string {
	return "protocol: unknown request " + e.Kind
}

// NullProcessor answers kernel_info/shutdown/interrupt directly and returns
// UnknownRequestError for everything else. Used both as a test double and
// as the Engine's fallback when no processor claims a capability.
type NullProcessor struct {
	Implementation        string
	ImplementationVersion string
}

// NewNullProcessor returns a NullProcessor identifying itself as this
// kernel.
func NewNullProcessor() *NullProcessor {
	return &NullProcessor{Implementation: "llmspellkernel", ImplementationVersion: "0.1.0"}
}

func (p *NullProcessor) ProcessLRP(msgType string, content json.RawMessage) (json.RawMessage, error) {
	switch LRPRequestType(msgType) {
	case KernelInfoRequestType:
		return json.Marshal(KernelInfoReply{
			ProtocolVersion:       "5.3",
			Implementation:        p.Implementation,
			ImplementationVersion: p.ImplementationVersion,
			LanguageInfo: LanguageInfo{
				Name: "multi", MimeType: "text/plain", FileExtension: ".script",
			},
			Banner:    p.Implementation + " kernel",
			Debugger:  true,
			HelpLinks: nil,
		})
	case ShutdownRequestType:
		var req ShutdownRequest
		_ = json.Unmarshal(content, &req)
		return json.Marshal(ShutdownReply{Restart: req.Restart})
	case InterruptRequestType:
		return json.Marshal(InterruptReply{})
	default:
		return nil, &UnknownRequestError{Kind: msgType}
	}
}

func (p *NullProcessor) ProcessLDP(req DebugRequest) (json.RawMessage, error) {
	return nil, &UnknownRequestError{Kind: req.CapabilityName()}
}

func (p *NullProcessor) Capabilities() []string {
	return []string{CapabilityREPL}
}
