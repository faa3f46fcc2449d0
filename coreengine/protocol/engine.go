package protocol

import (
	"encoding/json"
	"fmt"
	"sync"
)

// channelState is one channel's registered handlers plus the routing
// strategy chosen for it.
type channelState struct {
	router   RoutingStrategy
	handlers []Handler
}

// Engine is the protocol engine: it owns one channelState per Channel, a
// capability->MessageProcessor routing table built from each registered
// processor's Capabilities(), and dispatches inbound UniversalMessages
// accordingly. Adapters (LRP/LDP) sit in front of it, converting wire
// frames into UniversalMessage before calling Dispatch.
type Engine struct {
	mu       sync.RWMutex
	channels map[Channel]*channelState
	byCap    map[string]MessageProcessor
	fallback MessageProcessor
}

// NewEngine builds an Engine with the default router per channel and
// fallback as the processor consulted when no registered capability claims
// a request (typically a NullProcessor).
func NewEngine(fallback MessageProcessor) *Engine {
	e := &Engine{
		channels: make(map[Channel]*channelState),
		byCap:    make(map[string]MessageProcessor),
		fallback: fallback,
	}
	for _, ch := range []Channel{ChannelShell, ChannelIOPub, ChannelStdin, ChannelControl, ChannelHeartbeat} {
		e.channels[ch] = &channelState{router: DefaultRouterFor(ch)}
	}
	return e
}

// SetRouter overrides a channel's routing strategy, useful for testing.
func (e *Engine) SetRouter(ch Channel, router RoutingStrategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.channelOrNew(ch).router = router
}

func (e *Engine) channelOrNew(ch Channel) *channelState {
	cs, ok := e.channels[ch]
	if !ok {
		cs = &channelState{router: DefaultRouterFor(ch)}
		e.channels[ch] = cs
	}
	return cs
}

// RegisterHandler adds handler to ch's handler list, in registration order
// (DirectRouter's "first registered handler" depends on this order being
// preserved).
func (e *Engine) RegisterHandler(ch Channel, handler Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cs := e.channelOrNew(ch)
	cs.handlers = append(cs.handlers, handler)
}

// RegisterProcessor adds processor to the engine's capability routing
// table, under every name it reports from Capabilities().
func (e *Engine) RegisterProcessor(processor MessageProcessor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, cap := range processor.Capabilities() {
		e.byCap[cap] = processor
	}
}

// processorFor resolves which MessageProcessor should answer capability,
// falling back to e.fallback when nothing claimed it.
func (e *Engine) processorFor(capability string) MessageProcessor {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if p, ok := e.byCap[capability]; ok {
		return p
	}
	return e.fallback
}

// DispatchLRP routes an LRP frame by msgType to whichever processor claims
// CapabilityREPL (the LRP family's capability name), then delivers the
// frame to ch's routed handler(s).
func (e *Engine) DispatchLRP(ch Channel, msgType string, content json.RawMessage) (json.RawMessage, error) {
	processor := e.processorFor(CapabilityREPL)
	if processor == nil {
		return nil, fmt.Errorf("protocol: no processor registered for %s", CapabilityREPL)
	}

	reply, err := processor.ProcessLRP(msgType, content)
	e.deliverToChannel(ch, UniversalMessage{
		Header:     MessageHeader{MsgType: msgType},
		Channel:    ch,
		Capability: CapabilityREPL,
		Content:    content,
	})
	return reply, err
}

// DispatchLDP routes a debug request to the processor registered for its
// capability, delivering it on Control, the priority-requests channel for
// the debug protocol.
func (e *Engine) DispatchLDP(req DebugRequest) (json.RawMessage, error) {
	processor := e.processorFor(req.CapabilityName())
	if processor == nil {
		return nil, &UnknownRequestError{Kind: req.CapabilityName()}
	}

	content, err := json.Marshal(req.Content)
	if err != nil {
		return nil, err
	}
	reply, procErr := processor.ProcessLDP(req)
	e.deliverToChannel(ChannelControl, UniversalMessage{
		Header:     MessageHeader{MsgType: req.CapabilityName()},
		Channel:    ChannelControl,
		Capability: req.CapabilityName(),
		Content:    content,
	})
	return reply, procErr
}

// deliverToChannel routes msg to ch's registered handlers via its routing
// strategy. Handler errors are swallowed here since Dispatch* already
// returned the processor's own reply/error to the caller — channel
// delivery is a side observation (e.g. IOPub broadcast for logging/UI),
// not the primary response path.
func (e *Engine) deliverToChannel(ch Channel, msg UniversalMessage) {
	e.mu.RLock()
	cs, ok := e.channels[ch]
	e.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.RLock()
	handlers := append([]Handler(nil), cs.handlers...)
	router := cs.router
	e.mu.RUnlock()

	if lb, ok := router.(*LoadBalancedRouter); ok {
		if handler, idx, ok := lb.RouteIndexed(handlers); ok {
			if handler != nil {
				_, _ = handler(msg)
			}
			lb.ReleaseIndex(idx)
		}
		return
	}

	for _, handler := range router.Route(handlers) {
		if handler == nil {
			continue
		}
		_, _ = handler(msg)
	}
}

// Heartbeat answers the Heartbeat channel's liveness check by echoing msg
// back unchanged.
func (e *Engine) Heartbeat(msg json.RawMessage) json.RawMessage { return msg }
