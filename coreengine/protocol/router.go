package protocol

import (
	"sync"
	"sync/atomic"
)

// RoutingStrategy selects which registered Handler(s) a channel delivers an
// inbound message to. Channels bind one strategy each at construction time:
// Shell/Stdin/Control use Direct, IOPub uses Broadcast, RoundRobin/
// LoadBalanced are available overrides for testing.
type RoutingStrategy interface {
	// Route selects the handler(s) that should process msg, given the
	// channel's currently registered handlers in registration order.
	Route(handlers []Handler) []Handler
}

// DirectRouter always selects the first registered handler — the default
// for Shell, Stdin, and Control.
type DirectRouter struct{}

func (DirectRouter) Route(handlers []Handler) []Handler {
	if len(handlers) == 0 {
		return nil
	}
	return handlers[:1]
}

// BroadcastRouter delivers to every registered handler — IOPub's default.
type BroadcastRouter struct{}

func (BroadcastRouter) Route(handlers []Handler) []Handler { return handlers }

// RoundRobinRouter cycles through handlers using a per-channel monotonic
// index.
type RoundRobinRouter struct {
	next atomic.Uint64
}

func (r *RoundRobinRouter) Route(handlers []Handler) []Handler {
	if len(handlers) == 0 {
		return nil
	}
	i := r.next.Add(1) - 1
	return handlers[i%uint64(len(handlers)) : i%uint64(len(handlers))+1]
}

// LoadBalancedRouter tracks a per-handler in-flight counter and always
// selects whichever handler currently has the lowest count, breaking ties
// by registration (insertion) order. Callers MUST call ReleaseIndex once the
// selected handler finishes, or the counter never decrements.
type LoadBalancedRouter struct {
	mu      sync.Mutex
	inFlight map[int]*atomic.Int64
}

// NewLoadBalancedRouter returns a router with no counters yet; a counter is
// created for a registration index the first time it is consulted.
func NewLoadBalancedRouter() *LoadBalancedRouter {
	return &LoadBalancedRouter{inFlight: make(map[int]*atomic.Int64)}
}

func (r *LoadBalancedRouter) counter(i int) *atomic.Int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.inFlight[i]
	if !ok {
		c = &atomic.Int64{}
		r.inFlight[i] = c
	}
	return c
}

// Route selects the lowest-load handler and increments its counter. The
// returned slice is always length 1 (or 0 if handlers is empty). Route does
// not report the selected index; RouteIndexed does, for the ReleaseIndex call
// the caller makes once done.
func (r *LoadBalancedRouter) Route(handlers []Handler) []Handler {
	if len(handlers) == 0 {
		return nil
	}
	bestIdx := 0
	bestLoad := r.counter(0).Load()
	for i := 1; i < len(handlers); i++ {
		load := r.counter(i).Load()
		if load < bestLoad {
			bestIdx = i
			bestLoad = load
		}
	}
	r.counter(bestIdx).Add(1)
	return handlers[bestIdx : bestIdx+1]
}

// ReleaseIndex decrements the in-flight counter for handler index i,
// matching the index Route internally selected. The Engine tracks this
// index itself (see engine.go) since Handler values aren't comparable.
func (r *LoadBalancedRouter) ReleaseIndex(i int) {
	r.counter(i).Add(-1)
}

// RouteIndexed is like Route but also returns the selected index, so
// callers (the Engine) can pair a later ReleaseIndex call without relying
// on Handler equality.
func (r *LoadBalancedRouter) RouteIndexed(handlers []Handler) (Handler, int, bool) {
	if len(handlers) == 0 {
		return nil, 0, false
	}
	bestIdx := 0
	bestLoad := r.counter(0).Load()
	for i := 1; i < len(handlers); i++ {
		load := r.counter(i).Load()
		if load < bestLoad {
			bestIdx = i
			bestLoad = load
		}
	}
	r.counter(bestIdx).Add(1)
	return handlers[bestIdx], bestIdx, true
}

// DefaultRouterFor returns the default routing strategy for channel.
func DefaultRouterFor(channel Channel) RoutingStrategy {
	switch channel {
	case ChannelIOPub:
		return BroadcastRouter{}
	case ChannelHeartbeat:
		return echoRouter{}
	default:
		return DirectRouter{}
	}
}

// echoRouter is Heartbeat's strategy: there are no handlers to select among
// since a heartbeat reply is generated by the channel itself (see
// engine.go's Heartbeat handling), so Route always returns nil.
type echoRouter struct{}

func (echoRouter) Route([]Handler) []Handler { return nil }
