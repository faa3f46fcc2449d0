package hooks

import (
	"sort"
	"sync"
	"time"
)

// BreakerState mirrors commbus/middleware.go's CircuitBreakerState three-value
// state machine (closed/open/half-open), generalized with a rolling p50
// latency predicate in addition to the consecutive-failure predicate
// CircuitBreakerMiddleware already has.
type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half-open"
)

// BreakerConfig tunes a CircuitBreaker instance.
type BreakerConfig struct {
	// ConsecutiveFailureThreshold opens the circuit once this many calls in a
	// row fail. Zero disables the failure-count predicate.
	ConsecutiveFailureThreshold int
	// LatencyThreshold opens the circuit once the rolling p50 latency over
	// the observation window exceeds this value (50ms default).
	LatencyThreshold time.Duration
	// WindowSize bounds how many recent latency samples are retained for the
	// p50 calculation, the same fixed-capacity sliding window idiom as
	// kernel/rate_limiter.go uses for request counts.
	WindowSize int
	// CooldownPeriod is how long the breaker stays open before Allow moves it
	// to half-open. Allow admits calls while half-open; the next Record closes
	// the circuit on success or reopens it on failure.
	CooldownPeriod time.Duration
}

// DefaultBreakerConfig returns the standard breaker tuning.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailureThreshold: 5,
		LatencyThreshold:            50 * time.Millisecond,
		WindowSize:                  64,
		CooldownPeriod:              10 * time.Second,
	}
}

// CircuitBreaker tracks per-hook-name health and decides whether a hook
// invocation should be attempted, skipped (circuit open), or probed
// (half-open).
type CircuitBreaker struct {
	cfg   BreakerConfig
	mu    sync.Mutex
	byKey map[string]*breakerEntry
}

type breakerEntry struct {
	state             BreakerState
	consecutiveFails  int
	lastTransition    time.Time
	latencies         []time.Duration
	latencyWriteIndex int
}

// NewCircuitBreaker builds a CircuitBreaker with cfg.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, byKey: make(map[string]*breakerEntry)}
}

func (b *CircuitBreaker) entry(key string) *breakerEntry {
	e, ok := b.byKey[key]
	if !ok {
		e = &breakerEntry{state: BreakerClosed}
		b.byKey[key] = e
	}
	return e
}

// Allow reports whether a call for key may proceed. A false return means the
// circuit is open and the caller should short-circuit with
// NewCircuitOpenError. Transitions open->half-open happen here, lazily, on
// the first call after CooldownPeriod elapses.
func (b *CircuitBreaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(key)
	now := time.Now()

	switch e.state {
	case BreakerOpen:
		if now.Sub(e.lastTransition) >= b.cfg.CooldownPeriod {
			e.state = BreakerHalfOpen
			e.lastTransition = now
			return true
		}
		return false
	default:
		return true
	}
}

// Record reports the outcome and latency of a call made under key, updating
// the breaker's state: rolling p50 latency over the window exceeding
// LatencyThreshold, OR consecutive failures reaching
// ConsecutiveFailureThreshold, opens the circuit.
func (b *CircuitBreaker) Record(key string, success bool, latency time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.entry(key)
	now := time.Now()

	if b.cfg.WindowSize > 0 {
		if len(e.latencies) < b.cfg.WindowSize {
			e.latencies = append(e.latencies, latency)
		} else {
			e.latencies[e.latencyWriteIndex%b.cfg.WindowSize] = latency
		}
		e.latencyWriteIndex++
	}

	if !success {
		e.consecutiveFails++
	} else {
		e.consecutiveFails = 0
	}

	switch e.state {
	case BreakerHalfOpen:
		if success {
			e.state = BreakerClosed
			e.consecutiveFails = 0
			e.lastTransition = now
		} else {
			e.state = BreakerOpen
			e.lastTransition = now
		}
		return
	}

	if b.cfg.ConsecutiveFailureThreshold > 0 && e.consecutiveFails >= b.cfg.ConsecutiveFailureThreshold {
		e.state = BreakerOpen
		e.lastTransition = now
		return
	}

	if b.cfg.LatencyThreshold > 0 && p50(e.latencies) > b.cfg.LatencyThreshold {
		e.state = BreakerOpen
		e.lastTransition = now
	}
}

// State reports the current state for key without mutating it.
func (b *CircuitBreaker) State(key string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entry(key).state
}

// Reset forces key back to closed, clearing its history.
func (b *CircuitBreaker) Reset(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byKey[key] = &breakerEntry{state: BreakerClosed}
}

func p50(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2]
}
