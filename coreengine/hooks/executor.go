package hooks

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/llmspellkernel/commbus"
)

// ForkResult records the outcome of a forked branch for later inspection
// (replay, debugging) — forks do not affect the primary chain's return value.
type ForkResult struct {
	Context *HookContext
	Results []HookResult
	Err     error
}

// cacheEntry is one memoized HookResult.Cache payload, expiring after TTL.
type cacheEntry struct {
	output    any
	expiresAt time.Time
}

// Executor walks a HookPoint's chain for a given HookContext. It owns the
// HookContext exclusively for the duration of the walk and coordinates
// forked branches the same CSP way
// coreengine/runtime/dag_executor.go coordinates parallel pipeline stages:
// a completion channel drained by a single coordinating goroutine. The
// drain waits for every fork to report; a fork that never finishes keeps Run
// from returning.
type Executor struct {
	registry HookChainer
	breaker  *CircuitBreaker
	logger   commbus.Logger

	cacheMu sync.Mutex
	cache   map[string]cacheEntry
}

// NewExecutor builds an Executor over registry, enforcing circuit breaking
// via breaker (pass nil to disable breaking entirely). registry may be a
// *Registry or a *SelectiveHookRegistry; either way Run walks exactly the
// chain registry.Chain(point) returns, so a feature-gated view actually
// narrows what gets executed.
func NewExecutor(registry HookChainer, breaker *CircuitBreaker, logger commbus.Logger) *Executor {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Executor{
		registry: registry,
		breaker:  breaker,
		logger:   logger.Bind("component", "hook_executor"),
		cache:    make(map[string]cacheEntry),
	}
}

// Outcome is returned by Run once the chain walk for a HookPoint concludes.
type Outcome struct {
	// FinalData is HookContext.Data as left by the last hook that ran (or the
	// original, if no hook modified it).
	FinalData map[string]any
	// Output is set when a hook issued Replace or Cache, or a cache hit
	// short-circuited the walk entirely; nil otherwise, meaning the caller's
	// own operation output should be used as-is.
	Output      any
	OutputIsSet bool
	// FromCache is true when Output was served from a prior Cache(ttl) entry
	// without walking the chain at all.
	FromCache bool

	Cancelled    bool
	CancelReason string

	// RetryAttempts counts how many times a single hook was re-invoked
	// cooperatively to resolve a HookResult.Retry during this walk.
	RetryAttempts int

	Forks []ForkResult
}

// Run walks ctx.Point's chain against ctx. Algorithm:
//  1. Compute the cache key (point, component_id, input fingerprint) and
//     return immediately with the memoized Output on a live cache hit,
//     without walking the chain at all.
//  2. Snapshot the ordered chain for ctx.Point.
//  3. For each hook, check the circuit breaker; skip (but record) if open.
//  4. Invoke the hook, timing the call for the breaker and for replay.
//  5. Apply the HookResult: Continue/Modified fall through; Replace sets
//     Output and falls through; Cache sets Output, memoizes it under the
//     computed cache key (or the hook's own CacheKey, if given) for TTL, and
//     falls through; Cancel halts immediately; Retry cooperatively sleeps and
//     re-invokes the same hook up to MaxAttempts times, escalating to
//     Cancel("retry_exhausted") on exhaustion; Fork spawns a concurrent
//     branch continuing from the current position and proceeds with the
//     primary chain unaffected.
//  6. Return the accumulated Outcome once the chain is exhausted or halted.
func (e *Executor) Run(ctx *HookContext) (Outcome, error) {
	if !AllHookPoints[ctx.Point] {
		return Outcome{}, NewUnknownHookPointError(ctx.Point)
	}

	fingerprint := cacheFingerprint(ctx)
	if cached, ok := e.cacheGet(fingerprint); ok {
		return Outcome{FinalData: ctx.Data, Output: cached, OutputIsSet: true, FromCache: true}, nil
	}

	chain := e.registry.Chain(ctx.Point)
	outcome := Outcome{FinalData: ctx.Data}

	forkChan := make(chan ForkResult, len(chain))
	pendingForks := 0

	for i, hook := range chain {
		meta := hook.Metadata()
		key := string(ctx.Point) + "/" + meta.Name

		if e.breaker != nil {
			if !e.breaker.Allow(key) {
				e.logger.Warning("hook_circuit_open", "hook", meta.Name, "point", string(ctx.Point))
				continue
			}
		}

		start := time.Now()
		result, err := hook.Invoke(ctx)
		latency := time.Since(start)

		if e.breaker != nil {
			e.breaker.Record(key, err == nil, latency)
		}

		if err != nil {
			e.logger.Error("hook_invoke_error", "hook", meta.Name, "point", string(ctx.Point), "error", err.Error())
			return outcome, fmt.Errorf("hook %q at point %q: %w", meta.Name, ctx.Point, err)
		}

		if result.Kind == ResultRetry {
			result, err = e.resolveRetry(hook, ctx, result, key, &outcome)
			if err != nil {
				e.logger.Error("hook_invoke_error", "hook", meta.Name, "point", string(ctx.Point), "error", err.Error())
				return outcome, fmt.Errorf("hook %q at point %q: %w", meta.Name, ctx.Point, err)
			}
		}

		switch result.Kind {
		case ResultContinue:
			// fall through to next hook

		case ResultModified:
			ctx.Data = result.Data
			outcome.FinalData = ctx.Data

		case ResultReplace:
			outcome.Output = result.Output
			outcome.OutputIsSet = true

		case ResultCache:
			outcome.Output = result.Output
			outcome.OutputIsSet = true
			cacheKey := result.CacheKey
			if cacheKey == "" {
				cacheKey = fingerprint
			}
			e.cacheSet(cacheKey, result.Output, result.CacheTTL)

		case ResultCancel:
			outcome.Cancelled = true
			outcome.CancelReason = result.Reason
			e.drainForks(forkChan, pendingForks, &outcome)
			return outcome, nil

		case ResultFork:
			for _, branch := range result.Branches {
				remaining := append([]Hook(nil), chain[i+1:]...)
				pendingForks++
				go e.runFork(branch, remaining, forkChan)
			}

		default:
			return outcome, fmt.Errorf("hook %q returned unrecognized result kind %q", meta.Name, result.Kind)
		}
	}

	e.drainForks(forkChan, pendingForks, &outcome)
	return outcome, nil
}

// resolveRetry implements spec §4.3's Retry algorithm: pause cooperatively
// for first.After, then re-invoke hook against the same ctx, repeating while
// the hook keeps returning Retry, up to first.MaxAttempts re-invocations.
// Exhaustion resolves to Cancel("retry_exhausted"). Each re-invocation is
// still timed and recorded against the breaker under the same key as the
// original call.
func (e *Executor) resolveRetry(hook Hook, ctx *HookContext, first HookResult, breakerKey string, outcome *Outcome) (HookResult, error) {
	result := first
	for attempts := 0; result.Kind == ResultRetry; attempts++ {
		if attempts >= result.MaxAttempts {
			return Cancel("retry_exhausted"), nil
		}
		if result.After > 0 {
			time.Sleep(result.After)
		}
		outcome.RetryAttempts++

		if e.breaker != nil && !e.breaker.Allow(breakerKey) {
			return Cancel("retry_exhausted"), nil
		}

		start := time.Now()
		next, err := hook.Invoke(ctx)
		latency := time.Since(start)
		if e.breaker != nil {
			e.breaker.Record(breakerKey, err == nil, latency)
		}
		if err != nil {
			return HookResult{}, err
		}
		result = next
	}
	return result, nil
}

// cacheFingerprint derives the spec's "(point, component_id, input
// fingerprint)" cache key. ctx.Data["cache_key"] is honored verbatim when
// present (the convention builtin.CachingHook uses), so the pre-walk check
// below and a mid-chain HookResult.Cache agree on the same key without
// either needing to know about the other. Absent an explicit cache_key, the
// fingerprint falls back to a deterministic digest of ctx.Data so repeated
// calls with identical input still hit.
func cacheFingerprint(ctx *HookContext) string {
	if key, ok := ctx.Data["cache_key"].(string); ok && key != "" {
		return key
	}

	keys := make([]string, 0, len(ctx.Data))
	for k := range ctx.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(ctx.Point))
	b.WriteByte('|')
	b.WriteString(string(ctx.ComponentID))
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%v", k, ctx.Data[k])
	}
	return b.String()
}

func (e *Executor) cacheGet(key string) (any, bool) {
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	entry, ok := e.cache[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(e.cache, key)
		return nil, false
	}
	return entry.output, true
}

func (e *Executor) cacheSet(key string, output any, ttl time.Duration) {
	if key == "" || ttl <= 0 {
		return
	}
	e.cacheMu.Lock()
	defer e.cacheMu.Unlock()
	e.cache[key] = cacheEntry{output: output, expiresAt: time.Now().Add(ttl)}
}

// runFork walks the remaining chain against an independently owned branch
// context, reporting its outcome on done. It never touches the primary
// context or the primary chain's breaker keys beyond the shared Registry
// snapshot, which is immutable once taken.
func (e *Executor) runFork(branch *HookContext, remaining []Hook, done chan<- ForkResult) {
	fr := ForkResult{Context: branch}
	for _, hook := range remaining {
		result, err := hook.Invoke(branch)
		if err != nil {
			fr.Err = err
			break
		}
		fr.Results = append(fr.Results, result)
		if result.Kind == ResultCancel {
			break
		}
	}
	done <- fr
}

// drainForks waits for all outstanding fork goroutines to report. The
// time.After case only wakes the loop periodically; the wait itself has no
// time bound.
func (e *Executor) drainForks(forkChan chan ForkResult, pending int, outcome *Outcome) {
	for pending > 0 {
		select {
		case fr := <-forkChan:
			outcome.Forks = append(outcome.Forks, fr)
			pending--
		case <-time.After(100 * time.Millisecond):
			continue
		}
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any)           {}
func (noopLogger) Info(string, ...any)            {}
func (noopLogger) Warning(string, ...any)         {}
func (noopLogger) Error(string, ...any)           {}
func (n noopLogger) Bind(...any) commbus.Logger    { return n }

var _ commbus.Logger = noopLogger{}
