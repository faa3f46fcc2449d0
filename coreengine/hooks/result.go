package hooks

import "time"

// ResultKind discriminates the HookResult tagged union.
type ResultKind string

const (
	ResultContinue ResultKind = "continue"
	ResultModified ResultKind = "modified"
	ResultReplace  ResultKind = "replace"
	ResultCancel   ResultKind = "cancel"
	ResultRetry    ResultKind = "retry"
	ResultFork     ResultKind = "fork"
	ResultCache    ResultKind = "cache"
)

// HookResult is the outcome a Hook returns from Invoke. Exactly one of the
// payload fields is meaningful, selected by Kind; callers must switch on Kind
// rather than guess from which fields are non-zero.
type HookResult struct {
	Kind ResultKind

	// Modified: Data replaces HookContext.Data going forward.
	Data map[string]any

	// Replace: Output entirely replaces the operation's return value; the
	// remaining chain still runs (for observation) but the operation itself
	// does not execute.
	Output any

	// Cancel: Reason is surfaced to the caller as the cancellation cause.
	Reason string

	// Retry: After is the pause before the executor re-invokes the same hook;
	// MaxAttempts bounds how many times the executor will honor this.
	After       time.Duration
	MaxAttempts int

	// Fork: Branches are additional HookContexts to run concurrently against
	// the same hook chain, starting at the current position. Results from
	// forks are collected but do not affect the primary chain's outcome
	// beyond being recorded for replay/observability.
	Branches []*HookContext

	// Cache: Key and TTL direct the executor to memoize Output for reuse by
	// future invocations with an equivalent HookContext.
	CacheKey string
	CacheTTL time.Duration
}

// Continue lets the chain proceed with the context unchanged.
func Continue() HookResult { return HookResult{Kind: ResultContinue} }

// Modified replaces HookContext.Data and lets the chain proceed.
func Modified(data map[string]any) HookResult {
	return HookResult{Kind: ResultModified, Data: data}
}

// Replace substitutes the operation's output without halting the chain.
func Replace(output any) HookResult {
	return HookResult{Kind: ResultReplace, Output: output}
}

// Cancel halts the chain and the operation, surfacing reason as the cause.
func Cancel(reason string) HookResult {
	return HookResult{Kind: ResultCancel, Reason: reason}
}

// Retry asks the executor to pause for the given backoff and re-invoke the
// same hook, up to maxAttempts times.
func Retry(after time.Duration, maxAttempts int) HookResult {
	return HookResult{Kind: ResultRetry, After: after, MaxAttempts: maxAttempts}
}

// Fork spawns additional branches that run the remaining chain concurrently.
func Fork(branches ...*HookContext) HookResult {
	return HookResult{Kind: ResultFork, Branches: branches}
}

// Cache memoizes output under key for the given ttl.
func Cache(key string, ttl time.Duration, output any) HookResult {
	return HookResult{Kind: ResultCache, CacheKey: key, CacheTTL: ttl, Output: output}
}

// Hook is the minimal interface every hook implementation satisfies: dynamic
// dispatch over hooks modeled as a tagged variant plus a small interface set,
// not a deep class hierarchy.
type Hook interface {
	Metadata() HookMetadata
	Invoke(ctx *HookContext) (HookResult, error)
}

// FnHook adapts a plain function into a Hook, the same convenience the
// original's FnHook type provides.
type FnHook struct {
	meta HookMetadata
	fn   func(ctx *HookContext) (HookResult, error)
}

func NewFnHook(meta HookMetadata, fn func(ctx *HookContext) (HookResult, error)) *FnHook {
	return &FnHook{meta: meta, fn: fn}
}

func (h *FnHook) Metadata() HookMetadata { return h.meta }

func (h *FnHook) Invoke(ctx *HookContext) (HookResult, error) { return h.fn(ctx) }

var _ Hook = (*FnHook)(nil)

// ReplayableHook is a Hook that can serialize/deserialize its decision for a
// given HookContext, supporting deterministic replay of a past chain walk
// without re-running side effects (original's persistence/replay.rs).
type ReplayableHook interface {
	Hook
	Serialize(ctx *HookContext, result HookResult) ([]byte, error)
	Deserialize(data []byte) (HookResult, error)
}
