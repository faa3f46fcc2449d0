// Package builtin provides the always-available hook implementations:
// logging, metrics, retry, security, and caching. These mirror the
// original's llmspell-hooks/src/builtin module, adapted to the
// coreengine/hooks tagged-union result type.
package builtin

import (
	"fmt"
	"time"

	"github.com/jeeves-cluster-organization/llmspellkernel/commbus"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/hooks"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/observability"
)

// LoggingHook logs every invocation at the point it is registered for.
type LoggingHook struct {
	logger commbus.Logger
}

func NewLoggingHook(logger commbus.Logger) *LoggingHook {
	return &LoggingHook{logger: logger.Bind("hook", "logging")}
}

func (h *LoggingHook) Metadata() hooks.HookMetadata {
	return hooks.HookMetadata{Name: "builtin.logging", Priority: hooks.PriorityHighest, Language: hooks.LanguageNative}
}

func (h *LoggingHook) Invoke(ctx *hooks.HookContext) (hooks.HookResult, error) {
	h.logger.Info("hook_point_reached",
		"point", string(ctx.Point),
		"component_id", string(ctx.ComponentID),
		"correlation_id", ctx.CorrelationID,
	)
	return hooks.Continue(), nil
}

var _ hooks.Hook = (*LoggingHook)(nil)

// MetricsHook records a Prometheus observation for every invocation of the
// point it is attached to.
type MetricsHook struct{}

func NewMetricsHook() *MetricsHook { return &MetricsHook{} }

func (h *MetricsHook) Metadata() hooks.HookMetadata {
	return hooks.HookMetadata{Name: "builtin.metrics", Priority: hooks.PriorityHigh, Language: hooks.LanguageNative}
}

func (h *MetricsHook) Invoke(ctx *hooks.HookContext) (hooks.HookResult, error) {
	elapsedMS := int(time.Since(ctx.StartedAt).Milliseconds())
	observability.RecordHookExecution(string(ctx.Point), string(ctx.ComponentID), "observed", elapsedMS)
	return hooks.Continue(), nil
}

var _ hooks.Hook = (*MetricsHook)(nil)

// RetryHook acts when ctx.Data["failed"] is true: it reads
// ctx.Metadata["attempt"] and returns a Retry with exponential backoff while
// the attempt is under the cap given to NewRetryHook, and Cancel once it
// reaches it.
type RetryHook struct {
	maxAttempts int
	baseBackoff time.Duration
}

func NewRetryHook(maxAttempts int, baseBackoff time.Duration) *RetryHook {
	return &RetryHook{maxAttempts: maxAttempts, baseBackoff: baseBackoff}
}

func (h *RetryHook) Metadata() hooks.HookMetadata {
	return hooks.HookMetadata{Name: "builtin.retry", Priority: hooks.PriorityNormal, Language: hooks.LanguageNative}
}

func (h *RetryHook) Invoke(ctx *hooks.HookContext) (hooks.HookResult, error) {
	failed, _ := ctx.Data["failed"].(bool)
	if !failed {
		return hooks.Continue(), nil
	}

	attempt, _ := ctx.Metadata["attempt"].(int)
	if attempt >= h.maxAttempts {
		return hooks.Cancel(fmt.Sprintf("exceeded %d retry attempts", h.maxAttempts)), nil
	}

	backoff := h.baseBackoff * time.Duration(1<<attempt)
	ctx.Metadata["attempt"] = attempt + 1
	return hooks.Retry(backoff, h.maxAttempts-attempt), nil
}

var _ hooks.Hook = (*RetryHook)(nil)

// SecurityHook enforces a risk-level gate: operations tagged with a risk
// level at or above the configured minimum are cancelled unless
// ctx.Metadata["approved"] is true, mirroring envelope.RiskLevel's
// RequiresConfirmation split.
type SecurityHook struct {
	minBlockedSeverity string // "low" | "medium" | "high" | "critical"
}

func NewSecurityHook(minBlockedSeverity string) *SecurityHook {
	return &SecurityHook{minBlockedSeverity: minBlockedSeverity}
}

var severityRank = map[string]int{"low": 0, "medium": 1, "high": 2, "critical": 3}

func (h *SecurityHook) Metadata() hooks.HookMetadata {
	return hooks.HookMetadata{Name: "builtin.security", Priority: hooks.PriorityHighest, Language: hooks.LanguageNative}
}

func (h *SecurityHook) Invoke(ctx *hooks.HookContext) (hooks.HookResult, error) {
	severity, _ := ctx.Metadata["risk_severity"].(string)
	if severity == "" {
		return hooks.Continue(), nil
	}
	if severityRank[severity] < severityRank[h.minBlockedSeverity] {
		return hooks.Continue(), nil
	}
	if approved, _ := ctx.Metadata["approved"].(bool); approved {
		return hooks.Continue(), nil
	}
	return hooks.Cancel(fmt.Sprintf("operation risk severity %q requires approval", severity)), nil
}

var _ hooks.Hook = (*SecurityHook)(nil)

// CachingHook memoizes results by a cache key derived from ctx.Data["cache_key"],
// using the hooks.Cache result so the executor (and any downstream cache
// layer it delegates to) can serve repeated calls without re-running the
// operation.
type CachingHook struct {
	ttl time.Duration
}

func NewCachingHook(ttl time.Duration) *CachingHook {
	return &CachingHook{ttl: ttl}
}

func (h *CachingHook) Metadata() hooks.HookMetadata {
	return hooks.HookMetadata{
		Name: "builtin.caching", Priority: hooks.PriorityLow, Language: hooks.LanguageNative,
		Feature: hooks.FeatureCache,
	}
}

func (h *CachingHook) Invoke(ctx *hooks.HookContext) (hooks.HookResult, error) {
	key, ok := ctx.Data["cache_key"].(string)
	if !ok || key == "" {
		return hooks.Continue(), nil
	}
	return hooks.Cache(key, h.ttl, ctx.Data["output"]), nil
}

var _ hooks.Hook = (*CachingHook)(nil)
