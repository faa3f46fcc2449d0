package builtin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/llmspellkernel/commbus"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/hooks"
)

type noopCommbusLogger struct{}

func (noopCommbusLogger) Debug(string, ...any)   {}
func (noopCommbusLogger) Info(string, ...any)    {}
func (noopCommbusLogger) Warning(string, ...any) {}
func (noopCommbusLogger) Error(string, ...any)   {}
func (n noopCommbusLogger) Bind(...any) commbus.Logger { return n }

var _ commbus.Logger = noopCommbusLogger{}

func TestLoggingHookAlwaysContinues(t *testing.T) {
	h := NewLoggingHook(noopCommbusLogger{})
	ctx := hooks.NewHookContext(hooks.HookPointOnError, "comp", hooks.ComponentTypeAgent, "")
	result, err := h.Invoke(ctx)
	require.NoError(t, err)
	assert.Equal(t, hooks.ResultContinue, result.Kind)
}

func TestRetryHookCancelsAfterMaxAttempts(t *testing.T) {
	h := NewRetryHook(2, time.Millisecond)
	ctx := hooks.NewHookContext(hooks.HookPointOnRetry, "comp", hooks.ComponentTypeAgent, "")
	ctx.Data["failed"] = true
	ctx.Metadata["attempt"] = 2

	result, err := h.Invoke(ctx)
	require.NoError(t, err)
	assert.Equal(t, hooks.ResultCancel, result.Kind)
}

func TestRetryHookRetriesWithBackoff(t *testing.T) {
	h := NewRetryHook(3, 10*time.Millisecond)
	ctx := hooks.NewHookContext(hooks.HookPointOnRetry, "comp", hooks.ComponentTypeAgent, "")
	ctx.Data["failed"] = true

	result, err := h.Invoke(ctx)
	require.NoError(t, err)
	assert.Equal(t, hooks.ResultRetry, result.Kind)
	assert.Equal(t, 10*time.Millisecond, result.After)
}

func TestSecurityHookBlocksUnapprovedHighRisk(t *testing.T) {
	h := NewSecurityHook("high")
	ctx := hooks.NewHookContext(hooks.HookPointBeforeToolCall, "comp", hooks.ComponentTypeTool, "")
	ctx.Metadata["risk_severity"] = "critical"

	result, err := h.Invoke(ctx)
	require.NoError(t, err)
	assert.Equal(t, hooks.ResultCancel, result.Kind)
}

func TestSecurityHookAllowsApprovedHighRisk(t *testing.T) {
	h := NewSecurityHook("high")
	ctx := hooks.NewHookContext(hooks.HookPointBeforeToolCall, "comp", hooks.ComponentTypeTool, "")
	ctx.Metadata["risk_severity"] = "critical"
	ctx.Metadata["approved"] = true

	result, err := h.Invoke(ctx)
	require.NoError(t, err)
	assert.Equal(t, hooks.ResultContinue, result.Kind)
}

func TestCachingHookDeclaresCacheFeature(t *testing.T) {
	h := NewCachingHook(time.Minute)
	assert.Equal(t, hooks.FeatureCache, h.Metadata().Feature)
}

func TestCachingHookEmitsCacheResultWhenKeyPresent(t *testing.T) {
	h := NewCachingHook(time.Minute)
	ctx := hooks.NewHookContext(hooks.HookPointAfterToolCall, "comp", hooks.ComponentTypeTool, "")
	ctx.Data["cache_key"] = "tool:echo:abc"
	ctx.Data["output"] = "hello"

	result, err := h.Invoke(ctx)
	require.NoError(t, err)
	assert.Equal(t, hooks.ResultCache, result.Kind)
	assert.Equal(t, "tool:echo:abc", result.CacheKey)
	assert.Equal(t, "hello", result.Output)
}
