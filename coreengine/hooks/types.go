// Package hooks implements the hook registry, circuit breaker, and hook
// executor: the interception points that let cross-cutting concerns (logging,
// metrics, retry, security, caching) observe and modify component operations
// without those components depending on the concerns directly.
package hooks

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// HookPoint names a point in the system lifecycle at which hooks may run.
// The set is closed: new values are added here, never invented ad hoc by
// callers, so registries and executors can validate membership cheaply.
type HookPoint string

const (
	HookPointBeforeAgentExecution HookPoint = "before_agent_execution"
	HookPointAfterAgentExecution  HookPoint = "after_agent_execution"
	HookPointBeforeToolCall       HookPoint = "before_tool_call"
	HookPointAfterToolCall        HookPoint = "after_tool_call"
	HookPointBeforeLLMCall        HookPoint = "before_llm_call"
	HookPointAfterLLMCall         HookPoint = "after_llm_call"
	HookPointBeforeEventEmit      HookPoint = "before_event_emit"
	HookPointAfterEventEmit       HookPoint = "after_event_emit"
	HookPointBeforeStateWrite     HookPoint = "before_state_write"
	HookPointAfterStateWrite      HookPoint = "after_state_write"
	HookPointBeforeWorkflowStage  HookPoint = "before_workflow_stage"
	HookPointAfterWorkflowStage   HookPoint = "after_workflow_stage"
	HookPointOnError              HookPoint = "on_error"
	HookPointOnRetry              HookPoint = "on_retry"
	HookPointSystemStartup        HookPoint = "system_startup"
	HookPointSystemShutdown       HookPoint = "system_shutdown"
)

// AllHookPoints enumerates the closed set, used to validate registrations.
var AllHookPoints = map[HookPoint]bool{
	HookPointBeforeAgentExecution: true,
	HookPointAfterAgentExecution:  true,
	HookPointBeforeToolCall:       true,
	HookPointAfterToolCall:        true,
	HookPointBeforeLLMCall:        true,
	HookPointAfterLLMCall:         true,
	HookPointBeforeEventEmit:      true,
	HookPointAfterEventEmit:       true,
	HookPointBeforeStateWrite:     true,
	HookPointAfterStateWrite:      true,
	HookPointBeforeWorkflowStage:  true,
	HookPointAfterWorkflowStage:   true,
	HookPointOnError:              true,
	HookPointOnRetry:              true,
	HookPointSystemStartup:        true,
	HookPointSystemShutdown:       true,
}

// ComponentId identifies the component a hook is registered on behalf of or
// that triggered a hook point. Kept as a plain string newtype (as envelope's
// enums.go does for its string-typed enums) rather than a numeric code, since
// component ids are cheap to read in logs and traces.
type ComponentId string

// ComponentType categorizes a ComponentId the way envelope.ToolCategory
// categorizes tools.
type ComponentType string

const (
	ComponentTypeAgent    ComponentType = "agent"
	ComponentTypeTool     ComponentType = "tool"
	ComponentTypeWorkflow ComponentType = "workflow"
	ComponentTypeKernel   ComponentType = "kernel"
	ComponentTypeScript   ComponentType = "script"
)

// Priority orders hooks within a HookPoint's chain. Lower numeric value runs
// first; ties broken by registration order (see registry.go).
type Priority int

const (
	PriorityHighest Priority = 0
	PriorityHigh    Priority = 25
	PriorityNormal  Priority = 50
	PriorityLow     Priority = 75
	PriorityLowest  Priority = 100
)

// Language identifies the scripting language a hook was authored in — native
// Go or injected from a script engine.
type Language string

const (
	LanguageNative     Language = "native"
	LanguageLua        Language = "lua"
	LanguageJavaScript Language = "javascript"
)

// HookMetadata describes a registered hook for introspection, replay, and
// persistence.
type HookMetadata struct {
	Name        string
	Description string
	Priority    Priority
	Language    Language
	Tags        []string

	// ComponentID identifies which component registered this hook, backing
	// Registry.HooksByComponent. Zero value means "unattributed" and the
	// hook is simply excluded from every HooksByComponent(id) result.
	ComponentID ComponentId

	// Feature tags which optional, gateable chain behavior this hook
	// belongs to (fork, cache, replay, circuit-breaking). Zero value marks
	// the hook as always-on core behavior: a SelectiveHookRegistry never
	// filters it out regardless of its Features gate. A non-zero Feature is
	// only included in a selective view's chain when that bit is enabled.
	Feature HookFeatures
}

// HookRef pairs a registered hook with the point and metadata it was
// registered under, the shape Registry.OrderedHooks and
// Registry.HooksByComponent return (spec's ordered_hooks/hooks_by_component
// contract).
type HookRef struct {
	Point    HookPoint
	Metadata HookMetadata
	Hook     Hook
}

// HookContext is the mutable carrier passed through a hook chain. The Hook
// Executor exclusively owns a HookContext while it is in flight; no other
// component may retain a pointer to one after the chain finishes walking it.
type HookContext struct {
	Point         HookPoint
	ComponentID   ComponentId
	ComponentType ComponentType
	CorrelationID string

	// Data holds the mutable payload hooks observe and may rewrite via
	// HookResult Modified.
	Data map[string]any

	// Metadata holds side-channel information hooks may read but should not
	// treat as the primary payload (headers, trace info, tenant id).
	Metadata map[string]any

	StartedAt time.Time
}

// NewHookContext builds a HookContext for a fresh hook-point invocation,
// generating a correlation id if the caller doesn't already have one to
// thread through (see coreengine/asynccarrier for carrying one across
// suspension points).
func NewHookContext(point HookPoint, componentID ComponentId, componentType ComponentType, correlationID string) *HookContext {
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return &HookContext{
		Point:         point,
		ComponentID:   componentID,
		ComponentType: componentType,
		CorrelationID: correlationID,
		Data:          make(map[string]any),
		Metadata:      make(map[string]any),
		StartedAt:     time.Now(),
	}
}

// Clone returns a deep-enough copy suitable for forking into a parallel
// branch (HookResult.Fork); Data/Metadata maps are copied so the fork cannot
// mutate the parent's view.
func (c *HookContext) Clone() *HookContext {
	clone := &HookContext{
		Point:         c.Point,
		ComponentID:   c.ComponentID,
		ComponentType: c.ComponentType,
		CorrelationID: c.CorrelationID,
		Data:          make(map[string]any, len(c.Data)),
		Metadata:      make(map[string]any, len(c.Metadata)),
		StartedAt:     c.StartedAt,
	}
	for k, v := range c.Data {
		clone.Data[k] = v
	}
	for k, v := range c.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

// registrationSeq hands out monotonically increasing tie-breaker values for
// hooks registered at the same Priority, matching kernel/lifecycle.go's
// createdAt-as-tiebreaker idiom but using a counter instead of wall time so
// ordering is stable even when two registrations land in the same
// nanosecond.
var registrationSeq struct {
	mu  sync.Mutex
	val uint64
}

func nextRegistrationSeq() uint64 {
	registrationSeq.mu.Lock()
	defer registrationSeq.mu.Unlock()
	registrationSeq.val++
	return registrationSeq.val
}
