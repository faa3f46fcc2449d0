package config

import (
	"os"
	"strconv"
)

// envPrefix is the variable prefix recognized by LoadCoreConfigFromEnv, so
// config and env stay convergent on one source of truth for the kernel
// binary (see DESIGN.md for why this lives here rather than in a separate
// bootstrap package).
const envPrefix = "LLMSPELL_"

func lookupEnv(name string) (string, bool) {
	return os.LookupEnv(envPrefix + name)
}

func overrideInt(dst *int, name string) {
	if v, ok := lookupEnv(name); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func overrideFloat(dst *float64, name string) {
	if v, ok := lookupEnv(name); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func overrideBool(dst *bool, name string) {
	if v, ok := lookupEnv(name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func overrideString(dst *string, name string) {
	if v, ok := lookupEnv(name); ok {
		*dst = v
	}
}

// LoadCoreConfigFromEnv builds a CoreConfig from defaults, overridden by any
// LLMSPELL_<FIELD> environment variables that are set. Unset variables leave
// the default untouched; malformed values are ignored rather than rejected,
// matching CoreConfigFromMap's "unknown keys are ignored" convention.
func LoadCoreConfigFromEnv() *CoreConfig {
	c := DefaultCoreConfig()

	overrideInt(&c.MaxPlanSteps, "MAX_PLAN_STEPS")
	overrideInt(&c.MaxToolRetries, "MAX_TOOL_RETRIES")
	overrideInt(&c.MaxLLMRetries, "MAX_LLM_RETRIES")
	overrideInt(&c.MaxLoopIterations, "MAX_LOOP_ITERATIONS")

	overrideInt(&c.LLMTimeout, "LLM_TIMEOUT")
	overrideInt(&c.ExecutorTimeout, "EXECUTOR_TIMEOUT")
	overrideInt(&c.ToolTimeout, "TOOL_TIMEOUT")
	overrideInt(&c.AgentTimeout, "AGENT_TIMEOUT")

	overrideFloat(&c.ClarificationThreshold, "CLARIFICATION_THRESHOLD")
	overrideFloat(&c.HighConfidenceThreshold, "HIGH_CONFIDENCE_THRESHOLD")

	overrideBool(&c.MetaValidationEnabled, "META_VALIDATION_ENABLED")
	overrideFloat(&c.MetaValidationDelay, "META_VALIDATION_DELAY")

	overrideBool(&c.EnableLoopBack, "ENABLE_LOOP_BACK")
	overrideBool(&c.EnableArbiter, "ENABLE_ARBITER")
	overrideBool(&c.SkipArbiterForReadOnly, "SKIP_ARBITER_FOR_READ_ONLY")
	overrideBool(&c.RequireConfirmationForDestructive, "REQUIRE_CONFIRMATION_FOR_DESTRUCTIVE")

	overrideInt(&c.MaxReplanIterations, "MAX_REPLAN_ITERATIONS")
	overrideInt(&c.MaxLoopBackRejections, "MAX_LOOP_BACK_REJECTIONS")
	overrideBool(&c.ReplanOnPartialSuccess, "REPLAN_ON_PARTIAL_SUCCESS")

	if v, ok := lookupEnv("LLM_SEED"); ok {
		if seed, err := strconv.Atoi(v); err == nil {
			c.LLMSeed = &seed
		}
	}
	overrideBool(&c.StrictTransitionValidation, "STRICT_TRANSITION_VALIDATION")

	overrideBool(&c.EnableIdempotency, "ENABLE_IDEMPOTENCY")
	overrideInt(&c.IdempotencyTTLMs, "IDEMPOTENCY_TTL_MS")
	overrideBool(&c.EnforceIdempotencyForTools, "ENFORCE_IDEMPOTENCY_FOR_TOOLS")
	overrideBool(&c.EnforceIdempotencyForAgents, "ENFORCE_IDEMPOTENCY_FOR_AGENTS")

	overrideString(&c.LogLevel, "LOG_LEVEL")

	return c
}
