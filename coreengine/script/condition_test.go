package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGojaConditionEvaluator_EvaluatesAgainstContext(t *testing.T) {
	e := NewGojaConditionEvaluator(nil)
	assert.True(t, e.Evaluate("x > 10", map[string]any{"x": 20}))
	assert.False(t, e.Evaluate("x > 10", map[string]any{"x": 5}))
}

func TestGojaConditionEvaluator_DefaultsToBreakOnCompileError(t *testing.T) {
	e := NewGojaConditionEvaluator(nil)
	assert.True(t, e.Evaluate("this is not valid js (((", nil))
}

func TestGojaConditionEvaluator_DefaultsToBreakOnRuntimeError(t *testing.T) {
	e := NewGojaConditionEvaluator(nil)
	assert.True(t, e.Evaluate("undefinedVariable.field", nil))
}

func TestGojaConditionEvaluator_CachesCompiledExpression(t *testing.T) {
	e := NewGojaConditionEvaluator(nil)
	assert.True(t, e.Evaluate("x == 1", map[string]any{"x": 1}))
	assert.Len(t, e.compiled, 1)
	assert.False(t, e.Evaluate("x == 1", map[string]any{"x": 2}))
	assert.Len(t, e.compiled, 1, "re-evaluating the same expression text must not recompile")
}

func TestLuaConditionEvaluator_EvaluatesAgainstContext(t *testing.T) {
	e := NewLuaConditionEvaluator(nil)
	assert.True(t, e.Evaluate("x > 10", map[string]any{"x": 20.0}))
	assert.False(t, e.Evaluate("x > 10", map[string]any{"x": 5.0}))
}

func TestLuaConditionEvaluator_DefaultsToBreakOnCompileError(t *testing.T) {
	e := NewLuaConditionEvaluator(nil)
	assert.True(t, e.Evaluate("this is not ((( valid lua", nil))
}

func TestLuaConditionEvaluator_DefaultsToBreakOnRuntimeError(t *testing.T) {
	e := NewLuaConditionEvaluator(nil)
	assert.True(t, e.Evaluate("nil.field", nil))
}
