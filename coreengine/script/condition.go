package script

import (
	"strings"
	"sync"

	"github.com/dop251/goja"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

// ConditionEvaluator evaluates a single boolean expression against a debug
// context, used by the execution manager to decide whether a conditional
// breakpoint actually fires. Implementations MUST default to true (break)
// on any evaluation error — this is a safety default, not a best-effort
// shortcut: a debugger that silently skips a breakpoint it failed to
// evaluate hides the failure from the user.
type ConditionEvaluator interface {
	Evaluate(expression string, debugContext map[string]any) bool
}

// GojaConditionEvaluator runs expressions in a dedicated goja.Runtime
// (separate from any engine script globals are injected into), caching
// compiled goja.Program values per expression text.
type GojaConditionEvaluator struct {
	logger Logger

	mu      sync.Mutex
	compiled map[string]*goja.Program
}

func NewGojaConditionEvaluator(logger Logger) *GojaConditionEvaluator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &GojaConditionEvaluator{logger: logger, compiled: make(map[string]*goja.Program)}
}

func (e *GojaConditionEvaluator) Evaluate(expression string, debugContext map[string]any) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("script: condition evaluator panicked, defaulting to break",
				"expression", expression, "panic", r)
			result = true
		}
	}()

	prog, err := e.compile(expression)
	if err != nil {
		e.logger.Warn("script: condition expression failed to compile, defaulting to break",
			"expression", expression, "error", err)
		return true
	}

	vm := goja.New()
	for k, v := range debugContext {
		if err := vm.Set(k, v); err != nil {
			e.logger.Warn("script: condition evaluator failed to bind context var, defaulting to break",
				"expression", expression, "var", k, "error", err)
			return true
		}
	}

	value, err := vm.RunProgram(prog)
	if err != nil {
		e.logger.Warn("script: condition expression failed to evaluate, defaulting to break",
			"expression", expression, "error", err)
		return true
	}
	return value.ToBoolean()
}

func (e *GojaConditionEvaluator) compile(expression string) (*goja.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if prog, ok := e.compiled[expression]; ok {
		return prog, nil
	}
	prog, err := goja.Compile("<condition>", expression, true)
	if err != nil {
		return nil, err
	}
	e.compiled[expression] = prog
	return prog, nil
}

// LuaConditionEvaluator runs expressions as a Lua `return <expr>` chunk in a
// dedicated *lua.LState, caching compiled *lua.FunctionProto values per
// expression text.
type LuaConditionEvaluator struct {
	logger Logger

	mu      sync.Mutex
	compiled map[string]*lua.FunctionProto
}

func NewLuaConditionEvaluator(logger Logger) *LuaConditionEvaluator {
	if logger == nil {
		logger = noopLogger{}
	}
	return &LuaConditionEvaluator{logger: logger, compiled: make(map[string]*lua.FunctionProto)}
}

func (e *LuaConditionEvaluator) Evaluate(expression string, debugContext map[string]any) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("script: condition evaluator panicked, defaulting to break",
				"expression", expression, "panic", r)
			result = true
		}
	}()

	proto, err := e.compile(expression)
	if err != nil {
		e.logger.Warn("script: condition expression failed to compile, defaulting to break",
			"expression", expression, "error", err)
		return true
	}

	L := lua.NewState()
	defer L.Close()
	for k, v := range debugContext {
		L.SetGlobal(k, goToLua(L, v))
	}

	fn := L.NewFunctionFromProto(proto)
	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		e.logger.Warn("script: condition expression failed to evaluate, defaulting to break",
			"expression", expression, "error", err)
		return true
	}
	ret := L.Get(-1)
	L.Pop(1)
	return lua.LVAsBool(ret)
}

func (e *LuaConditionEvaluator) compile(expression string) (*lua.FunctionProto, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if proto, ok := e.compiled[expression]; ok {
		return proto, nil
	}
	chunk, err := parse.Parse(strings.NewReader("return "+expression), "<condition>")
	if err != nil {
		return nil, err
	}
	proto, err := lua.Compile(chunk, "<condition>")
	if err != nil {
		return nil, err
	}
	e.compiled[expression] = proto
	return proto, nil
}
