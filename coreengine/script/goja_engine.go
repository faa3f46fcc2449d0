package script

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/dop251/goja"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/state"
)

// GojaEngine wraps a goja.Runtime as a script.Engine, the JavaScript half of
// the language-neutral injection target. Grounded directly on
// _examples/rakunlabs-at/internal/service/workflow/goja.go's SetupGojaVM /
// registerGojaHelpers: same vm.Set(name, func(goja.FunctionCall) goja.Value)
// idiom, same toString/jsonParse/btoa/atob helper set, generalized here to
// also carry the namespaced Agent/Tool/State/... globals the injector requires.
type GojaEngine struct {
	vm *goja.Runtime
}

// NewGojaEngine creates a fresh runtime with the standard helper globals
// pre-registered.
func NewGojaEngine() (*GojaEngine, error) {
	vm := goja.New()
	if err := registerGojaHelpers(vm); err != nil {
		return nil, err
	}
	return &GojaEngine{vm: vm}, nil
}

func (e *GojaEngine) Kind() EngineKind { return EngineGoja }
func (e *GojaEngine) Handle() any      { return e.vm }

// registerGojaHelpers adds the standard toString/jsonParse/btoa/atob
// globals: every script engine this kernel hands out gets the same
// baseline utility belt regardless of which host globals get injected on
// top.
func registerGojaHelpers(vm *goja.Runtime) error {
	if err := vm.Set("toString", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue("")
		}
		switch v := call.Arguments[0].Export().(type) {
		case []byte:
			return vm.ToValue(string(v))
		case string:
			return vm.ToValue(v)
		default:
			return vm.ToValue(fmt.Sprintf("%v", v))
		}
	}); err != nil {
		return err
	}

	if err := vm.Set("jsonParse", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return goja.Null()
		}
		var raw []byte
		switch v := call.Arguments[0].Export().(type) {
		case []byte:
			raw = v
		case string:
			raw = []byte(v)
		default:
			panic(vm.NewTypeError("jsonParse: expected string or bytes"))
		}
		var parsed any
		if err := json.Unmarshal(raw, &parsed); err != nil {
			panic(vm.NewTypeError("jsonParse: " + err.Error()))
		}
		return vm.ToValue(parsed)
	}); err != nil {
		return err
	}

	if err := vm.Set("btoa", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue("")
		}
		var raw []byte
		switch v := call.Arguments[0].Export().(type) {
		case []byte:
			raw = v
		case string:
			raw = []byte(v)
		default:
			panic(vm.NewTypeError("btoa: expected string or bytes"))
		}
		return vm.ToValue(base64.StdEncoding.EncodeToString(raw))
	}); err != nil {
		return err
	}

	return vm.Set("atob", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) == 0 {
			return vm.ToValue([]byte{})
		}
		decoded, err := base64.StdEncoding.DecodeString(call.Arguments[0].String())
		if err != nil {
			panic(vm.NewTypeError("atob: " + err.Error()))
		}
		return vm.ToValue(decoded)
	})
}

// gojaThrow panics with a goja TypeError carrying err's message, the
// uniform way of surfacing a Go error to JS code (see btoa/atob above),
// reused so every injected global reports failures the same way.
func gojaThrow(vm *goja.Runtime, err error) {
	panic(vm.NewTypeError(err.Error()))
}

func (g *AgentGlobal) bindGoja(vm *goja.Runtime) error {
	return vm.Set("Agent", map[string]any{
		"list": func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(g.Provider.List())
		},
		"create": func(call goja.FunctionCall) goja.Value {
			cfg, _ := call.Argument(0).Export().(map[string]any)
			name, err := g.Provider.Create(cfg)
			if err != nil {
				gojaThrow(vm, err)
			}
			return vm.ToValue(name)
		},
		"execute": func(call goja.FunctionCall) goja.Value {
			name := call.Argument(0).String()
			input, _ := call.Argument(1).Export().(map[string]any)
			out, err := g.Provider.Execute(context.Background(), name, input)
			if err != nil {
				gojaThrow(vm, err)
			}
			return vm.ToValue(out)
		},
		"discoverTools": func(call goja.FunctionCall) goja.Value {
			name := call.Argument(0).String()
			tools, err := g.Provider.DiscoverTools(name)
			if err != nil {
				gojaThrow(vm, err)
			}
			return vm.ToValue(tools)
		},
	})
}

func (g *ToolGlobal) bindGoja(vm *goja.Runtime) error {
	return vm.Set("Tool", map[string]any{
		"list": func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(g.Executor.List())
		},
		"exists": func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(g.Executor.Has(call.Argument(0).String()))
		},
		"get": func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(g.Executor.GetDefinition(call.Argument(0).String()))
		},
		"execute": func(call goja.FunctionCall) goja.Value {
			name := call.Argument(0).String()
			params, _ := call.Argument(1).Export().(map[string]any)
			out, err := g.Executor.Execute(context.Background(), name, params)
			if err != nil {
				gojaThrow(vm, err)
			}
			return vm.ToValue(out)
		},
		"categories": func(call goja.FunctionCall) goja.Value {
			return vm.ToValue([]string{})
		},
		"discover": func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(g.Executor.List())
		},
	})
}

func (g *StateGlobal) bindGoja(vm *goja.Runtime) error {
	return vm.Set("State", map[string]any{
		"save": func(call goja.FunctionCall) goja.Value {
			scope := scopeFromArg(g.Scope, call.Argument(0))
			key := call.Argument(1).String()
			value := call.Argument(2).Export()
			if err := g.Store.Write(context.Background(), scope, key, value); err != nil {
				gojaThrow(vm, err)
			}
			return goja.Undefined()
		},
		"load": func(call goja.FunctionCall) goja.Value {
			scope := scopeFromArg(g.Scope, call.Argument(0))
			key := call.Argument(1).String()
			var out any
			found, err := g.Store.Read(context.Background(), scope, key, &out)
			if err != nil {
				gojaThrow(vm, err)
			}
			if !found {
				return goja.Null()
			}
			return vm.ToValue(out)
		},
		"delete": func(call goja.FunctionCall) goja.Value {
			scope := scopeFromArg(g.Scope, call.Argument(0))
			key := call.Argument(1).String()
			found, err := g.Store.Delete(context.Background(), scope, key)
			if err != nil {
				gojaThrow(vm, err)
			}
			return vm.ToValue(found)
		},
		"list_keys": func(call goja.FunctionCall) goja.Value {
			scope := scopeFromArg(g.Scope, call.Argument(0))
			keys, err := g.Store.ListKeys(context.Background(), scope, "")
			if err != nil {
				gojaThrow(vm, err)
			}
			return vm.ToValue(keys)
		},
	})
}

func (g *EventGlobal) bindGoja(vm *goja.Runtime) error {
	return vm.Set("Event", map[string]any{
		"publish": func(call goja.FunctionCall) goja.Value {
			typ := call.Argument(0).String()
			data := call.Argument(1).Export()
			ev, err := newPublishedEvent(typ, data)
			if err != nil {
				gojaThrow(vm, err)
			}
			g.Bus.Publish(ev)
			return goja.Undefined()
		},
		"subscribe": func(call goja.FunctionCall) goja.Value {
			handle, err := g.Subscribe(call.Argument(0).String())
			if err != nil {
				gojaThrow(vm, err)
			}
			return vm.ToValue(handle)
		},
		"receive": func(call goja.FunctionCall) goja.Value {
			handle := call.Argument(0).String()
			timeoutMS := int(call.Argument(1).ToInteger())
			ev, ok := g.Receive(context.Background(), handle, timeoutMS)
			if !ok {
				return goja.Null()
			}
			return vm.ToValue(ev)
		},
		"unsubscribe": func(call goja.FunctionCall) goja.Value {
			g.Unsubscribe(call.Argument(0).String())
			return goja.Undefined()
		},
		"list_subscriptions": func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(g.ListSubscriptions())
		},
		"get_stats": func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(map[string]any{"subscriptions": len(g.ListSubscriptions())})
		},
	})
}

func (g *SessionGlobal) bindGoja(vm *goja.Runtime) error {
	return vm.Set("Session", map[string]any{
		"create": func(call goja.FunctionCall) goja.Value {
			opts, _ := call.Argument(0).Export().(map[string]any)
			id, err := g.Create(opts)
			if err != nil {
				gojaThrow(vm, err)
			}
			return vm.ToValue(id)
		},
		"save": func(call goja.FunctionCall) goja.Value {
			id := call.Argument(0).String()
			if err := g.Save(context.Background(), id, call.Argument(1).Export()); err != nil {
				gojaThrow(vm, err)
			}
			return goja.Undefined()
		},
		"load": func(call goja.FunctionCall) goja.Value {
			id := call.Argument(0).String()
			var out any
			found, err := g.Load(context.Background(), id, &out)
			if err != nil {
				gojaThrow(vm, err)
			}
			if !found {
				return goja.Null()
			}
			return vm.ToValue(out)
		},
	})
}

func (g *ArtifactGlobal) bindGoja(vm *goja.Runtime) error {
	return vm.Set("Artifact", map[string]any{
		"store": func(call goja.FunctionCall) goja.Value {
			sessionID := call.Argument(0).String()
			name := call.Argument(1).String()
			if err := g.Store_(context.Background(), sessionID, name, call.Argument(2).Export()); err != nil {
				gojaThrow(vm, err)
			}
			return goja.Undefined()
		},
		"list": func(call goja.FunctionCall) goja.Value {
			names, err := g.List(context.Background(), call.Argument(0).String())
			if err != nil {
				gojaThrow(vm, err)
			}
			return vm.ToValue(names)
		},
		"query": func(call goja.FunctionCall) goja.Value {
			names, err := g.Query(context.Background(), call.Argument(0).String(), call.Argument(1).String())
			if err != nil {
				gojaThrow(vm, err)
			}
			return vm.ToValue(names)
		},
	})
}

func (g *TemplateGlobal) bindGoja(vm *goja.Runtime) error {
	return vm.Set("Template", map[string]any{
		"render": func(call goja.FunctionCall) goja.Value {
			name := call.Argument(0).String()
			body := call.Argument(1).String()
			data, _ := call.Argument(2).Export().(map[string]any)
			out, err := g.Engine.Render(name, body, data)
			if err != nil {
				gojaThrow(vm, err)
			}
			return vm.ToValue(out)
		},
	})
}

func (g *DebugGlobal) bindGoja(vm *goja.Runtime) error {
	return vm.Set("Debug", map[string]any{
		"continue_": func(call goja.FunctionCall) goja.Value {
			if err := g.Session.Continue(); err != nil {
				gojaThrow(vm, err)
			}
			return goja.Undefined()
		},
		"stepIn": func(call goja.FunctionCall) goja.Value {
			if err := g.Session.StepIn(); err != nil {
				gojaThrow(vm, err)
			}
			return goja.Undefined()
		},
		"stepOver": func(call goja.FunctionCall) goja.Value {
			if err := g.Session.StepOver(); err != nil {
				gojaThrow(vm, err)
			}
			return goja.Undefined()
		},
		"stepOut": func(call goja.FunctionCall) goja.Value {
			if err := g.Session.StepOut(); err != nil {
				gojaThrow(vm, err)
			}
			return goja.Undefined()
		},
		"setBreakpoint": func(call goja.FunctionCall) goja.Value {
			id := call.Argument(0).String()
			location := call.Argument(1).String()
			condition := call.Argument(2).String()
			g.Session.SetBreakpoint(id, location, condition)
			return goja.Undefined()
		},
		"removeBreakpoint": func(call goja.FunctionCall) goja.Value {
			g.Session.RemoveBreakpoint(call.Argument(0).String())
			return goja.Undefined()
		},
		"state": func(call goja.FunctionCall) goja.Value {
			return vm.ToValue(g.Session.State())
		},
	})
}

func (g *ArgsGlobal) bindGoja(vm *goja.Runtime) error {
	table := map[string]any{"0": g.ScriptName}
	for i, v := range g.Positional {
		table[fmt.Sprintf("%d", i+1)] = v
	}
	for k, v := range g.Named {
		table[k] = v
	}
	return vm.Set("ARGS", table)
}

// scopeFromArg maps a script-supplied scope name ("global", "session:<id>",
// "user:<id>", "tenant:<id>", or anything else treated as a custom scope
// name) onto a state.Scope, falling back to the engine's ambient default
// scope when the argument is empty.
func scopeFromArg(fallback state.Scope, arg goja.Value) state.Scope {
	if arg == nil || goja.IsUndefined(arg) || goja.IsNull(arg) || arg.String() == "" {
		return fallback
	}
	return parseScopeArg(arg.String(), fallback)
}
