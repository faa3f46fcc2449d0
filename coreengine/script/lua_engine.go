package script

import (
	"context"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// LuaEngine wraps a *lua.LState as a script.Engine, the Lua half of the
// language-neutral injection target: *lua.LState creation, SetGlobal calls
// per injected capability, lua.LGFunction wrappers around each method.
type LuaEngine struct {
	state *lua.LState
}

// NewLuaEngine creates a fresh Lua state.
func NewLuaEngine() *LuaEngine {
	return &LuaEngine{state: lua.NewState()}
}

func (e *LuaEngine) Kind() EngineKind { return EngineLua }
func (e *LuaEngine) Handle() any      { return e.state }

// Close releases the underlying Lua state.
func (e *LuaEngine) Close() { e.state.Close() }

// luaThrow raises a Lua runtime error carrying err's message, the uniform
// way every injected global reports a Go-side failure back into a script.
func luaThrow(L *lua.LState, err error) int {
	L.RaiseError("%s", err.Error())
	return 0
}

// luaModule builds a Lua table whose fields are the given named functions,
// mirroring the "namespace object with methods" shape every injected global
// exposes (Agent.list, Tool.execute, ...).
func luaModule(L *lua.LState, fns map[string]lua.LGFunction) *lua.LTable {
	tbl := L.NewTable()
	for name, fn := range fns {
		L.SetField(tbl, name, L.NewFunction(fn))
	}
	return tbl
}

// luaToGo converts a Lua value into a plain Go value (string/float64/bool/
// map[string]any/[]any/nil) suitable for passing into host APIs that expect
// map[string]any params, the inverse of gluamapper-style marshaling without
// pulling in an extra dependency for it.
func luaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if val.Len() > 0 {
			out := make([]any, 0, val.Len())
			val.ForEach(func(_, v lua.LValue) { out = append(out, luaToGo(v)) })
			return out
		}
		out := make(map[string]any)
		val.ForEach(func(k, v lua.LValue) { out[k.String()] = luaToGo(v) })
		return out
	default:
		return v.String()
	}
}

func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case []string:
		tbl := L.NewTable()
		for _, s := range val {
			tbl.Append(lua.LString(s))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, item := range val {
			L.SetField(tbl, k, goToLua(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}

func (g *AgentGlobal) bindLua(L *lua.LState) error {
	L.SetGlobal("Agent", luaModule(L, map[string]lua.LGFunction{
		"list": func(L *lua.LState) int {
			L.Push(goToLua(L, g.Provider.List()))
			return 1
		},
		"create": func(L *lua.LState) int {
			cfg, _ := luaToGo(L.CheckTable(1)).(map[string]any)
			name, err := g.Provider.Create(cfg)
			if err != nil {
				return luaThrow(L, err)
			}
			L.Push(lua.LString(name))
			return 1
		},
		"execute": func(L *lua.LState) int {
			name := L.CheckString(1)
			input, _ := luaToGo(L.CheckTable(2)).(map[string]any)
			out, err := g.Provider.Execute(context.Background(), name, input)
			if err != nil {
				return luaThrow(L, err)
			}
			L.Push(goToLua(L, out))
			return 1
		},
		"discoverTools": func(L *lua.LState) int {
			tools, err := g.Provider.DiscoverTools(L.CheckString(1))
			if err != nil {
				return luaThrow(L, err)
			}
			L.Push(goToLua(L, tools))
			return 1
		},
	}))
	return nil
}

func (g *ToolGlobal) bindLua(L *lua.LState) error {
	L.SetGlobal("Tool", luaModule(L, map[string]lua.LGFunction{
		"list": func(L *lua.LState) int {
			L.Push(goToLua(L, g.Executor.List()))
			return 1
		},
		"exists": func(L *lua.LState) int {
			L.Push(lua.LBool(g.Executor.Has(L.CheckString(1))))
			return 1
		},
		"execute": func(L *lua.LState) int {
			name := L.CheckString(1)
			params, _ := luaToGo(L.CheckTable(2)).(map[string]any)
			out, err := g.Executor.Execute(context.Background(), name, params)
			if err != nil {
				return luaThrow(L, err)
			}
			L.Push(goToLua(L, out))
			return 1
		},
		"categories": func(L *lua.LState) int {
			L.Push(L.NewTable())
			return 1
		},
		"discover": func(L *lua.LState) int {
			L.Push(goToLua(L, g.Executor.List()))
			return 1
		},
	}))
	return nil
}

func (g *StateGlobal) bindLua(L *lua.LState) error {
	L.SetGlobal("State", luaModule(L, map[string]lua.LGFunction{
		"save": func(L *lua.LState) int {
			scope := parseScopeArg(L.CheckString(1), g.Scope)
			key := L.CheckString(2)
			value := luaToGo(L.Get(3))
			if err := g.Store.Write(context.Background(), scope, key, value); err != nil {
				return luaThrow(L, err)
			}
			return 0
		},
		"load": func(L *lua.LState) int {
			scope := parseScopeArg(L.CheckString(1), g.Scope)
			key := L.CheckString(2)
			var out any
			found, err := g.Store.Read(context.Background(), scope, key, &out)
			if err != nil {
				return luaThrow(L, err)
			}
			if !found {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(goToLua(L, out))
			return 1
		},
		"delete": func(L *lua.LState) int {
			scope := parseScopeArg(L.CheckString(1), g.Scope)
			found, err := g.Store.Delete(context.Background(), scope, L.CheckString(2))
			if err != nil {
				return luaThrow(L, err)
			}
			L.Push(lua.LBool(found))
			return 1
		},
		"list_keys": func(L *lua.LState) int {
			scope := parseScopeArg(L.CheckString(1), g.Scope)
			keys, err := g.Store.ListKeys(context.Background(), scope, "")
			if err != nil {
				return luaThrow(L, err)
			}
			L.Push(goToLua(L, keys))
			return 1
		},
	}))
	return nil
}

func (g *EventGlobal) bindLua(L *lua.LState) error {
	L.SetGlobal("Event", luaModule(L, map[string]lua.LGFunction{
		"publish": func(L *lua.LState) int {
			ev, err := newPublishedEvent(L.CheckString(1), luaToGo(L.Get(2)))
			if err != nil {
				return luaThrow(L, err)
			}
			g.Bus.Publish(ev)
			return 0
		},
		"subscribe": func(L *lua.LState) int {
			handle, err := g.Subscribe(L.CheckString(1))
			if err != nil {
				return luaThrow(L, err)
			}
			L.Push(lua.LString(handle))
			return 1
		},
		"receive": func(L *lua.LState) int {
			handle := L.CheckString(1)
			timeoutMS := L.CheckInt(2)
			ev, ok := g.Receive(context.Background(), handle, timeoutMS)
			if !ok {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(goToLua(L, map[string]any{"id": ev.ID, "type": ev.Type, "correlation_id": ev.CorrelationID}))
			return 1
		},
		"unsubscribe": func(L *lua.LState) int {
			g.Unsubscribe(L.CheckString(1))
			return 0
		},
		"list_subscriptions": func(L *lua.LState) int {
			subs := g.ListSubscriptions()
			tbl := L.NewTable()
			for _, s := range subs {
				tbl.Append(goToLua(L, map[string]any{"id": s.ID, "pattern": s.Pattern}))
			}
			L.Push(tbl)
			return 1
		},
		"get_stats": func(L *lua.LState) int {
			L.Push(goToLua(L, map[string]any{"subscriptions": len(g.ListSubscriptions())}))
			return 1
		},
	}))
	return nil
}

func (g *SessionGlobal) bindLua(L *lua.LState) error {
	L.SetGlobal("Session", luaModule(L, map[string]lua.LGFunction{
		"create": func(L *lua.LState) int {
			opts, _ := luaToGo(L.OptTable(1, L.NewTable())).(map[string]any)
			id, err := g.Create(opts)
			if err != nil {
				return luaThrow(L, err)
			}
			L.Push(lua.LString(id))
			return 1
		},
		"save": func(L *lua.LState) int {
			if err := g.Save(context.Background(), L.CheckString(1), luaToGo(L.Get(2))); err != nil {
				return luaThrow(L, err)
			}
			return 0
		},
		"load": func(L *lua.LState) int {
			var out any
			found, err := g.Load(context.Background(), L.CheckString(1), &out)
			if err != nil {
				return luaThrow(L, err)
			}
			if !found {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(goToLua(L, out))
			return 1
		},
	}))
	return nil
}

func (g *ArtifactGlobal) bindLua(L *lua.LState) error {
	L.SetGlobal("Artifact", luaModule(L, map[string]lua.LGFunction{
		"store": func(L *lua.LState) int {
			sessionID := L.CheckString(1)
			name := L.CheckString(2)
			if err := g.Store_(context.Background(), sessionID, name, luaToGo(L.Get(3))); err != nil {
				return luaThrow(L, err)
			}
			return 0
		},
		"list": func(L *lua.LState) int {
			names, err := g.List(context.Background(), L.CheckString(1))
			if err != nil {
				return luaThrow(L, err)
			}
			L.Push(goToLua(L, names))
			return 1
		},
		"query": func(L *lua.LState) int {
			names, err := g.Query(context.Background(), L.CheckString(1), L.CheckString(2))
			if err != nil {
				return luaThrow(L, err)
			}
			L.Push(goToLua(L, names))
			return 1
		},
	}))
	return nil
}

func (g *TemplateGlobal) bindLua(L *lua.LState) error {
	L.SetGlobal("Template", luaModule(L, map[string]lua.LGFunction{
		"render": func(L *lua.LState) int {
			name := L.CheckString(1)
			body := L.CheckString(2)
			data, _ := luaToGo(L.OptTable(3, L.NewTable())).(map[string]any)
			out, err := g.Engine.Render(name, body, data)
			if err != nil {
				return luaThrow(L, err)
			}
			L.Push(lua.LString(out))
			return 1
		},
	}))
	return nil
}

func (g *DebugGlobal) bindLua(L *lua.LState) error {
	L.SetGlobal("Debug", luaModule(L, map[string]lua.LGFunction{
		"continue_": func(L *lua.LState) int {
			if err := g.Session.Continue(); err != nil {
				return luaThrow(L, err)
			}
			return 0
		},
		"stepIn": func(L *lua.LState) int {
			if err := g.Session.StepIn(); err != nil {
				return luaThrow(L, err)
			}
			return 0
		},
		"stepOver": func(L *lua.LState) int {
			if err := g.Session.StepOver(); err != nil {
				return luaThrow(L, err)
			}
			return 0
		},
		"stepOut": func(L *lua.LState) int {
			if err := g.Session.StepOut(); err != nil {
				return luaThrow(L, err)
			}
			return 0
		},
		"setBreakpoint": func(L *lua.LState) int {
			id := L.CheckString(1)
			location := L.CheckString(2)
			condition := L.OptString(3, "")
			g.Session.SetBreakpoint(id, location, condition)
			return 0
		},
		"removeBreakpoint": func(L *lua.LState) int {
			g.Session.RemoveBreakpoint(L.CheckString(1))
			return 0
		},
		"state": func(L *lua.LState) int {
			L.Push(lua.LString(g.Session.State()))
			return 1
		},
	}))
	return nil
}

func (g *ArgsGlobal) bindLua(L *lua.LState) error {
	tbl := L.NewTable()
	L.SetTable(tbl, lua.LNumber(0), lua.LString(g.ScriptName))
	for i, v := range g.Positional {
		L.SetTable(tbl, lua.LNumber(i+1), lua.LString(v))
	}
	for k, v := range g.Named {
		L.SetField(tbl, k, lua.LString(v))
	}
	L.SetGlobal("ARGS", tbl)
	return nil
}
