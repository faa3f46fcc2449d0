package script

import (
	"fmt"

	"github.com/dop251/goja"
	lua "github.com/yuin/gopher-lua"
)

// gojaBinder and luaBinder are satisfied by each concrete Global in
// goja_engine.go / lua_engine.go respectively. A Global that only supports
// one engine kind simply doesn't implement the other's interface, and
// bindByKind reports that plainly rather than silently no-op'ing.
type gojaBinder interface {
	bindGoja(vm *goja.Runtime) error
}

type luaBinder interface {
	bindLua(L *lua.LState) error
}

// bindByKind is the shared Inject() body for every Global: dispatch to the
// engine-specific binder based on the concrete handle type.
func bindByKind(engine any, g Global) error {
	switch e := engine.(type) {
	case *goja.Runtime:
		if b, ok := g.(gojaBinder); ok {
			return b.bindGoja(e)
		}
	case *lua.LState:
		if b, ok := g.(luaBinder); ok {
			return b.bindLua(e)
		}
	}
	return fmt.Errorf("script: global %q has no binder for engine handle %T", g.Name(), engine)
}
