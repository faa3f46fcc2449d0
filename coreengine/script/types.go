// Package script implements the global registry and injector: the
// dependency-ordered injection of host globals (Agent, Tool, State, Event,
// Session, Artifact, Template, Debug, ARGS) into a script engine, plus the
// goja and gopher-lua engine bridges and per-engine condition evaluators.
package script

import "context"

// EngineKind names a supported script engine, used as half of the
// InjectionCache's (global_name, engine_kind) key.
type EngineKind string

const (
	EngineGoja EngineKind = "goja"
	EngineLua  EngineKind = "lua"
)

// Global is one host capability a script engine can have injected into it
// (the Agent/Tool/State/Event/Session/Artifact/Template/Debug globals).
// Dependencies names other globals, by Name(), that must be injected first.
type Global interface {
	Name() string
	Dependencies() []string

	// Initialize runs once per injection, before Inject, to let a global
	// do any setup that should count against the injection time budget
	// but shouldn't run on every engine it's injected into (e.g. warming a
	// shared cache).
	Initialize(ctx context.Context) error

	// Inject binds this global's surface onto engine, which is the
	// engine-specific VM handle (*goja.Runtime, *lua.LState, ...). Engine
	// bridges type-assert engine to the concrete type they expect.
	Inject(ctx context.Context, engine any) error
}

// Engine is the minimal contract script.Injector needs from a script
// engine bridge: enough to report which EngineKind it is (for the
// injection cache key) and hand back the underlying VM handle Global.Inject
// expects.
type Engine interface {
	Kind() EngineKind
	Handle() any
}
