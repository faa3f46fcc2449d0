package script

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/events"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/kernel"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/state"
)

// baseGlobal gives every concrete Global a no-op Initialize/Dependencies it
// can embed and override, the same way coreengine/hooks.Hook
// implementations lean on small embeddable defaults rather than repeating
// boilerplate per hook.
type baseGlobal struct {
	name string
	deps []string
}

func (b baseGlobal) Name() string         { return b.name }
func (b baseGlobal) Dependencies() []string { return b.deps }
func (b baseGlobal) Initialize(context.Context) error { return nil }

// AgentProvider is the capability surface Agent.* binds to. It is a narrow
// interface rather than *agents.Agent directly so a script engine sees one
// agent "host" even when multiple coreengine/agents.Agent configurations are
// registered behind it.
type AgentProvider interface {
	List() []string
	Create(config map[string]any) (string, error)
	Execute(ctx context.Context, name string, input map[string]any) (map[string]any, error)
	DiscoverTools(name string) ([]string, error)
}

// AgentGlobal injects Agent.list/create/execute/discoverTools.
type AgentGlobal struct {
	baseGlobal
	Provider AgentProvider
}

func NewAgentGlobal(provider AgentProvider) *AgentGlobal {
	return &AgentGlobal{baseGlobal: baseGlobal{name: "Agent"}, Provider: provider}
}

func (g *AgentGlobal) Inject(ctx context.Context, engine any) error {
	return bindByKind(engine, g)
}

// ToolExecutorProvider is the capability surface Tool.* binds to, matching
// coreengine/tools.ToolExecutor's existing method set directly.
type ToolExecutorProvider interface {
	List() []string
	Has(name string) bool
	Execute(ctx context.Context, name string, params map[string]any) (map[string]any, error)
	GetDefinition(name string) any
}

// ToolGlobal injects Tool.list/get/execute/exists/categories/discover;
// per-tool Tool.<name>.execute(params) shortcuts are bound by the engine
// bridge since they require dynamic property names.
type ToolGlobal struct {
	baseGlobal
	Executor ToolExecutorProvider
}

func NewToolGlobal(executor ToolExecutorProvider) *ToolGlobal {
	return &ToolGlobal{baseGlobal: baseGlobal{name: "Tool"}, Executor: executor}
}

func (g *ToolGlobal) Inject(ctx context.Context, engine any) error {
	return bindByKind(engine, g)
}

// StateGlobal injects State.save/load/delete/list_keys, scoped by the
// tenant/session ambient context the engine was constructed with.
type StateGlobal struct {
	baseGlobal
	Store *state.Store
	Scope state.Scope
}

func NewStateGlobal(store *state.Store, scope state.Scope) *StateGlobal {
	return &StateGlobal{baseGlobal: baseGlobal{name: "State"}, Store: store, Scope: scope}
}

func (g *StateGlobal) Inject(ctx context.Context, engine any) error {
	return bindByKind(engine, g)
}

// eventSubscription is one outstanding Event.subscribe() handle: a bounded
// queue fed by the bus's callback-based Subscribe, so Event.receive can
// block/poll the way a script expects rather than taking a callback itself.
type eventSubscription struct {
	unsubscribe func()
	queue       chan events.UniversalEvent
}

// EventGlobal injects Event.publish/subscribe/receive/unsubscribe/
// list_subscriptions/get_stats, bridging the callback-based events.Bus into
// the poll/receive shape a script expects.
type EventGlobal struct {
	baseGlobal
	Bus *events.Bus

	mu   sync.Mutex
	subs map[string]*eventSubscription
	next int
}

func NewEventGlobal(bus *events.Bus) *EventGlobal {
	return &EventGlobal{
		baseGlobal: baseGlobal{name: "Event"},
		Bus:        bus,
		subs:       make(map[string]*eventSubscription),
	}
}

func (g *EventGlobal) Inject(ctx context.Context, engine any) error {
	return bindByKind(engine, g)
}

// Subscribe registers pattern against the bus and returns a handle for
// Event.receive/Event.unsubscribe. The subscriber queue is 64-deep with
// DropOld backpressure: a script that never calls receive() must not stall
// publishers, so the oldest unread event is the one dropped.
func (g *EventGlobal) Subscribe(pattern string) (string, error) {
	g.mu.Lock()
	g.next++
	handle := fmt.Sprintf("sub-%d", g.next)
	g.mu.Unlock()

	sub := &eventSubscription{queue: make(chan events.UniversalEvent, 64)}
	unsubscribe, err := g.Bus.Subscribe(pattern, events.DropOld, 64, func(ev events.UniversalEvent) {
		select {
		case sub.queue <- ev:
		default:
			<-sub.queue
			sub.queue <- ev
		}
	})
	if err != nil {
		return "", err
	}
	sub.unsubscribe = unsubscribe

	g.mu.Lock()
	g.subs[handle] = sub
	g.mu.Unlock()
	return handle, nil
}

// Receive blocks for up to timeoutMS for the next event on handle's queue,
// returning ok=false on timeout or an unknown handle.
func (g *EventGlobal) Receive(ctx context.Context, handle string, timeoutMS int) (events.UniversalEvent, bool) {
	g.mu.Lock()
	sub, found := g.subs[handle]
	g.mu.Unlock()
	if !found {
		return events.UniversalEvent{}, false
	}

	timer := time.NewTimer(time.Duration(timeoutMS) * time.Millisecond)
	defer timer.Stop()
	select {
	case ev := <-sub.queue:
		return ev, true
	case <-timer.C:
		return events.UniversalEvent{}, false
	case <-ctx.Done():
		return events.UniversalEvent{}, false
	}
}

// Unsubscribe tears down a handle returned by Subscribe.
func (g *EventGlobal) Unsubscribe(handle string) {
	g.mu.Lock()
	sub, found := g.subs[handle]
	delete(g.subs, handle)
	g.mu.Unlock()
	if found {
		sub.unsubscribe()
	}
}

// ListSubscriptions mirrors the bus's Subscribers() for Event.list_subscriptions().
func (g *EventGlobal) ListSubscriptions() []events.Subscription {
	return g.Bus.Subscribers()
}

// SessionGlobal injects Session.create/save/load, modeled as thin sugar
// over a dedicated state.Scope(Session) slice of the store.
type SessionGlobal struct {
	baseGlobal
	Store *state.Store
}

func NewSessionGlobal(store *state.Store) *SessionGlobal {
	return &SessionGlobal{baseGlobal: baseGlobal{name: "Session", deps: []string{"State"}}, Store: store}
}

func (g *SessionGlobal) Inject(ctx context.Context, engine any) error {
	return bindByKind(engine, g)
}

func (g *SessionGlobal) Create(opts map[string]any) (string, error) {
	scope := state.NewSession()
	if err := g.Store.Write(context.Background(), scope, "__opts", opts); err != nil {
		return "", err
	}
	return scope.ID, nil
}

func (g *SessionGlobal) Save(ctx context.Context, id string, value any) error {
	scope, err := state.NewSessionScope(id)
	if err != nil {
		return err
	}
	return g.Store.Write(ctx, scope, "__snapshot", value)
}

func (g *SessionGlobal) Load(ctx context.Context, id string, out any) (bool, error) {
	scope, err := state.NewSessionScope(id)
	if err != nil {
		return false, err
	}
	return g.Store.Read(ctx, scope, "__snapshot", out)
}

// ArtifactGlobal injects Artifact.store/list/query, sharing the same
// state.Store and Session dependency as SessionGlobal since artifacts are
// namespaced under a session's custom scope.
type ArtifactGlobal struct {
	baseGlobal
	Store *state.Store
}

func NewArtifactGlobal(store *state.Store) *ArtifactGlobal {
	return &ArtifactGlobal{baseGlobal: baseGlobal{name: "Artifact", deps: []string{"Session"}}, Store: store}
}

func (g *ArtifactGlobal) Inject(ctx context.Context, engine any) error {
	return bindByKind(engine, g)
}

func (g *ArtifactGlobal) scope(sessionID string) state.Scope {
	return state.Custom("artifacts:" + sessionID)
}

func (g *ArtifactGlobal) Store_(ctx context.Context, sessionID, name string, value any) error {
	return g.Store.Write(ctx, g.scope(sessionID), name, value)
}

func (g *ArtifactGlobal) List(ctx context.Context, sessionID string) ([]string, error) {
	return g.Store.ListKeys(ctx, g.scope(sessionID), "")
}

func (g *ArtifactGlobal) Query(ctx context.Context, sessionID, prefix string) ([]string, error) {
	return g.Store.ListKeys(ctx, g.scope(sessionID), prefix)
}

// TemplateEngine is the narrow text-templating contract TemplateGlobal
// binds; coreengine/script deliberately doesn't depend on text/template's
// concrete type so a test can substitute a trivial stub.
type TemplateEngine interface {
	Render(name, body string, data map[string]any) (string, error)
}

// TemplateGlobal injects Template.render: render a named template against
// data, with compiled templates cached by name.
type TemplateGlobal struct {
	baseGlobal
	Engine TemplateEngine
}

func NewTemplateGlobal(engine TemplateEngine) *TemplateGlobal {
	return &TemplateGlobal{baseGlobal: baseGlobal{name: "Template"}, Engine: engine}
}

func (g *TemplateGlobal) Inject(ctx context.Context, engine any) error {
	return bindByKind(engine, g)
}

// DebugGlobal injects Debug.pause/continue/stepIn/stepOver/stepOut/
// setBreakpoint/removeBreakpoint, bridging directly onto a
// coreengine/kernel.DebugSession.
type DebugGlobal struct {
	baseGlobal
	Session *kernel.DebugSession
}

func NewDebugGlobal(session *kernel.DebugSession) *DebugGlobal {
	return &DebugGlobal{baseGlobal: baseGlobal{name: "Debug"}, Session: session}
}

func (g *DebugGlobal) Inject(ctx context.Context, engine any) error {
	return bindByKind(engine, g)
}

// ArgsGlobal injects the ARGS table: positional args mirrored at integer
// keys (index 0 = script name) plus named args at string keys.
type ArgsGlobal struct {
	baseGlobal
	ScriptName string
	Positional []string
	Named      map[string]string
}

func NewArgsGlobal(scriptName string, positional []string, named map[string]string) *ArgsGlobal {
	return &ArgsGlobal{baseGlobal: baseGlobal{name: "ARGS"}, ScriptName: scriptName, Positional: positional, Named: named}
}

func (g *ArgsGlobal) Inject(ctx context.Context, engine any) error {
	return bindByKind(engine, g)
}
