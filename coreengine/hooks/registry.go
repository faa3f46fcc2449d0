package hooks

import (
	"container/heap"
	"sort"
	"sync"
)

// registration pairs a Hook with its ordering key. The shape and the
// container/heap.Interface below are a direct generalization of
// coreengine/kernel/lifecycle.go's priorityItem/priorityQueue: there, items
// are ProcessControlBlocks ordered by (SchedulingPriority, createdAt); here,
// items are Hooks ordered by (Priority, registration sequence).
type registration struct {
	hook HookMetadata
	impl Hook
	seq  uint64
	// index is maintained by the heap methods below, for parity with the
	// lifecycle.go shape; Unregister finds a registration by scanning its
	// bucket and does not read it.
	index int
}

type registrationQueue []*registration

func (q registrationQueue) Len() int { return len(q) }

func (q registrationQueue) Less(i, j int) bool {
	if q[i].hook.Priority != q[j].hook.Priority {
		return q[i].hook.Priority < q[j].hook.Priority
	}
	return q[i].seq < q[j].seq
}

func (q registrationQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *registrationQueue) Push(x any) {
	r := x.(*registration)
	r.index = len(*q)
	*q = append(*q, r)
}

func (q *registrationQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// HookFeatures is a bitset gating which optional hook-chain behaviors a
// SelectiveHookRegistry view will exercise, mirroring the original's
// HookFeatures/SelectiveHookRegistry split between "always-on core" and
// "opt-in extras" (forking, caching, replay persistence).
type HookFeatures uint32

const (
	FeatureFork HookFeatures = 1 << iota
	FeatureCache
	FeatureReplay
	FeatureCircuitBreaker
)

// AllFeatures enables every optional behavior.
const AllFeatures = FeatureFork | FeatureCache | FeatureReplay | FeatureCircuitBreaker

// Registry holds, per HookPoint, an ordered set of registered hooks. Lookup
// by HookPoint returns a stable-ordered snapshot; registration and lookup are
// safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[HookPoint]map[string]*registration
	order  map[HookPoint]registrationQueue
	closed bool
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[HookPoint]map[string]*registration),
		order:  make(map[HookPoint]registrationQueue),
	}
}

// Register adds hook at point under the given metadata, rejecting duplicate
// names at the same point and unknown points.
func (r *Registry) Register(point HookPoint, meta HookMetadata, hook Hook) error {
	if !AllHookPoints[point] {
		return NewUnknownHookPointError(point)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return NewRegistryClosedError()
	}

	names, ok := r.byName[point]
	if !ok {
		names = make(map[string]*registration)
		r.byName[point] = names
	}
	if _, exists := names[meta.Name]; exists {
		return NewDuplicateRegistrationError(meta.Name, point)
	}

	reg := &registration{hook: meta, impl: hook, seq: nextRegistrationSeq()}
	names[meta.Name] = reg

	q := r.order[point]
	heap.Push(&q, reg)
	r.order[point] = q

	return nil
}

// Unregister removes a named hook from point. It is a no-op if the hook is
// not present, matching the idempotent-unsubscribe idiom in commbus/bus.go.
func (r *Registry) Unregister(point HookPoint, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names, ok := r.byName[point]
	if !ok {
		return
	}
	target, ok := names[name]
	if !ok {
		return
	}
	delete(names, name)

	q := r.order[point]
	for i, reg := range q {
		if reg == target {
			heap.Remove(&q, i)
			break
		}
	}
	r.order[point] = q
}

// Chain returns the hooks registered at point, in deterministic priority
// order (Priority ascending, then registration order), without mutating the
// registry's own heap. The returned slice is safe for the caller to keep; it
// is a fresh copy.
func (r *Registry) Chain(point HookPoint) []Hook {
	r.mu.RLock()
	defer r.mu.RUnlock()

	q := r.order[point]
	sorted := make(registrationQueue, len(q))
	copy(sorted, q)
	// Sort via a temporary heap pop sequence so Chain never disturbs the
	// live heap's internal slot assignment.
	tmp := &sorted
	heap.Init(tmp)
	out := make([]Hook, 0, len(sorted))
	for tmp.Len() > 0 {
		out = append(out, heap.Pop(tmp).(*registration).impl)
	}
	return out
}

// Close marks the registry closed; further Register calls fail. Existing
// chains remain walkable.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// OrderedHooks returns point's chain as HookRefs (hook plus the metadata it
// was registered under) — the spec's ordered_hooks(point, feature_filter?)
// contract. When enabled is non-nil, a hook whose declared Feature is
// non-zero is excluded unless that bit is set in *enabled; a feature-less
// (core) hook is always included. Order matches Chain: priority ascending,
// ties broken by registration order.
func (r *Registry) OrderedHooks(point HookPoint, enabled *HookFeatures) []HookRef {
	r.mu.RLock()
	sorted := make(registrationQueue, len(r.order[point]))
	copy(sorted, r.order[point])
	r.mu.RUnlock()
	sort.Slice(sorted, func(i, j int) bool { return sorted.Less(i, j) })

	out := make([]HookRef, 0, len(sorted))
	for _, reg := range sorted {
		meta := reg.hook
		if enabled != nil && meta.Feature != 0 && *enabled&meta.Feature == 0 {
			continue
		}
		out = append(out, HookRef{Point: point, Metadata: meta, Hook: reg.impl})
	}
	return out
}

// HooksByComponent returns every hook registered on behalf of id, across all
// HookPoints — the spec's hooks_by_component(ComponentId) contract. Results
// are ordered by HookPoint name, then by the same priority/registration-order
// rule Chain uses within a point, so repeated calls are deterministic.
func (r *Registry) HooksByComponent(id ComponentId) []HookRef {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var points []HookPoint
	for point := range r.order {
		points = append(points, point)
	}
	sort.Slice(points, func(i, j int) bool { return points[i] < points[j] })

	var out []HookRef
	for _, point := range points {
		sorted := make(registrationQueue, len(r.order[point]))
		copy(sorted, r.order[point])
		tmp := &sorted
		heap.Init(tmp)
		for tmp.Len() > 0 {
			reg := heap.Pop(tmp).(*registration)
			if reg.hook.ComponentID != id {
				continue
			}
			out = append(out, HookRef{Point: point, Metadata: reg.hook, Hook: reg.impl})
		}
	}
	return out
}

// HookChainer is satisfied by both Registry and SelectiveHookRegistry. An
// Executor is built over a HookChainer rather than a concrete *Registry so a
// feature-gated view can actually narrow what the executor walks, instead of
// the gate being decorative.
type HookChainer interface {
	Chain(point HookPoint) []Hook
}

var _ HookChainer = (*Registry)(nil)

// SelectiveHookRegistry wraps a Registry with a HookFeatures gate, the same
// narrowing the original's selective.rs applies so a given engine/tenant can
// opt out of expensive behaviors (fork, cache, replay) while keeping the core
// chain-walk. Chain is overridden to actually apply the gate: callers that
// hold a *SelectiveHookRegistry (directly, or as a HookChainer passed to
// NewExecutor) see a narrowed chain; callers that reach through to the
// embedded *Registry still see the full, unfiltered one.
type SelectiveHookRegistry struct {
	*Registry
	Features HookFeatures
}

// NewSelectiveHookRegistry wraps registry with the given feature gate.
func NewSelectiveHookRegistry(registry *Registry, features HookFeatures) *SelectiveHookRegistry {
	return &SelectiveHookRegistry{Registry: registry, Features: features}
}

// Enabled reports whether the given optional feature is turned on for this
// view.
func (s *SelectiveHookRegistry) Enabled(f HookFeatures) bool {
	return s.Features&f != 0
}

// Chain shadows Registry.Chain, returning point's hooks narrowed to this
// view's Features gate: a hook whose declared HookMetadata.Feature is
// non-zero is dropped unless that feature is enabled. Feature-less hooks
// (the always-on core chain) are never filtered.
func (s *SelectiveHookRegistry) Chain(point HookPoint) []Hook {
	refs := s.Registry.OrderedHooks(point, &s.Features)
	out := make([]Hook, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ref.Hook)
	}
	return out
}

var _ HookChainer = (*SelectiveHookRegistry)(nil)
