package events

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jeeves-cluster-organization/llmspellkernel/commbus"
	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/observability"
)

// DefaultQueueDepth is the bound applied to a subscriber's queue when it
// does not specify one.
const DefaultQueueDepth = 1024

// subscriberEntry pairs a Subscription with the channel its events are
// delivered on and the goroutine that drains it. The id-keyed map plus
// RWMutex-guarded subscriber table is the same shape as
// commbus/bus.go's subscriberEntry/InMemoryCommBus, generalized here with a
// bounded channel instead of direct synchronous handler invocation.
type subscriberEntry struct {
	sub     Subscription
	queue   chan UniversalEvent
	handler func(UniversalEvent)
	done    chan struct{}
}

// Bus is a publish/subscribe event backbone with glob-pattern subscriptions
// and bounded, backpressure-governed per-subscriber delivery. Publish fans
// out to every matching subscriber without holding the subscriber lock
// during delivery, the same copy-then-iterate-without-lock idiom
// commbus/bus.go's Publish uses.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriberEntry
	nextSubID   uint64
	logger      commbus.Logger
}

// NewBus builds an empty Bus.
func NewBus(logger commbus.Logger) *Bus {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Bus{subscribers: make(map[string]*subscriberEntry), logger: logger.Bind("component", "event_bus")}
}

// Subscribe registers handler to receive every event whose Type matches
// pattern, delivered in FIFO order per subscription via a dedicated
// goroutine draining a bounded queue. It returns an idempotent unsubscribe
// function, the same closure-based idiom as commbus/bus.go's Subscribe.
func (b *Bus) Subscribe(pattern string, policy BackpressurePolicy, queueDepth int, handler func(UniversalEvent)) (func(), error) {
	if pattern == "" {
		return nil, NewInvalidPatternError(pattern)
	}
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}

	id := fmt.Sprintf("sub_%d", atomic.AddUint64(&b.nextSubID, 1))
	entry := &subscriberEntry{
		sub:     Subscription{ID: id, Pattern: pattern, Policy: policy, QueueDepth: queueDepth},
		queue:   make(chan UniversalEvent, queueDepth),
		handler: handler,
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	b.subscribers[id] = entry
	b.mu.Unlock()

	go b.drain(entry)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, id)
			b.mu.Unlock()
			close(entry.done)
		})
	}, nil
}

// drain delivers queued events to entry's handler one at a time, preserving
// FIFO order for that subscription.
func (b *Bus) drain(entry *subscriberEntry) {
	for {
		select {
		case ev := <-entry.queue:
			entry.handler(ev)
		case <-entry.done:
			return
		}
	}
}

// Publish delivers ev to every subscriber whose pattern matches ev.Type,
// applying each subscriber's own backpressure policy independently. Publish
// never blocks on a slow subscriber under DropNew/DropOld; under Block it
// waits for queue room on that subscriber. Matched subscribers are served
// one after another, so a Block subscriber with a full queue also delays
// delivery to the subscribers served after it.
func (b *Bus) Publish(ev UniversalEvent) {
	observability.RecordEventPublish(ev.Type)

	b.mu.RLock()
	matched := make([]*subscriberEntry, 0, len(b.subscribers))
	for _, entry := range b.subscribers {
		if MatchPattern(entry.sub.Pattern, ev.Type) {
			matched = append(matched, entry)
		}
	}
	b.mu.RUnlock()

	for _, entry := range matched {
		b.deliverOne(entry, ev)
	}
}

func (b *Bus) deliverOne(entry *subscriberEntry, ev UniversalEvent) {
	switch entry.sub.Policy {
	case DropOld:
		for {
			select {
			case entry.queue <- ev:
				return
			default:
				select {
				case <-entry.queue:
					observability.RecordEventBackpressureDrop(ev.Type, string(DropOld))
				default:
				}
			}
		}

	case Block:
		select {
		case entry.queue <- ev:
		case <-entry.done:
		}

	default: // DropNew
		select {
		case entry.queue <- ev:
		default:
			observability.RecordEventBackpressureDrop(ev.Type, string(DropNew))
			b.logger.Warning("event_dropped", "subscription_id", entry.sub.ID, "event_type", ev.Type)
		}
	}
}

// Subscribers returns a snapshot of currently registered subscriptions.
func (b *Bus) Subscribers() []Subscription {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Subscription, 0, len(b.subscribers))
	for _, e := range b.subscribers {
		out = append(out, e.sub)
	}
	return out
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any)        {}
func (noopLogger) Info(string, ...any)         {}
func (noopLogger) Warning(string, ...any)      {}
func (noopLogger) Error(string, ...any)        {}
func (n noopLogger) Bind(...any) commbus.Logger { return n }

var _ commbus.Logger = noopLogger{}
