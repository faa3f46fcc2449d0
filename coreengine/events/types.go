// Package events implements the event bus and event correlator:
// a publish/subscribe backbone with dotted-path glob subscriptions, bounded
// per-subscriber queues with configurable backpressure, and causal-chain
// reconstruction keyed by correlation id.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UniversalEvent is immutable after creation: once Publish returns, no field
// may be mutated by any holder of the value.
type UniversalEvent struct {
	ID            string
	Type          string // dotted path, e.g. "agent.execution.completed"
	CorrelationID string
	Payload       json.RawMessage
	Source        string
	OccurredAt    time.Time
}

// NewUniversalEvent builds an event, marshaling payload to JSON and
// generating an id/correlation id when absent.
func NewUniversalEvent(eventType, source, correlationID string, payload any) (UniversalEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return UniversalEvent{}, err
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	return UniversalEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		CorrelationID: correlationID,
		Payload:       raw,
		Source:        source,
		OccurredAt:    time.Now(),
	}, nil
}

// BackpressurePolicy decides what happens when a subscriber's bounded queue
// is full at publish time.
type BackpressurePolicy string

const (
	// DropNew discards the incoming event, keeping the queue's existing
	// contents. This is the default policy.
	DropNew BackpressurePolicy = "drop_new"
	// DropOld discards the oldest queued event to make room for the new one.
	DropOld BackpressurePolicy = "drop_old"
	// Block makes Publish wait until the subscriber's queue has room or the
	// subscription is cancelled; the wait has no time bound.
	Block BackpressurePolicy = "block"
)

// Subscription describes one subscriber's registration: a glob pattern over
// dotted event-type paths, a bounded queue, and a backpressure policy.
type Subscription struct {
	ID         string
	Pattern    string
	Policy     BackpressurePolicy
	QueueDepth int
}
