// Package asynccarrier implements the enhance/preserve/restore contract for
// correlation ids and task-local variables to survive a cooperative
// hand-off between tasks.
//
// Grounded on coreengine/observability/tracing.go's global propagator setup
// (propagation.TraceContext{} + propagation.Baggage{}): correlation ids and
// carried variables are modeled as OTel baggage members, so Preserve/Restore
// reduces to copying a baggage.Baggage value — an O(variables+1) operation,
// since baggage.Baggage is an immutable value type and every accessor below
// rebuilds it member-by-member rather than mutating in place.
package asynccarrier

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/baggage"
)

// CorrelationIDKey is the baggage member name an enhanced context's
// correlation id is stored under.
const CorrelationIDKey = "correlation_id"

// sourceLocationKey is the baggage member name Preserve stores its
// optional caller-supplied source location under.
const sourceLocationKey = "source_location"

// Snapshot is the serializable state Preserve produces and Restore
// consumes: a correlation id, an optional source location, and whatever
// other task-local variables were enhanced onto the context, all carried as
// baggage members.
type Snapshot struct {
	bag baggage.Baggage
}

// CorrelationID returns the snapshot's correlation id, or "" if unset.
func (s Snapshot) CorrelationID() string {
	return s.bag.Member(CorrelationIDKey).Value()
}

// SourceLocation returns the snapshot's source location, or "" if unset.
func (s Snapshot) SourceLocation() string {
	return s.bag.Member(sourceLocationKey).Value()
}

// Variables returns every carried variable except the two reserved keys
// above, as a plain map a caller can inspect without depending on the
// baggage package directly.
func (s Snapshot) Variables() map[string]string {
	out := make(map[string]string)
	for _, m := range s.bag.Members() {
		if m.Key() == CorrelationIDKey || m.Key() == sourceLocationKey {
			continue
		}
		out[m.Key()] = m.Value()
	}
	return out
}

// Enhance assigns ctx a correlation id if it does not already carry one,
// returning the (possibly unchanged) context. Calling Enhance on an
// already-enhanced context is a no-op — idempotent.
func Enhance(ctx context.Context) context.Context {
	bag := baggage.FromContext(ctx)
	if bag.Member(CorrelationIDKey).Value() != "" {
		return ctx
	}
	member, err := baggage.NewMember(CorrelationIDKey, uuid.NewString())
	if err != nil {
		// NewMember only fails on malformed keys/values; a freshly
		// generated UUID string is always valid, so this is unreachable
		// in practice.
		return ctx
	}
	bag, err = bag.SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

// WithVariable adds or overwrites a carried variable on ctx, returning the
// updated context. Reserved keys (correlation_id, source_location) are
// rejected; Enhance and WithSourceLocation set those instead.
func WithVariable(ctx context.Context, key, value string) (context.Context, error) {
	if key == CorrelationIDKey || key == sourceLocationKey {
		return ctx, &ReservedKeyError{Key: key}
	}
	bag := baggage.FromContext(ctx)
	member, err := baggage.NewMember(key, value)
	if err != nil {
		return ctx, err
	}
	bag, err = bag.SetMember(member)
	if err != nil {
		return ctx, err
	}
	return baggage.ContextWithBaggage(ctx, bag), nil
}

// ReservedKeyError is returned by WithVariable for a key Enhance/Preserve
// already own.
type ReservedKeyError struct{ Key string }

func (e *ReservedKeyError) Error() string {
	return "asynccarrier: " + e.Key + " is a reserved variable key"
}

// Preserve captures ctx's baggage — correlation id, source location (if
// set via WithSourceLocation first), and any other carried variables — into
// a Snapshot suitable for handing to a different task. Preserve does not
// itself take or release any lock: not holding a lock across preserve/restore
// is a caller obligation, since a context carries no lock of its own.
func Preserve(ctx context.Context) Snapshot {
	return Snapshot{bag: baggage.FromContext(ctx)}
}

// WithSourceLocation records an optional free-form location string (e.g.
// "agent.go:142") that Preserve will include in its next snapshot, useful
// for debugging which call site suspended.
func WithSourceLocation(ctx context.Context, location string) context.Context {
	ctx, err := WithVariableUnchecked(ctx, sourceLocationKey, location)
	if err != nil {
		return ctx
	}
	return ctx
}

// WithVariableUnchecked sets any baggage member, including the reserved
// keys; WithSourceLocation uses it to set the source-location key.
func WithVariableUnchecked(ctx context.Context, key, value string) (context.Context, error) {
	bag := baggage.FromContext(ctx)
	member, err := baggage.NewMember(key, value)
	if err != nil {
		return ctx, err
	}
	bag, err = bag.SetMember(member)
	if err != nil {
		return ctx, err
	}
	return baggage.ContextWithBaggage(ctx, bag), nil
}

// Restore rebuilds a context from snapshot, attaching its baggage onto the
// given base context (typically a freshly spawned task's context.Background()
// or a context derived from it). The base context's own deadline/values are
// otherwise untouched — only the baggage is transplanted.
func Restore(base context.Context, snapshot Snapshot) context.Context {
	return baggage.ContextWithBaggage(base, snapshot.bag)
}
