package state

import (
	"context"
	"encoding/json"

	"github.com/jeeves-cluster-organization/llmspellkernel/coreengine/tenant"
)

// Store is the script- and host-facing API surface over a pluggable
// Backend. It adds JSON marshal/unmarshal at the boundary (state.Entry
// stores json.RawMessage; Store.Read/Write deal in Go values) and consults
// the current tenant scope so row-level isolation is enforced uniformly
// regardless of which Backend is plugged in underneath.
type Store struct {
	backend Backend
}

// NewStore wraps backend in the script-facing Store API.
func NewStore(backend Backend) *Store {
	return &Store{backend: backend}
}

// Backend returns the underlying Backend, e.g. for Characteristics()
// introspection or BackupManager wiring.
func (s *Store) Backend() Backend { return s.backend }

// scoped narrows scope by the current tenant, when one is set on ctx and
// the scope isn't already tenant-qualified. This is how backends that
// implement row-level tenant isolation get it consulted on every operation,
// without every Backend implementation needing its own tenant-awareness.
func scoped(ctx context.Context, scope Scope) Scope {
	if scope.Kind == ScopeTenant {
		return scope
	}
	if id, ok := tenant.FromContext(ctx); ok {
		return Tenant(id)
	}
	return scope
}

// Read returns the decoded value at (scope, key), or ok=false if absent.
func (s *Store) Read(ctx context.Context, scope Scope, key string, out any) (bool, error) {
	entry, ok, err := s.backend.Read(ctx, scoped(ctx, scope), key)
	if err != nil {
		return false, NewStorageError("read", err)
	}
	if !ok {
		return false, nil
	}
	if out != nil {
		if err := json.Unmarshal(entry.Value, out); err != nil {
			return false, NewStorageError("decode entry", err)
		}
	}
	return true, nil
}

// ReadRaw returns the entry's raw JSON without decoding into a Go value.
func (s *Store) ReadRaw(ctx context.Context, scope Scope, key string) (json.RawMessage, bool, error) {
	entry, ok, err := s.backend.Read(ctx, scoped(ctx, scope), key)
	if err != nil {
		return nil, false, NewStorageError("read", err)
	}
	return entry.Value, ok, nil
}

// Write encodes value to JSON and stores it at (scope, key).
func (s *Store) Write(ctx context.Context, scope Scope, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return NewValidationError("encode value: " + err.Error())
	}
	return s.backend.Write(ctx, Entry{Scope: scoped(ctx, scope), Key: key, Value: raw})
}

// Delete removes (scope, key), reporting whether it previously existed.
// Deleting twice is idempotent: the second call returns false.
func (s *Store) Delete(ctx context.Context, scope Scope, key string) (bool, error) {
	existed, err := s.backend.Delete(ctx, scoped(ctx, scope), key)
	if err != nil {
		return false, NewStorageError("delete", err)
	}
	return existed, nil
}

// Exists reports whether (scope, key) currently has a value.
func (s *Store) Exists(ctx context.Context, scope Scope, key string) (bool, error) {
	return s.backend.Exists(ctx, scoped(ctx, scope), key)
}

// ListKeys lists keys under scope matching prefix.
func (s *Store) ListKeys(ctx context.Context, scope Scope, prefix string) ([]string, error) {
	return s.backend.ListKeys(ctx, scoped(ctx, scope), prefix)
}

// WriteBatch writes every entry, encoding each value to JSON. The caller
// receives whether the backend executed it atomically.
func (s *Store) WriteBatch(ctx context.Context, scope Scope, values map[string]any) (bool, error) {
	entries := make([]BatchEntry, 0, len(values))
	effectiveScope := scoped(ctx, scope)
	for key, value := range values {
		raw, err := json.Marshal(value)
		if err != nil {
			return false, NewValidationError("encode batch value: " + err.Error())
		}
		entries = append(entries, BatchEntry{Scope: effectiveScope, Key: key, Value: raw})
	}
	return s.backend.WriteBatch(ctx, entries)
}

// ClearPrefix deletes every key under scope matching prefix and returns the
// count removed.
func (s *Store) ClearPrefix(ctx context.Context, scope Scope, prefix string) (int, error) {
	return s.backend.ClearPrefix(ctx, scoped(ctx, scope), prefix)
}
