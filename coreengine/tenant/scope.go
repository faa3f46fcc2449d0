// Package tenant implements a task-local "current tenant" identifier that
// backends implementing row-level isolation consult on every operation. Go
// has no goroutine-local storage, so the idiomatic equivalent — already used
// throughout this module's context.Context-threaded APIs — is a typed
// context key.
package tenant

import "context"

type contextKey struct{}

// IsolationMode describes how strictly a backend must enforce tenant
// boundaries.
type IsolationMode string

const (
	// IsolationModeStrict denies any cross-tenant read/write outright.
	IsolationModeStrict IsolationMode = "strict"
	// IsolationModeShared allows a designated set of shared/global keys to
	// be visible across tenants (e.g. Global-scope state).
	IsolationModeShared IsolationMode = "shared"
)

// Limits bounds what a tenant may consume, consulted by backends that
// support per-tenant quotas (e.g. the SQL/embedded-KV state backends).
type Limits struct {
	MaxStateBytes   int64
	MaxStateKeys    int
	MaxEventsPerSec int
}

// Config is a tenant's full configuration: its id, isolation mode, and
// resource limits.
type Config struct {
	ID            string
	IsolationMode IsolationMode
	Limits        Limits
}

// WithTenant returns a context carrying the given tenant id. Setting it is
// a session-bound operation that survives task hand-offs via
// coreengine/asynccarrier, since Preserve/Restore copy the correlation id's
// baggage map — which is how an id set here reaches a spawned task's
// context.
func WithTenant(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// WithTenantConfig is like WithTenant but carries the full Config, letting
// backends consult limits and isolation mode in addition to the bare id.
func WithTenantConfig(ctx context.Context, cfg Config) context.Context {
	ctx = context.WithValue(ctx, contextKey{}, cfg.ID)
	return context.WithValue(ctx, configKey{}, cfg)
}

type configKey struct{}

// FromContext returns the current tenant id, or ok=false when unset. An
// unset tenant is backend-defined, usually "no rows visible" — callers
// should treat ok=false as "no tenant scoping applies" rather than silently
// defaulting to some tenant id.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok
}

// ConfigFromContext returns the full Config if WithTenantConfig set one.
func ConfigFromContext(ctx context.Context) (Config, bool) {
	cfg, ok := ctx.Value(configKey{}).(Config)
	return cfg, ok
}
