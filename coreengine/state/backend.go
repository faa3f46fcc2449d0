package state

import "context"

// Backend is the contract every storage backend (memory, embedded KV, SQL)
// implements identically; differences are visible only through
// Characteristics, matching `StorageBackend`'s
// get/set/delete/exists/list_keys/get_batch/set_batch/delete_batch/clear/
// backend_type/characteristics/run_migrations/migration_version shape.
type Backend interface {
	Read(ctx context.Context, scope Scope, key string) (Entry, bool, error)
	Write(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, scope Scope, key string) (bool, error)
	Exists(ctx context.Context, scope Scope, key string) (bool, error)
	ListKeys(ctx context.Context, scope Scope, prefix string) ([]string, error)

	// WriteBatch reports via the bool return whether the write was atomic.
	// Backends that cannot offer atomicity still apply every entry
	// sequentially (best-effort).
	WriteBatch(ctx context.Context, entries []BatchEntry) (atomic bool, err error)
	ReadBatch(ctx context.Context, keys []BatchKey) ([]*Entry, error)

	ClearPrefix(ctx context.Context, scope Scope, prefix string) (int, error)

	BackendType() string
	Characteristics() Characteristics

	// Close releases backend resources (connections, file handles).
	Close() error
}
