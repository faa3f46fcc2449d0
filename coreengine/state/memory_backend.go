package state

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryBackend is the required in-process Backend, grounded directly on
// `llmspell-kernel/src/state/backends/memory.rs`'s RwLock<HashMap> shape:
// one map keyed by the injective SerializeKey encoding, guarded by a single
// RWMutex (the same single-writer/sharded-map idiom commbus/bus.go and
// coreengine/events/bus.go use for their subscriber tables).
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string]Entry
}

// NewMemoryBackend builds an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string]Entry)}
}

func (m *MemoryBackend) Read(_ context.Context, scope Scope, key string) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[SerializeKey(scope, key)]
	return e, ok, nil
}

func (m *MemoryBackend) Write(_ context.Context, entry Entry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[SerializeKey(entry.Scope, entry.Key)] = entry
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, scope Scope, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	storageKey := SerializeKey(scope, key)
	_, existed := m.data[storageKey]
	delete(m.data, storageKey)
	return existed, nil
}

func (m *MemoryBackend) Exists(_ context.Context, scope Scope, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[SerializeKey(scope, key)]
	return ok, nil
}

func (m *MemoryBackend) ListKeys(_ context.Context, scope Scope, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	storagePrefix := scopePrefix(scope) + ":" + prefix
	var out []string
	for storageKey := range m.data {
		if strings.HasPrefix(storageKey, storagePrefix) {
			_, key, err := ParseStorageKey(storageKey)
			if err != nil {
				continue
			}
			out = append(out, key)
		}
	}
	return out, nil
}

// WriteBatch is fully atomic for the memory backend: the write lock is held
// for the whole batch, so no reader observes a partial batch.
func (m *MemoryBackend) WriteBatch(_ context.Context, entries []BatchEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, be := range entries {
		m.data[SerializeKey(be.Scope, be.Key)] = Entry{
			Scope: be.Scope, Key: be.Key, Value: be.Value, UpdatedAt: now,
		}
	}
	return true, nil
}

func (m *MemoryBackend) ReadBatch(_ context.Context, keys []BatchKey) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Entry, len(keys))
	for i, k := range keys {
		if e, ok := m.data[SerializeKey(k.Scope, k.Key)]; ok {
			cp := e
			out[i] = &cp
		}
	}
	return out, nil
}

func (m *MemoryBackend) ClearPrefix(_ context.Context, scope Scope, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	storagePrefix := scopePrefix(scope) + ":" + prefix
	count := 0
	for storageKey := range m.data {
		if strings.HasPrefix(storageKey, storagePrefix) {
			delete(m.data, storageKey)
			count++
		}
	}
	return count, nil
}

func (m *MemoryBackend) BackendType() string { return "memory" }

func (m *MemoryBackend) Characteristics() Characteristics {
	return Characteristics{
		Persistent:    false,
		Transactional: true,
		PrefixScan:    true,
		AvgReadMicros: 1, AvgWriteMicros: 1,
	}
}

func (m *MemoryBackend) Close() error { return nil }

var _ Backend = (*MemoryBackend)(nil)
