package state

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_WriteReadRoundTrip(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, Global, "config", map[string]string{"color": "blue"}))

	var got map[string]string
	ok, err := store.Read(ctx, Global, "config", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "blue", got["color"])
}

// TestStore_Idempotence covers the state idempotence property.
func TestStore_Idempotence(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, Global, "k", "v"))
	require.NoError(t, store.Write(ctx, Global, "k", "v"))

	var got string
	ok, err := store.Read(ctx, Global, "k", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", got)

	existed, err := store.Delete(ctx, Global, "k")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = store.Delete(ctx, Global, "k")
	require.NoError(t, err)
	assert.False(t, existed)
}

// TestStore_ScopeIsolation covers the scope isolation property: a write to
// one scope is invisible to reads on a distinct scope.
func TestStore_ScopeIsolation(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	ctx := context.Background()

	sessionScope, err := NewSessionScope("550e8400-e29b-41d4-a716-446655440000")
	require.NoError(t, err)

	require.NoError(t, store.Write(ctx, Global, "config", "G"))
	require.NoError(t, store.Write(ctx, sessionScope, "config", "S"))

	var global, session string
	_, err = store.Read(ctx, Global, "config", &global)
	require.NoError(t, err)
	_, err = store.Read(ctx, sessionScope, "config", &session)
	require.NoError(t, err)

	assert.Equal(t, "G", global)
	assert.Equal(t, "S", session)
}

func TestNewSessionScope_RejectsNonUUID(t *testing.T) {
	_, err := NewSessionScope("not-a-uuid")
	assert.Error(t, err)
}

func TestStore_ListKeysAndClearPrefix(t *testing.T) {
	store := NewStore(NewMemoryBackend())
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, Global, "agent:a1", 1))
	require.NoError(t, store.Write(ctx, Global, "agent:a2", 2))
	require.NoError(t, store.Write(ctx, Global, "tool:t1", 3))

	keys, err := store.ListKeys(ctx, Global, "agent:")
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	n, err := store.ClearPrefix(ctx, Global, "agent:")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	keys, err = store.ListKeys(ctx, Global, "")
	require.NoError(t, err)
	assert.Len(t, keys, 1)
}

func TestSerializeKey_Injective(t *testing.T) {
	k1 := SerializeKey(Custom("a"), "b:c")
	k2 := SerializeKey(Custom("a:b"), "c")
	// Both render distinctly even though naive concatenation could collide.
	scope1, key1, err := ParseStorageKey(k1)
	require.NoError(t, err)
	assert.Equal(t, Custom("a"), scope1)
	assert.Equal(t, "b:c", key1)

	scope2, key2, err := ParseStorageKey(k2)
	require.NoError(t, err)
	assert.Equal(t, Custom("a:b"), scope2)
	assert.Equal(t, "c", key2)
}
