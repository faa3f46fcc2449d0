package state

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBackupManager_CreateRestoreRoundTrip covers the backup/restore
// property: for any snapshot B = create(), clear(); restore(B) yields a
// store observationally equal to the pre-create() state.
func TestBackupManager_CreateRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := NewStore(backend)

	require.NoError(t, store.Write(ctx, Global, "agent:a1", map[string]string{"name": "Widget"}))
	require.NoError(t, store.Write(ctx, Global, "agent:a2", map[string]string{"name": "Gadget"}))
	sessionScope, err := NewSessionScope("550e8400-e29b-41d4-a716-446655440000")
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, sessionScope, "cart", []string{"x", "y"}))

	dir := t.TempDir()
	mgr := NewBackupManager(store, dir)

	manifest, err := mgr.Create(ctx, BackupFull, []Scope{Global, sessionScope}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, manifest.Stats.ScopeCount)
	assert.Equal(t, 3, manifest.Stats.EntryCount)

	validation, err := mgr.Validate(manifest)
	require.NoError(t, err)
	assert.True(t, validation.Valid)

	_, err = store.ClearPrefix(ctx, Global, "")
	require.NoError(t, err)
	_, err = store.ClearPrefix(ctx, sessionScope, "")
	require.NoError(t, err)

	keys, err := store.ListKeys(ctx, Global, "")
	require.NoError(t, err)
	assert.Empty(t, keys)

	report, err := mgr.Restore(ctx, manifest, RestoreOptions{VerifyChecksums: true})
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, 3, report.EntriesWritten)

	var a1 map[string]string
	ok, err := store.Read(ctx, Global, "agent:a1", &a1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Widget", a1["name"])

	var cart []string
	ok, err = store.Read(ctx, sessionScope, "cart", &cart)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"x", "y"}, cart)
}

func TestBackupManager_Restore_DryRunDoesNotWrite(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend())
	require.NoError(t, store.Write(ctx, Global, "k", "v"))

	dir := t.TempDir()
	mgr := NewBackupManager(store, dir)
	manifest, err := mgr.Create(ctx, BackupFull, []Scope{Global}, nil)
	require.NoError(t, err)

	_, err = store.Delete(ctx, Global, "k")
	require.NoError(t, err)

	report, err := mgr.Restore(ctx, manifest, RestoreOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.EntriesWritten)

	ok, err := store.Exists(ctx, Global, "k")
	require.NoError(t, err)
	assert.False(t, ok, "dry run must not actually write entries back")
}

func TestBackupManager_Validate_DetectsTampering(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend())
	require.NoError(t, store.Write(ctx, Global, "k", "v"))

	dir := t.TempDir()
	mgr := NewBackupManager(store, dir)
	manifest, err := mgr.Create(ctx, BackupFull, []Scope{Global}, nil)
	require.NoError(t, err)

	scopeFile := dir + "/" + manifest.ID + "/" + sanitizeScopeTag(Global.Tag()) + ".json"
	require.NoError(t, os.WriteFile(scopeFile, []byte(`{"scope":{"Kind":"global","ID":""},"entries":[]}`), 0o644))

	validation, err := mgr.Validate(manifest)
	require.NoError(t, err)
	assert.False(t, validation.Valid)
	assert.Contains(t, validation.MismatchedScopes, Global.Tag())
}

func TestBackupManager_ExcludePatterns(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryBackend())
	require.NoError(t, store.Write(ctx, Global, "secret:token", "abc"))
	require.NoError(t, store.Write(ctx, Global, "agent:a1", "x"))

	dir := t.TempDir()
	mgr := NewBackupManager(store, dir)
	manifest, err := mgr.Create(ctx, BackupFull, []Scope{Global}, []string{"secret:"})
	require.NoError(t, err)
	assert.Equal(t, 1, manifest.Stats.EntryCount)
}
