package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BackupType distinguishes a full snapshot from one relative to a parent.
type BackupType string

const (
	BackupFull        BackupType = "full"
	BackupIncremental BackupType = "incremental"
)

// BackupManifest describes one backup artifact: a directory containing this
// manifest.json plus per-scope entry files, checksummed with SHA-256 hex
// digests keyed by scope tag.
type BackupManifest struct {
	ID          string            `json:"id"`
	CreatedAt   time.Time         `json:"created_at"`
	Type        BackupType        `json:"type"`
	ParentID    string            `json:"parent_id,omitempty"`
	Checksums   map[string]string `json:"checksums"`
	Compression string            `json:"compression,omitempty"`
	Stats       BackupStats       `json:"stats"`
}

// BackupStats summarizes a backup's contents.
type BackupStats struct {
	ScopeCount int `json:"scope_count"`
	EntryCount int `json:"entry_count"`
	Bytes      int `json:"bytes"`
}

// RestoreOptions tunes BackupManager.Restore.
type RestoreOptions struct {
	VerifyChecksums bool
	DryRun          bool
	TargetVersion   string
}

// RestoreReport is the outcome of a restore.
type RestoreReport struct {
	Success       bool
	EntriesWritten int
	Errors        []string
}

// ValidationResult is the outcome of BackupManager.Validate.
type ValidationResult struct {
	Valid            bool
	MismatchedScopes []string
}

// backupScopeFile is the on-disk shape of one scope's entry file within a
// backup directory.
type backupScopeFile struct {
	Scope   Scope            `json:"scope"`
	Entries []backupEntryRow `json:"entries"`
}

type backupEntryRow struct {
	Key           string          `json:"key"`
	Value         json.RawMessage `json:"value"`
	SchemaVersion string          `json:"schema_version,omitempty"`
}

// BackupManager provides atomic, crash-consistent snapshot and restore of a
// Store's contents, with checksum validation. "Atomic" here means the
// manifest file is written last, only after every per-scope entry file is
// durable on disk — a reader that sees manifest.json present can trust
// every entry file it references exists.
type BackupManager struct {
	store *Store
	root  string // directory under which each backup gets its own subdirectory
}

// NewBackupManager builds a BackupManager rooted at root.
func NewBackupManager(store *Store, root string) *BackupManager {
	return &BackupManager{store: store, root: root}
}

// Create snapshots every key under each scope in includeScopes (skipping
// keys matching excludePatterns, a simple substring-contains filter) into a
// new backup directory, returning its manifest. The manifest is the last
// file written, satisfying the crash-consistency requirement.
func (b *BackupManager) Create(ctx context.Context, backupType BackupType, includeScopes []Scope, excludePatterns []string) (*BackupManifest, error) {
	id := uuid.NewString()
	dir := filepath.Join(b.root, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, NewStorageError("create backup directory", err)
	}

	checksums := make(map[string]string, len(includeScopes))
	var stats BackupStats

	for _, scope := range includeScopes {
		keys, err := b.store.ListKeys(ctx, scope, "")
		if err != nil {
			return nil, NewStorageError("list keys for backup", err)
		}

		var file backupScopeFile
		file.Scope = scope
		for _, key := range keys {
			if matchesAny(key, excludePatterns) {
				continue
			}
			raw, ok, err := b.store.ReadRaw(ctx, scope, key)
			if err != nil {
				return nil, NewStorageError("read entry for backup", err)
			}
			if !ok {
				continue
			}
			file.Entries = append(file.Entries, backupEntryRow{Key: key, Value: raw})
		}

		encoded, err := json.Marshal(file)
		if err != nil {
			return nil, NewStorageError("encode scope backup file", err)
		}
		scopeFileName := sanitizeScopeTag(scope.Tag()) + ".json"
		if err := os.WriteFile(filepath.Join(dir, scopeFileName), encoded, 0o644); err != nil {
			return nil, NewStorageError("write scope backup file", err)
		}

		sum := sha256.Sum256(encoded)
		checksums[scope.Tag()] = hex.EncodeToString(sum[:])
		stats.ScopeCount++
		stats.EntryCount += len(file.Entries)
		stats.Bytes += len(encoded)
	}

	manifest := &BackupManifest{
		ID: id, CreatedAt: time.Now(), Type: backupType,
		Checksums: checksums, Stats: stats,
	}
	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, NewStorageError("encode manifest", err)
	}
	// Written last: the manifest's presence is the atomicity signal.
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), manifestBytes, 0o644); err != nil {
		return nil, NewStorageError("write manifest", err)
	}
	return manifest, nil
}

// Restore re-applies every entry in manifest's backup directory to the
// Store. It does not partially apply on failure: in non-dry-run mode, if
// any scope file fails to parse, no writes from the affected or any later
// scope are made (earlier scopes already written constitute a best-effort,
// partial-result fallback for backends without multi-scope transactions).
func (b *BackupManager) Restore(ctx context.Context, manifest *BackupManifest, opts RestoreOptions) (*RestoreReport, error) {
	dir := filepath.Join(b.root, manifest.ID)

	files := make(map[string]backupScopeFile, len(manifest.Checksums))
	for scopeTag := range manifest.Checksums {
		path := filepath.Join(dir, sanitizeScopeTag(scopeTag)+".json")
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, NewStorageError("read scope backup file", err)
		}
		if opts.VerifyChecksums {
			sum := sha256.Sum256(raw)
			if hex.EncodeToString(sum[:]) != manifest.Checksums[scopeTag] {
				return nil, NewStorageError(fmt.Sprintf("checksum mismatch for scope %s", scopeTag), nil)
			}
		}
		var file backupScopeFile
		if err := json.Unmarshal(raw, &file); err != nil {
			return nil, NewStorageError("parse scope backup file", err)
		}
		files[scopeTag] = file
	}

	if opts.DryRun {
		total := 0
		for _, f := range files {
			total += len(f.Entries)
		}
		return &RestoreReport{Success: true, EntriesWritten: total}, nil
	}

	report := &RestoreReport{Success: true}
	for _, file := range files {
		for _, entry := range file.Entries {
			if err := b.store.backend.Write(ctx, Entry{
				Scope: file.Scope, Key: entry.Key, Value: entry.Value, SchemaVersion: entry.SchemaVersion,
			}); err != nil {
				report.Success = false
				report.Errors = append(report.Errors, err.Error())
				return report, NewStorageError("restore entry", err)
			}
			report.EntriesWritten++
		}
	}
	return report, nil
}

// Validate re-reads every scope file referenced by manifest and recomputes
// its checksum, reporting any that no longer match (e.g. manual tampering
// or disk corruption).
func (b *BackupManager) Validate(manifest *BackupManifest) (*ValidationResult, error) {
	dir := filepath.Join(b.root, manifest.ID)
	result := &ValidationResult{Valid: true}

	for scopeTag, expected := range manifest.Checksums {
		path := filepath.Join(dir, sanitizeScopeTag(scopeTag)+".json")
		raw, err := os.ReadFile(path)
		if err != nil {
			result.Valid = false
			result.MismatchedScopes = append(result.MismatchedScopes, scopeTag)
			continue
		}
		sum := sha256.Sum256(raw)
		if hex.EncodeToString(sum[:]) != expected {
			result.Valid = false
			result.MismatchedScopes = append(result.MismatchedScopes, scopeTag)
		}
	}
	return result, nil
}

func matchesAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}

func sanitizeScopeTag(tag string) string {
	return strings.NewReplacer(":", "_", "/", "_").Replace(tag)
}
