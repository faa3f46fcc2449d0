package state

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// KVBackend is the embedded-KV Backend: a single-file SQLite database
// accessed through the pure-Go, no-cgo `modernc.org/sqlite` driver. It
// stores the injective SerializeKey encoding as the primary key, the same
// "one flat table, key/value/version/updated_at columns" shape the memory
// backend uses in-process.
type KVBackend struct {
	db *sql.DB
}

// OpenKVBackend opens (creating if absent) a SQLite-backed KVBackend at
// path. Pass ":memory:" for an ephemeral but still schema/SQL-exercising
// instance, useful in tests that want to exercise the SQL path without a
// file on disk.
func OpenKVBackend(path string) (*KVBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, NewStorageError("open sqlite kv backend", err)
	}
	// SQLite serializes writers; a single connection avoids "database is
	// locked" errors under concurrent writers without needing WAL tuning.
	db.SetMaxOpenConns(1)

	const schema = `
CREATE TABLE IF NOT EXISTS state_entries (
	storage_key    TEXT PRIMARY KEY,
	value          BLOB NOT NULL,
	schema_version TEXT NOT NULL DEFAULT '',
	updated_at     INTEGER NOT NULL
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, NewStorageError("create state_entries table", err)
	}
	return &KVBackend{db: db}, nil
}

func (k *KVBackend) Read(ctx context.Context, scope Scope, key string) (Entry, bool, error) {
	row := k.db.QueryRowContext(ctx,
		`SELECT value, schema_version, updated_at FROM state_entries WHERE storage_key = ?`,
		SerializeKey(scope, key))

	var value []byte
	var schemaVersion string
	var updatedAtUnix int64
	if err := row.Scan(&value, &schemaVersion, &updatedAtUnix); err != nil {
		if err == sql.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, NewStorageError("read entry", err)
	}
	return Entry{
		Scope: scope, Key: key, Value: value, SchemaVersion: schemaVersion,
		UpdatedAt: time.Unix(0, updatedAtUnix),
	}, true, nil
}

func (k *KVBackend) Write(ctx context.Context, entry Entry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}
	_, err := k.db.ExecContext(ctx,
		`INSERT INTO state_entries (storage_key, value, schema_version, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(storage_key) DO UPDATE SET value = excluded.value,
			schema_version = excluded.schema_version, updated_at = excluded.updated_at`,
		SerializeKey(entry.Scope, entry.Key), []byte(entry.Value), entry.SchemaVersion, entry.UpdatedAt.UnixNano())
	if err != nil {
		return NewStorageError("write entry", err)
	}
	return nil
}

func (k *KVBackend) Delete(ctx context.Context, scope Scope, key string) (bool, error) {
	res, err := k.db.ExecContext(ctx, `DELETE FROM state_entries WHERE storage_key = ?`, SerializeKey(scope, key))
	if err != nil {
		return false, NewStorageError("delete entry", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (k *KVBackend) Exists(ctx context.Context, scope Scope, key string) (bool, error) {
	row := k.db.QueryRowContext(ctx, `SELECT 1 FROM state_entries WHERE storage_key = ?`, SerializeKey(scope, key))
	var one int
	err := row.Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, NewStorageError("exists check", err)
	}
	return true, nil
}

func (k *KVBackend) ListKeys(ctx context.Context, scope Scope, prefix string) ([]string, error) {
	storagePrefix := scopePrefix(scope) + ":" + prefix
	rows, err := k.db.QueryContext(ctx,
		`SELECT storage_key FROM state_entries WHERE storage_key LIKE ? ESCAPE '\'`,
		escapeLike(storagePrefix)+"%")
	if err != nil {
		return nil, NewStorageError("list keys", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var storageKey string
		if err := rows.Scan(&storageKey); err != nil {
			return nil, NewStorageError("scan key", err)
		}
		if _, key, err := ParseStorageKey(storageKey); err == nil {
			out = append(out, key)
		}
	}
	return out, rows.Err()
}

// WriteBatch runs inside a single SQL transaction, so it is fully atomic.
func (k *KVBackend) WriteBatch(ctx context.Context, entries []BatchEntry) (bool, error) {
	tx, err := k.db.BeginTx(ctx, nil)
	if err != nil {
		return false, NewStorageError("begin batch tx", err)
	}
	now := time.Now().UnixNano()
	for _, be := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO state_entries (storage_key, value, schema_version, updated_at)
			 VALUES (?, ?, '', ?)
			 ON CONFLICT(storage_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			SerializeKey(be.Scope, be.Key), []byte(be.Value), now); err != nil {
			tx.Rollback()
			return false, NewStorageError("write batch entry", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return false, NewStorageError("commit batch tx", err)
	}
	return true, nil
}

func (k *KVBackend) ReadBatch(ctx context.Context, keys []BatchKey) ([]*Entry, error) {
	out := make([]*Entry, len(keys))
	for i, bk := range keys {
		e, ok, err := k.Read(ctx, bk.Scope, bk.Key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = &e
		}
	}
	return out, nil
}

func (k *KVBackend) ClearPrefix(ctx context.Context, scope Scope, prefix string) (int, error) {
	storagePrefix := scopePrefix(scope) + ":" + prefix
	res, err := k.db.ExecContext(ctx,
		`DELETE FROM state_entries WHERE storage_key LIKE ? ESCAPE '\'`, escapeLike(storagePrefix)+"%")
	if err != nil {
		return 0, NewStorageError("clear prefix", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (k *KVBackend) BackendType() string { return "embedded_kv" }

func (k *KVBackend) Characteristics() Characteristics {
	return Characteristics{
		Persistent: true, Transactional: true, PrefixScan: true,
		AvgReadMicros: 50, AvgWriteMicros: 150,
	}
}

func (k *KVBackend) Close() error { return k.db.Close() }

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

var _ Backend = (*KVBackend)(nil)
