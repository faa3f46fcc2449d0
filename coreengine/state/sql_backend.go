package state

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLBackend is the optional SQL Backend, backed by a
// `github.com/jackc/pgx/v5` connection pool against the column shape
// declared in coreengine/state/entschema (see that package's doc comment
// for why this talks to pgx directly instead of a generated ent.Client).
type SQLBackend struct {
	pool *pgxpool.Pool
}

// OpenSQLBackend connects to a Postgres DSN and ensures the state_entries
// table exists.
func OpenSQLBackend(ctx context.Context, dsn string) (*SQLBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, NewStorageError("open postgres pool", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS state_entries (
	storage_key    TEXT PRIMARY KEY,
	scope_tag      TEXT NOT NULL,
	key            TEXT NOT NULL,
	value          BYTEA NOT NULL,
	schema_version TEXT NOT NULL DEFAULT '',
	updated_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS state_entries_scope_key_idx ON state_entries (scope_tag, key);`
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, NewStorageError("create state_entries table", err)
	}
	return &SQLBackend{pool: pool}, nil
}

func (s *SQLBackend) Read(ctx context.Context, scope Scope, key string) (Entry, bool, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT value, schema_version, updated_at FROM state_entries WHERE storage_key = $1`,
		SerializeKey(scope, key))

	var value []byte
	var schemaVersion string
	var updatedAt time.Time
	if err := row.Scan(&value, &schemaVersion, &updatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return Entry{}, false, nil
		}
		return Entry{}, false, NewStorageError("read entry", err)
	}
	return Entry{Scope: scope, Key: key, Value: value, SchemaVersion: schemaVersion, UpdatedAt: updatedAt}, true, nil
}

func (s *SQLBackend) Write(ctx context.Context, entry Entry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO state_entries (storage_key, scope_tag, key, value, schema_version, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (storage_key) DO UPDATE SET value = EXCLUDED.value,
			schema_version = EXCLUDED.schema_version, updated_at = EXCLUDED.updated_at`,
		SerializeKey(entry.Scope, entry.Key), entry.Scope.Tag(), entry.Key, []byte(entry.Value),
		entry.SchemaVersion, entry.UpdatedAt)
	if err != nil {
		return NewStorageError("write entry", err)
	}
	return nil
}

func (s *SQLBackend) Delete(ctx context.Context, scope Scope, key string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM state_entries WHERE storage_key = $1`, SerializeKey(scope, key))
	if err != nil {
		return false, NewStorageError("delete entry", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *SQLBackend) Exists(ctx context.Context, scope Scope, key string) (bool, error) {
	row := s.pool.QueryRow(ctx, `SELECT 1 FROM state_entries WHERE storage_key = $1`, SerializeKey(scope, key))
	var one int
	err := row.Scan(&one)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, NewStorageError("exists check", err)
	}
	return true, nil
}

func (s *SQLBackend) ListKeys(ctx context.Context, scope Scope, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM state_entries WHERE scope_tag = $1 AND key LIKE $2`,
		scope.Tag(), escapeLike(prefix)+"%")
	if err != nil {
		return nil, NewStorageError("list keys", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, NewStorageError("scan key", err)
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

// WriteBatch runs inside a single Postgres transaction: fully atomic.
func (s *SQLBackend) WriteBatch(ctx context.Context, entries []BatchEntry) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, NewStorageError("begin batch tx", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	for _, be := range entries {
		if _, err := tx.Exec(ctx,
			`INSERT INTO state_entries (storage_key, scope_tag, key, value, schema_version, updated_at)
			 VALUES ($1, $2, $3, $4, '', $5)
			 ON CONFLICT (storage_key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
			SerializeKey(be.Scope, be.Key), be.Scope.Tag(), be.Key, []byte(be.Value), now); err != nil {
			return false, NewStorageError("write batch entry", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, NewStorageError("commit batch tx", err)
	}
	return true, nil
}

func (s *SQLBackend) ReadBatch(ctx context.Context, keys []BatchKey) ([]*Entry, error) {
	out := make([]*Entry, len(keys))
	for i, bk := range keys {
		e, ok, err := s.Read(ctx, bk.Scope, bk.Key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = &e
		}
	}
	return out, nil
}

func (s *SQLBackend) ClearPrefix(ctx context.Context, scope Scope, prefix string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM state_entries WHERE scope_tag = $1 AND key LIKE $2`,
		scope.Tag(), escapeLike(prefix)+"%")
	if err != nil {
		return 0, NewStorageError("clear prefix", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *SQLBackend) BackendType() string { return "sql" }

func (s *SQLBackend) Characteristics() Characteristics {
	return Characteristics{
		Persistent: true, Transactional: true, PrefixScan: true,
		AvgReadMicros: 500, AvgWriteMicros: 1000,
	}
}

func (s *SQLBackend) Close() error {
	s.pool.Close()
	return nil
}

var _ Backend = (*SQLBackend)(nil)
