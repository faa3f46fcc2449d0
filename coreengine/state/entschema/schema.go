// Package entschema declares the SQL backend's table shape using
// entgo.io/ent's schema DSL, the same declarative-schema pattern
// `codeready-toolchain-tarsy` uses for its `ent/schema` package.
//
// This package is declaration-only: it is the source an `entc generate`
// run would consume to produce a typed client. That codegen step is not
// run here (see DESIGN.md — the module never invokes the Go or ent
// toolchain), so coreengine/state/sql_backend.go talks to Postgres
// directly through pgx rather than a generated ent.Client, using this
// schema purely as the authoritative column/type declaration the hand
// written SQL in sql_backend.go must stay consistent with.
package entschema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// StateEntry mirrors state.Entry: the (scope, key) pair is unique, the
// value is stored as JSON, and schema_version/updated_at track the
// schema engine's bookkeeping.
type StateEntry struct {
	ent.Schema
}

// Fields returns the StateEntry column declarations.
func (StateEntry) Fields() []ent.Field {
	return []ent.Field{
		field.String("storage_key").Unique().NotEmpty().
			Comment("SerializeKey(scope, key); see coreengine/state/types.go"),
		field.String("scope_tag").NotEmpty(),
		field.String("key").NotEmpty(),
		field.Bytes("value").
			Comment("canonical JSON payload"),
		field.String("schema_version").Default(""),
		field.Time("updated_at"),
	}
}

// Indexes declares the prefix-scan index ListKeys/ClearPrefix rely on.
func (StateEntry) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("scope_tag", "key"),
	}
}

// BackupManifest mirrors state.BackupManifest for backends that want the
// manifest itself queryable via SQL rather than only as a JSON file.
type BackupManifest struct {
	ent.Schema
}

// Fields returns the BackupManifest column declarations.
func (BackupManifest) Fields() []ent.Field {
	return []ent.Field{
		field.String("manifest_id").Unique().NotEmpty(),
		field.String("backup_type"),
		field.String("parent_id").Optional(),
		field.Time("created_at"),
		field.JSON("checksums", map[string]string{}),
		field.JSON("stats", map[string]any{}),
	}
}
