package state

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// SemanticVersion is a major.minor.patch version, the same shape
// `llmspell-state-persistence/src/schema/mod.rs`'s EnhancedStateSchema uses.
type SemanticVersion struct {
	Major, Minor, Patch int
}

// String renders "major.minor.patch".
func (v SemanticVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than
// other, ordering by Major then Minor then Patch.
func (v SemanticVersion) Compare(other SemanticVersion) int {
	for _, pair := range [][2]int{{v.Major, other.Major}, {v.Minor, other.Minor}, {v.Patch, other.Patch}} {
		if pair[0] != pair[1] {
			if pair[0] < pair[1] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// CompatibilityLevel governs how strictly a schema checks prior versions.
type CompatibilityLevel string

const (
	CompatibilityBackward CompatibilityLevel = "backward_compatible"
	CompatibilityForward  CompatibilityLevel = "forward_compatible"
	CompatibilityStrict   CompatibilityLevel = "strict"
)

// FieldSchema describes one field's declared shape.
type FieldSchema struct {
	Name     string
	Type     string // "string", "number", "bool", "object", "array"
	Required bool
	Default  any
}

// Schema is immutable once registered: a versioned, hashed field set plus
// its migration path and declared schema dependencies (a schema may require
// another schema be migrated first — the EnhancedStateSchema supplement).
type Schema struct {
	Version         SemanticVersion
	Hash            string
	Fields          map[string]FieldSchema
	Compatibility   CompatibilityLevel
	MigrationPath   []SemanticVersion
	Dependencies    []SemanticVersion
	Metadata        map[string]any
}

// NewSchema builds a Schema and computes its content hash over the field
// set, recomputed whenever fields change (AddField/RemoveField below), used
// as a cheap schema-drift detector.
func NewSchema(version SemanticVersion, compat CompatibilityLevel, fields map[string]FieldSchema) Schema {
	s := Schema{Version: version, Compatibility: compat, Fields: cloneFields(fields), Metadata: map[string]any{}}
	s.Hash = hashFields(s.Fields)
	return s
}

// AddField returns a new Schema with field added and the hash recomputed;
// Schema itself never mutates in place once registered.
func (s Schema) AddField(f FieldSchema) Schema {
	next := cloneFields(s.Fields)
	next[f.Name] = f
	s.Fields = next
	s.Hash = hashFields(next)
	return s
}

// RemoveField returns a new Schema with name removed and the hash
// recomputed.
func (s Schema) RemoveField(name string) Schema {
	next := cloneFields(s.Fields)
	delete(next, name)
	s.Fields = next
	s.Hash = hashFields(next)
	return s
}

func cloneFields(fields map[string]FieldSchema) map[string]FieldSchema {
	out := make(map[string]FieldSchema, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func hashFields(fields map[string]FieldSchema) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		f := fields[name]
		fmt.Fprintf(&b, "%s:%s:%t;", f.Name, f.Type, f.Required)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Registry holds every Schema version registered for a logical value kind
// (e.g. "agent_config", "session_metadata"), used by the Planner to find a
// migration path between two versions.
type Registry struct {
	byName map[string]map[string]Schema // name -> version string -> Schema
}

// NewRegistry builds an empty schema Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]map[string]Schema)}
}

// Register adds schema under name. Registering the same (name, version)
// twice is a no-op overwrite, matching "immutable once registered" at the
// version granularity, not the registry granularity.
func (r *Registry) Register(name string, schema Schema) {
	if r.byName[name] == nil {
		r.byName[name] = make(map[string]Schema)
	}
	r.byName[name][schema.Version.String()] = schema
}

// Get returns the registered schema for name at version, if any.
func (r *Registry) Get(name string, version SemanticVersion) (Schema, bool) {
	versions, ok := r.byName[name]
	if !ok {
		return Schema{}, false
	}
	s, ok := versions[version.String()]
	return s, ok
}

// Versions returns every registered version for name, ascending.
func (r *Registry) Versions(name string) []SemanticVersion {
	versions := r.byName[name]
	out := make([]SemanticVersion, 0, len(versions))
	for _, s := range versions {
		out = append(out, s.Version)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j]) < 0 })
	return out
}
