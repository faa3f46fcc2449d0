package state

import (
	"encoding/json"
	"fmt"
)

// TransformKind is the closed set of field transforms allowed.
type TransformKind string

const (
	TransformCopy    TransformKind = "copy"
	TransformDefault TransformKind = "default"
	TransformRemove  TransformKind = "remove"
	TransformRename  TransformKind = "rename"
)

// FieldTransform is one pure, deterministic JSON->JSON step in a
// MigrationStep sequence.
type FieldTransform struct {
	Kind  TransformKind
	From  string // Copy, Rename
	To    string // Copy, Default (field), Rename
	Value any    // Default
}

// Apply applies t to doc (a decoded JSON object) in place, returning the
// possibly-modified map. Transforms are total functions from JSON->JSON:
// applying a transform whose source field is absent is a no-op rather than
// an error, keeping the function total.
func (t FieldTransform) Apply(doc map[string]any) map[string]any {
	switch t.Kind {
	case TransformCopy:
		if v, ok := doc[t.From]; ok {
			doc[t.To] = v
		}
	case TransformDefault:
		if _, ok := doc[t.To]; !ok {
			doc[t.To] = t.Value
		}
	case TransformRemove:
		delete(doc, t.From)
	case TransformRename:
		if v, ok := doc[t.From]; ok {
			doc[t.To] = v
			delete(doc, t.From)
		}
	}
	return doc
}

// CopyField copies From.To.
func CopyField(from, to string) FieldTransform { return FieldTransform{Kind: TransformCopy, From: from, To: to} }

// DefaultField sets field to value when absent.
func DefaultField(field string, value any) FieldTransform {
	return FieldTransform{Kind: TransformDefault, To: field, Value: value}
}

// RemoveField deletes field unconditionally.
func RemoveField(field string) FieldTransform { return FieldTransform{Kind: TransformRemove, From: field} }

// RenameField moves from's value to to, deleting from.
func RenameField(from, to string) FieldTransform { return FieldTransform{Kind: TransformRename, From: from, To: to} }

// Migration carries a value from FromVersion to ToVersion via an ordered
// sequence of FieldTransforms. Destructive marks transforms that lose data
// irrecoverably (Remove, and Rename when the destination already existed),
// consulted by the Planner's allow_destructive gate.
type Migration struct {
	FromVersion SemanticVersion
	ToVersion   SemanticVersion
	Steps       []FieldTransform
	Destructive bool
}

// MigrationReport is the outcome of running a migration over a batch of
// values.
type MigrationReport struct {
	Success      bool
	EntriesTotal int
	EntriesFailed int
	Errors       []string
}

// ApplyToJSON runs m's steps over raw (a JSON object document), returning
// the transformed JSON. Applying m twice to the same input yields the same
// output as applying it once, provided no rename collides with a prior
// field — Copy/Default are naturally idempotent, Remove is idempotent, and
// Rename is idempotent as long as `from` is already gone after the first
// application (which it is, since Rename deletes it).
func (m Migration) ApplyToJSON(raw json.RawMessage) (json.RawMessage, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, NewMigrationError("decode document", err)
	}
	for _, step := range m.Steps {
		doc = step.Apply(doc)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, NewMigrationError("encode document", err)
	}
	return out, nil
}

// Planner finds a migration path between two schema versions over a set of
// registered Migrations, modeling the shortest-path search
// `llmspell-storage/src/migration/plan.rs`'s MigrationPlan implies.
type Planner struct {
	migrations []Migration
}

// NewPlanner builds a Planner over the given migrations.
func NewPlanner(migrations ...Migration) *Planner {
	return &Planner{migrations: migrations}
}

// Plan finds the shortest sequence of Migrations carrying current to
// target, via breadth-first search over the migration graph (edges are
// individual Migration{From,To} pairs). Fails with NewMigrationError if no
// path exists, or if a required step is Destructive and allowDestructive is
// false.
func (p *Planner) Plan(current, target SemanticVersion, allowDestructive bool) ([]Migration, error) {
	if current.Compare(target) == 0 {
		return nil, nil
	}

	type node struct {
		version SemanticVersion
		path    []Migration
	}
	visited := map[string]bool{current.String(): true}
	queue := []node{{version: current}}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]

		for _, m := range p.migrations {
			if m.FromVersion.Compare(n.version) != 0 {
				continue
			}
			if m.Destructive && !allowDestructive {
				continue
			}
			if visited[m.ToVersion.String()] {
				continue
			}
			nextPath := append(append([]Migration{}, n.path...), m)
			if m.ToVersion.Compare(target) == 0 {
				return nextPath, nil
			}
			visited[m.ToVersion.String()] = true
			queue = append(queue, node{version: m.ToVersion, path: nextPath})
		}
	}

	return nil, NewMigrationError(
		fmt.Sprintf("no migration path from %s to %s (allow_destructive=%t)", current, target, allowDestructive), nil)
}

// RunPlan applies every migration in path to raw in order, aborting the
// whole migration on the first failure and reporting per-entry results.
func RunPlan(path []Migration, raw json.RawMessage) (json.RawMessage, error) {
	current := raw
	for _, m := range path {
		next, err := m.ApplyToJSON(current)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}
