package state

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMigration_WidgetScenario covers the widget rename/default/remove scenario.
func TestMigration_WidgetScenario(t *testing.T) {
	m := Migration{
		Steps: []FieldTransform{
			RenameField("old_name", "name"),
			RenameField("old_price", "price"),
			RemoveField("deprecated"),
			DefaultField("environment", "production"),
		},
	}

	input := json.RawMessage(`{"old_name":"Widget","old_price":99.99,"deprecated":"x"}`)
	out, err := m.ApplyToJSON(input)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))

	assert.Equal(t, map[string]any{
		"name":        "Widget",
		"price":       99.99,
		"environment": "production",
	}, doc)
}

// TestMigration_Purity covers the migration purity property: applying a
// migration twice yields the same output as applying it once, when there
// are no rename collisions.
func TestMigration_Purity(t *testing.T) {
	m := Migration{
		Steps: []FieldTransform{
			RenameField("old_name", "name"),
			DefaultField("environment", "production"),
			RemoveField("deprecated"),
		},
	}

	input := json.RawMessage(`{"old_name":"Widget","deprecated":"x"}`)
	once, err := m.ApplyToJSON(input)
	require.NoError(t, err)

	twice, err := m.ApplyToJSON(once)
	require.NoError(t, err)

	var onceDoc, twiceDoc map[string]any
	require.NoError(t, json.Unmarshal(once, &onceDoc))
	require.NoError(t, json.Unmarshal(twice, &twiceDoc))
	assert.Equal(t, onceDoc, twiceDoc)
}

func TestPlanner_FindsShortestPath(t *testing.T) {
	v1 := SemanticVersion{1, 0, 0}
	v2 := SemanticVersion{1, 1, 0}
	v3 := SemanticVersion{2, 0, 0}

	planner := NewPlanner(
		Migration{FromVersion: v1, ToVersion: v2, Steps: []FieldTransform{DefaultField("a", 1)}},
		Migration{FromVersion: v2, ToVersion: v3, Steps: []FieldTransform{DefaultField("b", 2)}},
		Migration{FromVersion: v1, ToVersion: v3, Destructive: true, Steps: []FieldTransform{RemoveField("legacy")}},
	)

	path, err := planner.Plan(v1, v3, true)
	require.NoError(t, err)
	require.Len(t, path, 1)
	assert.Equal(t, v3, path[0].ToVersion)
}

func TestPlanner_RejectsDestructiveByDefault(t *testing.T) {
	v1 := SemanticVersion{1, 0, 0}
	v2 := SemanticVersion{2, 0, 0}

	planner := NewPlanner(Migration{FromVersion: v1, ToVersion: v2, Destructive: true})

	_, err := planner.Plan(v1, v2, false)
	assert.Error(t, err)
}

func TestSchema_HashChangesOnFieldMutation(t *testing.T) {
	s := NewSchema(SemanticVersion{1, 0, 0}, CompatibilityBackward, map[string]FieldSchema{
		"name": {Name: "name", Type: "string", Required: true},
	})
	originalHash := s.Hash

	s2 := s.AddField(FieldSchema{Name: "price", Type: "number"})
	assert.NotEqual(t, originalHash, s2.Hash)

	s3 := s2.RemoveField("price")
	assert.Equal(t, originalHash, s3.Hash)
}

func TestRegistry_VersionsAscending(t *testing.T) {
	r := NewRegistry()
	r.Register("widget", NewSchema(SemanticVersion{1, 1, 0}, CompatibilityStrict, nil))
	r.Register("widget", NewSchema(SemanticVersion{1, 0, 0}, CompatibilityStrict, nil))

	versions := r.Versions("widget")
	require.Len(t, versions, 2)
	assert.Equal(t, SemanticVersion{1, 0, 0}, versions[0])
	assert.Equal(t, SemanticVersion{1, 1, 0}, versions[1])
}
