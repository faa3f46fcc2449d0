package state

import (
	"os"

	"gopkg.in/yaml.v3"
)

// BackendConfig names a backend and its connection parameters within a
// MigrationPlan document.
type BackendConfig struct {
	Kind   string            `yaml:"kind"` // "memory", "embedded_kv", "sql"
	Params map[string]string `yaml:"params,omitempty"`
}

// ComponentMigration names one logical value kind (schema Registry name)
// and the version range it should move through.
type ComponentMigration struct {
	Component   string `yaml:"component"`
	FromVersion string `yaml:"from_version"`
	ToVersion   string `yaml:"to_version"`
}

// ValidationRules tunes how thoroughly BackupManager.Validate samples
// records after a migration, rather than always doing a full comparison.
type ValidationRules struct {
	ChecksumSamplePercent  float64 `yaml:"checksum_sample_percent"`
	FullComparisonThreshold int    `yaml:"full_comparison_threshold"`
}

// RollbackMetadata wires the migration planner to the backup manager: when
// BackupEnabled is set, the planner must create a backup before running a
// destructive migration.
type RollbackMetadata struct {
	BackupEnabled bool   `yaml:"backup_enabled"`
	BackupID      string `yaml:"backup_id,omitempty"`
}

// MigrationPlan is the declarative, YAML-serialized migration document
// grounded on `llmspell-storage/src/migration/plan.rs`'s MigrationPlan
// shape: a source/target backend pair, the components (schema names) to
// migrate, validation sampling rules, and rollback metadata.
type MigrationPlan struct {
	Source     BackendConfig        `yaml:"source"`
	Target     BackendConfig        `yaml:"target"`
	Components []ComponentMigration `yaml:"components"`
	Validation ValidationRules      `yaml:"validation"`
	Rollback   RollbackMetadata     `yaml:"rollback"`
}

// LoadMigrationPlan reads and parses a MigrationPlan YAML document from
// path.
func LoadMigrationPlan(path string) (MigrationPlan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return MigrationPlan{}, NewMigrationError("read plan file", err)
	}
	var plan MigrationPlan
	if err := yaml.Unmarshal(raw, &plan); err != nil {
		return MigrationPlan{}, NewMigrationError("parse plan yaml", err)
	}
	return plan, nil
}

// Save serializes plan to path as YAML.
func (p MigrationPlan) Save(path string) error {
	raw, err := yaml.Marshal(p)
	if err != nil {
		return NewMigrationError("marshal plan yaml", err)
	}
	return os.WriteFile(path, raw, 0o644)
}
