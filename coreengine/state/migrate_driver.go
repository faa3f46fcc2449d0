package state

import (
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// SQLMigrationDriver applies `.sql` migration files generated from
// MigrationStep sequences against the SQL backend via
// `golang-migrate/migrate/v4`'s database/postgres + source/file drivers.
// Non-SQL backends (memory, embedded KV) never use this driver; they apply
// FieldTransforms directly in-process via RunPlan/ApplyToJSON instead.
type SQLMigrationDriver struct {
	m *migrate.Migrate
}

// NewSQLMigrationDriver builds a driver that reads `.sql` files from
// sourceURL (e.g. "file://./migrations") and applies them to the database
// reachable via dsn.
func NewSQLMigrationDriver(sourceURL, dsn string) (*SQLMigrationDriver, error) {
	db, err := openStdlibPostgres(dsn)
	if err != nil {
		return nil, NewStorageError("open postgres for migrate driver", err)
	}

	instance, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, NewStorageError("create postgres migrate instance", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, "postgres", instance)
	if err != nil {
		return nil, NewStorageError("create migrate instance", err)
	}
	return &SQLMigrationDriver{m: m}, nil
}

// Up applies every pending migration in order.
func (d *SQLMigrationDriver) Up() error {
	if err := d.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return NewMigrationError("apply up migrations", err)
	}
	return nil
}

// Down rolls back every applied migration.
func (d *SQLMigrationDriver) Down() error {
	if err := d.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return NewMigrationError("apply down migrations", err)
	}
	return nil
}

// Version reports the current migration version and whether it is dirty
// (a prior migration failed partway through).
func (d *SQLMigrationDriver) Version() (uint, bool, error) {
	version, dirty, err := d.m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, NewMigrationError("read migration version", err)
	}
	return version, dirty, nil
}

// Close releases the driver's database handle.
func (d *SQLMigrationDriver) Close() error {
	srcErr, dbErr := d.m.Close()
	if dbErr != nil {
		return NewStorageError("close migrate db", dbErr)
	}
	return srcErr
}
