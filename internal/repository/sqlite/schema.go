package sqlite

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/sakif/todo-tracker/internal/apperror"
)

// The schema lives in plain .sql files compiled into the binary with go:embed,
// so the server never depends on files next to the executable.
//
//go:embed migrations/*.sql
var migrationFiles embed.FS

// Initialize makes sure the schema exists. It is idempotent: golang-migrate
// records the applied version in schema_migrations, and a database that is
// already current returns migrate.ErrNoChange, which we treat as success.
//
// A database left "dirty" by a crashed migration is reported as a storage
// error; the engine has no recovery path of its own, the operator decides
// whether to restore a snapshot.
func (db *DB) Initialize(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperror.Storage("sqlite: initializing schema", err)
	}

	m, err := db.newMigrate()
	if err != nil {
		return apperror.Storage("sqlite: initializing schema", err)
	}
	// We don't call m.Close(): it would close db.conn, which the engine owns.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return apperror.Storage("sqlite: initializing schema", err)
	}
	return nil
}

// SchemaVersion returns the applied migration version.
func (db *DB) SchemaVersion() (uint, error) {
	m, err := db.newMigrate()
	if err != nil {
		return 0, apperror.Storage("sqlite: reading schema version", err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, apperror.Storage("sqlite: reading schema version", err)
	}
	if dirty {
		return version, apperror.Storage("sqlite: reading schema version",
			fmt.Errorf("schema is dirty at version %d", version))
	}
	return version, nil
}

func (db *DB) newMigrate() (*migrate.Migrate, error) {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return nil, fmt.Errorf("reading embedded migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db.conn, &migratesqlite.Config{})
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("creating migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		source.Close()
		return nil, fmt.Errorf("creating migrator: %w", err)
	}
	return m, nil
}
