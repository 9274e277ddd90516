package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// MigrationState reports the schema version after a migration run.
type MigrationState struct {
	Version uint
	// Changed is false when the schema was already current.
	Changed bool
	// Empty is true when no migration has ever been applied.
	Empty bool
}

func newMigrate(databaseURL, dir string) (*migrate.Migrate, func(), error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database for migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, func() { db.Close() }, nil
}

// Migrate applies every pending up migration found in dir.
func Migrate(databaseURL, dir string) (MigrationState, error) {
	m, done, err := newMigrate(databaseURL, dir)
	if err != nil {
		return MigrationState{}, err
	}
	defer done()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return MigrationState{}, fmt.Errorf("failed to apply migrations: %w", err)
	}
	state := MigrationState{Changed: err == nil}
	return state, readVersion(m, &state)
}

// Rollback reverts the last steps migrations.
func Rollback(databaseURL, dir string, steps int) (MigrationState, error) {
	if steps <= 0 {
		return MigrationState{}, fmt.Errorf("steps must be positive, got %d", steps)
	}

	m, done, err := newMigrate(databaseURL, dir)
	if err != nil {
		return MigrationState{}, err
	}
	defer done()

	if err := m.Steps(-steps); err != nil {
		return MigrationState{}, fmt.Errorf("failed to roll back migrations: %w", err)
	}
	state := MigrationState{Changed: true}
	return state, readVersion(m, &state)
}

func readVersion(m *migrate.Migrate, state *MigrationState) error {
	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		state.Empty = true
		return nil
	case err != nil:
		return fmt.Errorf("failed to get migration version: %w", err)
	case dirty:
		return fmt.Errorf("migration version %d is dirty, manual intervention required", version)
	}
	state.Version = version
	return nil
}
