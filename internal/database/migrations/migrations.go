// Package migrations owns the fixed part of the snapshot schema: the
// metadata, account, error-log and label tables. The object table depends
// on per-snapshot feature flags and is created by the store itself.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed files/*.sql
var migrationFiles embed.FS

// ErrNotSnapshot is returned for SQLite files that carry no schema version.
var ErrNotSnapshot = errors.New("database has no schema version (not a snapshot)")

// CheckDBMigrationStatus verifies that a snapshot was written with the
// schema version this binary reads. It only reads db, so checking a file
// that is not a snapshot leaves it untouched.
func CheckDBMigrationStatus(db *sql.DB) error {
	version, dirty, err := readVersion(db)
	if err != nil {
		return err
	}
	if dirty {
		return fmt.Errorf("snapshot schema is dirty at version %d (creation failed)", version)
	}

	latest, err := LatestVersion()
	if err != nil {
		return err
	}
	switch {
	case version < latest:
		return fmt.Errorf("snapshot schema version %d is older than %d", version, latest)
	case version > latest:
		return fmt.Errorf("snapshot schema version %d is newer than this binary (%d)", version, latest)
	}
	return nil
}

// readVersion reads the row migrate keeps in its tracking table.
func readVersion(db *sql.DB) (uint, bool, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", sqlite3.DefaultMigrationsTable).Scan(&n)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read schema: %w", err)
	}
	if n == 0 {
		return 0, false, ErrNotSnapshot
	}

	var version int64
	var dirty bool
	err = db.QueryRow("SELECT version, dirty FROM " + sqlite3.DefaultMigrationsTable + " LIMIT 1").Scan(&version, &dirty)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, ErrNotSnapshot
	case err != nil:
		return 0, false, fmt.Errorf("failed to get database version: %w", err)
	case version < 0:
		return 0, false, ErrNotSnapshot
	}
	return uint(version), dirty, nil
}

// MigrateUp creates the fixed snapshot tables.
func MigrateUp(db *sql.DB) error {
	m, err := newMigrate(db)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// LatestVersion returns the highest embedded schema version.
func LatestVersion() (uint, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return 0, fmt.Errorf("failed to read migration files: %w", err)
	}
	defer src.Close()
	return lastVersion(src)
}

func newMigrate(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationFiles, "files")
	if err != nil {
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// lastVersion walks the source until Next reports no further migration.
func lastVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, err
	}
	for {
		next, err := src.Next(v)
		if err != nil {
			return v, nil
		}
		v = next
	}
}
