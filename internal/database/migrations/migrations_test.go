package migrations

import (
	"bytes"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestMigrateUp_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	for _, table := range []string{"meta", "rusers", "rgroups", "groupmembers", "serrors", "ftype2lab", "schema_migrations"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s was not created: %v", table, err)
		}
	}
	for _, view := range []string{"users", "groups", "annometa"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='view' AND name=?", view).Scan(&name)
		if err != nil {
			t.Errorf("view %s was not created: %v", view, err)
		}
	}
}

func TestCheckDBMigrationStatus_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	err := CheckDBMigrationStatus(db)
	if !errors.Is(err, ErrNotSnapshot) {
		t.Errorf("CheckDBMigrationStatus() error = %v, want ErrNotSnapshot", err)
	}
}

func TestCheckDBMigrationStatus_LeavesForeignDatabaseUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.sqlite")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec("CREATE TABLE notes (body TEXT)"); err != nil {
		t.Fatalf("creating table: %v", err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading database: %v", err)
	}

	if err := CheckDBMigrationStatus(db); !errors.Is(err, ErrNotSnapshot) {
		t.Errorf("CheckDBMigrationStatus() error = %v, want ErrNotSnapshot", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = 'schema_migrations'").Scan(&n); err != nil {
		t.Fatalf("reading schema: %v", err)
	}
	if n != 0 {
		t.Error("schema_migrations was created in a foreign database")
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading database: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Error("database file changed")
	}
}

func TestCheckDBMigrationStatus_Dirty(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_migrations SET dirty = 1"); err != nil {
		t.Fatalf("marking dirty: %v", err)
	}

	err := CheckDBMigrationStatus(db)
	if err == nil || errors.Is(err, ErrNotSnapshot) {
		t.Errorf("CheckDBMigrationStatus() error = %v, want dirty schema error", err)
	}
}

func TestCheckDBMigrationStatus_AfterMigration(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration returned error: %v", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("first MigrateUp() failed: %v", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Errorf("second MigrateUp() failed: %v", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM ftype2lab").Scan(&n); err != nil {
		t.Fatalf("counting labels: %v", err)
	}
	if n != 8 {
		t.Errorf("ftype2lab has %d rows, want 8", n)
	}
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if v < 1 {
		t.Errorf("LatestVersion() = %d, want >= 1", v)
	}
}

func TestViews_KeepLastAccountRow(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() failed: %v", err)
	}

	stmts := []string{
		"INSERT INTO rusers VALUES (1000, 'old', 100, '/bin/sh', '')",
		"INSERT INTO rusers VALUES (1000, 'new', 100, '/bin/sh', '')",
		"INSERT INTO rgroups VALUES (100, 'staff')",
		"INSERT INTO meta VALUES ('scanStart', '100')",
		"INSERT INTO meta VALUES ('scanFinish', '142')",
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("%s: %v", s, err)
		}
	}

	var uname string
	if err := db.QueryRow("SELECT uname FROM users WHERE userid = 1000").Scan(&uname); err != nil {
		t.Fatalf("querying users: %v", err)
	}
	if uname != "new" {
		t.Errorf("uname = %q, want %q", uname, "new")
	}

	var scanTime int
	if err := db.QueryRow("SELECT mvalue FROM annometa WHERE mkey = 'scanTime'").Scan(&scanTime); err != nil {
		t.Fatalf("querying annometa: %v", err)
	}
	if scanTime != 42 {
		t.Errorf("scanTime = %d, want 42", scanTime)
	}
}

// openTestDB opens an in-memory SQLite database for testing.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
