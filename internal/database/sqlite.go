package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	"dsum-go/internal/database/migrations"
	"dsum-go/internal/dsum"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// PartialSuffix marks a snapshot that is still being written.
const PartialSuffix = ".partial"

// SQLiteStore implements dsum.SnapshotStore with one SQLite file per snapshot.
type SQLiteStore struct {
	logger dsum.Logger
}

// NewSQLiteStore returns a store. A nil logger discards output.
func NewSQLiteStore(logger dsum.Logger) *SQLiteStore {
	if logger == nil {
		logger = dsum.NewNopLogger()
	}
	return &SQLiteStore{logger: logger}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Create starts a snapshot. Rows go to path+".partial" inside a single
// transaction; Commit renames the file into place.
func (s *SQLiteStore) Create(path string, features dsum.Features) (dsum.SnapshotWriter, error) {
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("snapshot already exists: %s", path)
	}
	partial := path + PartialSuffix
	if err := os.Remove(partial); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("removing stale %s: %w", partial, err)
	}

	db, err := OpenConnection(partial)
	if err != nil {
		return nil, err
	}
	w := &snapshotWriter{db: db, path: path, partial: partial, features: features, logger: s.logger}
	if err := w.begin(); err != nil {
		w.Abort()
		return nil, err
	}
	return w, nil
}

// Open opens a committed snapshot for reading.
func (s *SQLiteStore) Open(path string) (dsum.SnapshotReader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("snapshot is a directory: %s", path)
	}

	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.CheckDBMigrationStatus(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s is not a usable snapshot: %w", path, err)
	}

	r := &snapshotReader{db: db, path: path}
	meta, err := r.Meta()
	if err != nil {
		db.Close()
		return nil, err
	}
	r.features = dsum.FeaturesFromMeta(meta)
	return r, nil
}

type snapshotWriter struct {
	db       *sql.DB
	tx       *sql.Tx
	path     string
	partial  string
	features dsum.Features
	logger   dsum.Logger
	done     bool

	insertMeta   *sql.Stmt
	insertUser   *sql.Stmt
	insertGroup  *sql.Stmt
	insertMember *sql.Stmt
	insertRecord *sql.Stmt
	insertError  *sql.Stmt
}

func (w *snapshotWriter) begin() error {
	if err := migrations.MigrateUp(w.db); err != nil {
		return fmt.Errorf("creating snapshot tables: %w", err)
	}

	tx, err := w.db.BeginTx(context.Background(), nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	w.tx = tx

	for _, stmt := range objectDDL(w.features) {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("creating object table: %w", err)
		}
	}

	prepare := func(dst **sql.Stmt, query string) {
		if err != nil {
			return
		}
		*dst, err = tx.Prepare(query)
	}
	prepare(&w.insertMeta, "INSERT INTO meta (mkey, mvalue) VALUES (?, ?)")
	prepare(&w.insertUser, "INSERT INTO rusers (userid, uname, primgid, shell, gecos) VALUES (?, ?, ?, ?, ?)")
	prepare(&w.insertGroup, "INSERT INTO rgroups (groupid, gname) VALUES (?, ?)")
	prepare(&w.insertMember, "INSERT INTO groupmembers (groupid, userid) VALUES (?, ?)")
	prepare(&w.insertRecord, objectInsertSQL(w.features))
	prepare(&w.insertError, "INSERT INTO serrors (id, emessage) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("preparing statements: %w", err)
	}
	return nil
}

func (w *snapshotWriter) PutMeta(key, value string) error {
	if _, err := w.insertMeta.Exec(key, value); err != nil {
		return fmt.Errorf("inserting meta %s: %w", key, err)
	}
	return nil
}

func (w *snapshotWriter) PutUser(u dsum.User) error {
	_, err := w.insertUser.Exec(u.UID, u.Name, u.PrimaryGID, u.Shell, u.Gecos)
	return err
}

func (w *snapshotWriter) PutGroup(g dsum.Group) error {
	_, err := w.insertGroup.Exec(g.GID, g.Name)
	return err
}

func (w *snapshotWriter) PutMembership(gid, uid int64) error {
	_, err := w.insertMember.Exec(gid, uid)
	return err
}

func (w *snapshotWriter) PutRecord(r *dsum.Record) error {
	_, err := w.insertRecord.Exec(objectArgs(w.features, r)...)
	return err
}

func (w *snapshotWriter) PutError(e *dsum.ScanIOError) error {
	var id sql.NullInt64
	if e.ID != dsum.UnknownID {
		id = sql.NullInt64{Int64: e.ID, Valid: true}
	}
	_, err := w.insertError.Exec(id, e.Error())
	return err
}

// Commit makes the snapshot durable and moves it to its final path.
func (w *snapshotWriter) Commit() error {
	if w.done {
		return errors.New("snapshot already finished")
	}
	if err := w.tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	w.tx = nil
	if err := w.db.Close(); err != nil {
		return fmt.Errorf("closing snapshot: %w", err)
	}
	w.db = nil
	if err := os.Rename(w.partial, w.path); err != nil {
		return fmt.Errorf("placing snapshot: %w", err)
	}
	w.done = true
	w.logger.Debug("snapshot committed", "path", w.path)
	return nil
}

// Abort rolls back and removes the partial file.
func (w *snapshotWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	if w.tx != nil {
		w.tx.Rollback()
	}
	if w.db != nil {
		w.db.Close()
	}
	if err := os.Remove(w.partial); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", w.partial, err)
	}
	w.logger.Debug("snapshot aborted", "path", w.path)
	return nil
}

type snapshotReader struct {
	db       *sql.DB
	path     string
	features dsum.Features
}

func (r *snapshotReader) Meta() (map[string]string, error) {
	rows, err := r.db.Query("SELECT mkey, mvalue FROM meta ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("reading meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var k string
		var v sql.NullString
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scanning meta: %w", err)
		}
		meta[k] = v.String
	}
	return meta, rows.Err()
}

func (r *snapshotReader) Features() dsum.Features { return r.features }

func (r *snapshotReader) RegularFiles() ([]dsum.FileEntry, error) {
	rows, err := r.db.Query("SELECT relpn, bytes, mtime, ctime, csum FROM annofsobj WHERE ftype = 'r'")
	if err != nil {
		return nil, fmt.Errorf("reading files: %w", err)
	}
	defer rows.Close()

	var entries []dsum.FileEntry
	for rows.Next() {
		var e dsum.FileEntry
		if err := rows.Scan(&e.RelPath, &e.Size, &e.Mtime, &e.Ctime, &e.Fingerprint); err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *snapshotReader) Records() ([]dsum.Record, error) {
	rows, err := r.db.Query(recordSelectSQL(r.features))
	if err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}
	defer rows.Close()

	var out []dsum.Record
	for rows.Next() {
		rec, err := scanRecord(rows, r.features)
		if err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *snapshotReader) Errors() ([]dsum.ScanIOError, error) {
	rows, err := r.db.Query("SELECT id, emessage FROM serrors ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("reading scan errors: %w", err)
	}
	defer rows.Close()

	var out []dsum.ScanIOError
	for rows.Next() {
		var id sql.NullInt64
		var msg sql.NullString
		if err := rows.Scan(&id, &msg); err != nil {
			return nil, fmt.Errorf("scanning scan error: %w", err)
		}
		e := dsum.ScanIOError{ID: dsum.UnknownID, Message: msg.String}
		if id.Valid {
			e.ID = id.Int64
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *snapshotReader) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Compile-time checks that the store types implement the dsum interfaces
var (
	_ dsum.SnapshotStore  = (*SQLiteStore)(nil)
	_ dsum.SnapshotWriter = (*snapshotWriter)(nil)
	_ dsum.SnapshotReader = (*snapshotReader)(nil)
)
