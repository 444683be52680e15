package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sort"

	"dsum-go/internal/dsum"
)

// DiffRow is one selected comparison row as stored in a difference database.
type DiffRow struct {
	Side    string
	H       string
	NL      string
	NR      string
	CT      string
	MT      string
	SZ      string
	Hash    string
	RelPath string
}

const diffSchema = `
CREATE TABLE meta (
  mkey   TEXT,
  mvalue TEXT
);
CREATE TABLE diffrep (
  side  TEXT,
  h     TEXT,
  nl    TEXT,
  nr    TEXT,
  ct    TEXT,
  mt    TEXT,
  sz    TEXT,
  hash  TEXT,
  relpn TEXT
);
CREATE INDEX diffrep_relpn ON diffrep (relpn);
CREATE INDEX diffrep_hash ON diffrep (hash);
`

// DiffOptions selects the object tree part of a difference database.
type DiffOptions struct {
	LeftSnapshot  string // "" writes only the selected rows
	RightSnapshot string
	WithObjects   bool // keep both sides' objects as fsobj1 and fsobj2
}

// diffTreeSQL compares every object of both snapshots by relpn, whatever
// its type. Objects on both sides appear only when something differs.
// Directory checksums hold their own relpn and are not compared.
const diffTreeSQL = `
CREATE TABLE difftree AS
SELECT side, dftype, dcsum, dbytes, sbytes, dctime, dmtime, id1, id2, ftype1, ftype2, relpn
  FROM (
SELECT '=' AS side,
       CASE WHEN l.ftype = r.ftype THEN '=' ELSE '!' END AS dftype,
       CASE WHEN l.ftype = 'd' AND r.ftype = 'd' THEN '='
            WHEN l.csum IS r.csum THEN '='
            ELSE '!'
       END AS dcsum,
       CASE WHEN l.bytes < r.bytes THEN '<' WHEN l.bytes > r.bytes THEN '>' ELSE '=' END AS dbytes,
       CASE WHEN abs(l.bytes - r.bytes) >= 1073741824 THEN 'G'
            WHEN abs(l.bytes - r.bytes) >= 1048576 THEN 'M'
            WHEN abs(l.bytes - r.bytes) >= 1024 THEN 'K'
            WHEN abs(l.bytes - r.bytes) > 0 THEN 'B'
            ELSE '='
       END AS sbytes,
       CASE WHEN l.ctime < r.ctime THEN '<' WHEN l.ctime > r.ctime THEN '>' ELSE '=' END AS dctime,
       CASE WHEN l.mtime < r.mtime THEN '<' WHEN l.mtime > r.mtime THEN '>' ELSE '=' END AS dmtime,
       l.id AS id1, r.id AS id2, l.ftype AS ftype1, r.ftype AS ftype2, l.relpn AS relpn
  FROM fsobj1 l
  JOIN fsobj2 r ON l.relpn = r.relpn
 WHERE l.ftype != r.ftype
    OR (NOT (l.ftype = 'd' AND r.ftype = 'd') AND l.csum IS NOT r.csum)
    OR l.bytes != r.bytes
    OR l.ctime != r.ctime
    OR l.mtime != r.mtime
UNION ALL
SELECT '<', '.', '.', '.', '.', '.', '.', l.id, NULL, l.ftype, NULL, l.relpn
  FROM fsobj1 l
 WHERE NOT EXISTS (SELECT 1 FROM fsobj2 r WHERE r.relpn = l.relpn)
UNION ALL
SELECT '>', '.', '.', '.', '.', '.', '.', NULL, r.id, NULL, r.ftype, r.relpn
  FROM fsobj2 r
 WHERE NOT EXISTS (SELECT 1 FROM fsobj1 l WHERE l.relpn = r.relpn)
)
 ORDER BY relpn, side
`

// diffTreeStatements copies both sides' objects into indexed tables and
// builds difftree from them. The copies live in the temp schema unless
// they are kept.
func diffTreeStatements(keep bool) []string {
	schema := "temp"
	if keep {
		schema = "main"
	}
	return []string{
		fmt.Sprintf("CREATE TABLE %s.fsobj1 AS SELECT * FROM d1.annofsobj", schema),
		fmt.Sprintf("CREATE UNIQUE INDEX %s.fsobj1_relpn ON fsobj1 (relpn)", schema),
		fmt.Sprintf("CREATE TABLE %s.fsobj2 AS SELECT * FROM d2.annofsobj", schema),
		fmt.Sprintf("CREATE UNIQUE INDEX %s.fsobj2_relpn ON fsobj2 (relpn)", schema),
		diffTreeSQL,
		"CREATE INDEX difftree_relpn ON difftree (relpn)",
	}
}

// WriteDifferenceDatabase stores rows and meta in a new SQLite file at
// path. When opts names both snapshots it also writes difftree, the
// comparison of all their objects. The file appears only once fully
// written.
func WriteDifferenceDatabase(path string, meta map[string]string, rows []DiffRow, opts DiffOptions) error {
	tree := opts.LeftSnapshot != "" && opts.RightSnapshot != ""
	if opts.WithObjects && !tree {
		return dsum.NewConfigError("object data needs both snapshots")
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("difference database already exists: %s", path)
	}
	partial := path + PartialSuffix
	os.Remove(partial)

	db, err := OpenConnection(partial)
	if err != nil {
		return err
	}
	success := false
	defer func() {
		if !success {
			db.Close()
			os.Remove(partial)
		}
	}()

	// ATTACH is per connection and not allowed inside a transaction.
	ctx := context.Background()
	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()
	if tree {
		if err := attach(ctx, conn, opts.LeftSnapshot, "d1"); err != nil {
			return err
		}
		if err := attach(ctx, conn, opts.RightSnapshot, "d2"); err != nil {
			return err
		}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(diffSchema); err != nil {
		return fmt.Errorf("creating difference tables: %w", err)
	}

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := tx.Exec("INSERT INTO meta (mkey, mvalue) VALUES (?, ?)", k, meta[k]); err != nil {
			return fmt.Errorf("inserting meta %s: %w", k, err)
		}
	}

	stmt, err := tx.Prepare("INSERT INTO diffrep (side, h, nl, nr, ct, mt, sz, hash, relpn) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	for _, r := range rows {
		if _, err := stmt.Exec(r.Side, r.H, r.NL, r.NR, r.CT, r.MT, r.SZ, r.Hash, r.RelPath); err != nil {
			return fmt.Errorf("inserting %s: %w", r.RelPath, err)
		}
	}

	if tree {
		for _, stmt := range diffTreeStatements(opts.WithObjects) {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("comparing object trees: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	if tree {
		for _, name := range []string{"d1", "d2"} {
			if _, err := conn.ExecContext(ctx, "DETACH DATABASE "+name); err != nil {
				return fmt.Errorf("detaching %s: %w", name, err)
			}
		}
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("releasing connection: %w", err)
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("closing difference database: %w", err)
	}
	if err := os.Rename(partial, path); err != nil {
		os.Remove(partial)
		return fmt.Errorf("placing difference database: %w", err)
	}
	success = true
	return nil
}

func attach(ctx context.Context, conn *sql.Conn, path, name string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("snapshot %s: %w", path, err)
	}
	if _, err := conn.ExecContext(ctx, "ATTACH DATABASE ? AS "+name, path); err != nil {
		return fmt.Errorf("attaching %s: %w", path, err)
	}
	return nil
}
