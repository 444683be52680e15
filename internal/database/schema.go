package database

import (
	"database/sql"
	"fmt"
	"strings"

	"dsum-go/internal/database/migrations"
	"dsum-go/internal/dsum"
)

// column is one fsobj column and the Record field it stores.
type column struct {
	name string
	decl string
	get  func(r *dsum.Record) any
	set  func(r *dsum.Record) any // scan destination
}

func objectColumns(f dsum.Features) []column {
	cols := []column{
		{"id", "INTEGER", func(r *dsum.Record) any { return r.ID }, func(r *dsum.Record) any { return &r.ID }},
		{"pid", "INTEGER", func(r *dsum.Record) any { return r.ParentID }, func(r *dsum.Record) any { return &r.ParentID }},
		{"lft", "INTEGER", func(r *dsum.Record) any { return r.Left }, func(r *dsum.Record) any { return &r.Left }},
		{"rgt", "INTEGER", func(r *dsum.Record) any { return r.Right }, func(r *dsum.Record) any { return &r.Right }},
		{"ddeep", "INTEGER", func(r *dsum.Record) any { return r.Depth }, func(r *dsum.Record) any { return &r.Depth }},
		{"userid", "INTEGER", func(r *dsum.Record) any { return r.UID }, func(r *dsum.Record) any { return &r.UID }},
		{"groupid", "INTEGER", func(r *dsum.Record) any { return r.GID }, func(r *dsum.Record) any { return &r.GID }},
	}
	if f.Device {
		cols = append(cols, column{"deviceid", "INTEGER", func(r *dsum.Record) any { return r.DeviceID }, func(r *dsum.Record) any { return &r.DeviceID }})
	}
	cols = append(cols,
		column{"ftype", "TEXT", func(r *dsum.Record) any { return r.Type.String() }, nil},
		column{"fmodes", "INTEGER", func(r *dsum.Record) any { return r.Mode }, func(r *dsum.Record) any { return &r.Mode }},
		column{"fname", "TEXT", func(r *dsum.Record) any { return r.Name }, func(r *dsum.Record) any { return &r.Name }},
	)
	if f.Extension {
		cols = append(cols, column{"fext", "TEXT", func(r *dsum.Record) any { return r.Extension }, func(r *dsum.Record) any { return &r.Extension }})
	}
	cols = append(cols, column{"bytes", "INTEGER", func(r *dsum.Record) any { return r.Size }, func(r *dsum.Record) any { return &r.Size }})
	if f.Blocks {
		cols = append(cols,
			column{"blocks", "INTEGER", func(r *dsum.Record) any { return r.Blocks }, func(r *dsum.Record) any { return &r.Blocks }},
			column{"blocksz", "INTEGER", func(r *dsum.Record) any { return r.BlockSize }, func(r *dsum.Record) any { return &r.BlockSize }},
		)
	}
	cols = append(cols,
		column{"atime", "INTEGER", func(r *dsum.Record) any { return r.Atime }, func(r *dsum.Record) any { return &r.Atime }},
		column{"mtime", "INTEGER", func(r *dsum.Record) any { return r.Mtime }, func(r *dsum.Record) any { return &r.Mtime }},
		column{"ctime", "INTEGER", func(r *dsum.Record) any { return r.Ctime }, func(r *dsum.Record) any { return &r.Ctime }},
		column{"csum", "TEXT", func(r *dsum.Record) any { return r.Fingerprint }, func(r *dsum.Record) any { return &r.Fingerprint }},
	)
	return cols
}

// objectDDL returns the statements creating the object table and the views
// over it. Optional columns follow the feature flags.
func objectDDL(f dsum.Features) []string {
	cols := objectColumns(f)
	decls := make([]string, len(cols))
	names := make([]string, len(cols))
	for i, c := range cols {
		decls[i] = fmt.Sprintf("  %-8s %s", c.name, c.decl)
		names[i] = fmt.Sprintf("    fsobj.%s AS %s", c.name, c.name)
	}

	return []string{
		"CREATE TABLE fsobj (\n" + strings.Join(decls, ",\n") + "\n)",
		"CREATE UNIQUE INDEX fsobj_id ON fsobj (id)",
		`CREATE VIEW dirs AS
  SELECT id, lft, rgt, pid, ddeep, csum AS relpn
    FROM fsobj
    WHERE ftype = 'd'`,
		`CREATE VIEW dirsfq AS
  SELECT id, lft, rgt, pid, ddeep,
         (SELECT mvalue FROM meta WHERE mkey = 'dirToScan') || csum AS fqpn
    FROM fsobj
    WHERE ftype = 'd'`,
		"CREATE VIEW annofsobj AS\n  SELECT\n" + strings.Join(names, ",\n") + `,
    datetime(fsobj.atime, 'unixepoch', 'localtime') AS atimed,
    datetime(fsobj.mtime, 'unixepoch', 'localtime') AS mtimed,
    datetime(fsobj.ctime, 'unixepoch', 'localtime') AS ctimed,
    CASE WHEN fsobj.pid = fsobj.id THEN '/' ELSE dirs.relpn || '/' || fsobj.fname END AS relpn,
    users.uname AS uname,
    groups.gname AS gname
  FROM fsobj
  JOIN dirs ON fsobj.pid = dirs.id
  LEFT JOIN users ON fsobj.userid = users.userid
  LEFT JOIN groups ON fsobj.groupid = groups.groupid`,
		`CREATE VIEW annofsobjfq AS
  SELECT *,
         (SELECT mvalue FROM meta WHERE mkey = 'dirToScan') ||
           CASE WHEN relpn = '/' THEN '' ELSE relpn END AS fqpn
    FROM annofsobj`,
	}
}

func objectInsertSQL(f dsum.Features) string {
	cols := objectColumns(f)
	names := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.name
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO fsobj (%s) VALUES (%s)", strings.Join(names, ", "), strings.Join(marks, ", "))
}

func objectArgs(f dsum.Features, r *dsum.Record) []any {
	cols := objectColumns(f)
	args := make([]any, len(cols))
	for i, c := range cols {
		args[i] = c.get(r)
	}
	return args
}

func recordSelectSQL(f dsum.Features) string {
	cols := objectColumns(f)
	names := make([]string, 0, len(cols)+3)
	for _, c := range cols {
		names = append(names, c.name)
	}
	names = append(names, "relpn", "uname", "gname")
	return fmt.Sprintf("SELECT %s FROM annofsobj ORDER BY lft", strings.Join(names, ", "))
}

func scanRecord(rows *sql.Rows, f dsum.Features) (dsum.Record, error) {
	var rec dsum.Record
	var ftype string
	var uname, gname sql.NullString
	cols := objectColumns(f)
	dest := make([]any, 0, len(cols)+3)
	for _, c := range cols {
		if c.set == nil {
			dest = append(dest, &ftype)
			continue
		}
		dest = append(dest, c.set(&rec))
	}
	dest = append(dest, &rec.RelPath, &uname, &gname)
	if err := rows.Scan(dest...); err != nil {
		return rec, err
	}
	rec.Type = dsum.ParseFileType(ftype)
	rec.OwnerName = uname.String
	rec.GroupName = gname.String
	return rec, nil
}

// SchemaSQL returns the DDL of a snapshot created with the given features.
func SchemaSQL(f dsum.Features) (string, error) {
	db, err := OpenConnection(":memory:")
	if err != nil {
		return "", err
	}
	defer db.Close()
	// :memory: databases are per connection.
	db.SetMaxOpenConns(1)

	if err := migrations.MigrateUp(db); err != nil {
		return "", fmt.Errorf("migration failed: %w", err)
	}
	for _, stmt := range objectDDL(f) {
		if _, err := db.Exec(stmt); err != nil {
			return "", fmt.Errorf("creating object table: %w", err)
		}
	}
	return extractSchema(db)
}

// extractSchema lists the CREATE statements of db, excluding SQLite
// internals and the migration tracking table.
func extractSchema(db *sql.DB) (string, error) {
	query := `
		SELECT sql || ';'
		FROM sqlite_master
		WHERE type IN ('table', 'index', 'view')
		  AND sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		  AND name != 'schema_migrations'
		  AND tbl_name != 'schema_migrations'
		ORDER BY
		  CASE type
		    WHEN 'table' THEN 1
		    WHEN 'index' THEN 2
		    WHEN 'view' THEN 3
		  END,
		  name
	`

	rows, err := db.Query(query)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", fmt.Errorf("scan failed: %w", err)
		}
		b.WriteString(stmt)
		b.WriteString("\n\n")
	}
	return b.String(), rows.Err()
}
