package dsum

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

// ConventionDir is the per-tree directory holding chronologically named snapshots.
const ConventionDir = ".dircsum"

const snapshotTimeLayout = "20060102150405"

var snapshotNameRe = regexp.MustCompile(`^[0-9]{14}_dircsum\.sqlite$`)

// SnapshotName returns the file name for a snapshot taken at t.
func SnapshotName(t time.Time) string {
	return t.Format(snapshotTimeLayout) + "_dircsum.sqlite"
}

// IsSnapshotName reports whether name follows the convention directory naming.
func IsSnapshotName(name string) bool {
	return snapshotNameRe.MatchString(name)
}

// Catalog is a convention directory of snapshots.
type Catalog struct {
	dir string
}

// NewCatalog returns the catalog for the convention directory inside base.
func NewCatalog(base string) *Catalog {
	return &Catalog{dir: filepath.Join(base, ConventionDir)}
}

// Dir returns the convention directory path.
func (c *Catalog) Dir() string { return c.dir }

// Exists reports whether the convention directory is present.
func (c *Catalog) Exists() bool {
	info, err := os.Stat(c.dir)
	return err == nil && info.IsDir()
}

// Ensure creates the convention directory if needed.
func (c *Catalog) Ensure() error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", c.dir, err)
	}
	return nil
}

// List returns snapshot paths oldest first. Names sort chronologically.
func (c *Catalog) List() ([]string, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", c.dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsSnapshotName(e.Name()) {
			paths = append(paths, filepath.Join(c.dir, e.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Latest returns the newest snapshot, or "" if there is none.
func (c *Catalog) Latest() (string, error) {
	paths, err := c.List()
	if err != nil || len(paths) == 0 {
		return "", err
	}
	return paths[len(paths)-1], nil
}

// NewPath returns the path for a snapshot taken at t.
func (c *Catalog) NewPath(t time.Time) string {
	return filepath.Join(c.dir, SnapshotName(t))
}

// ComparePair resolves compare arguments in convention mode: with no
// arguments the two newest snapshots, with one argument the newest
// snapshot against it.
func (c *Catalog) ComparePair(args []string) (string, string, error) {
	if !c.Exists() {
		return "", "", NewConfigError("missing %s directory", c.dir)
	}
	paths, err := c.List()
	if err != nil {
		return "", "", err
	}
	if len(paths) == 0 {
		return "", "", NewConfigError("no snapshots found in %s", c.dir)
	}
	newest := paths[len(paths)-1]
	switch len(args) {
	case 0:
		if len(paths) < 2 {
			return "", "", NewConfigError("at least two snapshots are required in %s", c.dir)
		}
		return paths[len(paths)-2], newest, nil
	case 1:
		return newest, args[0], nil
	default:
		return "", "", NewConfigError("only one snapshot may be named in convention mode")
	}
}
