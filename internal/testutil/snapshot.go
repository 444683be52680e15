package testutil

import (
	"fmt"
	"path/filepath"
	"testing"

	"dsum-go/internal/database"
	"dsum-go/internal/dsum"
)

// fixtureRoot is the mock scan root used by NewTestSnapshot.
const fixtureRoot = "/fixture"

// StaticDigester returns preset fingerprints keyed by absolute path.
type StaticDigester struct {
	Name string
	Sums map[string]string
}

func (d *StaticDigester) Scheme() string { return d.Name }

func (d *StaticDigester) Fingerprint(path string) (string, error) {
	sum, ok := d.Sums[path]
	if !ok {
		return "", fmt.Errorf("no fingerprint for %s", path)
	}
	return sum, nil
}

var _ dsum.Digester = (*StaticDigester)(nil)

// NewTestSnapshot writes a committed snapshot holding exactly the given
// regular files and the directories above them. Each entry's RelPath,
// Size, Mtime, Ctime and Fingerprint are stored as given.
func NewTestSnapshot(t *testing.T, scheme string, files ...dsum.FileEntry) string {
	t.Helper()

	fsm := NewMockFilesystemManager()
	fsm.AddDirectory(fixtureRoot)
	d := &StaticDigester{Name: scheme, Sums: make(map[string]string)}
	for _, e := range files {
		p := fixtureRoot + e.RelPath
		f := fsm.AddFile(p, nil)
		f.Size, f.Mtime, f.Ctime = e.Size, e.Mtime, e.Ctime
		d.Sums[p] = e.Fingerprint
	}

	out := filepath.Join(t.TempDir(), "fixture.sqlite")
	svc := dsum.NewService(database.NewSQLiteStore(nil), fsm, nil, nil, nil, nil, FixedClock(), NewStubIDGenerator())
	if _, err := svc.Scan(dsum.ScanOptions{
		Root:     fixtureRoot,
		Output:   out,
		Digester: d,
		Reuse:    dsum.AllCriteria(),
		Features: dsum.DefaultFeatures(),
	}); err != nil {
		t.Fatalf("writing test snapshot: %v", err)
	}
	return out
}

// NewTestStore returns the SQLite snapshot store used by the CLI.
func NewTestStore() dsum.SnapshotStore {
	return database.NewSQLiteStore(nil)
}
