package dsum_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"dsum-go/internal/database"
	"dsum-go/internal/digest"
	"dsum-go/internal/dsum"
	"dsum-go/internal/testutil"
)

type scanFixture struct {
	fsm   *testutil.MockFilesystemManager
	store dsum.SnapshotStore
	svc   *dsum.Service
	dir   string
}

func newScanFixture(t *testing.T) *scanFixture {
	t.Helper()
	fsm := testutil.NewMockFilesystemManager()
	fsm.AddFile("/data/a.txt", []byte("hello"))
	fsm.AddFile("/data/sub/b.txt", []byte("world"))
	fsm.AddSymlink("/data/link", "a.txt")
	fsm.AddSpecial("/data/pipe", fs.ModeNamedPipe|0644)

	store := database.NewSQLiteStore(nil)
	svc := dsum.NewService(store, fsm, nil, nil, nil, nil, testutil.FixedClock(), testutil.NewStubIDGenerator())
	return &scanFixture{fsm: fsm, store: store, svc: svc, dir: t.TempDir()}
}

func (f *scanFixture) scan(t *testing.T, name, prior string, scheme digest.Scheme) *dsum.ScanResult {
	t.Helper()
	res, err := f.svc.Scan(dsum.ScanOptions{
		Root:     "/data",
		Output:   filepath.Join(f.dir, name),
		Prior:    prior,
		Digester: digest.NewProvider(scheme, f.fsm),
		Reuse:    dsum.AllCriteria(),
		Features: dsum.DefaultFeatures(),
		HostID:   "host-1",
	})
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	return res
}

func (f *scanFixture) records(t *testing.T, path string) map[string]dsum.Record {
	t.Helper()
	r, err := f.store.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()
	recs, err := r.Records()
	if err != nil {
		t.Fatalf("Records() error = %v", err)
	}
	out := make(map[string]dsum.Record, len(recs))
	for _, rec := range recs {
		out[rec.RelPath] = rec
	}
	return out
}

func TestService_Scan(t *testing.T) {
	f := newScanFixture(t)
	res := f.scan(t, "one.sqlite", "", digest.SHA256)

	if res.RunID != "id-1" {
		t.Errorf("RunID = %q, want id-1", res.RunID)
	}
	st := res.Stats
	if st.Objects != 6 || st.RegularFiles != 2 || st.Directories != 2 || st.Symlinks != 1 || st.Other != 1 {
		t.Errorf("Stats = %+v", st)
	}
	if st.Fingerprinted != 2 || st.BytesFingerprinted != 10 || st.Reasons[dsum.ReasonNewScan] != 2 {
		t.Errorf("fingerprint stats = %+v", st)
	}

	recs := f.records(t, res.Path)
	tests := []struct {
		rel string
		typ dsum.FileType
		fp  string
		ext string
	}{
		{"/a.txt", dsum.TypeRegular, testutil.SHA256Hex([]byte("hello")), "TXT"},
		{"/sub/b.txt", dsum.TypeRegular, testutil.SHA256Hex([]byte("world")), "TXT"},
		{"/sub", dsum.TypeDirectory, "/sub", ""},
		{"/link", dsum.TypeSymlink, "a.txt", ""},
		{"/pipe", dsum.TypeFIFO, "", ""},
	}
	for _, tt := range tests {
		rec, ok := recs[tt.rel]
		if !ok {
			t.Errorf("no record for %q", tt.rel)
			continue
		}
		if rec.Type != tt.typ || rec.Fingerprint != tt.fp || rec.Extension != tt.ext {
			t.Errorf("%s = {%s %q %q}, want {%s %q %q}", tt.rel, rec.Type, rec.Fingerprint, rec.Extension, tt.typ, tt.fp, tt.ext)
		}
	}

	r, err := f.store.Open(res.Path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()
	meta, err := r.Meta()
	if err != nil {
		t.Fatalf("Meta() error = %v", err)
	}
	wantMeta := map[string]string{
		dsum.MetaChecksum:      "sha256",
		dsum.MetaRunID:         "id-1",
		dsum.MetaHostID:        "host-1",
		dsum.MetaScanRoot:      "/data",
		dsum.MetaScanRootName:  "data",
		dsum.MetaExtensionFlag: dsum.FormatBool(true),
		dsum.MetaBlocksFlag:    dsum.FormatBool(false),
		dsum.MetaPriorFile:     "",
	}
	for k, want := range wantMeta {
		if got := meta[k]; got != want {
			t.Errorf("meta[%q] = %q, want %q", k, got, want)
		}
	}
	if got := dsum.MetaInt(meta, dsum.MetaObjects); got != 6 {
		t.Errorf("meta[%q] = %d, want 6", dsum.MetaObjects, got)
	}
	if got := dsum.MetaInt(meta, dsum.MetaScanStart); got != testutil.DefaultTime {
		t.Errorf("meta[%q] = %d, want %d", dsum.MetaScanStart, got, testutil.DefaultTime)
	}
}

func TestService_Scan_EntryErrors(t *testing.T) {
	boom := errors.New("boom")
	f := newScanFixture(t)
	f.fsm.FailOpen("/data/a.txt", boom)
	f.fsm.FailReadlink("/data/link", boom)
	f.fsm.FailReadDir("/data/sub", boom)

	res := f.scan(t, "errs.sqlite", "", digest.SHA256)
	if res.ErrorsLen != 3 {
		t.Errorf("ErrorsLen = %d, want 3", res.ErrorsLen)
	}

	recs := f.records(t, res.Path)
	if fp := recs["/a.txt"].Fingerprint; fp != dsum.FingerprintError {
		t.Errorf("/a.txt fingerprint = %q, want %q", fp, dsum.FingerprintError)
	}
	if fp := recs["/link"].Fingerprint; fp != dsum.FingerprintError {
		t.Errorf("/link fingerprint = %q, want %q", fp, dsum.FingerprintError)
	}
	if _, ok := recs["/sub/b.txt"]; ok {
		t.Error("entry below unreadable directory recorded")
	}

	r, err := f.store.Open(res.Path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer r.Close()
	logged, err := r.Errors()
	if err != nil {
		t.Fatalf("Errors() error = %v", err)
	}
	if len(logged) != 3 {
		t.Errorf("len(Errors()) = %d, want 3", len(logged))
	}
}

func TestService_Scan_Incremental(t *testing.T) {
	f := newScanFixture(t)
	first := f.scan(t, "one.sqlite", "", digest.SHA256)
	opens := f.fsm.TotalOpens()

	second := f.scan(t, "two.sqlite", first.Path, digest.SHA256)
	if second.Prior != first.Path {
		t.Errorf("Prior = %q, want %q", second.Prior, first.Path)
	}
	if second.Stats.Reused != 2 || second.Stats.Fingerprinted != 0 {
		t.Errorf("Reused = %d Fingerprinted = %d, want 2 and 0", second.Stats.Reused, second.Stats.Fingerprinted)
	}
	if got := f.fsm.TotalOpens(); got != opens {
		t.Errorf("files opened during reuse scan: %d", got-opens)
	}
	recs := f.records(t, second.Path)
	if fp := recs["/a.txt"].Fingerprint; fp != testutil.SHA256Hex([]byte("hello")) {
		t.Errorf("reused fingerprint = %q", fp)
	}

	f.fsm.Touch("/data/a.txt", []byte("hello!"), testutil.DefaultTime+60)
	f.fsm.AddFile("/data/c.txt", []byte("new"))
	third := f.scan(t, "three.sqlite", second.Path, digest.SHA256)

	reasons := third.Stats.Reasons
	if reasons[dsum.ReasonSize] != 1 || reasons[dsum.ReasonNewFile] != 1 || reasons[dsum.ReasonReuse] != 1 {
		t.Errorf("Reasons = %v", reasons)
	}
	if got := f.fsm.OpenCount("/data/sub/b.txt"); got != 1 {
		t.Errorf("/data/sub/b.txt opened %d times, want 1", got)
	}
	recs = f.records(t, third.Path)
	if fp := recs["/a.txt"].Fingerprint; fp != testutil.SHA256Hex([]byte("hello!")) {
		t.Errorf("changed file fingerprint = %q", fp)
	}
}

func TestService_Scan_PriorSchemeMismatch(t *testing.T) {
	f := newScanFixture(t)
	first := f.scan(t, "one.sqlite", "", digest.SHA256)
	second := f.scan(t, "two.sqlite", first.Path, digest.MD5)

	if second.Prior != "" {
		t.Errorf("Prior = %q, want none", second.Prior)
	}
	if second.Stats.Reused != 0 || second.Stats.Reasons[dsum.ReasonNewScan] != 2 {
		t.Errorf("Stats = %+v, want every file fingerprinted as a new scan", second.Stats)
	}
}

func TestService_Scan_Fatal(t *testing.T) {
	tests := []struct {
		name string
		opts func(f *scanFixture) dsum.ScanOptions
	}{
		{
			name: "root is a file",
			opts: func(f *scanFixture) dsum.ScanOptions {
				return dsum.ScanOptions{Root: "/data/a.txt", Digester: digest.NewProvider(digest.SHA256, f.fsm)}
			},
		},
		{
			name: "no digester",
			opts: func(f *scanFixture) dsum.ScanOptions {
				return dsum.ScanOptions{Root: "/data"}
			},
		},
		{
			name: "missing root",
			opts: func(f *scanFixture) dsum.ScanOptions {
				return dsum.ScanOptions{Root: "/nowhere", Digester: digest.NewProvider(digest.SHA256, f.fsm)}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newScanFixture(t)
			opts := tt.opts(f)
			opts.Output = filepath.Join(f.dir, "out.sqlite")
			if _, err := f.svc.Scan(opts); err == nil {
				t.Fatal("Scan() expected error")
			}
			if _, err := os.Stat(opts.Output); !os.IsNotExist(err) {
				t.Errorf("output exists after failed scan: %v", err)
			}
			if _, err := os.Stat(opts.Output + database.PartialSuffix); !os.IsNotExist(err) {
				t.Errorf("partial output left behind: %v", err)
			}
		})
	}
}
