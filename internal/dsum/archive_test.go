package dsum_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"dsum-go/internal/dsum"
	"dsum-go/internal/testutil"
)

func newArchiveService(v dsum.Vault, enc dsum.Encryptor) *dsum.Service {
	return dsum.NewService(testutil.NewTestStore(), testutil.NewMockFilesystemManager(), nil, v, enc, nil,
		testutil.FixedClock(), testutil.NewStubIDGenerator())
}

func passphrase(p string) func() (string, error) {
	return func() (string, error) { return p, nil }
}

func TestService_PushPull(t *testing.T) {
	snap := testutil.NewTestSnapshot(t, "sha256", dsum.FileEntry{RelPath: "/a.txt", Size: 5, Fingerprint: "fp"})
	want, err := os.ReadFile(snap)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		enc      dsum.Encryptor
		wantName string
	}{
		{name: "plaintext", enc: nil, wantName: "fixture.sqlite"},
		{name: "encrypted", enc: testutil.NewTestEncryptor(), wantName: "fixture.sqlite" + dsum.EncryptedSuffix},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newArchiveService(testutil.NewTestVault(), tt.enc)

			name, err := svc.PushSnapshot(snap)
			if err != nil {
				t.Fatalf("PushSnapshot() error = %v", err)
			}
			if name != tt.wantName {
				t.Errorf("PushSnapshot() = %q, want %q", name, tt.wantName)
			}

			names, err := svc.ListArchived()
			if err != nil {
				t.Fatalf("ListArchived() error = %v", err)
			}
			if len(names) != 1 || names[0] != name {
				t.Errorf("ListArchived() = %v", names)
			}

			dest := filepath.Join(t.TempDir(), "restored.sqlite")
			if err := svc.PullSnapshot(name, dest, passphrase("pw")); err != nil {
				t.Fatalf("PullSnapshot() error = %v", err)
			}
			got, err := os.ReadFile(dest)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(got, want) {
				t.Error("restored snapshot differs from original")
			}
		})
	}
}

func TestService_PushSnapshot_Errors(t *testing.T) {
	t.Run("no vault", func(t *testing.T) {
		svc := newArchiveService(nil, nil)
		_, err := svc.PushSnapshot("whatever.sqlite")
		var cfgErr *dsum.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("PushSnapshot() error = %v, want ConfigError", err)
		}
	})

	t.Run("not a snapshot", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notes.txt")
		if err := os.WriteFile(path, []byte("not sqlite"), 0644); err != nil {
			t.Fatal(err)
		}
		v := testutil.NewTestVault()
		svc := newArchiveService(v, nil)
		if _, err := svc.PushSnapshot(path); err == nil {
			t.Fatal("PushSnapshot() expected error for a non-snapshot file")
		}
		if names, _ := v.ListSnapshots(); len(names) != 0 {
			t.Errorf("vault holds %v after failed push", names)
		}
	})
}

func TestService_PullSnapshot_Errors(t *testing.T) {
	snap := testutil.NewTestSnapshot(t, "sha256")

	t.Run("destination exists", func(t *testing.T) {
		svc := newArchiveService(testutil.NewTestVault(), nil)
		name, err := svc.PushSnapshot(snap)
		if err != nil {
			t.Fatalf("PushSnapshot() error = %v", err)
		}
		if err := svc.PullSnapshot(name, snap, passphrase("")); err == nil {
			t.Fatal("PullSnapshot() expected error for existing destination")
		}
	})

	t.Run("unknown name leaves nothing behind", func(t *testing.T) {
		svc := newArchiveService(testutil.NewTestVault(), nil)
		dir := t.TempDir()
		if err := svc.PullSnapshot("missing.sqlite", filepath.Join(dir, "x.sqlite"), passphrase("")); err == nil {
			t.Fatal("PullSnapshot() expected error for unknown name")
		}
		entries, _ := os.ReadDir(dir)
		if len(entries) != 0 {
			t.Errorf("temp files left in %s: %v", dir, entries)
		}
	})

	t.Run("passphrase failure", func(t *testing.T) {
		svc := newArchiveService(testutil.NewTestVault(), testutil.NewTestEncryptor())
		name, err := svc.PushSnapshot(snap)
		if err != nil {
			t.Fatalf("PushSnapshot() error = %v", err)
		}
		failing := func() (string, error) { return "", errors.New("no tty") }
		dest := filepath.Join(t.TempDir(), "x.sqlite")
		if err := svc.PullSnapshot(name, dest, failing); err == nil {
			t.Fatal("PullSnapshot() expected error when the passphrase cannot be read")
		}
		if _, err := os.Stat(dest); !os.IsNotExist(err) {
			t.Errorf("destination created after failed pull: %v", err)
		}
	})
}
