package encryption

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dsum-go/internal/config"
	"dsum-go/internal/dsum"
)

func newTestAgeSealer(t *testing.T) *AgeSealer {
	t.Helper()
	dir := t.TempDir()
	cfg := config.EncryptionConfig{
		PublicKeyPath:  filepath.Join(dir, "keys", "dsum.pub"),
		PrivateKeyPath: filepath.Join(dir, "keys", "dsum.key"),
	}
	return NewAgeSealer(cfg)
}

func setupSealer(t *testing.T, passphrase string) *AgeSealer {
	t.Helper()
	s := newTestAgeSealer(t)
	if err := s.Setup(passphrase); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	return s
}

func snapshotBytes(body string) []byte {
	return append([]byte(snapshotMagic), body...)
}

func TestAgeSealer_Setup(t *testing.T) {
	t.Parallel()
	s := newTestAgeSealer(t)
	if s.IsConfigured() {
		t.Error("IsConfigured() = true before Setup, want false")
	}
	if err := s.Setup("test-passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if !s.IsConfigured() {
		t.Error("IsConfigured() = false after Setup, want true")
	}

	pub, err := os.ReadFile(s.recipientPath)
	if err != nil {
		t.Fatalf("reading public key: %v", err)
	}
	if !strings.HasPrefix(string(pub), "age1") {
		t.Errorf("public key = %q, want an age recipient", pub)
	}
	priv, err := os.ReadFile(s.identityPath)
	if err != nil {
		t.Fatalf("reading private key: %v", err)
	}
	if bytes.Contains(priv, []byte("AGE-SECRET-KEY")) {
		t.Error("private key stored in plaintext")
	}
	if _, err := os.Stat(s.identityPath + ".partial"); !os.IsNotExist(err) {
		t.Errorf("partial key file left behind: %v", err)
	}
}

func TestAgeSealer_RoundTrip(t *testing.T) {
	t.Parallel()
	passphrase := "test-passphrase"
	s := setupSealer(t, passphrase)

	tests := []struct {
		name  string
		input []byte
	}{
		{name: "header only", input: snapshotBytes("")},
		{name: "small snapshot", input: snapshotBytes("\x10\x00\x01\x01")},
		{name: "large snapshot", input: snapshotBytes(strings.Repeat("page", 20000))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sealed bytes.Buffer
			if err := s.Encrypt(bytes.NewReader(tt.input), &sealed); err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if bytes.Contains(sealed.Bytes(), []byte(snapshotMagic)) {
				t.Error("sealed archive exposes the snapshot header")
			}

			key, err := s.Unlock(passphrase)
			if err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}
			var plain bytes.Buffer
			if err := key.Decrypt(bytes.NewReader(sealed.Bytes()), &plain); err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(plain.Bytes(), tt.input) {
				t.Errorf("round trip got %d bytes, want %d", plain.Len(), len(tt.input))
			}
		})
	}
}

func TestAgeSealer_EncryptRejectsNonSnapshots(t *testing.T) {
	t.Parallel()
	s := setupSealer(t, "test-passphrase")

	for _, input := range []string{"", "hello world", "SQLite format"} {
		var sealed bytes.Buffer
		err := s.Encrypt(strings.NewReader(input), &sealed)
		if !errors.Is(err, ErrNotSnapshot) {
			t.Errorf("Encrypt(%q) error = %v, want ErrNotSnapshot", input, err)
		}
		if sealed.Len() != 0 {
			t.Errorf("Encrypt(%q) wrote %d bytes", input, sealed.Len())
		}
	}
}

func TestAgeSealer_DecryptRejectsNonSnapshots(t *testing.T) {
	t.Parallel()
	passphrase := "test-passphrase"
	s := setupSealer(t, passphrase)

	to, err := s.recipient()
	if err != nil {
		t.Fatalf("recipient() error = %v", err)
	}
	var sealed bytes.Buffer
	if err := seal(&sealed, strings.NewReader("not a database"), to); err != nil {
		t.Fatalf("seal() error = %v", err)
	}

	key, err := s.Unlock(passphrase)
	if err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	var plain bytes.Buffer
	if err := key.Decrypt(&sealed, &plain); !errors.Is(err, ErrNotSnapshot) {
		t.Errorf("Decrypt() error = %v, want ErrNotSnapshot", err)
	}
}

func TestAgeSealer_UnlockFailures(t *testing.T) {
	t.Parallel()

	t.Run("wrong passphrase", func(t *testing.T) {
		s := setupSealer(t, "correct-passphrase")
		if _, err := s.Unlock("wrong-passphrase"); err == nil {
			t.Error("Unlock() with wrong passphrase should return error")
		}
	})

	t.Run("before setup", func(t *testing.T) {
		s := newTestAgeSealer(t)
		if _, err := s.Unlock("passphrase"); err == nil {
			t.Error("Unlock() before Setup should return error")
		}
		var buf bytes.Buffer
		if err := s.Encrypt(bytes.NewReader(snapshotBytes("")), &buf); err == nil {
			t.Error("Encrypt() before Setup should return error")
		}
	})

	t.Run("keys from different pairs", func(t *testing.T) {
		a := setupSealer(t, "same")
		b := setupSealer(t, "same")
		mixed := &AgeSealer{recipientPath: b.recipientPath, identityPath: a.identityPath}
		if _, err := mixed.Unlock("same"); err == nil {
			t.Error("Unlock() accepted a private key of another pair")
		}
	})
}

func TestAgeSealer_SetupRefusals(t *testing.T) {
	t.Parallel()

	t.Run("existing keys", func(t *testing.T) {
		s := setupSealer(t, "first")
		if err := s.Setup("second"); err == nil {
			t.Fatal("second Setup() should refuse to overwrite keys")
		}
		if _, err := s.Unlock("first"); err != nil {
			t.Errorf("Unlock() with original passphrase error = %v", err)
		}
	})

	t.Run("empty passphrase", func(t *testing.T) {
		s := newTestAgeSealer(t)
		err := s.Setup("")
		var cfgErr *dsum.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("Setup(\"\") error = %v, want ConfigError", err)
		}
		if s.IsConfigured() {
			t.Error("IsConfigured() = true after rejected Setup")
		}
	})
}
