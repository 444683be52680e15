package encryption

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"

	"dsum-go/internal/config"
	"dsum-go/internal/dsum"
)

// snapshotMagic opens every SQLite file, and so every snapshot.
const snapshotMagic = "SQLite format 3\x00"

// ErrNotSnapshot is returned when the data to seal, or the data recovered
// from an archive, is not a SQLite snapshot.
var ErrNotSnapshot = errors.New("data is not a snapshot")

// AgeSealer seals archived snapshots to an X25519 recipient. The
// recipient file is plaintext. The identity file is itself sealed with a
// passphrase (age scrypt) and names the recipient it belongs to.
type AgeSealer struct {
	recipientPath string
	identityPath  string
}

var _ dsum.Encryptor = (*AgeSealer)(nil)

// NewAgeSealer returns a sealer over the key files named in cfg.
func NewAgeSealer(cfg config.EncryptionConfig) *AgeSealer {
	return &AgeSealer{recipientPath: cfg.PublicKeyPath, identityPath: cfg.PrivateKeyPath}
}

// Setup creates the key pair. Existing key files are never replaced, since
// snapshots already archived would become unreadable.
func (s *AgeSealer) Setup(passphrase string) error {
	if passphrase == "" {
		return dsum.NewConfigError("passphrase must not be empty")
	}
	for _, p := range []string{s.recipientPath, s.identityPath} {
		if _, err := os.Stat(p); err == nil {
			return fmt.Errorf("key file already exists: %s", p)
		}
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}
	pub := id.Recipient().String()

	lock, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("deriving passphrase key: %w", err)
	}
	var identityFile bytes.Buffer
	body := fmt.Sprintf("# dsum archive key\n# public key: %s\n%s\n", pub, id)
	if err := seal(&identityFile, strings.NewReader(body), lock); err != nil {
		return fmt.Errorf("sealing private key: %w", err)
	}

	if err := placeFile(s.recipientPath, []byte(pub+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	if err := placeFile(s.identityPath, identityFile.Bytes(), 0600); err != nil {
		os.Remove(s.recipientPath)
		return fmt.Errorf("writing private key: %w", err)
	}
	return nil
}

// Encrypt seals the snapshot read from r to the stored public key.
func (s *AgeSealer) Encrypt(r io.Reader, w io.Writer) error {
	to, err := s.recipient()
	if err != nil {
		return err
	}
	src, err := snapshotReader(r)
	if err != nil {
		return err
	}
	if err := seal(w, src, to); err != nil {
		return fmt.Errorf("sealing snapshot: %w", err)
	}
	return nil
}

// Unlock opens the private key with passphrase. The key must belong to
// the stored public key.
func (s *AgeSealer) Unlock(passphrase string) (dsum.DecryptionContext, error) {
	sealed, err := os.ReadFile(s.identityPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	lock, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("deriving passphrase key: %w", err)
	}
	var plain bytes.Buffer
	if err := open(&plain, bytes.NewReader(sealed), lock); err != nil {
		return nil, fmt.Errorf("decrypting private key (wrong passphrase?): %w", err)
	}

	ids, err := age.ParseIdentities(&plain)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	id, ok := ids[0].(*age.X25519Identity)
	if !ok {
		return nil, fmt.Errorf("private key is not an X25519 key")
	}
	to, err := s.recipient()
	if err != nil {
		return nil, err
	}
	if to.String() != id.Recipient().String() {
		return nil, fmt.Errorf("private key %s does not match public key %s", s.identityPath, s.recipientPath)
	}
	return &ageArchiveKey{id: id}, nil
}

// IsConfigured reports whether both key files exist.
func (s *AgeSealer) IsConfigured() bool {
	for _, p := range []string{s.recipientPath, s.identityPath} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

func (s *AgeSealer) recipient() (*age.X25519Recipient, error) {
	data, err := os.ReadFile(s.recipientPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	to, err := age.ParseX25519Recipient(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("parsing public key %s: %w", s.recipientPath, err)
	}
	return to, nil
}

// ageArchiveKey is an unlocked identity. Only snapshots come out of it.
type ageArchiveKey struct {
	id age.Identity
}

func (k *ageArchiveKey) Decrypt(r io.Reader, w io.Writer) error {
	plain, err := age.Decrypt(r, k.id)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	src, err := snapshotReader(plain)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		return fmt.Errorf("decrypting snapshot: %w", err)
	}
	return nil
}

// snapshotReader checks the SQLite header of r without consuming it.
func snapshotReader(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(snapshotMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("reading snapshot header: %w", err)
	}
	if string(head) != snapshotMagic {
		return nil, ErrNotSnapshot
	}
	return br, nil
}

func seal(w io.Writer, r io.Reader, to age.Recipient) error {
	aw, err := age.Encrypt(w, to)
	if err != nil {
		return err
	}
	if _, err := io.Copy(aw, r); err != nil {
		return err
	}
	return aw.Close()
}

func open(w io.Writer, r io.Reader, id age.Identity) error {
	ar, err := age.Decrypt(r, id)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, ar)
	return err
}

// placeFile writes data next to path and renames it into place.
func placeFile(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	partial := path + ".partial"
	if err := os.WriteFile(partial, data, perm); err != nil {
		return err
	}
	if err := os.Rename(partial, path); err != nil {
		os.Remove(partial)
		return err
	}
	return nil
}
