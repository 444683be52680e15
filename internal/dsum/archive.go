package dsum

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// EncryptedSuffix marks archived snapshots sealed by an Encryptor.
const EncryptedSuffix = ".age"

// PushSnapshot copies the snapshot at path into the vault and returns the
// archived name. The snapshot is encrypted first when an Encryptor is set.
func (s *Service) PushSnapshot(path string) (string, error) {
	if s.vault == nil {
		return "", NewConfigError("no vault configured")
	}
	if err := s.vault.ValidateSetup(); err != nil {
		return "", fmt.Errorf("vault not ready: %w", err)
	}

	r, err := s.store.Open(path)
	if err != nil {
		return "", fmt.Errorf("checking snapshot: %w", err)
	}
	r.Close()

	src, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening snapshot: %w", err)
	}
	defer src.Close()

	name := filepath.Base(path)
	if s.encryptor == nil {
		info, err := src.Stat()
		if err != nil {
			return "", fmt.Errorf("stat snapshot: %w", err)
		}
		if err := s.vault.PutSnapshot(name, src, info.Size()); err != nil {
			return "", fmt.Errorf("archiving snapshot: %w", err)
		}
		s.logger.Info("snapshot archived", "name", name, "size", info.Size())
		return name, nil
	}

	if !s.encryptor.IsConfigured() {
		return "", NewConfigError("encryption keys not found, run config keys first")
	}
	sealed, err := os.CreateTemp("", "dsum-seal-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(sealed.Name())
	defer sealed.Close()

	if err := s.encryptor.Encrypt(src, sealed); err != nil {
		return "", fmt.Errorf("encrypting snapshot: %w", err)
	}
	size, err := sealed.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", fmt.Errorf("sizing encrypted snapshot: %w", err)
	}
	if _, err := sealed.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewinding encrypted snapshot: %w", err)
	}

	name += EncryptedSuffix
	if err := s.vault.PutSnapshot(name, sealed, size); err != nil {
		return "", fmt.Errorf("archiving snapshot: %w", err)
	}
	s.logger.Info("snapshot archived", "name", name, "size", size, "encrypted", true)
	return name, nil
}

// PullSnapshot restores an archived snapshot to dest. passphrase is only
// called when the archived copy is encrypted.
func (s *Service) PullSnapshot(name, dest string, passphrase func() (string, error)) error {
	if s.vault == nil {
		return NewConfigError("no vault configured")
	}
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("destination already exists: %s", dest)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".pull-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if strings.HasSuffix(name, EncryptedSuffix) {
		err = s.pullEncrypted(name, tmp, passphrase)
	} else {
		err = s.vault.GetSnapshot(name, tmp)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("placing snapshot: %w", err)
	}
	success = true
	s.logger.Info("snapshot restored", "name", name, "dest", dest)
	return nil
}

func (s *Service) pullEncrypted(name string, w io.Writer, passphrase func() (string, error)) error {
	if s.encryptor == nil {
		return NewConfigError("snapshot %s is encrypted but no encryption is configured", name)
	}
	pass, err := passphrase()
	if err != nil {
		return fmt.Errorf("reading passphrase: %w", err)
	}
	dc, err := s.encryptor.Unlock(pass)
	if err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}

	sealed, err := os.CreateTemp("", "dsum-sealed-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(sealed.Name())
	defer sealed.Close()

	if err := s.vault.GetSnapshot(name, sealed); err != nil {
		return err
	}
	if _, err := sealed.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding encrypted snapshot: %w", err)
	}
	if err := dc.Decrypt(sealed, w); err != nil {
		return fmt.Errorf("decrypting snapshot: %w", err)
	}
	return nil
}

// ListArchived returns the names held by the vault.
func (s *Service) ListArchived() ([]string, error) {
	if s.vault == nil {
		return nil, NewConfigError("no vault configured")
	}
	return s.vault.ListSnapshots()
}
