// Package digest computes content fingerprints for regular files.
package digest

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"path/filepath"
	"strings"

	"dsum-go/internal/dsum"
)

// Scheme identifies a fingerprint algorithm or its non-content substitute.
type Scheme string

const (
	SHA256    Scheme = "sha256"
	SHA1      Scheme = "sha1"
	MD5       Scheme = "md5"
	Partial1K Scheme = "1k"   // SHA-256 of the first KiB only
	Name      Scheme = "name" // the file's base name
	Nil       Scheme = "nil"  // always empty
)

// Skip is recorded for regular files below /dev/, which are never read.
const Skip = "SKIP"

// partialSize is the number of bytes read by the Partial1K scheme.
const partialSize = 1024

// Schemes lists every supported scheme.
var Schemes = []Scheme{SHA256, SHA1, MD5, Partial1K, Name, Nil}

// ParseScheme accepts a scheme name case-insensitively, with or without the
// legacy "csum_" prefix.
func ParseScheme(s string) (Scheme, error) {
	name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "csum_")
	for _, sc := range Schemes {
		if string(sc) == name {
			return sc, nil
		}
	}
	return "", dsum.NewConfigError("unknown checksum scheme %q", s)
}

// ContentAddressed reports whether equal fingerprints imply equal content.
// Only full-file strong hashes qualify.
func (s Scheme) ContentAddressed() bool {
	switch s {
	case SHA256, SHA1, MD5:
		return true
	default:
		return false
	}
}

// Comparable reports whether fingerprints from schemes a and b can be
// compared for content equality.
func Comparable(a, b string) bool {
	sa, err := ParseScheme(a)
	if err != nil {
		return false
	}
	sb, err := ParseScheme(b)
	if err != nil {
		return false
	}
	return sa == sb && sa.ContentAddressed()
}

func (s Scheme) newHash() hash.Hash {
	switch s {
	case SHA1:
		return sha1.New()
	case MD5:
		return md5.New()
	default:
		return sha256.New()
	}
}

// Opener opens files for reading.
type Opener interface {
	Open(path string) (io.ReadCloser, error)
}

// Provider computes fingerprints with one scheme.
type Provider struct {
	scheme Scheme
	opener Opener
}

// NewProvider creates a Provider reading files through opener.
func NewProvider(scheme Scheme, opener Opener) *Provider {
	return &Provider{scheme: scheme, opener: opener}
}

// Scheme returns the identifier recorded in snapshot metadata.
func (p *Provider) Scheme() string { return string(p.scheme) }

// Fingerprint returns the fingerprint of the file at path.
func (p *Provider) Fingerprint(path string) (string, error) {
	if strings.HasPrefix(path, "/dev/") {
		return Skip, nil
	}
	switch p.scheme {
	case Nil:
		return "", nil
	case Name:
		return filepath.Base(path), nil
	}

	f, err := p.opener.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if p.scheme == Partial1K {
		r = io.LimitReader(f, partialSize)
	}
	h := p.scheme.newHash()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("reading file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

var _ dsum.Digester = (*Provider)(nil)
