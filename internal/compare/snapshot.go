// Package compare joins two snapshots by short name, classifies the
// differences per column and groups byte-identical files.
package compare

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"dsum-go/internal/dsum"
)

// Snapshot is the in-memory index of one side of a comparison. Only
// regular files are loaded.
type Snapshot struct {
	Path   string
	Scheme string
	Prefix string

	files  map[string]dsum.FileEntry
	paths  []string
	byHash map[string][]string
	byName map[string]string
}

// Load reads the regular files of an open snapshot.
func Load(path string, r dsum.SnapshotReader, computePrefix bool) (*Snapshot, error) {
	meta, err := r.Meta()
	if err != nil {
		return nil, fmt.Errorf("reading metadata of %s: %w", path, err)
	}
	entries, err := r.RegularFiles()
	if err != nil {
		return nil, fmt.Errorf("reading files of %s: %w", path, err)
	}
	return NewSnapshot(path, meta[dsum.MetaChecksum], entries, computePrefix), nil
}

// NewSnapshot indexes entries by relative path and by fingerprint.
func NewSnapshot(path, scheme string, entries []dsum.FileEntry, computePrefix bool) *Snapshot {
	s := &Snapshot{
		Path:   path,
		Scheme: scheme,
		files:  make(map[string]dsum.FileEntry, len(entries)),
		byHash: make(map[string][]string),
	}
	first := true
	for _, e := range entries {
		if _, dup := s.files[e.RelPath]; dup {
			continue
		}
		s.files[e.RelPath] = e
		s.paths = append(s.paths, e.RelPath)
		s.byHash[e.Fingerprint] = append(s.byHash[e.Fingerprint], e.RelPath)
		if computePrefix {
			if first {
				s.Prefix = e.RelPath
				first = false
			} else {
				s.Prefix = shrinkPrefix(s.Prefix, e.RelPath)
			}
		}
	}
	sort.Strings(s.paths)
	for _, names := range s.byHash {
		sort.Strings(names)
	}
	s.byName = make(map[string]string, len(s.paths))
	for _, rel := range s.paths {
		name := s.ShortName(rel)
		if _, taken := s.byName[name]; !taken {
			s.byName[name] = rel
		}
	}
	return s
}

// shrinkPrefix shortens prefix until name starts with it.
func shrinkPrefix(prefix, name string) string {
	for j := min(len(prefix), len(name)); j >= 0; j-- {
		if strings.HasPrefix(prefix, name[:j]) {
			prefix = name[:j]
			break
		}
	}
	for prefix != "" && !utf8.ValidString(prefix) {
		prefix = prefix[:len(prefix)-1]
	}
	return prefix
}

// Len returns the number of regular files.
func (s *Snapshot) Len() int { return len(s.paths) }

// Paths returns the relative paths in sorted order.
func (s *Snapshot) Paths() []string { return s.paths }

// Lookup returns the entry for a relative path.
func (s *Snapshot) Lookup(rel string) (dsum.FileEntry, bool) {
	e, ok := s.files[rel]
	return e, ok
}

// LookupName returns the relative path and entry stored under a short
// name.
func (s *Snapshot) LookupName(name string) (string, dsum.FileEntry, bool) {
	rel, ok := s.byName[name]
	if !ok {
		return "", dsum.FileEntry{}, false
	}
	e, ok := s.Lookup(rel)
	return rel, e, ok
}

// WithHash returns the sorted paths whose fingerprint is hash.
func (s *Snapshot) WithHash(hash string) []string { return s.byHash[hash] }

// ShortName returns rel without the side's common prefix. A path that
// would become empty is returned whole.
func (s *Snapshot) ShortName(rel string) string {
	if short := strings.TrimPrefix(rel, s.Prefix); short != "" {
		return short
	}
	return rel
}
