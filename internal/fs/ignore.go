package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dsum-go/internal/dsum"
)

// IgnoreFileName is the per-tree ignore file read from the scan root.
const IgnoreFileName = ".dsumignore"

// defaultIgnorePatterns are always applied regardless of config or .dsumignore.
var defaultIgnorePatterns = []string{IgnoreFileName}

// ignorePattern is a parsed ignore pattern with its matching strategy.
type ignorePattern struct {
	pattern   string
	matchPath bool // true = match against relative path; false = match against basename only
}

// IgnoreMatcher checks paths below the scan root against ignore patterns.
// Patterns without '/' match against the basename only.
// Patterns with '/' match against the full relative path from the scan root.
type IgnoreMatcher struct {
	patterns []ignorePattern
	exact    map[string]bool
}

// NewIgnoreMatcher creates an IgnoreMatcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(rawPatterns []string) *IgnoreMatcher {
	var patterns []ignorePattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		patterns = append(patterns, ignorePattern{
			pattern:   strings.TrimPrefix(raw, "/"),
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &IgnoreMatcher{patterns: patterns, exact: make(map[string]bool)}
}

// LoadIgnoreMatcher combines the default patterns, configured patterns and
// the root's .dsumignore file.
func LoadIgnoreMatcher(root string, configured []string) (*IgnoreMatcher, error) {
	fromFile, err := ParseIgnoreFile(filepath.Join(root, IgnoreFileName))
	if err != nil {
		return nil, err
	}
	all := make([]string, 0, len(defaultIgnorePatterns)+len(configured)+len(fromFile))
	all = append(all, defaultIgnorePatterns...)
	all = append(all, configured...)
	all = append(all, fromFile...)
	return NewIgnoreMatcher(all), nil
}

// Exclude ignores exactly one relative path, such as the convention
// directory at the scan root.
func (m *IgnoreMatcher) Exclude(rel string) {
	m.exact[filepath.ToSlash(strings.TrimPrefix(rel, "/"))] = true
}

// Match reports whether the given relative path should be ignored.
// relativePath is relative to the scan root.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	normalized := strings.TrimPrefix(filepath.ToSlash(relativePath), "/")
	if m.exact[normalized] {
		return true
	}
	if len(m.patterns) == 0 {
		return false
	}
	basename := filepath.Base(relativePath)

	for _, p := range m.patterns {
		var matched bool
		var err error
		if p.matchPath {
			matched, err = filepath.Match(p.pattern, normalized)
		} else {
			matched, err = filepath.Match(p.pattern, basename)
		}
		if err != nil {
			// Bad pattern: skip rather than crash.
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// ParseIgnoreFile reads an ignore file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return patterns, nil
}

var _ dsum.Matcher = (*IgnoreMatcher)(nil)
