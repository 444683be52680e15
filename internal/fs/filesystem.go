// Package fs is the real-filesystem side of the scanner: lstat, directory
// listing, link reading, ignore patterns and the account databases.
package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"dsum-go/internal/digest"
	"dsum-go/internal/dsum"
)

// OSFilesystemManager is the real filesystem implementation of FilesystemManager.
type OSFilesystemManager struct{}

// NewOSFilesystemManager creates a new filesystem manager that operates on the real filesystem.
func NewOSFilesystemManager() *OSFilesystemManager {
	return &OSFilesystemManager{}
}

// ResolveRoot turns a scan root argument into an absolute, symlink-free
// directory path.
func (m *OSFilesystemManager) ResolveRoot(rawPath string) (string, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", fmt.Errorf("resolving absolute path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return "", fmt.Errorf("resolving symlinks: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("stat path: %w", err)
	}
	if !info.IsDir() {
		return "", dsum.NewConfigError("scan root is not a directory: %s", resolved)
	}
	return resolved, nil
}

// Lstat returns stat data without following a final symlink.
func (m *OSFilesystemManager) Lstat(path string) (*dsum.Stat, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return nil, err
	}
	return statFromInfo(info), nil
}

// ReadDir returns entry names in the order the platform lists them.
func (m *OSFilesystemManager) ReadDir(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Readdirnames(-1)
}

// Readlink returns a symlink's target text.
func (m *OSFilesystemManager) Readlink(path string) (string, error) {
	return os.Readlink(path)
}

// Open opens a file for reading.
func (m *OSFilesystemManager) Open(path string) (io.ReadCloser, error) {
	return os.Open(path)
}

// Compile-time checks that OSFilesystemManager serves the scanner and the digest provider
var (
	_ dsum.FilesystemManager = (*OSFilesystemManager)(nil)
	_ digest.Opener          = (*OSFilesystemManager)(nil)
)
