package dsum

import "io"

// Vault is an archive for snapshot files.
// All operations stream so large snapshots are never held in memory.
type Vault interface {
	// PutSnapshot stores a snapshot under name, replacing any previous copy.
	// size is the number of bytes that will be read from r.
	PutSnapshot(name string, r io.Reader, size int64) error

	// GetSnapshot writes the archived snapshot to w.
	GetSnapshot(name string, w io.Writer) error

	// ListSnapshots returns archived names in sorted order.
	ListSnapshots() ([]string, error)

	// ValidateSetup verifies that the vault is accessible and properly configured.
	ValidateSetup() error
}
