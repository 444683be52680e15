package dsum

import "io"

// FilesystemManager provides the filesystem calls the scanner makes.
// It abstracts file access to enable testing without touching the real filesystem.
type FilesystemManager interface {
	// Lstat returns stat data for path without following a final symlink.
	Lstat(path string) (*Stat, error)

	// ReadDir returns the entry names of a directory in platform listing order.
	ReadDir(path string) ([]string, error)

	// Readlink returns the target text of a symlink.
	Readlink(path string) (string, error)

	// Open opens a file for reading.
	Open(path string) (io.ReadCloser, error)
}

// Matcher decides whether a path below the scan root is excluded from the walk.
// rel uses forward slashes and has no leading separator.
type Matcher interface {
	Match(rel string) bool
}

// AccountSource enumerates the platform user and group databases.
type AccountSource interface {
	Users() ([]User, error)
	Groups() ([]Group, error)
}

// Digester computes a content fingerprint for one regular file.
type Digester interface {
	// Scheme returns the identifier recorded in snapshot metadata.
	Scheme() string

	// Fingerprint returns the fingerprint for the file at path.
	Fingerprint(path string) (string, error)
}
