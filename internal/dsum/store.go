package dsum

// SnapshotStore creates and opens snapshot files.
type SnapshotStore interface {
	// Create starts a new snapshot at path. Nothing is visible at path
	// until the returned writer commits.
	Create(path string, features Features) (SnapshotWriter, error)

	// Open opens an existing snapshot for reading.
	Open(path string) (SnapshotReader, error)
}

// SnapshotWriter accumulates one snapshot inside a single transaction.
type SnapshotWriter interface {
	PutMeta(key, value string) error
	PutUser(u User) error
	PutGroup(g Group) error
	PutMembership(gid, uid int64) error
	PutRecord(r *Record) error
	PutError(e *ScanIOError) error

	// Commit makes the snapshot durable and visible at its final path.
	Commit() error

	// Abort discards everything written so far. It is safe to call after Commit.
	Abort() error
}

// SnapshotReader gives read access to a committed snapshot.
type SnapshotReader interface {
	Meta() (map[string]string, error)
	Features() Features
	RegularFiles() ([]FileEntry, error)
	Records() ([]Record, error)
	Errors() ([]ScanIOError, error)
	Close() error
}
