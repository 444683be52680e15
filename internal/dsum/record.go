package dsum

import "io/fs"

// FileType is the single-letter object type stored in a snapshot.
type FileType byte

const (
	TypeRegular     FileType = 'r'
	TypeDirectory   FileType = 'd'
	TypeSymlink     FileType = 'l'
	TypeCharDevice  FileType = 'c'
	TypeBlockDevice FileType = 'b'
	TypeFIFO        FileType = 'f'
	TypeSocket      FileType = 's'
	TypeUnknown     FileType = 'u'
)

// FileTypes lists every type in the order of the ftype2lab table.
var FileTypes = []FileType{
	TypeRegular, TypeDirectory, TypeSymlink, TypeCharDevice,
	TypeBlockDevice, TypeFIFO, TypeSocket, TypeUnknown,
}

// FileTypeFromMode maps an lstat mode to a FileType.
func FileTypeFromMode(m fs.FileMode) FileType {
	switch {
	case m.IsRegular():
		return TypeRegular
	case m.IsDir():
		return TypeDirectory
	case m&fs.ModeSymlink != 0:
		return TypeSymlink
	case m&fs.ModeDevice != 0 && m&fs.ModeCharDevice != 0:
		return TypeCharDevice
	case m&fs.ModeDevice != 0:
		return TypeBlockDevice
	case m&fs.ModeNamedPipe != 0:
		return TypeFIFO
	case m&fs.ModeSocket != 0:
		return TypeSocket
	default:
		return TypeUnknown
	}
}

// ParseFileType converts a stored type letter back to a FileType.
// Unrecognized letters map to TypeUnknown.
func ParseFileType(s string) FileType {
	if len(s) != 1 {
		return TypeUnknown
	}
	for _, t := range FileTypes {
		if byte(t) == s[0] {
			return t
		}
	}
	return TypeUnknown
}

func (t FileType) String() string { return string(rune(t)) }

// Label returns the human readable name used in reports.
func (t FileType) Label() string {
	switch t {
	case TypeRegular:
		return "Regular File"
	case TypeDirectory:
		return "Directory"
	case TypeSymlink:
		return "Symbolic Link"
	case TypeCharDevice:
		return "Character Special"
	case TypeBlockDevice:
		return "Block Special"
	case TypeFIFO:
		return "FIFO"
	case TypeSocket:
		return "Socket"
	default:
		return "Unknown Type"
	}
}

// Stat is the platform stat data the walker needs for one entry.
type Stat struct {
	Mode      fs.FileMode
	RawMode   uint32
	Size      int64
	UID       int64
	GID       int64
	Device    int64
	Blocks    int64
	BlockSize int64
	Atime     int64
	Mtime     int64
	Ctime     int64
}

// Record is one filesystem object in a snapshot. Records live in a flat
// arena indexed by ID; ParentID, Left and Right replace pointers between them.
type Record struct {
	ID        int64
	ParentID  int64
	Left      int64
	Right     int64
	Depth     int
	UID       int64
	GID       int64
	DeviceID  int64
	Type      FileType
	Mode      uint32
	Name      string
	Extension string
	Size      int64
	Blocks    int64
	BlockSize int64
	Atime     int64
	Mtime     int64
	Ctime     int64

	// Fingerprint is the content digest for regular files, the relative
	// path for directories, the link target for symlinks and empty otherwise.
	Fingerprint string

	// RelPath is the path below the scan root: "" for the root itself and
	// "/a/b" for descendants. Readers fill it from the annotated view,
	// where the root is reported as "/".
	RelPath string

	// Path is the on-disk location. Only set during a scan.
	Path string

	// Incomplete marks a directory whose listing failed.
	Incomplete bool

	// OwnerName and GroupName are filled by readers from the account tables.
	OwnerName string
	GroupName string
}

// IsRoot reports whether r is the scan root (its own parent).
func (r *Record) IsRoot() bool { return r.ParentID == r.ID }

// Contains reports whether other lies strictly inside r's subtree.
func (r *Record) Contains(other *Record) bool {
	return r.Left < other.Left && other.Right < r.Right
}

// SubtreeSize returns the number of records below r.
func (r *Record) SubtreeSize() int64 { return (r.Right - r.Left - 1) / 2 }

// FileEntry is the part of a regular-file record used for reuse decisions
// and comparisons, keyed by relative path.
type FileEntry struct {
	RelPath     string
	Size        int64
	Mtime       int64
	Ctime       int64
	Fingerprint string
}

// Features are the optional-column flags fixed when a snapshot is created.
type Features struct {
	Blocks    bool
	Device    bool
	Extension bool
}

// DefaultFeatures stores the extension column only.
func DefaultFeatures() Features {
	return Features{Extension: true}
}

// User is one entry of the platform account database.
type User struct {
	UID        int64
	Name       string
	PrimaryGID int64
	Shell      string
	Gecos      string
}

// Group is one entry of the platform group database.
type Group struct {
	GID     int64
	Name    string
	Members []string
}
