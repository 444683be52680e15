package compare

import (
	"fmt"

	"dsum-go/internal/predicate"
)

// Side identifies one of the two compared snapshots.
type Side int

const (
	Left Side = iota
	Right
)

// String returns the side marker used in reports.
func (s Side) String() string {
	if s == Left {
		return "<"
	}
	return ">"
}

// Equality is the checksum-equality class of a row.
type Equality byte

const (
	Same      Equality = '='
	Different Equality = '|'
	Unusable  Equality = '?'
	LeftOnly  Equality = '<'
	RightOnly Equality = '>'
)

// Placeholders shown when fingerprints cannot be compared.
const (
	CountPlaceholder = "???"
	HashPlaceholder  = "????"
)

// Row is one comparison row, keyed by short name.
type Row struct {
	Path       string // relative path on the originating side
	Name       string // short name, the join key
	Origin     Side
	Present    [2]bool
	Equality   Equality
	Counts     [2]int
	HashUsable bool
	Ctime      string
	Mtime      string
	Size       string
	Hash       string // origin side fingerprint
	Duplicates []Duplicate
}

// Column materializes a report column.
func (r *Row) Column(c predicate.Column) string {
	switch c {
	case predicate.ColLeftCount:
		return r.count(Left)
	case predicate.ColRightCount:
		return r.count(Right)
	case predicate.ColHash:
		return string(r.Equality)
	case predicate.ColCtime:
		return r.Ctime
	case predicate.ColMtime:
		return r.Mtime
	case predicate.ColSize:
		return r.Size
	case predicate.ColChecksum:
		if !r.HashUsable {
			return HashPlaceholder
		}
		return r.Hash
	case predicate.ColName:
		return r.Name
	}
	return ""
}

func (r *Row) count(s Side) string {
	if !r.HashUsable {
		return CountPlaceholder
	}
	return fmt.Sprintf("%03d", r.Counts[s])
}

var _ predicate.Row = (*Row)(nil)
