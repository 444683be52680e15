//go:build !linux

package fs

import (
	"io/fs"

	"dsum-go/internal/dsum"
)

// statFromInfo fills what the portable FileInfo offers. Owner, device and
// block data stay zero; access and change times fall back to mtime.
func statFromInfo(info fs.FileInfo) *dsum.Stat {
	mtime := info.ModTime().Unix()
	return &dsum.Stat{
		Mode:    info.Mode(),
		RawMode: uint32(info.Mode().Perm()),
		Size:    info.Size(),
		Atime:   mtime,
		Mtime:   mtime,
		Ctime:   mtime,
	}
}
