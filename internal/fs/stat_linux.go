//go:build linux

package fs

import (
	"io/fs"
	"syscall"

	"dsum-go/internal/dsum"
)

// statFromInfo fills the scanner's stat data from the raw Linux stat.
func statFromInfo(info fs.FileInfo) *dsum.Stat {
	st := &dsum.Stat{
		Mode:  info.Mode(),
		Size:  info.Size(),
		Mtime: info.ModTime().Unix(),
	}
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		st.Atime, st.Ctime = st.Mtime, st.Mtime
		return st
	}
	st.RawMode = sys.Mode
	st.UID = int64(sys.Uid)
	st.GID = int64(sys.Gid)
	st.Device = int64(sys.Dev)
	st.Blocks = int64(sys.Blocks)
	st.BlockSize = int64(sys.Blksize)
	st.Atime = int64(sys.Atim.Sec)
	st.Mtime = int64(sys.Mtim.Sec)
	st.Ctime = int64(sys.Ctim.Sec)
	return st
}
