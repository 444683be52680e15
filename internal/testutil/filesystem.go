package testutil

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"dsum-go/internal/digest"
	"dsum-go/internal/dsum"
)

// DefaultTime is the mtime, ctime and atime given to new mock entries.
const DefaultTime int64 = 1705314600

// MockFile represents an entry in the mock filesystem.
type MockFile struct {
	Content []byte
	Size    int64
	Mode    fs.FileMode // type bits and permissions
	Target  string      // symlink target
	UID     int64
	GID     int64
	Mtime   int64
	Ctime   int64
	Atime   int64
}

// MockFilesystemManager is an in-memory filesystem for testing. Paths are
// slash separated and absolute. Parent directories are created on demand.
type MockFilesystemManager struct {
	mu    sync.Mutex
	files map[string]*MockFile

	lstatErr   map[string]error
	readDirErr map[string]error
	openErr    map[string]error
	readlinkEr map[string]error

	opened map[string]int
}

// NewMockFilesystemManager creates a mock filesystem containing only "/".
func NewMockFilesystemManager() *MockFilesystemManager {
	m := &MockFilesystemManager{
		files:      make(map[string]*MockFile),
		lstatErr:   make(map[string]error),
		readDirErr: make(map[string]error),
		openErr:    make(map[string]error),
		readlinkEr: make(map[string]error),
		opened:     make(map[string]int),
	}
	m.files["/"] = newEntry(fs.ModeDir | 0755)
	return m
}

func newEntry(mode fs.FileMode) *MockFile {
	return &MockFile{Mode: mode, UID: 1000, GID: 1000, Mtime: DefaultTime, Ctime: DefaultTime, Atime: DefaultTime}
}

// AddDirectory adds a directory and any missing parents.
func (m *MockFilesystemManager) AddDirectory(p string) *MockFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mkdirAll(path.Clean(p))
}

func (m *MockFilesystemManager) mkdirAll(p string) *MockFile {
	if f, ok := m.files[p]; ok {
		return f
	}
	m.mkdirAll(path.Dir(p))
	f := newEntry(fs.ModeDir | 0755)
	m.files[p] = f
	return f
}

// AddFile adds a regular file, replacing any previous entry at p.
func (m *MockFilesystemManager) AddFile(p string, content []byte) *MockFile {
	f := newEntry(0644)
	f.Content = content
	f.Size = int64(len(content))
	return m.put(p, f)
}

// AddSymlink adds a symbolic link pointing at target.
func (m *MockFilesystemManager) AddSymlink(p, target string) *MockFile {
	f := newEntry(fs.ModeSymlink | 0777)
	f.Target = target
	f.Size = int64(len(target))
	return m.put(p, f)
}

// AddSpecial adds a non-regular entry such as a FIFO or device.
func (m *MockFilesystemManager) AddSpecial(p string, mode fs.FileMode) *MockFile {
	return m.put(p, newEntry(mode))
}

func (m *MockFilesystemManager) put(p string, f *MockFile) *MockFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = path.Clean(p)
	m.mkdirAll(path.Dir(p))
	m.files[p] = f
	return f
}

// Touch replaces a file's content and sets its mtime and ctime.
func (m *MockFilesystemManager) Touch(p string, content []byte, t int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path.Clean(p)]
	if !ok {
		panic("testutil: Touch on missing file " + p)
	}
	f.Content = content
	f.Size = int64(len(content))
	f.Mtime, f.Ctime = t, t
}

// Remove deletes p and everything below it.
func (m *MockFilesystemManager) Remove(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = path.Clean(p)
	for k := range m.files {
		if k == p || strings.HasPrefix(k, p+"/") {
			delete(m.files, k)
		}
	}
}

// FailLstat makes Lstat of p return err.
func (m *MockFilesystemManager) FailLstat(p string, err error) { m.fail(m.lstatErr, p, err) }

// FailReadDir makes ReadDir of p return err.
func (m *MockFilesystemManager) FailReadDir(p string, err error) { m.fail(m.readDirErr, p, err) }

// FailOpen makes Open of p return err.
func (m *MockFilesystemManager) FailOpen(p string, err error) { m.fail(m.openErr, p, err) }

// FailReadlink makes Readlink of p return err.
func (m *MockFilesystemManager) FailReadlink(p string, err error) { m.fail(m.readlinkEr, p, err) }

func (m *MockFilesystemManager) fail(set map[string]error, p string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set[path.Clean(p)] = err
}

// OpenCount returns how many times p was opened for reading.
func (m *MockFilesystemManager) OpenCount(p string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened[path.Clean(p)]
}

// TotalOpens returns the number of files opened so far.
func (m *MockFilesystemManager) TotalOpens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.opened {
		n += c
	}
	return n
}

func (m *MockFilesystemManager) lookup(p string, errs map[string]error) (*MockFile, error) {
	p = path.Clean(p)
	if err := errs[p]; err != nil {
		return nil, err
	}
	f, ok := m.files[p]
	if !ok {
		return nil, &fs.PathError{Op: "lstat", Path: p, Err: fs.ErrNotExist}
	}
	return f, nil
}

func (m *MockFilesystemManager) Lstat(p string) (*dsum.Stat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.lookup(p, m.lstatErr)
	if err != nil {
		return nil, err
	}
	return &dsum.Stat{
		Mode:      f.Mode,
		RawMode:   uint32(f.Mode.Perm()),
		Size:      f.Size,
		UID:       f.UID,
		GID:       f.GID,
		Device:    42,
		Blocks:    (f.Size + 511) / 512,
		BlockSize: 4096,
		Atime:     f.Atime,
		Mtime:     f.Mtime,
		Ctime:     f.Ctime,
	}, nil
}

// ReadDir lists direct children in sorted order.
func (m *MockFilesystemManager) ReadDir(p string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.lookup(p, m.readDirErr)
	if err != nil {
		return nil, err
	}
	if !f.Mode.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", p)
	}
	p = path.Clean(p)
	var names []string
	for k := range m.files {
		if k != p && path.Dir(k) == p {
			names = append(names, path.Base(k))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *MockFilesystemManager) Readlink(p string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.lookup(p, m.readlinkEr)
	if err != nil {
		return "", err
	}
	if f.Mode&fs.ModeSymlink == 0 {
		return "", fmt.Errorf("not a symlink: %s", p)
	}
	return f.Target, nil
}

func (m *MockFilesystemManager) Open(p string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, err := m.lookup(p, m.openErr)
	if err != nil {
		return nil, err
	}
	if !f.Mode.IsRegular() {
		return nil, fmt.Errorf("cannot open non-regular file: %s", p)
	}
	m.opened[path.Clean(p)]++
	return io.NopCloser(bytes.NewReader(f.Content)), nil
}

// Compile-time check
var (
	_ dsum.FilesystemManager = (*MockFilesystemManager)(nil)
	_ digest.Opener          = (*MockFilesystemManager)(nil)
)
