package fs

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"dsum-go/internal/dsum"
)

// Default account database locations.
const (
	PasswdPath = "/etc/passwd"
	GroupPath  = "/etc/group"
)

// FileAccountSource reads users and groups from passwd(5) and group(5)
// formatted files.
type FileAccountSource struct {
	passwd string
	group  string
}

// NewFileAccountSource reads from the given files. Empty paths select the
// platform defaults.
func NewFileAccountSource(passwd, group string) *FileAccountSource {
	if passwd == "" {
		passwd = PasswdPath
	}
	if group == "" {
		group = GroupPath
	}
	return &FileAccountSource{passwd: passwd, group: group}
}

// Users parses name:password:uid:gid:gecos:home:shell lines.
func (s *FileAccountSource) Users() ([]dsum.User, error) {
	var users []dsum.User
	err := readColonFile(s.passwd, 7, func(f []string) error {
		uid, err := strconv.ParseInt(f[2], 10, 64)
		if err != nil {
			return fmt.Errorf("bad uid %q", f[2])
		}
		gid, err := strconv.ParseInt(f[3], 10, 64)
		if err != nil {
			return fmt.Errorf("bad gid %q", f[3])
		}
		users = append(users, dsum.User{UID: uid, Name: f[0], PrimaryGID: gid, Gecos: f[4], Shell: f[6]})
		return nil
	})
	return users, err
}

// Groups parses name:password:gid:member,member lines.
func (s *FileAccountSource) Groups() ([]dsum.Group, error) {
	var groups []dsum.Group
	err := readColonFile(s.group, 4, func(f []string) error {
		gid, err := strconv.ParseInt(f[2], 10, 64)
		if err != nil {
			return fmt.Errorf("bad gid %q", f[2])
		}
		g := dsum.Group{GID: gid, Name: f[0]}
		for _, m := range strings.Split(f[3], ",") {
			if m = strings.TrimSpace(m); m != "" {
				g.Members = append(g.Members, m)
			}
		}
		groups = append(groups, g)
		return nil
	})
	return groups, err
}

// readColonFile calls fn for every non-comment line with at least n fields.
// Malformed lines are skipped; the first one is reported after the rest of
// the file has been read.
func readColonFile(path string, n int, fn func([]string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return parseColonLines(f, path, n, fn)
}

func parseColonLines(r io.Reader, name string, n int, fn func([]string) error) error {
	var firstErr error
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.SplitN(text, ":", n)
		if len(fields) < n {
			if firstErr == nil {
				firstErr = fmt.Errorf("%s:%d: want %d fields", name, line, n)
			}
			continue
		}
		if err := fn(fields); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("%s:%d: %w", name, line, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	return firstErr
}

var _ dsum.AccountSource = (*FileAccountSource)(nil)
