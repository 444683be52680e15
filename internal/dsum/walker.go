package dsum

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Tree is the arena produced by one walk. Records[i].ID == i, and the root
// is always Records[0].
type Tree struct {
	Root    string
	Records []Record
}

// Walker performs one depth-first traversal of a directory tree and assigns
// nested-set coordinates. Symlinks are recorded as leaves and never followed.
type Walker struct {
	fsmgr  FilesystemManager
	ignore Matcher
}

// NewWalker creates a Walker. ignore may be nil.
func NewWalker(fsmgr FilesystemManager, ignore Matcher) *Walker {
	return &Walker{fsmgr: fsmgr, ignore: ignore}
}

// Walk scans root. Failures on individual entries are recorded in sc and do
// not stop the walk; only a failure to stat the root itself is returned.
func (w *Walker) Walk(sc *ScanContext, root string) (*Tree, error) {
	st, err := w.fsmgr.Lstat(root)
	if err != nil {
		return nil, fmt.Errorf("stat scan root: %w", err)
	}
	if FileTypeFromMode(st.Mode) != TypeDirectory {
		return nil, NewConfigError("scan root is not a directory: %s", root)
	}

	tree := &Tree{Root: root}
	w.visit(sc, tree, st, root, "", filepath.Base(root), -1, 0)
	return tree, nil
}

// visit appends the record for path, then its subtree. The counter ticks
// once before the entry (Left) and once after its whole subtree (Right).
func (w *Walker) visit(sc *ScanContext, tree *Tree, st *Stat, path, rel, name string, parentID int64, depth int) {
	id := int64(len(tree.Records))
	if parentID < 0 {
		parentID = id
	}

	rec := Record{
		ID:        id,
		ParentID:  parentID,
		Left:      sc.tick(),
		Depth:     depth,
		UID:       st.UID,
		GID:       st.GID,
		DeviceID:  st.Device,
		Type:      FileTypeFromMode(st.Mode),
		Mode:      st.RawMode,
		Name:      name,
		Size:      st.Size,
		Blocks:    st.Blocks,
		BlockSize: st.BlockSize,
		Atime:     st.Atime,
		Mtime:     st.Mtime,
		Ctime:     st.Ctime,
		RelPath:   rel,
		Path:      path,
	}
	tree.Records = append(tree.Records, rec)
	sc.walkedEntry(rec.Type == TypeDirectory)

	if rec.Type == TypeDirectory {
		sc.directoryVisited(path)
		names, err := w.fsmgr.ReadDir(path)
		if err != nil {
			tree.Records[id].Incomplete = true
			sc.AddError(id, path, "Failed to scan directory", err)
		}
		for _, child := range names {
			if child == "." || child == ".." {
				continue
			}
			childRel := rel + "/" + child
			if w.ignore != nil && w.ignore.Match(strings.TrimPrefix(childRel, "/")) {
				continue
			}
			childPath := filepath.Join(path, child)
			cst, err := w.fsmgr.Lstat(childPath)
			if err != nil {
				sc.AddError(UnknownID, childPath, "Failed to stat entry", err)
				continue
			}
			w.visit(sc, tree, cst, childPath, childRel, child, id, depth+1)
		}
	}

	tree.Records[id].Right = sc.tick()
}
