package dsum_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"dsum-go/internal/dsum"
	"dsum-go/internal/testutil"
)

type prefixMatcher string

func (p prefixMatcher) Match(rel string) bool { return strings.HasPrefix(rel, string(p)) }

func walk(t *testing.T, fsm *testutil.MockFilesystemManager, ignore dsum.Matcher) (*dsum.Tree, *dsum.ScanContext) {
	t.Helper()
	sc := dsum.NewScanContext(0, nil, nil, nil)
	tree, err := dsum.NewWalker(fsm, ignore).Walk(sc, "/r")
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	return tree, sc
}

func TestWalker_Coordinates(t *testing.T) {
	fsm := testutil.NewMockFilesystemManager()
	fsm.AddFile("/r/a.txt", []byte("a"))
	fsm.AddSymlink("/r/link", "a.txt")
	fsm.AddFile("/r/sub/b.txt", []byte("b"))
	fsm.AddDirectory("/r/sub/c")

	tree, sc := walk(t, fsm, nil)

	want := []struct {
		rel         string
		typ         dsum.FileType
		parent      int64
		left, right int64
		depth       int
	}{
		{"", dsum.TypeDirectory, 0, 1, 12, 0},
		{"/a.txt", dsum.TypeRegular, 0, 2, 3, 1},
		{"/link", dsum.TypeSymlink, 0, 4, 5, 1},
		{"/sub", dsum.TypeDirectory, 0, 6, 11, 1},
		{"/sub/b.txt", dsum.TypeRegular, 3, 7, 8, 2},
		{"/sub/c", dsum.TypeDirectory, 3, 9, 10, 2},
	}
	if len(tree.Records) != len(want) {
		t.Fatalf("len(Records) = %d, want %d", len(tree.Records), len(want))
	}
	for i, w := range want {
		r := tree.Records[i]
		if r.ID != int64(i) {
			t.Errorf("Records[%d].ID = %d", i, r.ID)
		}
		if r.RelPath != w.rel || r.Type != w.typ || r.ParentID != w.parent ||
			r.Left != w.left || r.Right != w.right || r.Depth != w.depth {
			t.Errorf("Records[%d] = {%q %s parent=%d %d..%d depth=%d}, want %+v",
				i, r.RelPath, r.Type, r.ParentID, r.Left, r.Right, r.Depth, w)
		}
	}
	if !tree.Records[0].IsRoot() {
		t.Error("root is not its own parent")
	}
	if got := tree.Records[3].SubtreeSize(); got != 2 {
		t.Errorf("SubtreeSize(/sub) = %d, want 2", got)
	}
	if len(sc.Errors) != 0 {
		t.Errorf("unexpected scan errors: %v", sc.Errors)
	}
}

func TestWalker_Ignore(t *testing.T) {
	fsm := testutil.NewMockFilesystemManager()
	fsm.AddFile("/r/keep.txt", nil)
	fsm.AddFile("/r/skip/inner.txt", nil)

	tree, _ := walk(t, fsm, prefixMatcher("skip"))

	for _, r := range tree.Records {
		if strings.HasPrefix(r.RelPath, "/skip") {
			t.Errorf("ignored entry recorded: %q", r.RelPath)
		}
	}
	if len(tree.Records) != 2 {
		t.Errorf("len(Records) = %d, want 2", len(tree.Records))
	}
	if tree.Records[0].Right != 4 {
		t.Errorf("root Right = %d, want 4", tree.Records[0].Right)
	}
}

func TestWalker_EntryErrors(t *testing.T) {
	boom := errors.New("boom")

	t.Run("unreadable directory", func(t *testing.T) {
		fsm := testutil.NewMockFilesystemManager()
		fsm.AddFile("/r/sub/b.txt", nil)
		fsm.AddFile("/r/z.txt", nil)
		fsm.FailReadDir("/r/sub", boom)

		tree, sc := walk(t, fsm, nil)

		if len(tree.Records) != 3 {
			t.Fatalf("len(Records) = %d, want 3", len(tree.Records))
		}
		sub := tree.Records[1]
		if sub.RelPath != "/sub" || !sub.Incomplete {
			t.Errorf("Records[1] = %q incomplete=%v, want incomplete /sub", sub.RelPath, sub.Incomplete)
		}
		if sub.Right != sub.Left+1 {
			t.Errorf("/sub coordinates %d..%d, want adjacent", sub.Left, sub.Right)
		}
		if len(sc.Errors) != 1 || sc.Errors[0].ID != sub.ID || !errors.Is(sc.Errors[0].Err, boom) {
			t.Errorf("Errors = %v", sc.Errors)
		}
	})

	t.Run("unstattable entry", func(t *testing.T) {
		fsm := testutil.NewMockFilesystemManager()
		fsm.AddFile("/r/a.txt", nil)
		fsm.AddFile("/r/b.txt", nil)
		fsm.FailLstat("/r/a.txt", boom)

		tree, sc := walk(t, fsm, nil)

		if len(tree.Records) != 2 || tree.Records[1].RelPath != "/b.txt" {
			t.Errorf("Records = %+v, want root and /b.txt", tree.Records)
		}
		if len(sc.Errors) != 1 || sc.Errors[0].ID != dsum.UnknownID || sc.Errors[0].Path != "/r/a.txt" {
			t.Errorf("Errors = %v", sc.Errors)
		}
	})
}

func TestWalker_RootErrors(t *testing.T) {
	t.Run("missing root", func(t *testing.T) {
		fsm := testutil.NewMockFilesystemManager()
		sc := dsum.NewScanContext(0, nil, nil, nil)
		if _, err := dsum.NewWalker(fsm, nil).Walk(sc, "/r"); err == nil {
			t.Fatal("Walk() expected error for missing root")
		}
	})

	t.Run("root is a file", func(t *testing.T) {
		fsm := testutil.NewMockFilesystemManager()
		fsm.AddFile("/r", nil)
		sc := dsum.NewScanContext(0, nil, nil, nil)
		_, err := dsum.NewWalker(fsm, nil).Walk(sc, "/r")
		var cfgErr *dsum.ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("Walk() error = %v, want ConfigError", err)
		}
	})
}

// buildTree turns a shape into a mock tree: element k is placed under an
// existing directory chosen by k, as a directory when even and a file when odd.
func buildTree(shape []int) *testutil.MockFilesystemManager {
	fsm := testutil.NewMockFilesystemManager()
	fsm.AddDirectory("/r")
	dirs := []string{"/r"}
	for k, v := range shape {
		parent := dirs[(k+v)%len(dirs)]
		if v%2 == 0 {
			p := fmt.Sprintf("%s/d%d", parent, k)
			fsm.AddDirectory(p)
			dirs = append(dirs, p)
		} else {
			fsm.AddFile(fmt.Sprintf("%s/f%d", parent, k), nil)
		}
	}
	return fsm
}

func TestWalker_NestedSetProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)
	shapes := gen.SliceOf(gen.IntRange(0, 7))

	properties.Property("coordinates are a permutation of 1..2n", prop.ForAll(
		func(shape []int) bool {
			tree, err := dsum.NewWalker(buildTree(shape), nil).Walk(dsum.NewScanContext(0, nil, nil, nil), "/r")
			if err != nil {
				return false
			}
			n := int64(len(tree.Records))
			seen := make(map[int64]bool, 2*n)
			for _, r := range tree.Records {
				if r.Left >= r.Right || r.Left < 1 || r.Right > 2*n || seen[r.Left] || seen[r.Right] {
					return false
				}
				seen[r.Left], seen[r.Right] = true, true
			}
			return int64(len(seen)) == 2*n
		},
		shapes,
	))

	properties.Property("children nest inside their parent", prop.ForAll(
		func(shape []int) bool {
			tree, err := dsum.NewWalker(buildTree(shape), nil).Walk(dsum.NewScanContext(0, nil, nil, nil), "/r")
			if err != nil {
				return false
			}
			for i := range tree.Records {
				r := &tree.Records[i]
				if r.IsRoot() {
					continue
				}
				p := &tree.Records[r.ParentID]
				if !p.Contains(r) || r.Depth != p.Depth+1 || !strings.HasPrefix(r.RelPath, p.RelPath+"/") {
					return false
				}
			}
			return true
		},
		shapes,
	))

	properties.Property("subtree size counts descendants", prop.ForAll(
		func(shape []int) bool {
			tree, err := dsum.NewWalker(buildTree(shape), nil).Walk(dsum.NewScanContext(0, nil, nil, nil), "/r")
			if err != nil {
				return false
			}
			for i := range tree.Records {
				r := &tree.Records[i]
				var descendants int64
				for j := range tree.Records {
					if r.Contains(&tree.Records[j]) {
						descendants++
					}
				}
				if descendants != r.SubtreeSize() {
					return false
				}
			}
			return true
		},
		shapes,
	))

	properties.TestingRun(t)
}
