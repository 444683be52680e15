package compare

import (
	"dsum-go/internal/dsum"
	"dsum-go/internal/predicate"
)

// Options controls one comparison run.
type Options struct {
	Evaluator predicate.Evaluator // nil selects the default expression
	Dups      bool
	Logger    dsum.Logger
}

// Result holds the rows selected by the predicate, in emission order.
type Result struct {
	Left       *Snapshot
	Right      *Snapshot
	HashUsable bool
	Rows       []*Row
	Considered int
}

// Compare joins left and right by short name, the relative path with the
// side's common prefix removed. Rows are produced from the left paths in
// sorted order, then from the right paths whose short name was not
// already seen. Duplicate grouping needs comparable fingerprints and fails with a
// ConfigError otherwise.
func Compare(left, right *Snapshot, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = dsum.NewNopLogger()
	}
	eval := opts.Evaluator
	if eval == nil {
		var err error
		if eval, err = predicate.Compile(nil); err != nil {
			return nil, err
		}
	}

	usable := HashUsable(left.Scheme, right.Scheme)
	if !usable {
		if left.Scheme != right.Scheme {
			logger.Warn("checksum schemes are inconsistent", "left", left.Scheme, "right", right.Scheme)
		} else {
			logger.Warn("checksum scheme cannot identify content", "scheme", left.Scheme)
		}
		if opts.Dups {
			return nil, dsum.NewConfigError("duplicate groups require matching content checksums (left %q, right %q)", left.Scheme, right.Scheme)
		}
	}

	res := &Result{Left: left, Right: right, HashUsable: usable}
	var grouper *Grouper
	if opts.Dups {
		grouper = NewGrouper(left, right)
	}
	sides := [2]*Snapshot{left, right}
	emitted := make(map[string]bool, left.Len()+right.Len())

	for _, origin := range []Side{Left, Right} {
		for _, rel := range sides[origin].Paths() {
			name := sides[origin].ShortName(rel)
			if emitted[name] {
				continue
			}
			emitted[name] = true
			res.Considered++

			row := buildRow(sides, origin, rel, name, usable)
			if !eval.Evaluate(row) {
				continue
			}
			if grouper != nil {
				row.Duplicates = grouper.Group(row.Hash)
			}
			res.Rows = append(res.Rows, row)
		}
	}
	logger.Debug("comparison complete", "considered", res.Considered, "selected", len(res.Rows))
	return res, nil
}

func buildRow(sides [2]*Snapshot, origin Side, rel, name string, usable bool) *Row {
	var entries [2]dsum.FileEntry
	row := &Row{
		Path:       rel,
		Name:       name,
		Origin:     origin,
		HashUsable: usable,
	}
	for _, s := range []Side{Left, Right} {
		_, entries[s], row.Present[s] = sides[s].LookupName(name)
	}
	row.Hash = entries[origin].Fingerprint
	for _, s := range []Side{Left, Right} {
		row.Counts[s] = len(sides[s].WithHash(row.Hash))
	}

	switch {
	case row.Present[Left] && row.Present[Right]:
		switch {
		case !usable:
			row.Equality = Unusable
		case entries[Left].Fingerprint == entries[Right].Fingerprint:
			row.Equality = Same
		default:
			row.Equality = Different
		}
		row.Ctime = TimeClass(entries[Left].Ctime, entries[Right].Ctime)
		row.Mtime = TimeClass(entries[Left].Mtime, entries[Right].Mtime)
		row.Size = SizeClass(entries[Left].Size, entries[Right].Size)
	default:
		row.Equality = LeftOnly
		if origin == Right {
			row.Equality = RightOnly
		}
		row.Ctime, row.Mtime, row.Size = DeltaAbsent, DeltaAbsent, DeltaAbsent
	}
	return row
}
