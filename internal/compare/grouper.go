package compare

import (
	"dsum-go/internal/digest"
	"dsum-go/internal/dsum"
)

// Duplicate is one member of a duplicate group.
type Duplicate struct {
	Marker string // "<" left only, ">" right only, "=" both sides
	Path   string
	Name   string
}

// Grouper lists files sharing a fingerprint. Members are keyed by short
// name, so a name present on both sides is one member, and every name is
// reported at most once per run.
type Grouper struct {
	sides [2]*Snapshot
	seen  map[string]bool
}

// NewGrouper returns a grouper over both sides.
func NewGrouper(left, right *Snapshot) *Grouper {
	return &Grouper{
		sides: [2]*Snapshot{left, right},
		seen:  make(map[string]bool),
	}
}

// Group returns the not yet reported members of the group for hash. A
// group with fewer than two distinct names is not a duplicate group.
func (g *Grouper) Group(hash string) []Duplicate {
	if hash == "" || hash == dsum.FingerprintError || hash == digest.Skip {
		return nil
	}

	var members []Duplicate
	index := make(map[string]int)
	for side, snap := range g.sides {
		for _, rel := range snap.WithHash(hash) {
			name := snap.ShortName(rel)
			if i, ok := index[name]; ok {
				members[i].Marker = "="
				continue
			}
			index[name] = len(members)
			members = append(members, Duplicate{
				Marker: Side(side).String(),
				Path:   rel,
				Name:   name,
			})
		}
	}
	if len(members) < 2 {
		return nil
	}

	var out []Duplicate
	for _, d := range members {
		if g.seen[d.Name] {
			continue
		}
		g.seen[d.Name] = true
		out = append(out, d)
	}
	return out
}
