package dsum

import "fmt"

// Reason is the bit code explaining why a regular file was fingerprinted.
// Zero means the prior fingerprint was reused.
type Reason uint8

const (
	ReasonReuse   Reason = 0x00
	ReasonNewScan Reason = 0x01
	ReasonNewFile Reason = 0x02
	ReasonCtime   Reason = 0x04
	ReasonMtime   Reason = 0x08
	ReasonSize    Reason = 0x10
)

func (r Reason) String() string {
	switch r {
	case ReasonReuse:
		return "reuse"
	case ReasonNewScan:
		return "new scan"
	case ReasonNewFile:
		return "new file"
	case ReasonCtime:
		return "ctime"
	case ReasonMtime:
		return "mtime"
	case ReasonSize:
		return "size"
	default:
		return fmt.Sprintf("reason(0x%02x)", uint8(r))
	}
}

// FingerprintError marks a regular file whose digest could not be computed.
const FingerprintError = "ERROR"

// ReuseCriteria selects which attributes must match before a prior
// fingerprint is reused.
type ReuseCriteria struct {
	Size  bool
	Mtime bool
	Ctime bool
}

// AllCriteria enables every reuse check.
func AllCriteria() ReuseCriteria { return ReuseCriteria{Size: true, Mtime: true, Ctime: true} }

// PriorIndex maps relative paths of a prior snapshot's regular files to
// their recorded attributes.
type PriorIndex map[string]FileEntry

// NewPriorIndex builds an index from reader output.
func NewPriorIndex(entries []FileEntry) PriorIndex {
	idx := make(PriorIndex, len(entries))
	for _, e := range entries {
		idx[e.RelPath] = e
	}
	return idx
}

// FingerprintPolicy decides per regular file whether a prior fingerprint
// can be reused.
type FingerprintPolicy struct {
	prior    PriorIndex
	criteria ReuseCriteria
}

// NewFingerprintPolicy creates a policy. A nil prior means no prior snapshot.
func NewFingerprintPolicy(prior PriorIndex, criteria ReuseCriteria) *FingerprintPolicy {
	return &FingerprintPolicy{prior: prior, criteria: criteria}
}

// HasPrior reports whether a prior snapshot was supplied.
func (p *FingerprintPolicy) HasPrior() bool { return p.prior != nil }

// Decide returns the reason for rec and, when the reason is ReasonReuse,
// the prior fingerprint. The checks run in a fixed order and the first
// enabled criterion that mismatches wins; disabled criteria are skipped.
func (p *FingerprintPolicy) Decide(rec *Record) (Reason, string) {
	if p.prior == nil {
		return ReasonNewScan, ""
	}
	old, ok := p.prior[rec.RelPath]
	if !ok {
		return ReasonNewFile, ""
	}
	switch {
	case p.criteria.Size && old.Size != rec.Size:
		return ReasonSize, ""
	case p.criteria.Mtime && old.Mtime != rec.Mtime:
		return ReasonMtime, ""
	case p.criteria.Ctime && old.Ctime != rec.Ctime:
		return ReasonCtime, ""
	}
	return ReasonReuse, old.Fingerprint
}
