package dsum_test

import (
	"testing"

	"dsum-go/internal/dsum"
)

func TestFingerprintPolicy_Decide(t *testing.T) {
	prior := dsum.NewPriorIndex([]dsum.FileEntry{
		{RelPath: "/a", Size: 10, Mtime: 100, Ctime: 200, Fingerprint: "fp-a"},
	})
	same := dsum.Record{RelPath: "/a", Size: 10, Mtime: 100, Ctime: 200}

	tests := []struct {
		name     string
		prior    dsum.PriorIndex
		criteria dsum.ReuseCriteria
		rec      dsum.Record
		want     dsum.Reason
		wantFP   string
	}{
		{
			name:     "no prior snapshot",
			criteria: dsum.AllCriteria(),
			rec:      same,
			want:     dsum.ReasonNewScan,
		},
		{
			name:     "unchanged file reuses",
			prior:    prior,
			criteria: dsum.AllCriteria(),
			rec:      same,
			want:     dsum.ReasonReuse,
			wantFP:   "fp-a",
		},
		{
			name:     "new path",
			prior:    prior,
			criteria: dsum.AllCriteria(),
			rec:      dsum.Record{RelPath: "/b", Size: 10, Mtime: 100, Ctime: 200},
			want:     dsum.ReasonNewFile,
		},
		{
			name:     "size wins over times",
			prior:    prior,
			criteria: dsum.AllCriteria(),
			rec:      dsum.Record{RelPath: "/a", Size: 11, Mtime: 101, Ctime: 201},
			want:     dsum.ReasonSize,
		},
		{
			name:     "mtime wins over ctime",
			prior:    prior,
			criteria: dsum.AllCriteria(),
			rec:      dsum.Record{RelPath: "/a", Size: 10, Mtime: 101, Ctime: 201},
			want:     dsum.ReasonMtime,
		},
		{
			name:     "ctime only",
			prior:    prior,
			criteria: dsum.AllCriteria(),
			rec:      dsum.Record{RelPath: "/a", Size: 10, Mtime: 100, Ctime: 201},
			want:     dsum.ReasonCtime,
		},
		{
			name:     "disabled size check is skipped",
			prior:    prior,
			criteria: dsum.ReuseCriteria{Mtime: true, Ctime: true},
			rec:      dsum.Record{RelPath: "/a", Size: 11, Mtime: 100, Ctime: 201},
			want:     dsum.ReasonCtime,
		},
		{
			name:     "no criteria always reuses",
			prior:    prior,
			criteria: dsum.ReuseCriteria{},
			rec:      dsum.Record{RelPath: "/a", Size: 99, Mtime: 1, Ctime: 1},
			want:     dsum.ReasonReuse,
			wantFP:   "fp-a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			policy := dsum.NewFingerprintPolicy(tt.prior, tt.criteria)
			rec := tt.rec
			got, fp := policy.Decide(&rec)
			if got != tt.want {
				t.Errorf("Decide() reason = %s, want %s", got, tt.want)
			}
			if fp != tt.wantFP {
				t.Errorf("Decide() fingerprint = %q, want %q", fp, tt.wantFP)
			}
		})
	}
}

func TestReason_String(t *testing.T) {
	tests := []struct {
		r    dsum.Reason
		want string
	}{
		{dsum.ReasonReuse, "reuse"},
		{dsum.ReasonSize, "size"},
		{dsum.Reason(0x40), "reason(0x40)"},
	}
	for _, tt := range tests {
		if got := tt.r.String(); got != tt.want {
			t.Errorf("Reason(%d).String() = %q, want %q", tt.r, got, tt.want)
		}
	}
}
