package compare

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"dsum-go/internal/dsum"
	"dsum-go/internal/predicate"
)

// ReportOptions controls the text report layout.
type ReportOptions struct {
	Columns     []predicate.Column // nil prints every column
	Titles      bool
	EncodeNames bool
	Dups        bool
}

// ReportWriter prints comparison rows as fixed-width text.
type ReportWriter struct {
	w      io.Writer
	cols   []predicate.Column
	titles bool
	encode bool
	dups   bool
	lines  int
}

// NewReportWriter validates the layout. Duplicate groups are aligned under
// the name column and so cannot be combined with a column selection.
func NewReportWriter(w io.Writer, opts ReportOptions) (*ReportWriter, error) {
	cols := opts.Columns
	if len(cols) == 0 {
		cols = predicate.Columns
	} else if opts.Dups {
		return nil, dsum.NewConfigError("duplicate groups cannot be combined with a column selection")
	}
	for _, c := range cols {
		if _, err := predicate.ParseColumn(string(c)); err != nil {
			return nil, err
		}
	}
	return &ReportWriter{
		w:      w,
		cols:   cols,
		titles: opts.Titles,
		encode: opts.EncodeNames,
		dups:   opts.Dups,
	}, nil
}

// ParseColumns parses a comma separated column list.
func ParseColumns(s string) ([]predicate.Column, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var cols []predicate.Column
	for _, part := range strings.Split(s, ",") {
		c, err := predicate.ParseColumn(part)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return cols, nil
}

func width(c predicate.Column, hashWidth int) int {
	switch c {
	case predicate.ColLeftCount, predicate.ColRightCount:
		return 3
	case predicate.ColHash:
		return 1
	case predicate.ColCtime, predicate.ColMtime, predicate.ColSize:
		return 2
	case predicate.ColChecksum:
		return hashWidth
	}
	return 0
}

// EncodeName quotes name and escapes spaces so that every report field is
// free of whitespace.
func EncodeName(name string) string {
	return strings.ReplaceAll(strconv.Quote(name), " ", `\x20`)
}

func (rw *ReportWriter) name(n string) string {
	if rw.encode {
		return EncodeName(n)
	}
	return n
}

// WriteRow prints one row, preceded by the title line on the first call
// and followed by its duplicate group.
func (rw *ReportWriter) WriteRow(r *Row) error {
	hashWidth := len(HashPlaceholder)
	if r.HashUsable {
		hashWidth = len(r.Hash)
	}

	rw.lines++
	if rw.lines == 1 && rw.titles {
		titles := make([]string, len(rw.cols))
		for i, c := range rw.cols {
			titles[i] = string(c)
		}
		if err := rw.writeLine(titles, hashWidth); err != nil {
			return err
		}
	}

	fields := make([]string, len(rw.cols))
	for i, c := range rw.cols {
		v := r.Column(c)
		if c == predicate.ColName {
			v = rw.name(v)
		}
		fields[i] = v
	}
	if err := rw.writeLine(fields, hashWidth); err != nil {
		return err
	}

	if !rw.dups || len(r.Duplicates) == 0 {
		return nil
	}
	indent := strings.Repeat(" ", rw.nameOffset(hashWidth)-2)
	for _, d := range r.Duplicates {
		if _, err := fmt.Fprintf(rw.w, "%s%s %s\n", indent, d.Marker, rw.name(d.Name)); err != nil {
			return err
		}
	}
	return nil
}

func (rw *ReportWriter) writeLine(fields []string, hashWidth int) error {
	var b strings.Builder
	for i, c := range rw.cols {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%-*s", width(c, hashWidth), fields[i])
	}
	b.WriteByte('\n')
	_, err := io.WriteString(rw.w, b.String())
	return err
}

// nameOffset returns the column at which NAME starts.
func (rw *ReportWriter) nameOffset(hashWidth int) int {
	off := 0
	for _, c := range rw.cols {
		if c == predicate.ColName {
			return off
		}
		off += width(c, hashWidth) + 1
	}
	return off
}

// Lines returns the number of rows written.
func (rw *ReportWriter) Lines() int { return rw.lines }
