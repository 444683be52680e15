// Package predicate selects comparison rows with boolean expressions over
// named report columns, written in postfix order.
package predicate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"dsum-go/internal/dsum"
)

// Column names a report column.
type Column string

const (
	ColLeftCount  Column = "NL"
	ColRightCount Column = "NR"
	ColHash       Column = "H"
	ColCtime      Column = "CT"
	ColMtime      Column = "MT"
	ColSize       Column = "SZ"
	ColChecksum   Column = "HASH"
	ColName       Column = "NAME"
)

// Columns lists every column in report order.
var Columns = []Column{ColLeftCount, ColRightCount, ColHash, ColCtime, ColMtime, ColSize, ColChecksum, ColName}

// ParseColumn validates a column name.
func ParseColumn(s string) (Column, error) {
	c := Column(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Columns {
		if c == known {
			return c, nil
		}
	}
	return "", dsum.NewConfigError("unknown column %q", s)
}

// Row exposes the materialized text columns of one comparison row.
type Row interface {
	Column(c Column) string
}

// Kind is the kind of a term.
type Kind int

const (
	KindTrue Kind = iota
	KindRegex
	KindPrefix
	KindCompare
	KindAnd
	KindOr
	KindNot
)

// Term is one element of a postfix expression.
type Term struct {
	Kind   Kind
	Column Column
	Regex  *regexp.Regexp
	Prefix string
	Negate bool
	Op     byte
	Value  int
	text   string
}

// IsOperator reports whether t consumes stack operands.
func (t Term) IsOperator() bool {
	return t.Kind == KindAnd || t.Kind == KindOr || t.Kind == KindNot
}

// arity is the number of operands an operator pops.
func (t Term) arity() int {
	switch t.Kind {
	case KindNot:
		return 1
	case KindAnd, KindOr:
		return 2
	default:
		return 0
	}
}

func (t Term) String() string { return t.text }

// test evaluates an operand term against row.
func (t Term) test(row Row) bool {
	switch t.Kind {
	case KindTrue:
		return true
	case KindRegex:
		return t.Regex.MatchString(row.Column(t.Column))
	case KindPrefix:
		return strings.HasPrefix(row.Column(t.Column), t.Prefix) != t.Negate
	case KindCompare:
		v := leadingInt(row.Column(t.Column))
		switch t.Op {
		case '!':
			return v != t.Value
		case '=':
			return v == t.Value
		case '<':
			return v < t.Value
		case '>':
			return v > t.Value
		}
	}
	return false
}

// leadingInt parses the leading decimal digits of s; placeholders read as 0.
func leadingInt(s string) int {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}

var compareRe = regexp.MustCompile(`^([!=<>])([0-9]+)$`)

// ParseTerm parses one term: AND, OR, NOT, TRUE or COLUMN=VALUE, where
// VALUE is a regex for NAME and HASH, an optionally !-negated prefix for
// H, CT, MT and SZ, and an operator (! = < >) plus integer for NL and NR.
func ParseTerm(s string) (Term, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "AND":
		return Term{Kind: KindAnd, text: "AND"}, nil
	case "OR":
		return Term{Kind: KindOr, text: "OR"}, nil
	case "NOT":
		return Term{Kind: KindNot, text: "NOT"}, nil
	case "TRUE":
		return Term{Kind: KindTrue, text: "TRUE"}, nil
	}

	name, value, ok := strings.Cut(s, "=")
	if !ok {
		return Term{}, dsum.NewConfigError("bad search term %q: want COLUMN=VALUE", s)
	}
	col, err := ParseColumn(name)
	if err != nil {
		return Term{}, err
	}
	t := Term{Column: col, text: s}

	switch col {
	case ColName, ColChecksum:
		re, err := regexp.Compile(value)
		if err != nil {
			return Term{}, dsum.NewConfigError("bad regex in %q: %v", s, err)
		}
		t.Kind = KindRegex
		t.Regex = re
	case ColLeftCount, ColRightCount:
		m := compareRe.FindStringSubmatch(value)
		if m == nil {
			return Term{}, dsum.NewConfigError("bad numeric search term %q", s)
		}
		n, err := strconv.Atoi(m[2])
		if err != nil {
			return Term{}, dsum.NewConfigError("bad numeric search term %q: %v", s, err)
		}
		t.Kind = KindCompare
		t.Op = m[1][0]
		t.Value = n
	default:
		t.Kind = KindPrefix
		if len(value) > 1 && value[0] == '!' {
			t.Negate = true
			value = value[1:]
		}
		if value == "" {
			return Term{}, dsum.NewConfigError("empty prefix in search term %q", s)
		}
		t.Prefix = value
	}
	return t, nil
}

// MustParse parses terms and panics on error. For fixed expressions only.
func MustParse(terms ...string) []Term {
	out := make([]Term, 0, len(terms))
	for _, s := range terms {
		t, err := ParseTerm(s)
		if err != nil {
			panic(fmt.Sprintf("predicate: %v", err))
		}
		out = append(out, t)
	}
	return out
}
