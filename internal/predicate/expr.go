package predicate

import (
	"strings"

	"dsum-go/internal/dsum"
)

// defaultTerms selects rows where the checksum, either time or the size differs.
var defaultTerms = []string{"H=!=", "CT=!=", "MT=!=", "SZ=!=", "OR", "OR", "OR"}

// macros expand to fixed term sequences. The andMacros are appended with
// "NOT AND" and seed the default expression when nothing precedes them.
var macros = map[string][]string{
	"change":          defaultTerms,
	"change-no-ctime": {"H=!=", "MT=!=", "SZ=!=", "OR", "OR"},
	"same":            {"H==", "CT==", "MT==", "SZ==", "OR", "OR", "OR"},
	"gone":            {"NR==0", "NL=>0", "AND"},
	"new":             {"NR=>0", "NL==0", "AND"},
	"image":           {`NAME=\.(ai|avi|bmp|gif|jpeg|jpg|m4v|mov|mp4|mpg|mrd|png|svg|tif|tiff|webm|xbm|xpm)$`},
	"pdf":             {`NAME=\.pdf$`},
}

var andMacros = map[string][]string{
	"no-git": {`NAME=/\.git/`, "NOT", "AND"},
	"no-bak": {`NAME=~$`, `NAME=\.bak$`, `NAME=\.BAK$`, "OR", "OR", "NOT", "AND"},
}

// Default returns the default expression.
func Default() []Term { return MustParse(defaultTerms...) }

// MacroNames lists the accepted @macro names.
func MacroNames() []string {
	names := make([]string, 0, len(macros)+len(andMacros))
	for n := range macros {
		names = append(names, n)
	}
	for n := range andMacros {
		names = append(names, n)
	}
	return names
}

// Parse converts command-line search arguments into terms, expanding
// @macro arguments in place.
func Parse(args []string) ([]Term, error) {
	var terms []Term
	for _, arg := range args {
		if name, ok := strings.CutPrefix(arg, "@"); ok {
			name = strings.ToLower(name)
			if seq, ok := macros[name]; ok {
				terms = append(terms, MustParse(seq...)...)
				continue
			}
			if seq, ok := andMacros[name]; ok {
				if len(terms) == 0 {
					terms = Default()
				}
				terms = append(terms, MustParse(seq...)...)
				continue
			}
			return nil, dsum.NewConfigError("unknown search macro %q", arg)
		}
		t, err := ParseTerm(arg)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, nil
}

// Evaluator decides whether a row is reported.
type Evaluator interface {
	Evaluate(row Row) bool
}

// Compile selects the evaluation strategy once. No terms means the default
// expression. Terms containing at least one operator are evaluated as a
// postfix expression, which must be well formed. Terms without operators
// are implicitly ORed.
func Compile(terms []Term) (Evaluator, error) {
	if len(terms) == 0 {
		terms = Default()
	}
	hasOperator := false
	for _, t := range terms {
		if t.IsOperator() {
			hasOperator = true
			break
		}
	}
	if !hasOperator {
		return &implicitOr{terms: terms}, nil
	}

	depth := 0
	for i, t := range terms {
		if n := t.arity(); n > 0 {
			if depth < n {
				return nil, dsum.NewConfigError("search operator %s at position %d requires %d operand(s), have %d", t, i+1, n, depth)
			}
			depth -= n - 1
			continue
		}
		depth++
	}
	return &postfix{terms: terms}, nil
}

// postfix evaluates terms against an explicit stack. The result is the
// value on top of the stack when the terms are exhausted.
type postfix struct {
	terms []Term
}

func (p *postfix) Evaluate(row Row) bool {
	stack := make([]bool, 0, len(p.terms))
	for _, t := range p.terms {
		switch t.Kind {
		case KindNot:
			stack[len(stack)-1] = !stack[len(stack)-1]
		case KindAnd, KindOr:
			rhs := stack[len(stack)-1]
			lhs := stack[len(stack)-2]
			stack = stack[:len(stack)-2]
			if t.Kind == KindAnd {
				stack = append(stack, lhs && rhs)
			} else {
				stack = append(stack, lhs || rhs)
			}
		default:
			stack = append(stack, t.test(row))
		}
	}
	return stack[len(stack)-1]
}

// implicitOr is the operator-free form: true on the first satisfied term.
type implicitOr struct {
	terms []Term
}

func (o *implicitOr) Evaluate(row Row) bool {
	for _, t := range o.terms {
		if t.test(row) {
			return true
		}
	}
	return false
}

var (
	_ Evaluator = (*postfix)(nil)
	_ Evaluator = (*implicitOr)(nil)
)
