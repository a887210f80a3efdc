package revset

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/systemshift/weft/internal/dag"
)

// Expr is a node of a parsed revset expression. Expressions are immutable;
// rewriting passes build new trees.
type Expr interface {
	// Span is the source range the node was parsed from. Nodes built by
	// rewriting have a zero span.
	Span() Span
	exprNode()
}

type node struct{ span Span }

func (n node) Span() Span { return n.span }
func (node) exprNode()    {}

type (
	// SymbolExpr names a branch, commit id prefix or change id prefix.
	SymbolExpr struct {
		node
		Name string
	}
	// WorkingCopyExpr is "@" or "name@".
	WorkingCopyExpr struct {
		node
		Workspace string
	}
	// CommitsExpr is an explicit, already resolved set of commits.
	CommitsExpr struct {
		node
		IDs []dag.ID
	}
	AllExpr           struct{ node }
	NoneExpr          struct{ node }
	RootExpr          struct{ node }
	VisibleHeadsExpr  struct{ node }
	WorkingCopiesExpr struct{ node }
	BranchesExpr      struct {
		node
		Pattern StringPattern
	}
	HeadsExpr struct {
		node
		Of Expr
	}
	RootsExpr struct {
		node
		Of Expr
	}
	ParentsExpr struct {
		node
		Of Expr
	}
	ChildrenExpr struct {
		node
		Of Expr
	}
	// AncestorsExpr selects Of and its ancestors. A positive Depth limits
	// the walk: depth 1 is Of itself, depth 2 adds its parents.
	AncestorsExpr struct {
		node
		Of    Expr
		Depth int
	}
	DescendantsExpr struct {
		node
		Of Expr
	}
	// DagRangeExpr is "x::y": descendants of Roots that are ancestors of
	// Heads.
	DagRangeExpr struct {
		node
		Roots Expr
		Heads Expr
	}
	// RangeExpr is "x..y": ancestors of Heads that are not ancestors of
	// Roots.
	RangeExpr struct {
		node
		Roots Expr
		Heads Expr
	}
	UnionExpr struct {
		node
		L, R Expr
	}
	IntersectionExpr struct {
		node
		L, R Expr
	}
	DifferenceExpr struct {
		node
		L, R Expr
	}
	// ComplementExpr is "~x": visible commits not in x.
	ComplementExpr struct {
		node
		Of Expr
	}
	// FilterExpr keeps the commits of Of matching Pred. A nil Of filters
	// all visible commits.
	FilterExpr struct {
		node
		Of   Expr
		Pred Predicate
	}
	// PresentExpr evaluates Of, or nothing if a symbol in it is unknown.
	PresentExpr struct {
		node
		Of Expr
	}
)

// PredicateKind enumerates the commit predicates.
type PredicateKind int

const (
	PredAuthor PredicateKind = iota
	PredCommitter
	PredDescription
	PredDate
	PredFile
	PredMerges
	PredConflicts
	PredEmpty
)

var predicateNames = map[PredicateKind]string{
	PredAuthor:      "author",
	PredCommitter:   "committer",
	PredDescription: "description",
	PredDate:        "date",
	PredFile:        "file",
	PredMerges:      "merges",
	PredConflicts:   "conflicts",
	PredEmpty:       "empty",
}

func (k PredicateKind) String() string { return predicateNames[k] }

// Predicate is a per-commit filter. Only the fields relevant to Kind are
// set. Date ranges are half-open; a zero To is unbounded.
type Predicate struct {
	Kind    PredicateKind
	Pattern StringPattern
	Path    PathPattern
	From    time.Time
	To      time.Time
}

func (p Predicate) String() string {
	switch p.Kind {
	case PredAuthor, PredCommitter, PredDescription:
		return fmt.Sprintf("%s(%s)", p.Kind, p.Pattern)
	case PredFile:
		return fmt.Sprintf("file(%s)", p.Path)
	case PredDate:
		if p.To.IsZero() {
			return fmt.Sprintf("date(%q)", p.From.Format(time.RFC3339))
		}
		return fmt.Sprintf("date(%q, %q)", p.From.Format(time.RFC3339), p.To.Format(time.RFC3339))
	}
	return p.Kind.String() + "()"
}

// Format renders expr in a normalized function-call form. It is meant for
// diagnostics and tests, not for re-parsing.
func Format(expr Expr) string {
	var sb strings.Builder
	format(&sb, expr)
	return sb.String()
}

func format(sb *strings.Builder, expr Expr) {
	call := func(name string, args ...Expr) {
		sb.WriteString(name)
		sb.WriteByte('(')
		for i, a := range args {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, a)
		}
		sb.WriteByte(')')
	}
	switch e := expr.(type) {
	case nil:
		sb.WriteString("all()")
	case *SymbolExpr:
		sb.WriteString(e.Name)
	case *WorkingCopyExpr:
		sb.WriteString(e.Workspace + "@")
	case *CommitsExpr:
		hexes := make([]string, len(e.IDs))
		for i, id := range e.IDs {
			hexes[i] = id.Short()
		}
		sb.WriteString("commits(" + strings.Join(hexes, ", ") + ")")
	case *AllExpr:
		call("all")
	case *NoneExpr:
		call("none")
	case *RootExpr:
		call("root")
	case *VisibleHeadsExpr:
		call("visible_heads")
	case *WorkingCopiesExpr:
		call("working_copies")
	case *BranchesExpr:
		sb.WriteString("branches(" + e.Pattern.String() + ")")
	case *HeadsExpr:
		call("heads", e.Of)
	case *RootsExpr:
		call("roots", e.Of)
	case *ParentsExpr:
		call("parents", e.Of)
	case *ChildrenExpr:
		call("children", e.Of)
	case *AncestorsExpr:
		sb.WriteString("ancestors(")
		format(sb, e.Of)
		if e.Depth > 0 {
			sb.WriteString(", " + strconv.Itoa(e.Depth))
		}
		sb.WriteByte(')')
	case *DescendantsExpr:
		call("descendants", e.Of)
	case *DagRangeExpr:
		call("dag_range", e.Roots, e.Heads)
	case *RangeExpr:
		call("range", e.Roots, e.Heads)
	case *UnionExpr:
		call("union", e.L, e.R)
	case *IntersectionExpr:
		call("intersection", e.L, e.R)
	case *DifferenceExpr:
		call("difference", e.L, e.R)
	case *ComplementExpr:
		call("complement", e.Of)
	case *FilterExpr:
		if e.Of == nil {
			sb.WriteString(e.Pred.String())
			return
		}
		sb.WriteString("filter(")
		format(sb, e.Of)
		sb.WriteString(", " + e.Pred.String() + ")")
	case *PresentExpr:
		call("present", e.Of)
	default:
		fmt.Fprintf(sb, "%T", expr)
	}
}

// children returns the direct subexpressions of expr.
func children(expr Expr) []Expr {
	switch e := expr.(type) {
	case *HeadsExpr:
		return []Expr{e.Of}
	case *RootsExpr:
		return []Expr{e.Of}
	case *ParentsExpr:
		return []Expr{e.Of}
	case *ChildrenExpr:
		return []Expr{e.Of}
	case *AncestorsExpr:
		return []Expr{e.Of}
	case *DescendantsExpr:
		return []Expr{e.Of}
	case *DagRangeExpr:
		return []Expr{e.Roots, e.Heads}
	case *RangeExpr:
		return []Expr{e.Roots, e.Heads}
	case *UnionExpr:
		return []Expr{e.L, e.R}
	case *IntersectionExpr:
		return []Expr{e.L, e.R}
	case *DifferenceExpr:
		return []Expr{e.L, e.R}
	case *ComplementExpr:
		return []Expr{e.Of}
	case *FilterExpr:
		if e.Of != nil {
			return []Expr{e.Of}
		}
	case *PresentExpr:
		return []Expr{e.Of}
	}
	return nil
}

// transform rebuilds expr bottom-up, applying fn to every node after its
// children have been rewritten. fn returns nil to keep a node unchanged.
func transform(expr Expr, fn func(Expr) (Expr, error)) (Expr, error) {
	if expr == nil {
		return nil, nil
	}
	var err error
	rec := func(e Expr) Expr {
		if err != nil || e == nil {
			return e
		}
		var out Expr
		out, err = transform(e, fn)
		return out
	}
	var rebuilt Expr
	switch e := expr.(type) {
	case *HeadsExpr:
		rebuilt = &HeadsExpr{node: e.node, Of: rec(e.Of)}
	case *RootsExpr:
		rebuilt = &RootsExpr{node: e.node, Of: rec(e.Of)}
	case *ParentsExpr:
		rebuilt = &ParentsExpr{node: e.node, Of: rec(e.Of)}
	case *ChildrenExpr:
		rebuilt = &ChildrenExpr{node: e.node, Of: rec(e.Of)}
	case *AncestorsExpr:
		rebuilt = &AncestorsExpr{node: e.node, Of: rec(e.Of), Depth: e.Depth}
	case *DescendantsExpr:
		rebuilt = &DescendantsExpr{node: e.node, Of: rec(e.Of)}
	case *DagRangeExpr:
		rebuilt = &DagRangeExpr{node: e.node, Roots: rec(e.Roots), Heads: rec(e.Heads)}
	case *RangeExpr:
		rebuilt = &RangeExpr{node: e.node, Roots: rec(e.Roots), Heads: rec(e.Heads)}
	case *UnionExpr:
		rebuilt = &UnionExpr{node: e.node, L: rec(e.L), R: rec(e.R)}
	case *IntersectionExpr:
		rebuilt = &IntersectionExpr{node: e.node, L: rec(e.L), R: rec(e.R)}
	case *DifferenceExpr:
		rebuilt = &DifferenceExpr{node: e.node, L: rec(e.L), R: rec(e.R)}
	case *ComplementExpr:
		rebuilt = &ComplementExpr{node: e.node, Of: rec(e.Of)}
	case *FilterExpr:
		rebuilt = &FilterExpr{node: e.node, Of: rec(e.Of), Pred: e.Pred}
	case *PresentExpr:
		rebuilt = &PresentExpr{node: e.node, Of: rec(e.Of)}
	default:
		rebuilt = expr
	}
	if err != nil {
		return nil, err
	}
	out, err := fn(rebuilt)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return rebuilt, nil
	}
	return out, nil
}
