package revset

import (
	"fmt"
	"strconv"
	"time"
)

type function struct {
	minArgs int
	maxArgs int
	build   func(n node, args []argument) (Expr, error)
}

// functions is the closed set of revset functions, keyed by name.
var functions = map[string]function{
	"all":            {0, 0, func(n node, _ []argument) (Expr, error) { return &AllExpr{n}, nil }},
	"none":           {0, 0, func(n node, _ []argument) (Expr, error) { return &NoneExpr{n}, nil }},
	"root":           {0, 0, func(n node, _ []argument) (Expr, error) { return &RootExpr{n}, nil }},
	"visible_heads":  {0, 0, func(n node, _ []argument) (Expr, error) { return &VisibleHeadsExpr{n}, nil }},
	"working_copies": {0, 0, func(n node, _ []argument) (Expr, error) { return &WorkingCopiesExpr{n}, nil }},
	"heads": {0, 1, func(n node, args []argument) (Expr, error) {
		if len(args) == 0 {
			return &VisibleHeadsExpr{n}, nil
		}
		of, err := exprArg(args[0])
		if err != nil {
			return nil, err
		}
		return &HeadsExpr{node: n, Of: of}, nil
	}},
	"roots":       unary(func(n node, of Expr) Expr { return &RootsExpr{node: n, Of: of} }),
	"parents":     unary(func(n node, of Expr) Expr { return &ParentsExpr{node: n, Of: of} }),
	"children":    unary(func(n node, of Expr) Expr { return &ChildrenExpr{node: n, Of: of} }),
	"descendants": unary(func(n node, of Expr) Expr { return &DescendantsExpr{node: n, Of: of} }),
	"present":     unary(func(n node, of Expr) Expr { return &PresentExpr{node: n, Of: of} }),
	"ancestors": {1, 2, func(n node, args []argument) (Expr, error) {
		of, err := exprArg(args[0])
		if err != nil {
			return nil, err
		}
		depth := 0
		if len(args) == 2 {
			if depth, err = depthArg(args[1]); err != nil {
				return nil, err
			}
		}
		return &AncestorsExpr{node: n, Of: of, Depth: depth}, nil
	}},
	"branches": {0, 1, func(n node, args []argument) (Expr, error) {
		var pat StringPattern
		if len(args) == 1 {
			var err error
			if pat, err = patternArg(args[0]); err != nil {
				return nil, err
			}
		}
		return &BranchesExpr{node: n, Pattern: pat}, nil
	}},
	"author":      patternPredicate(PredAuthor),
	"committer":   patternPredicate(PredCommitter),
	"description": patternPredicate(PredDescription),
	"date": {1, 2, func(n node, args []argument) (Expr, error) {
		pred := Predicate{Kind: PredDate}
		var err error
		if pred.From, err = dateArg(args[0]); err != nil {
			return nil, err
		}
		if len(args) == 2 {
			if pred.To, err = dateArg(args[1]); err != nil {
				return nil, err
			}
		}
		return &FilterExpr{node: n, Pred: pred}, nil
	}},
	"file": {1, 1, func(n node, args []argument) (Expr, error) {
		a := args[0]
		if !a.literal || (a.kind != "" && a.kind != "glob") {
			return nil, &ParseError{Message: "expected a path or glob", Span: a.span}
		}
		path, err := ParsePathPattern(a.text)
		if err != nil {
			return nil, &ParseError{Message: err.Error(), Span: a.span}
		}
		return &FilterExpr{node: n, Pred: Predicate{Kind: PredFile, Path: path}}, nil
	}},
	"merges":    nullaryPredicate(PredMerges),
	"conflicts": nullaryPredicate(PredConflicts),
	"empty":     nullaryPredicate(PredEmpty),
}

func unary(build func(n node, of Expr) Expr) function {
	return function{1, 1, func(n node, args []argument) (Expr, error) {
		of, err := exprArg(args[0])
		if err != nil {
			return nil, err
		}
		return build(n, of), nil
	}}
}

func patternPredicate(kind PredicateKind) function {
	return function{1, 1, func(n node, args []argument) (Expr, error) {
		pat, err := patternArg(args[0])
		if err != nil {
			return nil, err
		}
		return &FilterExpr{node: n, Pred: Predicate{Kind: kind, Pattern: pat}}, nil
	}}
}

func nullaryPredicate(kind PredicateKind) function {
	return function{0, 0, func(n node, _ []argument) (Expr, error) {
		return &FilterExpr{node: n, Pred: Predicate{Kind: kind}}, nil
	}}
}

func exprArg(a argument) (Expr, error) {
	if a.expr == nil {
		return nil, &ParseError{Message: "expected a revset expression", Span: a.span}
	}
	return a.expr, nil
}

func patternArg(a argument) (StringPattern, error) {
	if !a.literal {
		return StringPattern{}, &ParseError{Message: "expected a string pattern", Span: a.span}
	}
	pat, err := ParseStringPattern(a.kind, a.text)
	if err != nil {
		return StringPattern{}, &ParseError{Message: err.Error(), Span: a.span}
	}
	return pat, nil
}

func depthArg(a argument) (int, error) {
	if a.literal && a.kind == "" {
		if n, err := strconv.Atoi(a.text); err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, &ParseError{Message: "expected a positive depth", Span: a.span}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func dateArg(a argument) (time.Time, error) {
	if a.literal && a.kind == "" {
		for _, layout := range dateLayouts {
			if t, err := time.ParseInLocation(layout, a.text, time.Local); err == nil {
				return t, nil
			}
		}
	}
	return time.Time{}, &ParseError{Message: fmt.Sprintf("invalid date %q", a.text), Span: a.span}
}
