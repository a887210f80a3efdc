package revset

// Optimize rewrites expr into an equivalent form that evaluates with less
// graph traversal:
//
//	heads(::x)          -> heads(x)
//	ancestors(::x)      -> ::x
//	x & pred, pred & x  -> filter(x & all(), pred)
func Optimize(expr Expr) Expr {
	out, _ := transform(expr, func(e Expr) (Expr, error) {
		return optimizeNode(e), nil
	})
	return out
}

func optimizeNode(expr Expr) Expr {
	switch e := expr.(type) {
	case *HeadsExpr:
		if anc, ok := e.Of.(*AncestorsExpr); ok && anc.Depth == 0 {
			return &HeadsExpr{node: e.node, Of: anc.Of}
		}
	case *AncestorsExpr:
		if inner, ok := e.Of.(*AncestorsExpr); ok {
			depth := 0
			if e.Depth > 0 && inner.Depth > 0 {
				depth = e.Depth + inner.Depth - 1
			}
			return &AncestorsExpr{node: e.node, Of: inner.Of, Depth: depth}
		}
	case *IntersectionExpr:
		if f, ok := e.R.(*FilterExpr); ok && f.Of == nil {
			return &FilterExpr{node: e.node, Of: visibleOnly(e.L), Pred: f.Pred}
		}
		if f, ok := e.L.(*FilterExpr); ok && f.Of == nil {
			return &FilterExpr{node: e.node, Of: visibleOnly(e.R), Pred: f.Pred}
		}
	}
	return nil
}

// visibleOnly restricts x to visible commits unless it already is.
func visibleOnly(x Expr) Expr {
	switch e := x.(type) {
	case *AllExpr, *DescendantsExpr, *ChildrenExpr, *ComplementExpr, *VisibleHeadsExpr:
		return x
	case *FilterExpr:
		if e.Of == nil {
			return x
		}
	}
	return &IntersectionExpr{L: x, R: &AllExpr{}}
}
