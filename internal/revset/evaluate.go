package revset

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/systemshift/weft/internal/dag"
	"github.com/systemshift/weft/internal/index"
)

// DefaultWorkspace is the workspace "@" refers to when the scope names
// none.
const DefaultWorkspace = "default"

// ViewState is the part of a repository view that revsets read.
type ViewState interface {
	HeadIDs() []dag.ID
	IsHidden(id dag.ID) bool
	BranchNames() []string
	BranchTargets(name string) []dag.ID
	WorkspaceNames() []string
	WorkspaceCommit(name string) (dag.ID, bool)
}

// CommitStore reads the commit data that predicates inspect.
type CommitStore interface {
	ReadCommit(id dag.ID) (*dag.Commit, error)
	ChangedPaths(id dag.ID) ([]string, error)
	HasConflicts(id dag.ID) (bool, error)
	IsEmpty(id dag.ID) (bool, error)
	RootCommitID() dag.ID
}

// Scope is everything an expression is evaluated against. Index must
// contain every commit the view references.
type Scope struct {
	Index     *index.Snapshot
	View      ViewState
	Store     CommitStore
	Workspace string
}

// Revset is an evaluated expression. Walking it is lazy and can be
// repeated; each walk starts from scratch and yields the same sequence.
type Revset struct {
	snap *index.Snapshot
	set  set
}

// Iter yields the selected commits in canonical order. An error ends the
// sequence.
func (r *Revset) Iter() iter.Seq2[dag.ID, error] {
	return func(yield func(dag.ID, error) bool) {
		it := r.set.iter()
		for {
			p, ok, err := it.next()
			if err != nil {
				yield(dag.ID{}, err)
				return
			}
			if !ok || !yield(r.snap.ID(p), nil) {
				return
			}
		}
	}
}

// IDs walks the whole revset.
func (r *Revset) IDs() ([]dag.ID, error) {
	ps, err := collect(r.set.iter())
	if err != nil || len(ps) == 0 {
		return nil, err
	}
	return r.snap.IDs(ps), nil
}

// First returns the first commit in canonical order.
func (r *Revset) First() (dag.ID, bool, error) {
	p, ok, err := r.set.iter().next()
	if err != nil || !ok {
		return dag.ID{}, false, err
	}
	return r.snap.ID(p), true, nil
}

// Query parses input, expands aliases, optimizes and evaluates it.
func Query(ctx context.Context, input string, aliases map[string]string, scope *Scope) (*Revset, error) {
	expr, err := ParseWithAliases(input, aliases)
	if err != nil {
		recordError("parse")
		return nil, err
	}
	return Evaluate(ctx, Optimize(expr), scope)
}

// Evaluate resolves the symbols in expr and compiles it against scope.
// Symbol resolution happens here, so unknown names fail immediately
// rather than part way through a walk.
func Evaluate(ctx context.Context, expr Expr, scope *Scope) (*Revset, error) {
	ctx, span := tracer.Start(ctx, "revset.Evaluate",
		trace.WithAttributes(attribute.String("revset.expr", Format(expr))),
	)
	defer span.End()
	start := time.Now()
	defer func() { evaluateDuration.Observe(time.Since(start).Seconds()) }()

	ev := &evaluator{ctx: ctx, scope: scope, snap: scope.Index}
	s, err := ev.compile(expr)
	if err != nil {
		span.RecordError(err)
		var re *ResolveError
		if errors.As(err, &re) {
			recordError("resolve")
		} else {
			recordError("compile")
		}
		return nil, err
	}
	return &Revset{snap: scope.Index, set: s}, nil
}

type evaluator struct {
	ctx   context.Context
	scope *Scope
	snap  *index.Snapshot
}

func (ev *evaluator) lookup(id dag.ID) (index.Pos, error) {
	return ev.snap.MustLookup(id)
}

func (ev *evaluator) lookupAll(ids []dag.ID) ([]index.Pos, error) {
	out := make([]index.Pos, 0, len(ids))
	for _, id := range ids {
		p, err := ev.lookup(id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (ev *evaluator) explicit(ps []index.Pos) set { return newExplicitSet(ev.snap, ps) }

func (ev *evaluator) visibleHeads() (set, error) {
	var ids []dag.ID
	for _, id := range ev.scope.View.HeadIDs() {
		if !ev.scope.View.IsHidden(id) {
			ids = append(ids, id)
		}
	}
	ps, err := ev.lookupAll(ids)
	if err != nil {
		return nil, fmt.Errorf("visible heads: %w", err)
	}
	return ev.explicit(ps), nil
}

// visible is all(): ancestors of the visible heads minus hidden commits.
func (ev *evaluator) visible() (set, error) {
	heads, err := ev.visibleHeads()
	if err != nil {
		return nil, err
	}
	view := ev.scope.View
	return &filterSet{
		of: &ancestorsSet{snap: ev.snap, heads: heads},
		pred: func(p index.Pos) (bool, error) {
			return !view.IsHidden(ev.snap.ID(p)), nil
		},
	}, nil
}

func (ev *evaluator) compile(expr Expr) (set, error) {
	if err := ev.ctx.Err(); err != nil {
		return nil, err
	}
	snap := ev.snap
	switch e := expr.(type) {
	case nil, *AllExpr:
		return ev.visible()
	case *NoneExpr:
		return ev.explicit(nil), nil
	case *SymbolExpr:
		ps, err := ev.resolveSymbol(e.Name)
		if err != nil {
			return nil, err
		}
		return ev.explicit(ps), nil
	case *WorkingCopyExpr:
		ws := e.Workspace
		if ws == "" {
			ws = ev.scope.Workspace
		}
		if ws == "" {
			ws = DefaultWorkspace
		}
		id, ok := ev.scope.View.WorkspaceCommit(ws)
		if !ok {
			return nil, &ResolveError{Symbol: ws + "@", Err: fmt.Errorf("no working copy in workspace %q: %w", ws, dag.ErrNotFound)}
		}
		p, err := ev.lookup(id)
		if err != nil {
			return nil, err
		}
		return ev.explicit([]index.Pos{p}), nil
	case *CommitsExpr:
		ps, err := ev.lookupAll(e.IDs)
		if err != nil {
			return nil, err
		}
		return ev.explicit(ps), nil
	case *RootExpr:
		p, err := ev.lookup(ev.scope.Store.RootCommitID())
		if err != nil {
			return nil, err
		}
		return ev.explicit([]index.Pos{p}), nil
	case *VisibleHeadsExpr:
		return ev.visibleHeads()
	case *WorkingCopiesExpr:
		var ids []dag.ID
		for _, ws := range ev.scope.View.WorkspaceNames() {
			if id, ok := ev.scope.View.WorkspaceCommit(ws); ok {
				ids = append(ids, id)
			}
		}
		ps, err := ev.lookupAll(ids)
		if err != nil {
			return nil, err
		}
		return ev.explicit(ps), nil
	case *BranchesExpr:
		var ids []dag.ID
		for _, name := range ev.scope.View.BranchNames() {
			if e.Pattern.Match(name) {
				ids = append(ids, ev.scope.View.BranchTargets(name)...)
			}
		}
		ps, err := ev.lookupAll(ids)
		if err != nil {
			return nil, err
		}
		return ev.explicit(ps), nil
	case *HeadsExpr:
		of, err := ev.compile(e.Of)
		if err != nil {
			return nil, err
		}
		return &deferredSet{snap: snap, fn: func() ([]index.Pos, error) {
			ps, err := collect(of.iter())
			if err != nil {
				return nil, err
			}
			return snap.HeadsPos(ps), nil
		}}, nil
	case *RootsExpr:
		of, err := ev.compile(e.Of)
		if err != nil {
			return nil, err
		}
		return &deferredSet{snap: snap, fn: func() ([]index.Pos, error) {
			ps, err := collect(of.iter())
			if err != nil {
				return nil, err
			}
			return rootsOf(snap, ps), nil
		}}, nil
	case *ParentsExpr:
		of, err := ev.compile(e.Of)
		if err != nil {
			return nil, err
		}
		return &parentsSet{snap: snap, of: of}, nil
	case *ChildrenExpr:
		of, err := ev.compile(e.Of)
		if err != nil {
			return nil, err
		}
		visible, err := ev.visible()
		if err != nil {
			return nil, err
		}
		return &intersectionSet{snap: snap, a: &deferredSet{snap: snap, fn: func() ([]index.Pos, error) {
			ps, err := collect(of.iter())
			if err != nil {
				return nil, err
			}
			return childrenOf(snap, ps), nil
		}}, b: visible}, nil
	case *AncestorsExpr:
		of, err := ev.compile(e.Of)
		if err != nil {
			return nil, err
		}
		return &ancestorsSet{snap: snap, heads: of, depth: e.Depth}, nil
	case *DescendantsExpr:
		of, err := ev.compile(e.Of)
		if err != nil {
			return nil, err
		}
		visible, err := ev.visible()
		if err != nil {
			return nil, err
		}
		return &intersectionSet{snap: snap, a: ev.descendants(of), b: visible}, nil
	case *DagRangeExpr:
		roots, err := ev.compile(e.Roots)
		if err != nil {
			return nil, err
		}
		heads, err := ev.compile(e.Heads)
		if err != nil {
			return nil, err
		}
		return &intersectionSet{snap: snap, a: &ancestorsSet{snap: snap, heads: heads}, b: ev.descendants(roots)}, nil
	case *RangeExpr:
		roots, err := ev.compile(e.Roots)
		if err != nil {
			return nil, err
		}
		heads, err := ev.compile(e.Heads)
		if err != nil {
			return nil, err
		}
		return &differenceSet{
			snap: snap,
			a:    &ancestorsSet{snap: snap, heads: heads},
			b:    &ancestorsSet{snap: snap, heads: roots},
		}, nil
	case *UnionExpr:
		a, b, err := ev.compilePair(e.L, e.R)
		if err != nil {
			return nil, err
		}
		return &unionSet{snap: snap, a: a, b: b}, nil
	case *IntersectionExpr:
		a, b, err := ev.compilePair(e.L, e.R)
		if err != nil {
			return nil, err
		}
		return &intersectionSet{snap: snap, a: a, b: b}, nil
	case *DifferenceExpr:
		a, b, err := ev.compilePair(e.L, e.R)
		if err != nil {
			return nil, err
		}
		return &differenceSet{snap: snap, a: a, b: b}, nil
	case *ComplementExpr:
		of, err := ev.compile(e.Of)
		if err != nil {
			return nil, err
		}
		visible, err := ev.visible()
		if err != nil {
			return nil, err
		}
		return &differenceSet{snap: snap, a: visible, b: of}, nil
	case *FilterExpr:
		of, err := ev.compile(e.Of)
		if err != nil {
			return nil, err
		}
		pred, err := ev.predicate(e.Pred)
		if err != nil {
			return nil, err
		}
		return &filterSet{of: of, pred: pred}, nil
	case *PresentExpr:
		of, err := ev.compile(e.Of)
		var re *ResolveError
		if errors.As(err, &re) && errors.Is(err, dag.ErrNotFound) {
			return ev.explicit(nil), nil
		}
		return of, err
	}
	return nil, fmt.Errorf("revset: cannot evaluate %T", expr)
}

func (ev *evaluator) compilePair(l, r Expr) (set, set, error) {
	a, err := ev.compile(l)
	if err != nil {
		return nil, nil, err
	}
	b, err := ev.compile(r)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func (ev *evaluator) descendants(roots set) set {
	snap := ev.snap
	return &deferredSet{snap: snap, fn: func() ([]index.Pos, error) {
		ps, err := collect(roots.iter())
		if err != nil {
			return nil, err
		}
		mask := snap.DescendantsMask(ps)
		out := make([]index.Pos, 0, mask.Count())
		for i, ok := mask.NextSet(0); ok; i, ok = mask.NextSet(i + 1) {
			out = append(out, index.Pos(i))
		}
		return out, nil
	}}
}

// childrenOf returns the commits with a parent in ps.
func childrenOf(snap *index.Snapshot, ps []index.Pos) []index.Pos {
	if len(ps) == 0 {
		return nil
	}
	mask := snap.NewBitset()
	lowest := ps[0]
	for _, p := range ps {
		mask.Set(uint(p))
		lowest = min(lowest, p)
	}
	var out []index.Pos
	for p := lowest + 1; int(p) < snap.Len(); p++ {
		for _, q := range snap.Parents(p) {
			if mask.Test(uint(q)) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// rootsOf returns the members of ps that descend from no other member.
func rootsOf(snap *index.Snapshot, ps []index.Pos) []index.Pos {
	if len(ps) == 0 {
		return nil
	}
	member := snap.NewBitset()
	lowest := ps[0]
	for _, p := range ps {
		member.Set(uint(p))
		lowest = min(lowest, p)
	}
	// below marks commits with a member among their proper ancestors.
	below := snap.NewBitset()
	for p := lowest + 1; int(p) < snap.Len(); p++ {
		for _, q := range snap.Parents(p) {
			if member.Test(uint(q)) || below.Test(uint(q)) {
				below.Set(uint(p))
				break
			}
		}
	}
	var out []index.Pos
	for _, p := range ps {
		if !below.Test(uint(p)) {
			out = append(out, p)
		}
	}
	return out
}

// resolveSymbol looks name up as a branch, a full commit id, a unique
// commit id prefix and finally a unique change id prefix.
func (ev *evaluator) resolveSymbol(name string) ([]index.Pos, error) {
	view := ev.scope.View
	if targets := view.BranchTargets(name); len(targets) > 0 {
		ps, err := ev.lookupAll(targets)
		if err != nil {
			return nil, &ResolveError{Symbol: name, Err: err}
		}
		return ps, nil
	}
	if isHex(name) {
		if len(name) == 64 {
			if id, err := dag.ParseHex(name); err == nil {
				p, err := ev.lookup(id)
				if err != nil {
					return nil, &ResolveError{Symbol: name, Err: err}
				}
				return []index.Pos{p}, nil
			}
		}
		id, err := ev.snap.ResolvePrefix(name)
		switch {
		case err == nil:
			p, _ := ev.snap.Lookup(id)
			return []index.Pos{p}, nil
		case !errors.Is(err, dag.ErrNotFound):
			return nil, &ResolveError{Symbol: name, Err: err}
		}
	}
	if isChangePrefix(name) {
		ps, err := ev.snap.ResolveChangePrefix(name)
		if err != nil && !errors.Is(err, dag.ErrNotFound) {
			return nil, &ResolveError{Symbol: name, Err: err}
		}
		visible := ps[:0:0]
		for _, p := range ps {
			if !view.IsHidden(ev.snap.ID(p)) {
				visible = append(visible, p)
			}
		}
		if len(visible) > 0 {
			return visible, nil
		}
	}
	return nil, &ResolveError{Symbol: name, Err: dag.ErrNotFound}
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

func isChangePrefix(s string) bool {
	return s != "" && isHex(strings.ReplaceAll(s, "-", ""))
}
