package revset

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/weft/internal/dag"
	"github.com/systemshift/weft/internal/index"
)

type fakeView struct {
	heads      []dag.ID
	hidden     map[dag.ID]bool
	branches   map[string][]dag.ID
	workspaces map[string]dag.ID
}

func (v *fakeView) HeadIDs() []dag.ID                  { return v.heads }
func (v *fakeView) IsHidden(id dag.ID) bool            { return v.hidden[id] }
func (v *fakeView) BranchTargets(name string) []dag.ID { return v.branches[name] }

func (v *fakeView) BranchNames() []string {
	var names []string
	for name := range v.branches {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (v *fakeView) WorkspaceNames() []string {
	var names []string
	for name := range v.workspaces {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (v *fakeView) WorkspaceCommit(name string) (dag.ID, bool) {
	id, ok := v.workspaces[name]
	return id, ok
}

// fixture is the graph
//
//	  m        (merge of c and d, working copy)
//	 / \
//	c   d      c = main, d = feature
//	|   |
//	b   |   e  (e is hidden)
//	 \  |  /
//	    a
//	    |
//	  root
type fixture struct {
	t     *testing.T
	b     *dag.Backend
	view  *fakeView
	scope *Scope
	n     int

	root, a, b_, c, d, e, m dag.ID
	changeOf                map[dag.ID]string
}

func day(month time.Month, d int) time.Time { return time.Date(2024, month, d, 0, 0, 0, 0, time.UTC) }

func (f *fixture) commit(parents []dag.ID, who, email, desc string, when time.Time, files ...string) dag.ID {
	f.t.Helper()
	f.n++
	parent, err := f.b.ReadCommit(parents[0])
	require.NoError(f.t, err)
	tb := f.b.NewTreeBuilder(parent.Tree)
	for _, p := range parents[1:] {
		other, err := f.b.ReadCommit(p)
		require.NoError(f.t, err)
		require.NoError(f.t, f.b.WalkTree(other.Tree, func(path string, v dag.TreeValue) error {
			tb.Set(path, v)
			return nil
		}))
	}
	for _, path := range files {
		id, err := f.b.WriteFile([]byte(path + " contents\n"))
		require.NoError(f.t, err)
		tb.Set(path, dag.FileValue(id, false))
	}
	tree, err := tb.Write()
	require.NoError(f.t, err)
	sig := dag.Signature{Name: who, Email: email, Timestamp: when}
	change := fmt.Sprintf("c%07d-0000-4000-8000-000000000000", f.n)
	c, err := f.b.WriteCommit(&dag.Commit{
		Parents:     parents,
		Tree:        tree,
		ChangeID:    change,
		Description: desc,
		Author:      sig,
		Committer:   sig,
	})
	require.NoError(f.t, err)
	f.changeOf[c.ID] = change
	return c.ID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	b, err := dag.NewBackend(dag.NewMemoryStore(), 0)
	require.NoError(t, err)
	f := &fixture{t: t, b: b, root: b.RootCommitID(), changeOf: map[dag.ID]string{}}

	f.a = f.commit([]dag.ID{f.root}, "Alice", "alice@example.com", "add a", day(time.January, 1), "src/a.go")
	f.b_ = f.commit([]dag.ID{f.a}, "Alice", "alice@example.com", "add b", day(time.February, 1), "src/b.go")
	f.c = f.commit([]dag.ID{f.b_}, "Bob", "bob@example.com", "write docs", day(time.March, 1), "docs/readme.md")
	f.d = f.commit([]dag.ID{f.a}, "Bob", "bob@example.com", "feature d", day(time.March, 15), "src/d.go")
	f.e = f.commit([]dag.ID{f.a}, "Eve", "eve@example.com", "abandoned", day(time.March, 20), "tmp/e")
	f.m = f.commit([]dag.ID{f.c, f.d}, "Alice", "alice@example.com", "merge feature", day(time.April, 1))

	f.view = &fakeView{
		heads:      []dag.ID{f.m},
		hidden:     map[dag.ID]bool{f.e: true},
		branches:   map[string][]dag.ID{"main": {f.c}, "feature": {f.d}},
		workspaces: map[string]dag.ID{"default": f.m, "docs": f.c},
	}
	idx := index.New(b, nil)
	snap, err := idx.Update(context.Background(), []dag.ID{f.m, f.e})
	require.NoError(t, err)
	f.scope = &Scope{Index: snap, View: f.view, Store: b}
	return f
}

func (f *fixture) eval(input string) []dag.ID {
	f.t.Helper()
	rs, err := Query(context.Background(), input, nil, f.scope)
	require.NoError(f.t, err, input)
	ids, err := rs.IDs()
	require.NoError(f.t, err, input)
	return ids
}

func (f *fixture) want(ids ...dag.ID) []dag.ID {
	f.t.Helper()
	if len(ids) == 0 {
		return nil
	}
	out, err := f.scope.Index.TopoOrder(ids)
	require.NoError(f.t, err)
	return out
}

func TestEvaluate_GraphOperators(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		input string
		want  []dag.ID
	}{
		{"all()", f.want(f.root, f.a, f.b_, f.c, f.d, f.m)},
		{"::", f.want(f.root, f.a, f.b_, f.c, f.d, f.m)},
		{"..", f.want(f.a, f.b_, f.c, f.d, f.m)},
		{"none()", nil},
		{"root()", f.want(f.root)},
		{"visible_heads()", f.want(f.m)},
		{"heads()", f.want(f.m)},
		{"main", f.want(f.c)},
		{"::main", f.want(f.c, f.b_, f.a, f.root)},
		{"main::", f.want(f.c, f.m)},
		{"main..feature", f.want(f.d)},
		{"feature..main", f.want(f.c, f.b_)},
		{"..feature", f.want(f.d, f.a)},
		{"main..", f.want(f.d, f.m)},
		{"main-", f.want(f.b_)},
		{"main--", f.want(f.a)},
		{"main+", f.want(f.m)},
		{"@", f.want(f.m)},
		{"@-", f.want(f.c, f.d)},
		{"docs@", f.want(f.c)},
		{"working_copies()", f.want(f.m, f.c)},
		{"branches()", f.want(f.c, f.d)},
		{`branches(exact:"feature")`, f.want(f.d)},
		{"main | feature", f.want(f.c, f.d)},
		{"::main & ::feature", f.want(f.a, f.root)},
		{"::main ~ ::feature", f.want(f.c, f.b_)},
		{"~::main", f.want(f.d, f.m)},
		{"heads(::main | feature)", f.want(f.c, f.d)},
		{"roots(main | feature | main-)", f.want(f.b_, f.d)},
		{"roots(all())", f.want(f.root)},
		{"parents(@ | main)", f.want(f.c, f.d, f.b_)},
		{"children(main--)", f.want(f.b_, f.d)},
		{"descendants(feature)", f.want(f.d, f.m)},
		{"ancestors(@, 1)", f.want(f.m)},
		{"ancestors(@, 2)", f.want(f.m, f.c, f.d)},
		{"ancestors(@, 3)", f.want(f.m, f.c, f.d, f.b_, f.a)},
		{"present(nosuch)", nil},
		{"present(main)", f.want(f.c)},
		{"present(nosuch) | main", f.want(f.c)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f.t = t
			assert.Equal(t, tt.want, f.eval(tt.input))
		})
	}
}

func TestEvaluate_DagRange(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, f.want(f.d, f.m), f.eval("feature::"+f.m.Hex()))
	assert.Equal(t, f.want(f.a, f.b_, f.c, f.d, f.m), f.eval(f.a.Hex()+"::"))
	assert.Nil(t, f.eval("main::feature"))
}

func TestEvaluate_Predicates(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		input string
		want  []dag.ID
	}{
		{"merges()", f.want(f.m)},
		{"author(Bob)", f.want(f.c, f.d)},
		{`author(exact:"bob@example.com")`, f.want(f.c, f.d)},
		{`author(exact:"Bob Smith")`, nil},
		{`committer(glob:"*@example.com") & ::main`, f.want(f.c, f.b_, f.a)},
		{`description(glob:"add *")`, f.want(f.b_, f.a)},
		{`description("docs")`, f.want(f.c)},
		{`file("src")`, f.want(f.m, f.d, f.b_, f.a)},
		{`file("docs/*.md")`, f.want(f.c)},
		{`file("tmp")`, nil},
		{`date("2024-03-01T00:00:00Z", "2024-04-01T00:00:00Z")`, f.want(f.c, f.d)},
		{`date("2024-03-10T00:00:00Z")`, f.want(f.d, f.m)},
		{"empty()", f.want(f.root)},
		{"conflicts()", nil},
		{"::main & author(Alice)", f.want(f.b_, f.a)},
		{"author(Alice) & ~merges()", f.want(f.b_, f.a)},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f.t = t
			assert.Equal(t, tt.want, f.eval(tt.input))
		})
	}
}

func TestEvaluate_SymbolResolution(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, f.want(f.d), f.eval(f.d.Hex()))
	assert.Equal(t, f.want(f.d), f.eval(f.d.Hex()[:12]))
	assert.Equal(t, f.want(f.b_), f.eval(f.changeOf[f.b_][:8]))

	rs, err := Query(context.Background(), "nosuch", nil, f.scope)
	assert.Nil(t, rs)
	var re *ResolveError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "nosuch", re.Symbol)
	assert.ErrorIs(t, err, dag.ErrNotFound)

	// The only commit with e's change id is hidden.
	_, err = Query(context.Background(), f.changeOf[f.e][:8], nil, f.scope)
	assert.ErrorIs(t, err, dag.ErrNotFound)

	_, err = Query(context.Background(), "nowhere@", nil, f.scope)
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "nowhere@", re.Symbol)

}

func TestEvaluate_AmbiguousPrefix(t *testing.T) {
	b, err := dag.NewBackend(dag.NewMemoryStore(), 0)
	require.NoError(t, err)
	tip := b.RootCommitID()
	// Seventeen commits share sixteen possible leading hex digits.
	for i := 0; i < 17; i++ {
		c, err := b.WriteCommit(&dag.Commit{Parents: []dag.ID{tip}, Description: fmt.Sprintf("%d", i)})
		require.NoError(t, err)
		tip = c.ID
	}
	snap, err := index.New(b, nil).Update(context.Background(), []dag.ID{tip})
	require.NoError(t, err)
	scope := &Scope{Index: snap, View: &fakeView{heads: []dag.ID{tip}}, Store: b}

	found := false
	for _, digit := range "0123456789abcdef" {
		_, err := Query(context.Background(), string(digit), nil, scope)
		var amb *index.AmbiguousPrefixError
		if errors.As(err, &amb) {
			found = true
			break
		}
	}
	assert.True(t, found)
}

func TestEvaluate_BranchWinsOverPrefix(t *testing.T) {
	f := newFixture(t)
	prefix := f.d.Hex()[:6]
	f.view.branches[prefix] = []dag.ID{f.c}
	assert.Equal(t, f.want(f.c), f.eval(prefix))
}

func TestEvaluate_Aliases(t *testing.T) {
	f := newFixture(t)
	aliases := map[string]string{"trunk": "main", "tip": "heads(::trunk)"}
	rs, err := Query(context.Background(), "tip | feature", aliases, f.scope)
	require.NoError(t, err)
	ids, err := rs.IDs()
	require.NoError(t, err)
	assert.Equal(t, f.want(f.c, f.d), ids)
}

func TestEvaluate_Deterministic(t *testing.T) {
	f := newFixture(t)
	for _, input := range []string{"all()", "feature | main | root()", "main | root() | feature", "::@ ~ ::feature"} {
		rs, err := Query(context.Background(), input, nil, f.scope)
		require.NoError(t, err)
		first, err := rs.IDs()
		require.NoError(t, err)
		second, err := rs.IDs()
		require.NoError(t, err)
		assert.Equal(t, first, second, input)
	}
	assert.Equal(t, f.eval("feature | main | root()"), f.eval("root() | main | feature"))
}

func TestEvaluate_IterStopsEarly(t *testing.T) {
	f := newFixture(t)
	rs, err := Query(context.Background(), "::@", nil, f.scope)
	require.NoError(t, err)
	var got []dag.ID
	for id, err := range rs.Iter() {
		require.NoError(t, err)
		got = append(got, id)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, f.want(f.m, f.c, f.d)[:2], got)

	first, ok, err := rs.First()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, f.m, first)
}

// countingStore counts commit reads to observe how far a walk went.
type countingStore struct {
	*dag.Backend
	reads int
}

func (s *countingStore) ReadCommit(id dag.ID) (*dag.Commit, error) {
	s.reads++
	return s.Backend.ReadCommit(id)
}

func TestEvaluate_LazyFilter(t *testing.T) {
	b, err := dag.NewBackend(dag.NewMemoryStore(), 0)
	require.NoError(t, err)
	tip := b.RootCommitID()
	for i := 0; i < 200; i++ {
		c, err := b.WriteCommit(&dag.Commit{
			Parents:     []dag.ID{tip},
			ChangeID:    fmt.Sprintf("%08d-chain", i),
			Description: fmt.Sprintf("step %d", i),
		})
		require.NoError(t, err)
		tip = c.ID
	}
	idx := index.New(b, nil)
	snap, err := idx.Update(context.Background(), []dag.ID{tip})
	require.NoError(t, err)

	store := &countingStore{Backend: b}
	scope := &Scope{Index: snap, View: &fakeView{heads: []dag.ID{tip}}, Store: store}
	rs, err := Query(context.Background(), `::`+tip.Hex()+` & description("step")`, nil, scope)
	require.NoError(t, err)
	id, ok, err := rs.First()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tip, id)
	assert.Less(t, store.reads, 5, "taking the first match must not read the whole chain")
}

func TestEvaluate_CanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Query(ctx, "all()", nil, f.scope)
	assert.ErrorIs(t, err, context.Canceled)
}
