package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func terms(ss ...string) Merge[string] {
	m, err := FromTerms(ss)
	if err != nil {
		panic(err)
	}
	return m
}

func TestNew_Interleaves(t *testing.T) {
	m := New([]string{"a0", "a1", "a2"}, []string{"r0", "r1"})
	assert.Equal(t, []string{"a0", "r0", "a1", "r1", "a2"}, m.Terms())
	assert.Equal(t, []string{"a0", "a1", "a2"}, m.Adds())
	assert.Equal(t, []string{"r0", "r1"}, m.Removes())
	assert.Panics(t, func() { New([]string{"a"}, []string{"r"}) })
}

func TestFromTerms_RejectsEven(t *testing.T) {
	_, err := FromTerms([]string{"a", "b"})
	assert.Error(t, err)
}

func TestSimplify(t *testing.T) {
	tests := []struct {
		name string
		in   Merge[string]
		want []string
	}{
		{"resolved", terms("a"), []string{"a"}},
		{"side1 unchanged", terms("base", "base", "b"), []string{"b"}},
		{"side2 unchanged", terms("a", "base", "base"), []string{"a"}},
		{"real conflict", terms("a", "base", "b"), []string{"a", "base", "b"}},
		{"nested cancellation", terms("a", "x", "b", "a", "c"), []string{"b", "x", "c"}},
		{"all cancel but one", terms("a", "b", "b", "a", "c"), []string{"c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Simplify().Terms())
		})
	}
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		in   Merge[string]
		want string
		ok   bool
	}{
		{"single", terms("a"), "a", true},
		{"same change both sides", terms("b", "a", "b"), "b", true},
		{"only side2 changed", terms("a", "a", "b"), "b", true},
		{"only side1 changed", terms("b", "a", "a"), "b", true},
		{"conflict", terms("b", "a", "c"), "", false},
		{"five way one survivor", terms("a", "b", "b", "c", "c"), "a", true},
		{"five way same change", terms("x", "a", "x", "a", "x"), "x", true},
		{"five way conflict", terms("x", "a", "y", "a", "x"), "", false},
		{"two survivors take the positive one", terms("x", "a", "x", "b", "b"), "x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.in.Resolve()
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFlatten_NegatesRemovedMerges(t *testing.T) {
	outer := []Merge[string]{
		terms("a", "base", "b"),
		terms("c", "d", "e"),
		terms("f"),
	}
	got := Flatten(outer)
	assert.Equal(t, []string{"a", "base", "b", "e", "d", "c", "f"}, got.Terms())
	assert.Equal(t, 7, got.Len())
}

func TestMerge3_SelfMergeIsIdentity(t *testing.T) {
	for _, m := range []Merge[string]{terms("a"), terms("a", "base", "b"), terms("a", "b", "c", "d", "e")} {
		got := Merge3(m, m, m)
		assert.True(t, got.Equal(m), "merge(T,T,T) = %v, want %v", got.Terms(), m.Terms())
	}
}

func TestMerge3_ResolvingAConflictCancelsTerms(t *testing.T) {
	conflict := terms("a", "base", "b")

	// One side keeps the conflict, the other resolves it to "b".
	got := Merge3(conflict, conflict, Resolved("b"))
	assert.Equal(t, []string{"b"}, got.Terms())

	// One side re-adds base against the conflict; base cancels instead of
	// growing the term list.
	got = Merge3(Resolved("base"), conflict, Resolved("base"))
	assert.Equal(t, 3, got.Len())
	v, ok := Merge3(Resolved("base"), conflict, Resolved("a")).Resolve()
	assert.False(t, ok, "resolved to %q", v)
}

func TestMerge3_ResolutionIsOrderIndependent(t *testing.T) {
	pairs := [][2]string{{"a", "a"}, {"a", "base"}, {"base", "b"}, {"a", "b"}}
	for _, p := range pairs {
		m1 := ThreeWay("base", p[0], p[1])
		m2 := ThreeWay("base", p[1], p[0])
		v1, ok1 := m1.Simplify().Resolve()
		v2, ok2 := m2.Simplify().Resolve()
		require.Equal(t, ok1, ok2, "pair %v", p)
		assert.Equal(t, v1, v2, "pair %v", p)
	}
}

func TestMap(t *testing.T) {
	m := Map(terms("a", "bb", "ccc"), func(s string) int { return len(s) })
	assert.Equal(t, []int{1, 2, 3}, m.Terms())
}
