package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/weft/internal/dag"
)

func newBackend(t *testing.T) *dag.Backend {
	t.Helper()
	b, err := dag.NewBackend(dag.NewMemoryStore(), 0)
	require.NoError(t, err)
	return b
}

// buildTree writes a tree from path -> content.
func buildTree(t *testing.T, b *dag.Backend, files map[string]string) dag.ID {
	t.Helper()
	tb := b.NewTreeBuilder(dag.ID{})
	for p, content := range files {
		id, err := b.WriteFile([]byte(content))
		require.NoError(t, err)
		tb.Set(p, dag.FileValue(id, false))
	}
	id, err := tb.Write()
	require.NoError(t, err)
	return id
}

func readPath(t *testing.T, b *dag.Backend, tree dag.ID, p string) (string, dag.TreeValue) {
	t.Helper()
	v, err := b.LookupPath(tree, p)
	require.NoError(t, err)
	if v.Kind != dag.ValueFile {
		return "", v
	}
	data, err := b.ReadFile(v.ID)
	require.NoError(t, err)
	return string(data), v
}

func TestTrees_SelfMergeIsIdentity(t *testing.T) {
	b := newBackend(t)
	tree := buildTree(t, b, map[string]string{"a": "1\n", "dir/b": "2\n"})
	got, err := Trees(b, tree, tree, tree)
	require.NoError(t, err)
	assert.Equal(t, tree, got)
}

func TestTrees_OneSideChanged(t *testing.T) {
	b := newBackend(t)
	base := buildTree(t, b, map[string]string{"a": "1\n", "b": "2\n"})
	side1 := buildTree(t, b, map[string]string{"a": "1\n", "b": "2\n", "c": "3\n"})

	got, err := Trees(b, base, side1, base)
	require.NoError(t, err)
	assert.Equal(t, side1, got)

	got, err = Trees(b, base, base, side1)
	require.NoError(t, err)
	assert.Equal(t, side1, got)
}

func TestTrees_BothDeleted(t *testing.T) {
	b := newBackend(t)
	base := buildTree(t, b, map[string]string{"a": "1\n", "b": "2\n"})
	side := buildTree(t, b, map[string]string{"b": "2\n"})
	got, err := Trees(b, base, side, side)
	require.NoError(t, err)
	assert.Equal(t, side, got)
}

func TestTrees_DisjointEditsInSubtrees(t *testing.T) {
	b := newBackend(t)
	base := buildTree(t, b, map[string]string{"x/a": "a\n", "y/b": "b\n"})
	side1 := buildTree(t, b, map[string]string{"x/a": "A\n", "y/b": "b\n"})
	side2 := buildTree(t, b, map[string]string{"x/a": "a\n", "y/b": "B\n"})

	got, err := Trees(b, base, side1, side2)
	require.NoError(t, err)
	want := buildTree(t, b, map[string]string{"x/a": "A\n", "y/b": "B\n"})
	assert.Equal(t, want, got)
}

func TestTrees_FileLevelMerge(t *testing.T) {
	b := newBackend(t)
	base := buildTree(t, b, map[string]string{"f": "1\n2\n3\n"})
	side1 := buildTree(t, b, map[string]string{"f": "one\n2\n3\n"})
	side2 := buildTree(t, b, map[string]string{"f": "1\n2\nthree\n"})

	got, err := Trees(b, base, side1, side2)
	require.NoError(t, err)
	content, _ := readPath(t, b, got, "f")
	assert.Equal(t, "one\n2\nthree\n", content)
}

func TestTrees_ConflictIsRecordedAsData(t *testing.T) {
	b := newBackend(t)
	base := buildTree(t, b, map[string]string{"f": "base\n"})
	side1 := buildTree(t, b, map[string]string{"f": "left\n"})
	side2 := buildTree(t, b, map[string]string{"f": "right\n"})

	got, err := Trees(b, base, side1, side2)
	require.NoError(t, err)
	_, v := readPath(t, b, got, "f")
	require.Equal(t, dag.ValueConflict, v.Kind)

	c, err := b.ReadConflict(v.ID)
	require.NoError(t, err)
	require.Len(t, c.Terms, 3)
	s1, _ := b.LookupPath(side1, "f")
	bv, _ := b.LookupPath(base, "f")
	s2, _ := b.LookupPath(side2, "f")
	assert.Equal(t, []dag.TreeValue{s1, bv, s2}, c.Terms)

	// Merging the conflicted tree with a side that picked "right" resolves it.
	resolved, err := Trees(b, got, got, side2)
	require.NoError(t, err)
	assert.Equal(t, side2, resolved)

	// Merging the conflict against a side that re-adds the base keeps three
	// terms instead of growing.
	again, err := Trees(b, base, got, base)
	require.NoError(t, err)
	_, v = readPath(t, b, again, "f")
	require.Equal(t, dag.ValueConflict, v.Kind)
	c, err = b.ReadConflict(v.ID)
	require.NoError(t, err)
	assert.Len(t, c.Terms, 3)
}

func TestTrees_ResolutionIndependentOfSideOrder(t *testing.T) {
	b := newBackend(t)
	base := buildTree(t, b, map[string]string{"a": "1\n", "b": "x\n"})
	side1 := buildTree(t, b, map[string]string{"a": "2\n", "b": "x\n"})
	side2 := buildTree(t, b, map[string]string{"a": "1\n", "b": "y\n", "c": "new\n"})

	m1, err := Trees(b, base, side1, side2)
	require.NoError(t, err)
	m2, err := Trees(b, base, side2, side1)
	require.NoError(t, err)
	assert.Equal(t, m1, m2)
}

func TestTrees_ModifyDeleteConflict(t *testing.T) {
	b := newBackend(t)
	base := buildTree(t, b, map[string]string{"f": "1\n", "g": "keep\n"})
	side1 := buildTree(t, b, map[string]string{"f": "2\n", "g": "keep\n"})
	side2 := buildTree(t, b, map[string]string{"g": "keep\n"})

	got, err := Trees(b, base, side1, side2)
	require.NoError(t, err)
	_, v := readPath(t, b, got, "f")
	require.Equal(t, dag.ValueConflict, v.Kind)
	c, err := b.ReadConflict(v.ID)
	require.NoError(t, err)
	assert.True(t, c.Terms[2].IsAbsent())
}
