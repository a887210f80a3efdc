package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := NewBackend(NewMemoryStore(), 16)
	require.NoError(t, err)
	return b
}

func writeFile(t *testing.T, b *Backend, content string) TreeValue {
	t.Helper()
	id, err := b.WriteFile([]byte(content))
	require.NoError(t, err)
	return FileValue(id, false)
}

func TestBackend_RootCommitIsShared(t *testing.T) {
	b1 := newTestBackend(t)
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	b2, err := NewBackend(fs, 0)
	require.NoError(t, err)

	assert.Equal(t, b1.RootCommitID(), b2.RootCommitID())
	assert.Equal(t, b1.EmptyTreeID(), b2.EmptyTreeID())

	root, err := b2.ReadCommit(b2.RootCommitID())
	require.NoError(t, err)
	assert.True(t, root.IsRoot())
	assert.Equal(t, RootChangeID, root.ChangeID)
}

func TestBackend_CommitRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	written, err := b.WriteCommit(&Commit{
		Parents:     []ID{b.RootCommitID()},
		ChangeID:    NewChangeID(),
		Description: "first",
		Author:      Signature{Name: "Ada", Email: "ada@example.com"},
	})
	require.NoError(t, err)
	assert.False(t, written.ID.IsZero())
	assert.Equal(t, b.EmptyTreeID(), written.Tree)

	// Bypass the cache by reading through a fresh backend over the same store.
	b2, err := NewBackend(b.Store(), 0)
	require.NoError(t, err)
	got, err := b2.ReadCommit(written.ID)
	require.NoError(t, err)
	assert.Equal(t, written.ID, got.ID)
	assert.Equal(t, written.Parents, got.Parents)
	assert.Equal(t, "first", got.Description)
	assert.Equal(t, "Ada", got.Author.Name)
}

func TestBackend_ReadCommitMissing(t *testing.T) {
	b := newTestBackend(t)
	id, err := ComputeID([]byte("nope"))
	require.NoError(t, err)
	_, err = b.ReadCommit(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTreeBuilder_NestedEdits(t *testing.T) {
	b := newTestBackend(t)
	tb := b.NewTreeBuilder(ID{})
	tb.Set("README", writeFile(t, b, "hi\n"))
	tb.Set("src/main.go", writeFile(t, b, "package main\n"))
	tb.Set("src/lib/util.go", writeFile(t, b, "package lib\n"))
	tree1, err := tb.Write()
	require.NoError(t, err)

	v, err := b.LookupPath(tree1, "src/lib/util.go")
	require.NoError(t, err)
	assert.Equal(t, ValueFile, v.Kind)

	tb = b.NewTreeBuilder(tree1)
	tb.Remove("src/lib/util.go")
	tree2, err := tb.Write()
	require.NoError(t, err)

	v, err = b.LookupPath(tree2, "src/lib")
	require.NoError(t, err)
	assert.True(t, v.IsAbsent(), "empty directories are pruned")

	changes, err := b.DiffTrees(tree1, tree2)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "src/lib/util.go", changes[0].Path)
	assert.True(t, changes[0].After.IsAbsent())
}

func TestTreeBuilder_RemoveEverythingGivesEmptyTree(t *testing.T) {
	b := newTestBackend(t)
	tb := b.NewTreeBuilder(ID{})
	tb.Set("a/b", writeFile(t, b, "x"))
	tree, err := tb.Write()
	require.NoError(t, err)

	tb = b.NewTreeBuilder(tree)
	tb.Remove("a/b")
	empty, err := tb.Write()
	require.NoError(t, err)
	assert.Equal(t, b.EmptyTreeID(), empty)
}

func TestDiffTrees_FileReplacedByDirectory(t *testing.T) {
	b := newTestBackend(t)
	tb := b.NewTreeBuilder(ID{})
	tb.Set("x", writeFile(t, b, "file"))
	before, err := tb.Write()
	require.NoError(t, err)

	tb = b.NewTreeBuilder(ID{})
	tb.Set("x/y", writeFile(t, b, "nested"))
	after, err := tb.Write()
	require.NoError(t, err)

	changes, err := b.DiffTrees(before, after)
	require.NoError(t, err)
	paths := make([]string, len(changes))
	for i, c := range changes {
		paths[i] = c.Path
	}
	assert.Equal(t, []string{"x", "x/y"}, paths)
}

func TestBackend_ChangedPathsAndConflicts(t *testing.T) {
	b := newTestBackend(t)

	tb := b.NewTreeBuilder(ID{})
	tb.Set("a.txt", writeFile(t, b, "a"))
	tree1, err := tb.Write()
	require.NoError(t, err)
	c1, err := b.WriteCommit(&Commit{Parents: []ID{b.RootCommitID()}, Tree: tree1, ChangeID: NewChangeID()})
	require.NoError(t, err)

	conflictID, err := b.WriteConflict(&Conflict{Terms: []TreeValue{
		writeFile(t, b, "left"), writeFile(t, b, "base"), writeFile(t, b, "right"),
	}})
	require.NoError(t, err)
	tb = b.NewTreeBuilder(tree1)
	tb.Set("dir/b.txt", ConflictRef(conflictID))
	tree2, err := tb.Write()
	require.NoError(t, err)
	c2, err := b.WriteCommit(&Commit{Parents: []ID{c1.ID}, Tree: tree2, ChangeID: NewChangeID()})
	require.NoError(t, err)

	paths, err := b.ChangedPaths(c1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, paths)

	paths, err = b.ChangedPaths(c2.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"dir/b.txt"}, paths)

	has, err := b.HasConflicts(c1.ID)
	require.NoError(t, err)
	assert.False(t, has)
	has, err = b.HasConflicts(c2.ID)
	require.NoError(t, err)
	assert.True(t, has)

	empty, err := b.IsEmpty(c1.ID)
	require.NoError(t, err)
	assert.False(t, empty)
	empty, err = b.IsEmpty(b.RootCommitID())
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestBackend_WriteConflictRejectsEvenTerms(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.WriteConflict(&Conflict{Terms: []TreeValue{Absent, Absent}})
	assert.Error(t, err)
}
