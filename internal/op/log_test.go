package op

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/weft/internal/dag"
)

func newTestLog(t *testing.T) (*Log, dag.Store) {
	t.Helper()
	store := dag.NewMemoryStore()
	l, err := NewLog(store, 0, nil)
	require.NoError(t, err)
	return l, store
}

func writeOp(t *testing.T, l *Log, desc string, parents ...dag.ID) *Operation {
	t.Helper()
	viewID, err := l.WriteView(EmptyView(testID(t, desc)))
	require.NoError(t, err)
	o, err := l.WriteOperation(viewID, parents, Metadata{
		Start:       time.Unix(100, 0).UTC(),
		End:         time.Unix(101, 0).UTC(),
		Description: desc,
		Type:        TypeEdit,
	})
	require.NoError(t, err)
	return o
}

func TestLog_ViewRoundTrip(t *testing.T) {
	l, store := newTestLog(t)
	a, b := testID(t, "a"), testID(t, "b")
	m := EmptyView(a).Edit()
	m.AddHead(b)
	m.Hide(testID(t, "gone"))
	m.SetBranch("main", a, b)
	m.SetWorkspace("default", Checkout{Commit: b, Conflict: true})
	v := m.Freeze()

	id, err := l.WriteView(v)
	require.NoError(t, err)

	fresh, err := NewLog(store, 0, nil)
	require.NoError(t, err)
	got, err := fresh.ReadView(id)
	require.NoError(t, err)
	assert.True(t, got.Equal(v))

	again, err := l.WriteView(got)
	require.NoError(t, err)
	assert.Equal(t, id, again, "view encoding must be deterministic")
}

func TestLog_OperationRoundTrip(t *testing.T) {
	l, store := newTestLog(t)
	root := writeOp(t, l, "root")
	child := writeOp(t, l, "child", root.ID)

	fresh, err := NewLog(store, 0, nil)
	require.NoError(t, err)
	got, err := fresh.ReadOperation(child.ID)
	require.NoError(t, err)
	assert.Equal(t, []dag.ID{root.ID}, got.Parents)
	assert.Equal(t, 1, got.Height)
	assert.Equal(t, "child", got.Metadata.Description)
	assert.True(t, got.Metadata.Start.Equal(time.Unix(100, 0)))
}

func TestLog_Heights(t *testing.T) {
	l, _ := newTestLog(t)
	root := writeOp(t, l, "root")
	a := writeOp(t, l, "a", root.ID)
	b1 := writeOp(t, l, "b1", root.ID)
	b2 := writeOp(t, l, "b2", b1.ID)
	m := writeOp(t, l, "m", a.ID, b2.ID)

	assert.Equal(t, 0, root.Height)
	assert.Equal(t, 1, a.Height)
	assert.Equal(t, 2, b2.Height)
	assert.Equal(t, 3, m.Height)
	assert.True(t, m.IsMerge())
}

func TestLog_WalkNewestFirst(t *testing.T) {
	l, _ := newTestLog(t)
	root := writeOp(t, l, "root")
	a := writeOp(t, l, "a", root.ID)
	b := writeOp(t, l, "b", a.ID)
	c := writeOp(t, l, "c", a.ID)
	m := writeOp(t, l, "m", b.ID, c.ID)

	var got []string
	for o, err := range l.Walk(context.Background(), m.ID) {
		require.NoError(t, err)
		got = append(got, o.Metadata.Description)
	}
	require.Len(t, got, 5)
	assert.Equal(t, "m", got[0])
	assert.ElementsMatch(t, []string{"b", "c"}, got[1:3])
	assert.Equal(t, []string{"a", "root"}, got[3:])
}

func TestLog_CommonAncestor(t *testing.T) {
	l, _ := newTestLog(t)
	ctx := context.Background()
	root := writeOp(t, l, "root")
	a := writeOp(t, l, "a", root.ID)
	b := writeOp(t, l, "b", a.ID)
	c := writeOp(t, l, "c", a.ID)
	d := writeOp(t, l, "d", c.ID)

	lca, err := l.CommonAncestor(ctx, b.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, lca.ID)

	lca, err = l.CommonAncestor(ctx, a.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, lca.ID)

	lca, err = l.CommonAncestor(ctx, d.ID, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, lca.ID)
}

func TestLog_CommonAncestorCrissCross(t *testing.T) {
	l, _ := newTestLog(t)
	root := writeOp(t, l, "root")
	x := writeOp(t, l, "x", root.ID)
	y := writeOp(t, l, "y", root.ID)
	m1 := writeOp(t, l, "m1", x.ID, y.ID)
	m2 := writeOp(t, l, "m2", y.ID, x.ID)

	lca, err := l.CommonAncestor(context.Background(), m1.ID, m2.ID)
	require.NoError(t, err)
	want := x
	if y.ID.Compare(x.ID) > 0 {
		want = y
	}
	assert.Equal(t, want.ID, lca.ID, "ties go to the greatest id")
}

func TestLog_MissingParentIsCorrupt(t *testing.T) {
	l, store := newTestLog(t)
	ghost := testID(t, "ghost")
	_, err := l.WriteOperation(testID(t, "view"), []dag.ID{ghost}, Metadata{})
	var corrupt *CorruptOperationLogError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, ghost, corrupt.ID)

	// A record that names a missing parent is caught when walking.
	data, err := dag.EncodeRecord(dag.KindOperation, &Operation{Parents: []dag.ID{ghost}, Height: 1})
	require.NoError(t, err)
	id, err := store.Put(data)
	require.NoError(t, err)
	for _, err = range l.Walk(context.Background(), id) {
		if err != nil {
			break
		}
	}
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, id, corrupt.ID)
}

func TestLog_HeightInversionIsCycle(t *testing.T) {
	l, store := newTestLog(t)
	put := func(o *Operation) dag.ID {
		data, err := dag.EncodeRecord(dag.KindOperation, o)
		require.NoError(t, err)
		id, err := store.Put(data)
		require.NoError(t, err)
		return id
	}
	parent := put(&Operation{Parents: []dag.ID{}, Height: 5})
	child := put(&Operation{Parents: []dag.ID{parent}, Height: 1})

	_, err := l.CommonAncestor(context.Background(), child, parent)
	var corrupt *CorruptOperationLogError
	require.ErrorAs(t, err, &corrupt)
	assert.Contains(t, corrupt.Reason, "cycle")
}

func TestLog_Resolve(t *testing.T) {
	l, _ := newTestLog(t)
	ctx := context.Background()
	root := writeOp(t, l, "root")
	a := writeOp(t, l, "a", root.ID)
	b := writeOp(t, l, "b", a.ID)

	got, err := l.Resolve(ctx, b.ID, "@")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)

	got, err = l.Resolve(ctx, b.ID, "@--")
	require.NoError(t, err)
	assert.Equal(t, root.ID, got.ID)

	got, err = l.Resolve(ctx, b.ID, a.ID.Hex()[:10])
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	got, err = l.Resolve(ctx, b.ID, a.ID.Hex()[:10]+"-")
	require.NoError(t, err)
	assert.Equal(t, root.ID, got.ID)

	_, err = l.Resolve(ctx, b.ID, "@---")
	assert.ErrorIs(t, err, dag.ErrNotFound)

	_, err = l.Resolve(ctx, b.ID, "zzzz")
	assert.ErrorIs(t, err, dag.ErrNotFound)

	_, err = l.Resolve(ctx, b.ID, "")
	assert.True(t, errors.Is(err, ErrAmbiguousOperation) || errors.Is(err, dag.ErrNotFound))
}
