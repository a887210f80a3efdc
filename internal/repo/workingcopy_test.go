package repo

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/weft/internal/dag"
)

type fakeWorkingCopy struct {
	tree       dag.ID
	checkedOut *dag.Commit
}

func (w *fakeWorkingCopy) Checkout(_ context.Context, c *dag.Commit) error {
	w.checkedOut = c
	w.tree = c.Tree
	return nil
}

func (w *fakeWorkingCopy) Snapshot(context.Context) (dag.ID, error) { return w.tree, nil }

func TestSnapshotWorkingCopy(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	b := r.Backend()
	wc := workingCopyCommit(t, r)
	before, _ := headView(t, r)

	fake := &fakeWorkingCopy{tree: b.EmptyTreeID()}
	got, err := r.SnapshotWorkingCopy(ctx, DefaultWorkspace, fake)
	require.NoError(t, err)
	assert.Nil(t, got)
	after, _ := headView(t, r)
	assert.Equal(t, before.ID, after.ID, "an unchanged snapshot records nothing")

	fake.tree = treeWith(t, b, b.EmptyTreeID(), "notes.txt", "hello\n")
	got, err = r.SnapshotWorkingCopy(ctx, DefaultWorkspace, fake)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fake.tree, got.Tree)
	assert.Equal(t, []dag.ID{wc}, got.Predecessors)
	assert.Equal(t, got.ID, workingCopyCommit(t, r))
	assert.Equal(t, []dag.ID{got.ID}, query(t, r, "@"))

	_, err = r.SnapshotWorkingCopy(ctx, "elsewhere", fake)
	assert.ErrorIs(t, err, dag.ErrNotFound)
}

func TestCheckoutWorkspace_KeepsChangedCommit(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	b := r.Backend()
	fake := &fakeWorkingCopy{tree: treeWith(t, b, b.EmptyTreeID(), "a.txt", "a\n")}
	edited, err := r.SnapshotWorkingCopy(ctx, DefaultWorkspace, fake)
	require.NoError(t, err)

	c, err := r.CheckoutWorkspace(ctx, DefaultWorkspace, edited.ID, fake)
	require.NoError(t, err)
	assert.Equal(t, []dag.ID{edited.ID}, c.Parents)
	assert.Equal(t, edited.Tree, c.Tree)
	assert.Same(t, c, fake.checkedOut)
	assert.Equal(t, c.ID, workingCopyCommit(t, r))
	assert.Contains(t, query(t, r, "all()"), edited.ID)
}

func TestCheckoutWorkspace_DiscardsEmptyCommit(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	b := r.Backend()
	empty := workingCopyCommit(t, r)
	x := commitOn(t, r, b.RootCommitID(), treeWith(t, b, b.EmptyTreeID(), "x", "x\n"), "x")

	fake := &fakeWorkingCopy{}
	c, err := r.CheckoutWorkspace(ctx, DefaultWorkspace, x.ID, fake)
	require.NoError(t, err)
	assert.Equal(t, x.Tree, fake.tree)

	all := query(t, r, "all()")
	assert.NotContains(t, all, empty)
	assert.Contains(t, all, c.ID)
	assert.Equal(t, []dag.ID{c.ID}, query(t, r, "visible_heads()"))
}

func TestWatchHead_FileStore(t *testing.T) {
	r := newTestRepo(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start, _ := headView(t, r)
	ch, err := r.WatchHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, start.ID, <-ch)

	commitOn(t, r, r.Backend().RootCommitID(), dag.ID{}, "watched")
	moved, _ := headView(t, r)
	select {
	case id := <-ch:
		assert.Equal(t, moved.ID, id)
	case <-ctx.Done():
		t.Fatal("no head change reported")
	}

	cancel()
	for range ch {
	}
}

func TestWatchHead_Polling(t *testing.T) {
	saved := watchPoll
	watchPoll = 10 * time.Millisecond
	defer func() { watchPoll = saved }()

	cfg := testConfig()
	cfg.Storage.Backend = "badger"
	r := initRepo(t, t.TempDir(), cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ch, err := r.WatchHead(ctx)
	require.NoError(t, err)
	<-ch

	commitOn(t, r, r.Backend().RootCommitID(), dag.ID{}, "polled")
	moved, _ := headView(t, r)
	select {
	case id := <-ch:
		assert.Equal(t, moved.ID, id)
	case <-ctx.Done():
		t.Fatal("no head change reported")
	}
	cancel()
	for range ch {
	}
}
