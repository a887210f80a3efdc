package fuse

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/weft/internal/config"
	"github.com/systemshift/weft/internal/dag"
	"github.com/systemshift/weft/internal/repo"
)

func newTestMount(t *testing.T) *mount {
	t.Helper()
	cfg := config.Default()
	cfg.User.Name = "Mount Tester"
	cfg.User.Email = "mount@example.com"
	r, err := repo.Init(context.Background(), t.TempDir(), repo.WithConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return &mount{repo: r, logger: slog.Default()}
}

func TestEscapeName(t *testing.T) {
	for _, name := range []string{"main", "feature/x", "100%", "a%2Fb", "::main"} {
		escaped := escapeName(name)
		assert.NotContains(t, escaped, "/")
		assert.Equal(t, name, unescapeName(escaped), name)
	}
}

func TestCommitJSON(t *testing.T) {
	m := newTestMount(t)
	ctx := context.Background()
	v, errno := m.view(ctx)
	require.Equal(t, fs.OK, errno)
	wc, ok := v.WorkspaceCommit(repo.DefaultWorkspace)
	require.True(t, ok)
	c, err := m.repo.Backend().ReadCommit(wc)
	require.NoError(t, err)

	data, err := commitJSON(c)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, wc.Hex(), doc["id"])
	assert.Equal(t, []any{m.repo.Backend().RootCommitID().Hex()}, doc["parents"])
	assert.NotContains(t, doc, "predecessors")
}

func TestOpDir(t *testing.T) {
	m := newTestMount(t)
	ctx := context.Background()
	d := &OpDir{m: m}

	head, errno := d.head(ctx)
	require.Equal(t, fs.OK, errno)
	id, err := m.repo.HeadStore().ReadHead(ctx)
	require.NoError(t, err)
	assert.Equal(t, id.Hex()+"\n", string(head))

	newest, errno := d.nth(ctx, 0)
	require.Equal(t, fs.OK, errno)
	assert.Contains(t, string(newest), `"add workspace 'default'"`)
	oldest, errno := d.nth(ctx, 1)
	require.Equal(t, fs.OK, errno)
	assert.Contains(t, string(oldest), `"type": "init"`)

	_, errno = d.nth(ctx, 2)
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestRevsetDir_Evaluate(t *testing.T) {
	m := newTestMount(t)
	ctx := context.Background()
	root := m.repo.Backend().RootCommitID()

	d := &RevsetDir{m: m, expr: "root()", path: "revsets/root()"}
	ids, errno := d.evaluate(ctx)
	require.Equal(t, fs.OK, errno)
	assert.Equal(t, []dag.ID{root}, ids)

	d = &RevsetDir{m: m, expr: "nosuchbranch", path: "revsets/nosuchbranch"}
	_, errno = d.evaluate(ctx)
	assert.Equal(t, syscall.ENOENT, errno)

	d = &RevsetDir{m: m, expr: "heads(::", path: "revsets/x"}
	_, errno = d.evaluate(ctx)
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestTargetLines(t *testing.T) {
	a, _ := dag.ComputeID([]byte("a"))
	b, _ := dag.ComputeID([]byte("b"))
	lines := strings.Split(strings.TrimSpace(string(targetLines([]dag.ID{a, b}))), "\n")
	assert.Equal(t, []string{a.Hex(), b.Hex()}, lines)
	assert.Empty(t, targetLines(nil))
}
