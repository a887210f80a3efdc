// Package repo ties the object store, commit index, operation log and
// revset evaluator into a repository, and provides transactions: the only
// way to change what the repository shows.
package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/systemshift/weft/internal/config"
	"github.com/systemshift/weft/internal/dag"
	"github.com/systemshift/weft/internal/index"
	"github.com/systemshift/weft/internal/op"
	"github.com/systemshift/weft/internal/revset"
)

// DirName is the directory holding repository state.
const DirName = ".weft"

// DefaultWorkspace is the workspace created by Init.
const DefaultWorkspace = revset.DefaultWorkspace

const metaFile = "meta.json"

type meta struct {
	FormatVersion int       `json:"format_version"`
	Created       time.Time `json:"created"`
	Backend       string    `json:"backend"`
	Compression   string    `json:"compression"`
}

// Repository is an open repository. It is safe for concurrent use; each
// Transaction is not.
type Repository struct {
	root      string
	dir       string
	cfg       *config.Config
	logger    *slog.Logger
	now       func() time.Time
	workspace string

	backend *dag.Backend
	closers []io.Closer
	ops     *op.Log
	heads   op.HeadStore
	index   *index.Index
}

type options struct {
	cfg       *config.Config
	logger    *slog.Logger
	now       func() time.Time
	workspace string
}

// Option configures Init and Open.
type Option func(*options)

// WithConfig sets the configuration. The default is config.Default.
func WithConfig(cfg *config.Config) Option { return func(o *options) { o.cfg = cfg } }

// WithLogger sets the logger. The default is slog.Default.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithClock sets the time source for commit and operation timestamps.
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithWorkspace selects the workspace "@" refers to.
func WithWorkspace(name string) Option { return func(o *options) { o.workspace = name } }

func buildOptions(opts []Option) options {
	o := options{workspace: DefaultWorkspace}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cfg == nil {
		o.cfg = config.Default()
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Init creates a repository at root. The storage backend comes from the
// configuration and is recorded so later opens use the same one. The new
// repository has the default workspace checked out on an empty commit.
func Init(ctx context.Context, root string, opts ...Option) (*Repository, error) {
	o := buildOptions(opts)
	dir := filepath.Join(root, DirName)
	if _, err := os.Stat(filepath.Join(dir, metaFile)); err == nil {
		return nil, fmt.Errorf("repository already exists at %s", root)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", dir, err)
	}

	m := meta{
		FormatVersion: dag.FormatVersion,
		Created:       o.now().UTC(),
		Backend:       o.cfg.Storage.Backend,
		Compression:   o.cfg.Storage.Compression,
	}
	r, err := open(root, m, o)
	if err != nil {
		return nil, err
	}

	rootView := op.EmptyView(r.backend.RootCommitID())
	viewID, err := r.ops.WriteView(rootView)
	if err != nil {
		r.Close()
		return nil, err
	}
	now := r.now().UTC()
	first, err := r.ops.WriteOperation(viewID, nil, op.Metadata{
		Start:       now,
		End:         now,
		Description: "initialize repository",
		Hostname:    r.cfg.Hostname(),
		Username:    r.cfg.Username(),
		Type:        op.TypeInit,
	})
	if err != nil {
		r.Close()
		return nil, err
	}
	if ok, err := r.heads.CompareAndSwap(ctx, dag.ID{}, first.ID); err != nil || !ok {
		r.Close()
		if err == nil {
			err = errors.New("operation head was set concurrently")
		}
		return nil, fmt.Errorf("initialize operation head: %w", err)
	}

	tx, err := r.Start(ctx, fmt.Sprintf("add workspace '%s'", o.workspace))
	if err != nil {
		r.Close()
		return nil, err
	}
	wc, err := tx.NewCommit(ctx, []dag.ID{r.backend.RootCommitID()}, r.backend.EmptyTreeID(), "")
	if err == nil {
		err = tx.SetWorkspaceCommit(o.workspace, wc.ID)
	}
	if err == nil {
		_, err = tx.Commit(ctx)
	}
	if err != nil {
		r.Close()
		return nil, err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		r.Close()
		return nil, err
	}
	if err := dag.SafeWrite(filepath.Join(dir, metaFile), data, 0o644); err != nil {
		r.Close()
		return nil, fmt.Errorf("write %s: %w", metaFile, err)
	}
	r.logger.Info("initialized repository", "path", root, "backend", m.Backend)
	return r, nil
}

// Open opens the repository at root. The repository's own config.yaml is
// not read here; callers load it with config.Load and pass WithConfig.
func Open(ctx context.Context, root string, opts ...Option) (*Repository, error) {
	o := buildOptions(opts)
	data, err := os.ReadFile(filepath.Join(root, DirName, metaFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", root, ErrNotRepository)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", metaFile, err)
	}
	var m meta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", metaFile, err)
	}
	if m.FormatVersion != dag.FormatVersion {
		return nil, &dag.UnsupportedFormatVersionError{Kind: "repository", Version: m.FormatVersion}
	}
	r, err := open(root, m, o)
	if err != nil {
		return nil, err
	}
	if _, err := r.heads.ReadHead(ctx); err != nil {
		r.Close()
		return nil, err
	}
	return r, nil
}

// Find walks up from dir to the nearest directory containing a repository.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, DirName, metaFile)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotRepository
		}
		dir = parent
	}
}

func open(root string, m meta, o options) (*Repository, error) {
	dir := filepath.Join(root, DirName)
	r := &Repository{
		root:      root,
		dir:       dir,
		cfg:       o.cfg,
		logger:    o.logger,
		now:       o.now,
		workspace: o.workspace,
	}

	var store dag.Store
	switch m.Backend {
	case "badger":
		db, err := dag.OpenBadger(dag.BadgerConfig{
			Path:       filepath.Join(dir, "db"),
			SyncWrites: true,
			Logger:     o.logger.With("component", "badger"),
		})
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, closerFunc(db.Close))
		store = dag.NewBadgerStore(db)
		r.heads = op.NewBadgerHeadStore(db)
	case "file", "":
		var fopts []dag.FileStoreOption
		if m.Compression == "zstd" {
			fopts = append(fopts, dag.WithCompression())
		}
		fs, err := dag.NewFileStore(filepath.Join(dir, "objects"), fopts...)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, fs)
		store = fs
		r.heads = op.NewFileHeadStore(filepath.Join(dir, "op_head"))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", m.Backend)
	}

	var err error
	if r.backend, err = dag.NewBackend(store, o.cfg.Storage.CacheSize); err != nil {
		r.Close()
		return nil, err
	}
	if r.ops, err = op.NewLog(store, o.cfg.Storage.CacheSize, o.logger); err != nil {
		r.Close()
		return nil, err
	}
	r.index = index.New(r.backend, o.logger)
	return r, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Close releases the repository's stores.
func (r *Repository) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i].Close())
	}
	r.closers = nil
	return errors.Join(errs...)
}

// Path returns the directory the repository was opened at.
func (r *Repository) Path() string { return r.root }

// ConfigPath returns the repository's own configuration file.
func (r *Repository) ConfigPath() string { return filepath.Join(r.dir, config.FileName) }

// Config returns the configuration the repository was opened with.
func (r *Repository) Config() *config.Config { return r.cfg }

// Backend returns the object backend.
func (r *Repository) Backend() *dag.Backend { return r.backend }

// OpLog returns the operation log.
func (r *Repository) OpLog() *op.Log { return r.ops }

// HeadStore returns the operation head pointer.
func (r *Repository) HeadStore() op.HeadStore { return r.heads }

// Workspace returns the workspace "@" refers to.
func (r *Repository) Workspace() string { return r.workspace }

// Head returns the current operation and its view.
func (r *Repository) Head(ctx context.Context) (*op.Operation, *op.View, error) {
	id, err := r.heads.ReadHead(ctx)
	if err != nil {
		return nil, nil, err
	}
	o, err := r.ops.ReadOperation(id)
	if err != nil {
		return nil, nil, err
	}
	v, err := r.ops.View(o)
	if err != nil {
		return nil, nil, err
	}
	return o, v, nil
}

// Index returns an index snapshot covering every commit v references.
func (r *Repository) Index(ctx context.Context, v *op.View) (*index.Snapshot, error) {
	snap, err := r.index.Update(ctx, v.Referenced())
	if err != nil {
		return nil, err
	}
	indexSize.Set(float64(snap.Len()))
	return snap, nil
}

// Query evaluates a revset against v using the configured aliases.
func (r *Repository) Query(ctx context.Context, v revsetView, input string) (*revset.Revset, error) {
	snap, err := r.index.Update(ctx, v.Referenced())
	if err != nil {
		return nil, err
	}
	scope := &revset.Scope{Index: snap, View: v, Store: r.backend, Workspace: r.workspace}
	return revset.Query(ctx, input, r.cfg.RevsetAliases, scope)
}

// revsetView is a view that revsets can be evaluated against.
type revsetView interface {
	revset.ViewState
	Referenced() []dag.ID
}

// ResolveOperation finds an operation by "@", hex prefix and trailing
// "-" steps, relative to the current head.
func (r *Repository) ResolveOperation(ctx context.Context, name string) (*op.Operation, error) {
	head, err := r.heads.ReadHead(ctx)
	if err != nil {
		return nil, err
	}
	return r.ops.Resolve(ctx, head, name)
}

// Operations returns up to limit operations, newest first. A limit of zero
// or less means all of them.
func (r *Repository) Operations(ctx context.Context, limit int) ([]*op.Operation, error) {
	head, err := r.heads.ReadHead(ctx)
	if err != nil {
		return nil, err
	}
	var out []*op.Operation
	for o, err := range r.ops.Walk(ctx, head) {
		if err != nil {
			return nil, err
		}
		out = append(out, o)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// normalize recomputes the heads of m: every head, branch target and
// workspace commit is a candidate; hidden candidates are replaced by their
// nearest visible ancestors; the result is reduced to the candidates no
// other candidate descends from.
func (r *Repository) normalize(ctx context.Context, m *op.MutableView) error {
	var candidates []dag.ID
	candidates = append(candidates, m.HeadIDs()...)
	for _, name := range m.BranchNames() {
		candidates = append(candidates, m.BranchTargets(name)...)
	}
	for _, name := range m.WorkspaceNames() {
		id, _ := m.WorkspaceCommit(name)
		candidates = append(candidates, id)
	}

	var visible []dag.ID
	seen := map[dag.ID]bool{}
	for len(candidates) > 0 {
		id := candidates[len(candidates)-1]
		candidates = candidates[:len(candidates)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		if !m.IsHidden(id) {
			visible = append(visible, id)
			continue
		}
		c, err := r.backend.ReadCommit(id)
		if err != nil {
			return err
		}
		candidates = append(candidates, c.Parents...)
	}
	if len(visible) == 0 {
		visible = []dag.ID{r.backend.RootCommitID()}
	}

	snap, err := r.index.Update(ctx, visible)
	if err != nil {
		return err
	}
	heads, err := snap.Heads(visible)
	if err != nil {
		return err
	}
	m.SetHeads(heads)
	return nil
}
