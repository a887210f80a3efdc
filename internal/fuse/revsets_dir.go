package fuse

import (
	"context"
	"slices"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/weft/internal/dag"
)

// RevsetsDir is the /revsets/ directory. Looking up a name evaluates it as
// a revset ('/' written as %2F); the result is a directory of symlinks into
// commits/.
type RevsetsDir struct {
	fs.Inode
	m *mount
}

var _ = (fs.NodeLookuper)((*RevsetsDir)(nil))
var _ = (fs.NodeReaddirer)((*RevsetsDir)(nil))
var _ = (fs.NodeGetattrer)((*RevsetsDir)(nil))

func (d *RevsetsDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return dirAttr("revsets", out)
}

func (d *RevsetsDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	return fs.NewListDirStream(nil), fs.OK
}

func (d *RevsetsDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	dir := &RevsetDir{m: d.m, expr: unescapeName(name), path: "revsets/" + name}
	if _, errno := dir.evaluate(ctx); errno != fs.OK {
		return nil, errno
	}
	child := d.NewInode(ctx, dir, fs.StableAttr{Mode: syscall.S_IFDIR, Ino: stableIno(dir.path)})
	return child, fs.OK
}

// RevsetDir is /revsets/{expr}/, re-evaluated on every listing.
type RevsetDir struct {
	fs.Inode
	m    *mount
	expr string
	path string
}

var _ = (fs.NodeLookuper)((*RevsetDir)(nil))
var _ = (fs.NodeReaddirer)((*RevsetDir)(nil))
var _ = (fs.NodeGetattrer)((*RevsetDir)(nil))

func (d *RevsetDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return dirAttr(d.path, out)
}

// evaluate runs the revset. Expressions that fail to parse or resolve
// do not exist.
func (d *RevsetDir) evaluate(ctx context.Context) ([]dag.ID, syscall.Errno) {
	v, errno := d.m.view(ctx)
	if errno != fs.OK {
		return nil, errno
	}
	rs, err := d.m.repo.Query(ctx, v, d.expr)
	if err != nil {
		d.m.logger.Debug("revset lookup failed", "revset", d.expr, "error", err)
		return nil, syscall.ENOENT
	}
	ids, err := rs.IDs()
	if err != nil {
		return nil, d.m.errno("evaluate revset", err)
	}
	return ids, fs.OK
}

func (d *RevsetDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	ids, errno := d.evaluate(ctx)
	if errno != fs.OK {
		return nil, errno
	}
	return fs.NewListDirStream(commitLinks(d.path, ids)), fs.OK
}

func (d *RevsetDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	id, err := dag.ParseHex(name)
	if err != nil {
		return nil, syscall.ENOENT
	}
	ids, errno := d.evaluate(ctx)
	if errno != fs.OK {
		return nil, errno
	}
	if !slices.Contains(ids, id) {
		return nil, syscall.ENOENT
	}
	return newSymlink(ctx, &d.Inode, d.path+"/"+name, "../../commits/"+name), fs.OK
}
