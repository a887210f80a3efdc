package fuse

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/weft/internal/dag"
)

// HeadsDir lists the visible heads as symlinks into commits/.
type HeadsDir struct {
	fs.Inode
	m *mount
}

var _ = (fs.NodeLookuper)((*HeadsDir)(nil))
var _ = (fs.NodeReaddirer)((*HeadsDir)(nil))
var _ = (fs.NodeGetattrer)((*HeadsDir)(nil))

func (d *HeadsDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return dirAttr("heads", out)
}

func (d *HeadsDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	v, errno := d.m.view(ctx)
	if errno != fs.OK {
		return nil, errno
	}
	return fs.NewListDirStream(commitLinks("heads", v.HeadIDs())), fs.OK
}

func (d *HeadsDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	id, err := dag.ParseHex(name)
	if err != nil {
		return nil, syscall.ENOENT
	}
	v, errno := d.m.view(ctx)
	if errno != fs.OK {
		return nil, errno
	}
	if !v.IsHead(id) {
		return nil, syscall.ENOENT
	}
	return newSymlink(ctx, &d.Inode, "heads/"+name, "../commits/"+name), fs.OK
}

// BranchesDir has one file per branch listing its targets, one hex per
// line. A divergent branch has several lines.
type BranchesDir struct {
	fs.Inode
	m *mount
}

var _ = (fs.NodeLookuper)((*BranchesDir)(nil))
var _ = (fs.NodeReaddirer)((*BranchesDir)(nil))
var _ = (fs.NodeGetattrer)((*BranchesDir)(nil))

func (d *BranchesDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return dirAttr("branches", out)
}

func (d *BranchesDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	v, errno := d.m.view(ctx)
	if errno != fs.OK {
		return nil, errno
	}
	names := v.BranchNames()
	entries := make([]fuse.DirEntry, len(names))
	for i, name := range names {
		file := escapeName(name)
		entries[i] = fuse.DirEntry{Name: file, Mode: syscall.S_IFREG, Ino: stableIno("branches/" + file)}
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *BranchesDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	branch := unescapeName(name)
	read := func(ctx context.Context) ([]byte, syscall.Errno) {
		v, errno := d.m.view(ctx)
		if errno != fs.OK {
			return nil, errno
		}
		targets := v.BranchTargets(branch)
		if len(targets) == 0 {
			return nil, syscall.ENOENT
		}
		return targetLines(targets), fs.OK
	}
	if _, errno := read(ctx); errno != fs.OK {
		return nil, errno
	}
	return newDataFile(ctx, &d.Inode, "branches/"+name, false, read), fs.OK
}
