package fuse

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/weft/internal/dag"
)

// CommitsDir holds one JSON file per commit, named by full hex id. Listing
// shows the visible commits; any stored commit can be looked up.
type CommitsDir struct {
	fs.Inode
	m *mount
}

var _ = (fs.NodeLookuper)((*CommitsDir)(nil))
var _ = (fs.NodeReaddirer)((*CommitsDir)(nil))
var _ = (fs.NodeGetattrer)((*CommitsDir)(nil))

func (d *CommitsDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return dirAttr("commits", out)
}

func (d *CommitsDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	v, errno := d.m.view(ctx)
	if errno != fs.OK {
		return nil, errno
	}
	rs, err := d.m.repo.Query(ctx, v, "all()")
	if err != nil {
		return nil, d.m.errno("list commits", err)
	}
	var entries []fuse.DirEntry
	for id, err := range rs.Iter() {
		if err != nil {
			return nil, d.m.errno("list commits", err)
		}
		entries = append(entries, fuse.DirEntry{Name: id.Hex(), Mode: syscall.S_IFREG, Ino: stableIno("commits/" + id.Hex())})
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *CommitsDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	id, err := dag.ParseHex(name)
	if err != nil {
		return nil, syscall.ENOENT
	}
	c, err := d.m.repo.Backend().ReadCommit(id)
	if err != nil {
		return nil, d.m.errno("read commit", err)
	}
	data, err := commitJSON(c)
	if err != nil {
		return nil, d.m.errno("encode commit", err)
	}
	return newDataFile(ctx, &d.Inode, "commits/"+name, true, func(context.Context) ([]byte, syscall.Errno) {
		return data, fs.OK
	}), fs.OK
}
