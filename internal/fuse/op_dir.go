package fuse

import (
	"context"
	"strconv"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

const maxOpEntries = 64

// OpDir exposes the operation log.
// Layout: op/HEAD (current operation id), op/0 (newest operation JSON), op/1, ...
type OpDir struct {
	fs.Inode
	m *mount
}

var _ = (fs.NodeLookuper)((*OpDir)(nil))
var _ = (fs.NodeReaddirer)((*OpDir)(nil))
var _ = (fs.NodeGetattrer)((*OpDir)(nil))

func (d *OpDir) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	return dirAttr("op", out)
}

func (d *OpDir) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	entries := []fuse.DirEntry{
		{Name: "HEAD", Mode: syscall.S_IFREG, Ino: stableIno("op/HEAD")},
	}
	ops, err := d.m.repo.Operations(ctx, maxOpEntries)
	if err != nil {
		return nil, d.m.errno("list operations", err)
	}
	for i := range ops {
		name := strconv.Itoa(i)
		entries = append(entries, fuse.DirEntry{Name: name, Mode: syscall.S_IFREG, Ino: stableIno("op/" + name)})
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *OpDir) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	if name == "HEAD" {
		return newDataFile(ctx, &d.Inode, "op/HEAD", false, d.head), fs.OK
	}
	n, err := strconv.Atoi(name)
	if err != nil || n < 0 || n >= maxOpEntries || strconv.Itoa(n) != name {
		return nil, syscall.ENOENT
	}
	if _, errno := d.nth(ctx, n); errno != fs.OK {
		return nil, errno
	}
	return newDataFile(ctx, &d.Inode, "op/"+name, false, func(ctx context.Context) ([]byte, syscall.Errno) {
		return d.nth(ctx, n)
	}), fs.OK
}

func (d *OpDir) head(ctx context.Context) ([]byte, syscall.Errno) {
	id, err := d.m.repo.HeadStore().ReadHead(ctx)
	if err != nil {
		return nil, d.m.errno("read operation head", err)
	}
	return []byte(id.Hex() + "\n"), fs.OK
}

// nth renders the operation n steps back from the head, walking newest
// first.
func (d *OpDir) nth(ctx context.Context, n int) ([]byte, syscall.Errno) {
	ops, err := d.m.repo.Operations(ctx, n+1)
	if err != nil {
		return nil, d.m.errno("list operations", err)
	}
	if n >= len(ops) {
		return nil, syscall.ENOENT
	}
	data, err := operationJSON(ops[n])
	if err != nil {
		return nil, d.m.errno("encode operation", err)
	}
	return data, fs.OK
}
