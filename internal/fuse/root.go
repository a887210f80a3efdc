package fuse

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/weft/internal/dag"
	"github.com/systemshift/weft/internal/op"
	"github.com/systemshift/weft/internal/repo"
)

// mount is the state shared by every node.
type mount struct {
	repo   *repo.Repository
	logger *slog.Logger
}

// view returns the current head operation's view.
func (m *mount) view(ctx context.Context) (*op.View, syscall.Errno) {
	_, v, err := m.repo.Head(ctx)
	if err != nil {
		return nil, m.errno("read operation head", err)
	}
	return v, fs.OK
}

func (m *mount) errno(what string, err error) syscall.Errno {
	if errors.Is(err, dag.ErrNotFound) {
		return syscall.ENOENT
	}
	if errors.Is(err, context.Canceled) {
		return syscall.EINTR
	}
	m.logger.Warn("filesystem request failed", "op", what, "error", err)
	return syscall.EIO
}

// RootNode is the mountpoint directory: op/, heads/, branches/, commits/
// and revsets/.
type RootNode struct {
	fs.Inode
	m *mount
}

var _ = (fs.NodeOnAdder)((*RootNode)(nil))
var _ = (fs.NodeGetattrer)((*RootNode)(nil))

func (r *RootNode) OnAdd(ctx context.Context) {
	dirs := []struct {
		name string
		node fs.InodeEmbedder
	}{
		{"op", &OpDir{m: r.m}},
		{"heads", &HeadsDir{m: r.m}},
		{"branches", &BranchesDir{m: r.m}},
		{"commits", &CommitsDir{m: r.m}},
		{"revsets", &RevsetsDir{m: r.m}},
	}
	for _, d := range dirs {
		child := r.NewPersistentInode(ctx, d.node, fs.StableAttr{
			Mode: syscall.S_IFDIR,
			Ino:  stableIno(d.name),
		})
		r.AddChild(d.name, child, true)
	}
}

func (r *RootNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = rootIno
	return fs.OK
}

// dataFile is a read-only file whose contents are produced on demand.
// Immutable contents are cached by the kernel; live ones bypass the cache.
type dataFile struct {
	fs.Inode
	path      string
	immutable bool
	data      func(ctx context.Context) ([]byte, syscall.Errno)
}

var _ = (fs.NodeGetattrer)((*dataFile)(nil))
var _ = (fs.NodeReader)((*dataFile)(nil))
var _ = (fs.NodeOpener)((*dataFile)(nil))

func (f *dataFile) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	data, errno := f.data(ctx)
	if errno != fs.OK {
		return errno
	}
	out.Mode = 0444
	out.Size = uint64(len(data))
	out.Ino = stableIno(f.path)
	return fs.OK
}

func (f *dataFile) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR) != 0 {
		return nil, 0, syscall.EROFS
	}
	if f.immutable {
		return nil, fuse.FOPEN_KEEP_CACHE, fs.OK
	}
	return nil, fuse.FOPEN_DIRECT_IO, fs.OK
}

func (f *dataFile) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, errno := f.data(ctx)
	if errno != fs.OK {
		return nil, errno
	}
	if off >= int64(len(data)) {
		return fuse.ReadResultData(nil), fs.OK
	}
	end := min(off+int64(len(dest)), int64(len(data)))
	return fuse.ReadResultData(data[off:end]), fs.OK
}

func newDataFile(ctx context.Context, parent *fs.Inode, path string, immutable bool, data func(context.Context) ([]byte, syscall.Errno)) *fs.Inode {
	f := &dataFile{path: path, immutable: immutable, data: data}
	return parent.NewInode(ctx, f, fs.StableAttr{Mode: syscall.S_IFREG, Ino: stableIno(path)})
}

// symlink points at a fixed target.
type symlink struct {
	fs.Inode
	target string
}

var _ = (fs.NodeReadlinker)((*symlink)(nil))
var _ = (fs.NodeGetattrer)((*symlink)(nil))

func (s *symlink) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	return []byte(s.target), fs.OK
}

func (s *symlink) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0777 | syscall.S_IFLNK
	out.Size = uint64(len(s.target))
	return fs.OK
}

func newSymlink(ctx context.Context, parent *fs.Inode, path, target string) *fs.Inode {
	return parent.NewInode(ctx, &symlink{target: target}, fs.StableAttr{Mode: syscall.S_IFLNK, Ino: stableIno(path)})
}

// commitLinks lists ids as symlinks named by hex.
func commitLinks(dir string, ids []dag.ID) []fuse.DirEntry {
	entries := make([]fuse.DirEntry, len(ids))
	for i, id := range ids {
		entries[i] = fuse.DirEntry{Name: id.Hex(), Mode: syscall.S_IFLNK, Ino: stableIno(dir + "/" + id.Hex())}
	}
	return entries
}

func dirAttr(path string, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno(path)
	return fs.OK
}

const rootIno = 1

// stableIno numbers a mount-relative path so that the same entry keeps its
// inode across lookups and remounts. Numbers at or below rootIno are
// reserved.
func stableIno(path string) uint64 {
	h := fnv.New64a()
	h.Write([]byte("weft:" + path))
	if ino := h.Sum64(); ino > rootIno {
		return ino
	}
	return rootIno + 1
}
