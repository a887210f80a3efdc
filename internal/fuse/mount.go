// Package fuse exposes a repository as a read-only filesystem. Every
// lookup reads the current operation head, so the tree follows the
// repository as other processes change it.
package fuse

import (
	"log/slog"

	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"

	"github.com/systemshift/weft/internal/repo"
)

// Options configures Mount.
type Options struct {
	Debug  bool
	Logger *slog.Logger
}

// Mount mounts repository r at mountpoint. Call Wait on the returned
// server to block and Unmount to stop.
func Mount(mountpoint string, r *repo.Repository, o Options) (*gofuse.Server, error) {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	root := &RootNode{m: &mount{repo: r, logger: o.Logger}}

	opts := &fs.Options{
		MountOptions: gofuse.MountOptions{
			FsName:        "weft",
			Name:          "weft",
			DisableXAttrs: true,
			Debug:         o.Debug,
		},
	}
	server, err := fs.Mount(mountpoint, root, opts)
	if err != nil {
		return nil, err
	}
	o.Logger.Info("mounted repository", "path", r.Path(), "mountpoint", mountpoint)
	return server, nil
}
