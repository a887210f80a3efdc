package repo

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/systemshift/weft/internal/dag"
	"github.com/systemshift/weft/internal/op"
)

// watchPoll is how often WatchHead polls head stores that are not files.
var watchPoll = 500 * time.Millisecond

// WatchHead reports the operation head each time it moves, starting with
// its current value. The channel is closed when ctx is done.
func (r *Repository) WatchHead(ctx context.Context) (<-chan dag.ID, error) {
	current, err := r.heads.ReadHead(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan dag.ID, 1)
	out <- current

	fs, ok := r.heads.(*op.FileHeadStore)
	if !ok {
		go r.pollHead(ctx, current, out)
		return out, nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// The head file is replaced by rename, so watch its directory.
	if err := w.Add(filepath.Dir(fs.Path())); err != nil {
		w.Close()
		return nil, err
	}
	go r.watchHeadFile(ctx, w, fs.Path(), current, out)
	return out, nil
}

func (r *Repository) watchHeadFile(ctx context.Context, w *fsnotify.Watcher, path string, last dag.ID, out chan<- dag.ID) {
	defer close(out)
	defer w.Close()
	// Catch a move that landed before the watch was installed.
	if !r.sendHead(ctx, &last, out) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) || !(ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
				continue
			}
			if !r.sendHead(ctx, &last, out) {
				return
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			r.logger.Warn("watching operation head", "error", err)
		}
	}
}

func (r *Repository) pollHead(ctx context.Context, last dag.ID, out chan<- dag.ID) {
	defer close(out)
	t := time.NewTicker(watchPoll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if !r.sendHead(ctx, &last, out) {
				return
			}
		}
	}
}

// sendHead reads the head and sends it if it differs from last. It
// returns false once ctx is done.
func (r *Repository) sendHead(ctx context.Context, last *dag.ID, out chan<- dag.ID) bool {
	id, err := r.heads.ReadHead(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if err != nil {
		r.logger.Warn("reading operation head", "error", err)
		return true
	}
	if id == *last {
		return true
	}
	select {
	case out <- id:
		*last = id
		return true
	case <-ctx.Done():
		return false
	}
}
