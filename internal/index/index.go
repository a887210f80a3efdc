// Package index maintains a derived, rebuildable index over the commit
// graph: dense positions assigned parents-first, generation numbers, and a
// canonical output order. Everything here can be reconstructed from the
// content store.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/systemshift/weft/internal/dag"
)

// Pos is the dense position of a commit in the index. A commit's parents
// always have lower positions than the commit itself.
type Pos int32

// CommitReader loads commits by id.
type CommitReader interface {
	ReadCommit(id dag.ID) (*dag.Commit, error)
}

type entry struct {
	id       dag.ID
	hex      string
	gen      uint32
	parents  []Pos
	changeID string
}

// Index is safe for concurrent use. Readers take a Snapshot, which stays
// valid and unchanged while the index keeps growing.
type Index struct {
	commits CommitReader
	logger  *slog.Logger

	updateMu sync.Mutex
	flight   singleflight.Group

	mu   sync.RWMutex
	byID map[dag.ID]Pos
	snap *Snapshot
}

// New returns an empty index reading commits from commits. A nil logger
// uses slog.Default().
func New(commits CommitReader, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &Index{
		commits: commits,
		logger:  logger,
		byID:    make(map[dag.ID]Pos),
	}
	idx.snap = &Snapshot{idx: idx}
	return idx
}

// Snapshot returns the current immutable view of the index.
func (idx *Index) Snapshot() *Snapshot {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.snap
}

// Len returns the number of indexed commits.
func (idx *Index) Len() int { return idx.Snapshot().Len() }

// Update indexes every commit reachable from heads that is not indexed yet
// and returns a snapshot containing them. Concurrent calls for the same
// heads share one walk. A missing commit or a cycle fails the whole update
// with *dag.CorruptGraphError and leaves the index unchanged.
func (idx *Index) Update(ctx context.Context, heads []dag.ID) (*Snapshot, error) {
	snap := idx.Snapshot()
	if snap.containsAll(heads) {
		return snap, nil
	}
	key := flightKey(heads)
	v, err, _ := idx.flight.Do(key, func() (interface{}, error) {
		return idx.update(ctx, heads)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

func flightKey(heads []dag.ID) string {
	hexes := make([]string, len(heads))
	for i, h := range heads {
		hexes[i] = h.Hex()
	}
	slices.Sort(hexes)
	return strings.Join(hexes, ",")
}

type frame struct {
	id     dag.ID
	commit *dag.Commit
	next   int
}

func (idx *Index) update(ctx context.Context, heads []dag.ID) (*Snapshot, error) {
	idx.updateMu.Lock()
	defer idx.updateMu.Unlock()

	base := idx.Snapshot()
	entries := base.entries
	added := make(map[dag.ID]Pos)
	var fresh []entry

	lookup := func(id dag.ID) (Pos, bool) {
		if p, ok := base.Lookup(id); ok {
			return p, true
		}
		p, ok := added[id]
		return p, ok
	}
	genOf := func(p Pos) uint32 {
		if int(p) < len(entries) {
			return entries[p].gen
		}
		return fresh[int(p)-len(entries)].gen
	}

	onStack := make(map[dag.ID]bool)
	for _, head := range heads {
		if _, ok := lookup(head); ok {
			continue
		}
		stack := []*frame{{id: head}}
		onStack[head] = true
		for len(stack) > 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			top := stack[len(stack)-1]
			if top.commit == nil {
				c, err := idx.commits.ReadCommit(top.id)
				if err != nil {
					reason := "missing commit"
					if len(stack) > 1 {
						reason = fmt.Sprintf("missing parent of %s", stack[len(stack)-2].id.Short())
					}
					return nil, &dag.CorruptGraphError{ID: top.id, Reason: fmt.Sprintf("%s: %v", reason, err)}
				}
				top.commit = c
			}
			pushed := false
			for top.next < len(top.commit.Parents) {
				parent := top.commit.Parents[top.next]
				top.next++
				if _, ok := lookup(parent); ok {
					continue
				}
				if onStack[parent] {
					return nil, &dag.CorruptGraphError{ID: parent, Reason: "cycle in commit graph"}
				}
				onStack[parent] = true
				stack = append(stack, &frame{id: parent})
				pushed = true
				break
			}
			if pushed {
				continue
			}

			e := entry{
				id:       top.id,
				hex:      top.id.Hex(),
				changeID: top.commit.ChangeID,
				parents:  make([]Pos, len(top.commit.Parents)),
			}
			for i, parent := range top.commit.Parents {
				p, _ := lookup(parent)
				e.parents[i] = p
				if g := genOf(p) + 1; g > e.gen {
					e.gen = g
				}
			}
			pos := Pos(len(entries) + len(fresh))
			fresh = append(fresh, e)
			added[top.id] = pos
			delete(onStack, top.id)
			stack = stack[:len(stack)-1]
		}
	}

	if len(fresh) == 0 {
		return base, nil
	}
	snap := base.extend(fresh)

	idx.mu.Lock()
	for id, p := range added {
		idx.byID[id] = p
	}
	idx.snap = snap
	idx.mu.Unlock()

	idx.logger.Debug("commit index updated", "added", len(fresh), "total", snap.Len())
	return snap, nil
}
