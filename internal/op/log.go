package op

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/emirpasic/gods/trees/binaryheap"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/systemshift/weft/internal/dag"
)

// DefaultCacheSize is the number of decoded operations and views kept in
// memory.
const DefaultCacheSize = 1024

// Log reads and writes operations and views in a content store. The log
// has no notion of which operation is current; that is the HeadStore's job.
type Log struct {
	store  dag.Store
	logger *slog.Logger
	ops    *lru.Cache[dag.ID, *Operation]
	views  *lru.Cache[dag.ID, *View]
}

// NewLog returns a Log over store. cacheSize bounds each decoded-object
// cache; zero selects DefaultCacheSize.
func NewLog(store dag.Store, cacheSize int, logger *slog.Logger) (*Log, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	ops, err := lru.New[dag.ID, *Operation](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create operation cache: %w", err)
	}
	views, err := lru.New[dag.ID, *View](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create view cache: %w", err)
	}
	return &Log{store: store, logger: logger, ops: ops, views: views}, nil
}

// WriteView stores v and returns its id.
func (l *Log) WriteView(v *View) (dag.ID, error) {
	data, err := encodeView(v)
	if err != nil {
		return dag.ID{}, err
	}
	id, err := l.store.Put(data)
	if err != nil {
		return dag.ID{}, fmt.Errorf("write view: %w", err)
	}
	l.views.Add(id, v)
	return id, nil
}

// ReadView loads a view.
func (l *Log) ReadView(id dag.ID) (*View, error) {
	if v, ok := l.views.Get(id); ok {
		return v, nil
	}
	data, err := l.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("read view %s: %w", id.Short(), err)
	}
	v, err := decodeView(data)
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", id.Short(), err)
	}
	l.views.Add(id, v)
	return v, nil
}

// WriteOperation records an operation producing the view viewID on top of
// parents. The height is computed here; a parent that cannot be read is
// reported as a corrupt log.
func (l *Log) WriteOperation(viewID dag.ID, parents []dag.ID, md Metadata) (*Operation, error) {
	o := &Operation{Parents: append([]dag.ID{}, parents...), ViewID: viewID, Metadata: md}
	for _, pid := range parents {
		p, err := l.ReadOperation(pid)
		if errors.Is(err, dag.ErrNotFound) {
			return nil, &CorruptOperationLogError{ID: pid, Reason: "parent operation is missing"}
		}
		if err != nil {
			return nil, err
		}
		o.Height = max(o.Height, p.Height+1)
	}
	data, err := dag.EncodeRecord(dag.KindOperation, o)
	if err != nil {
		return nil, err
	}
	id, err := l.store.Put(data)
	if err != nil {
		return nil, fmt.Errorf("write operation: %w", err)
	}
	o.ID = id
	l.ops.Add(id, o)
	l.logger.Debug("wrote operation", "id", id.Short(), "height", o.Height, "parents", len(parents))
	return o, nil
}

// ReadOperation loads an operation. The returned value is shared and must
// not be modified.
func (l *Log) ReadOperation(id dag.ID) (*Operation, error) {
	if o, ok := l.ops.Get(id); ok {
		return o, nil
	}
	data, err := l.store.Get(id)
	if err != nil {
		return nil, fmt.Errorf("read operation %s: %w", id.Short(), err)
	}
	var o Operation
	if err := dag.DecodeRecord(data, dag.KindOperation, &o); err != nil {
		return nil, fmt.Errorf("operation %s: %w", id.Short(), err)
	}
	o.ID = id
	l.ops.Add(id, &o)
	return &o, nil
}

// View loads the view an operation produced.
func (l *Log) View(o *Operation) (*View, error) {
	return l.ReadView(o.ViewID)
}

// parents loads the parents of o, checking that each is strictly lower.
// A violation means the log has a cycle or was tampered with.
func (l *Log) parents(o *Operation) ([]*Operation, error) {
	out := make([]*Operation, 0, len(o.Parents))
	for _, pid := range o.Parents {
		p, err := l.ReadOperation(pid)
		if errors.Is(err, dag.ErrNotFound) {
			return nil, &CorruptOperationLogError{ID: o.ID, Reason: "missing parent operation " + pid.String()}
		}
		if err != nil {
			return nil, err
		}
		if p.Height >= o.Height {
			return nil, &CorruptOperationLogError{
				ID:     o.ID,
				Reason: fmt.Sprintf("cycle: parent %s has height %d, not below %d", pid.Short(), p.Height, o.Height),
			}
		}
		out = append(out, p)
	}
	return out, nil
}

// newOpHeap orders operations by height, then id, both descending, so
// children always come out before their parents.
func newOpHeap() *binaryheap.Heap {
	return binaryheap.NewWith(func(a, b interface{}) int {
		x, y := a.(*Operation), b.(*Operation)
		if x.Height != y.Height {
			if x.Height > y.Height {
				return -1
			}
			return 1
		}
		return -x.ID.Compare(y.ID)
	})
}

// Walk yields every operation reachable from heads, newest first. Each
// operation is yielded once. An error ends the sequence.
func (l *Log) Walk(ctx context.Context, heads ...dag.ID) iter.Seq2[*Operation, error] {
	return func(yield func(*Operation, error) bool) {
		h := newOpHeap()
		seen := map[dag.ID]bool{}
		for _, id := range heads {
			if seen[id] {
				continue
			}
			o, err := l.ReadOperation(id)
			if err != nil {
				yield(nil, err)
				return
			}
			seen[id] = true
			h.Push(o)
		}
		for !h.Empty() {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			v, _ := h.Pop()
			o := v.(*Operation)
			if !yield(o, nil) {
				return
			}
			parents, err := l.parents(o)
			if err != nil {
				yield(nil, err)
				return
			}
			for _, p := range parents {
				if !seen[p.ID] {
					seen[p.ID] = true
					h.Push(p)
				}
			}
		}
	}
}

// CommonAncestor returns the lowest common ancestor of a and b: among the
// operations reachable from both, the one with the greatest height, ties
// broken by the greatest id. An operation is its own ancestor.
func (l *Log) CommonAncestor(ctx context.Context, a, b dag.ID) (*Operation, error) {
	const (
		fromA = 1 << iota
		fromB
	)
	h := newOpHeap()
	flags := map[dag.ID]uint8{}
	push := func(id dag.ID, f uint8) error {
		if old, ok := flags[id]; ok {
			flags[id] = old | f
			return nil
		}
		o, err := l.ReadOperation(id)
		if err != nil {
			return err
		}
		flags[id] = f
		h.Push(o)
		return nil
	}
	if err := push(a, fromA); err != nil {
		return nil, err
	}
	if err := push(b, fromB); err != nil {
		return nil, err
	}
	for !h.Empty() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		v, _ := h.Pop()
		o := v.(*Operation)
		f := flags[o.ID]
		if f == fromA|fromB {
			return o, nil
		}
		parents, err := l.parents(o)
		if err != nil {
			return nil, err
		}
		for _, p := range parents {
			if old, ok := flags[p.ID]; ok {
				flags[p.ID] = old | f
				continue
			}
			flags[p.ID] = f
			h.Push(p)
		}
	}
	return nil, &CorruptOperationLogError{ID: a, Reason: "no common ancestor with " + b.String()}
}

// Resolve finds an operation by name, searching the log reachable from
// head. "@" is head itself; otherwise the name is a hex id prefix. Each
// trailing "-" steps to the first parent.
func (l *Log) Resolve(ctx context.Context, head dag.ID, name string) (*Operation, error) {
	base := strings.TrimRight(name, "-")
	steps := len(name) - len(base)

	var o *Operation
	if base == "@" {
		var err error
		if o, err = l.ReadOperation(head); err != nil {
			return nil, err
		}
	} else {
		prefix := strings.ToLower(base)
		if prefix == "" {
			return nil, fmt.Errorf("operation %q: %w", name, dag.ErrNotFound)
		}
		for cand, err := range l.Walk(ctx, head) {
			if err != nil {
				return nil, err
			}
			if !strings.HasPrefix(cand.ID.Hex(), prefix) {
				continue
			}
			if o != nil {
				return nil, fmt.Errorf("operation %q: %w", name, ErrAmbiguousOperation)
			}
			o = cand
		}
		if o == nil {
			return nil, fmt.Errorf("operation %q: %w", name, dag.ErrNotFound)
		}
	}
	for ; steps > 0; steps-- {
		if len(o.Parents) == 0 {
			return nil, fmt.Errorf("operation %q: the first operation has no parent: %w", name, dag.ErrNotFound)
		}
		var err error
		if o, err = l.ReadOperation(o.Parents[0]); err != nil {
			return nil, err
		}
	}
	return o, nil
}
