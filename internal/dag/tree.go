package dag

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// TreeChange is one path whose value differs between two trees.
type TreeChange struct {
	Path   string
	Before TreeValue
	After  TreeValue
}

// DiffTrees returns the changed leaf paths between two trees, sorted by
// path. Subtrees are descended into; a subtree replaced by a file shows up
// as the removal of each file below it plus the new file.
func (b *Backend) DiffTrees(before, after ID) ([]TreeChange, error) {
	var out []TreeChange
	if err := b.diffDir("", before, after, &out); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (b *Backend) diffDir(dir string, before, after ID, out *[]TreeChange) error {
	if before == after {
		return nil
	}
	bt, err := b.ReadTree(before)
	if err != nil {
		return err
	}
	at, err := b.ReadTree(after)
	if err != nil {
		return err
	}
	names := make(map[string]struct{}, len(bt.Entries)+len(at.Entries))
	for _, e := range bt.Entries {
		names[e.Name] = struct{}{}
	}
	for _, e := range at.Entries {
		names[e.Name] = struct{}{}
	}
	for name := range names {
		bv, av := bt.Get(name), at.Get(name)
		if bv == av {
			continue
		}
		p := path.Join(dir, name)
		var bsub, asub ID
		if bv.Kind == ValueTree {
			bsub, bv = bv.ID, Absent
		}
		if av.Kind == ValueTree {
			asub, av = av.ID, Absent
		}
		if !bsub.IsZero() || !asub.IsZero() {
			if err := b.diffDir(p, bsub, asub, out); err != nil {
				return err
			}
		}
		if bv != av {
			*out = append(*out, TreeChange{Path: p, Before: bv, After: av})
		}
	}
	return nil
}

// WalkTree calls fn for every non-tree entry below id, depth first in name
// order. Returning an error from fn stops the walk.
func (b *Backend) WalkTree(id ID, fn func(p string, v TreeValue) error) error {
	return b.walkDir("", id, fn)
}

func (b *Backend) walkDir(dir string, id ID, fn func(string, TreeValue) error) error {
	t, err := b.ReadTree(id)
	if err != nil {
		return err
	}
	for _, e := range t.Entries {
		p := path.Join(dir, e.Name)
		if e.Value.Kind == ValueTree {
			if err := b.walkDir(p, e.Value.ID, fn); err != nil {
				return err
			}
			continue
		}
		if err := fn(p, e.Value); err != nil {
			return err
		}
	}
	return nil
}

// LookupPath returns the value at a slash-separated path, or Absent.
func (b *Backend) LookupPath(root ID, p string) (TreeValue, error) {
	cur := TreeRef(root)
	for _, part := range splitPath(p) {
		if cur.Kind != ValueTree {
			return Absent, nil
		}
		t, err := b.ReadTree(cur.ID)
		if err != nil {
			return Absent, err
		}
		cur = t.Get(part)
	}
	return cur, nil
}

func splitPath(p string) []string {
	p = strings.Trim(path.Clean("/"+p), "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// TreeBuilder applies path edits on top of a base tree and writes the
// result. Directories left empty by removals are dropped.
type TreeBuilder struct {
	b         *Backend
	base      ID
	overrides map[string]TreeValue
}

// NewTreeBuilder starts from base; the zero id starts from an empty tree.
func (b *Backend) NewTreeBuilder(base ID) *TreeBuilder {
	return &TreeBuilder{b: b, base: base, overrides: make(map[string]TreeValue)}
}

// Set places v at the slash-separated path p.
func (tb *TreeBuilder) Set(p string, v TreeValue) {
	tb.overrides[strings.Join(splitPath(p), "/")] = v
}

// Remove deletes the entry at p.
func (tb *TreeBuilder) Remove(p string) { tb.Set(p, Absent) }

// Write stores the edited tree and returns its id.
func (tb *TreeBuilder) Write() (ID, error) {
	id, _, err := tb.writeDir(tb.base, tb.overrides)
	if err != nil {
		return ID{}, fmt.Errorf("build tree: %w", err)
	}
	if id.IsZero() {
		return tb.b.emptyTree, nil
	}
	return id, nil
}

// writeDir returns the zero id when the resulting directory is empty.
func (tb *TreeBuilder) writeDir(base ID, edits map[string]TreeValue) (ID, bool, error) {
	t, err := tb.b.ReadTree(base)
	if err != nil {
		return ID{}, false, err
	}
	entries := make(map[string]TreeValue, len(t.Entries))
	for _, e := range t.Entries {
		entries[e.Name] = e.Value
	}
	nested := make(map[string]map[string]TreeValue)
	for p, v := range edits {
		if p == "" {
			continue
		}
		first, rest, ok := strings.Cut(p, "/")
		if !ok {
			entries[first] = v
			continue
		}
		if nested[first] == nil {
			nested[first] = make(map[string]TreeValue)
		}
		nested[first][rest] = v
	}
	for name, sub := range nested {
		var subBase ID
		if cur := entries[name]; cur.Kind == ValueTree {
			subBase = cur.ID
		}
		id, empty, err := tb.writeDir(subBase, sub)
		if err != nil {
			return ID{}, false, err
		}
		if empty {
			delete(entries, name)
		} else {
			entries[name] = TreeRef(id)
		}
	}
	out := &Tree{}
	for name, v := range entries {
		if !v.IsAbsent() {
			out.Entries = append(out.Entries, TreeEntry{Name: name, Value: v})
		}
	}
	if len(out.Entries) == 0 {
		return ID{}, true, nil
	}
	id, err := tb.b.WriteTree(out)
	return id, false, err
}
