package dag

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of decoded commits kept in memory.
const DefaultCacheSize = 4096

// RootChangeID is the change id of the root commit.
var RootChangeID = uuid.Nil.String()

// Backend reads and writes typed objects (files, trees, conflicts, commits)
// on top of a Store. Every Backend writes the same empty tree and root
// commit, so their ids are identical across repositories.
type Backend struct {
	store     Store
	commits   *lru.Cache[ID, *Commit]
	emptyTree ID
	root      ID
}

// NewBackend wraps store. cacheSize bounds the decoded commit cache; zero
// selects DefaultCacheSize.
func NewBackend(store Store, cacheSize int) (*Backend, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[ID, *Commit](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create commit cache: %w", err)
	}
	b := &Backend{store: store, commits: cache}

	b.emptyTree, err = b.WriteTree(&Tree{})
	if err != nil {
		return nil, fmt.Errorf("write empty tree: %w", err)
	}
	root, err := b.WriteCommit(&Commit{
		Parents:   []ID{},
		Tree:      b.emptyTree,
		ChangeID:  RootChangeID,
		Author:    Signature{Timestamp: time.Unix(0, 0).UTC()},
		Committer: Signature{Timestamp: time.Unix(0, 0).UTC()},
	})
	if err != nil {
		return nil, fmt.Errorf("write root commit: %w", err)
	}
	b.root = root.ID
	return b, nil
}

// Store returns the underlying content store.
func (b *Backend) Store() Store { return b.store }

// RootCommitID returns the id of the virtual root commit every history
// descends from.
func (b *Backend) RootCommitID() ID { return b.root }

// EmptyTreeID returns the id of the empty tree.
func (b *Backend) EmptyTreeID() ID { return b.emptyTree }

// NewChangeID returns a fresh random change id.
func NewChangeID() string { return uuid.NewString() }

// WriteFile stores file content.
func (b *Backend) WriteFile(data []byte) (ID, error) {
	return b.store.Put(data)
}

// ReadFile loads file content.
func (b *Backend) ReadFile(id ID) ([]byte, error) {
	return b.store.Get(id)
}

// WriteTree stores t after sorting it and dropping absent entries.
func (b *Backend) WriteTree(t *Tree) (ID, error) {
	norm := Tree{Entries: append([]TreeEntry(nil), t.Entries...)}
	norm.normalize()
	data, err := EncodeRecord(KindTree, &norm)
	if err != nil {
		return ID{}, err
	}
	return b.store.Put(data)
}

// ReadTree loads a tree. The zero id reads as the empty tree.
func (b *Backend) ReadTree(id ID) (*Tree, error) {
	if id.IsZero() {
		return &Tree{Entries: []TreeEntry{}}, nil
	}
	data, err := b.store.Get(id)
	if err != nil {
		return nil, err
	}
	var t Tree
	if err := DecodeRecord(data, KindTree, &t); err != nil {
		return nil, fmt.Errorf("tree %s: %w", id.Short(), err)
	}
	return &t, nil
}

// WriteConflict stores a conflict. Terms must have odd length.
func (b *Backend) WriteConflict(c *Conflict) (ID, error) {
	if len(c.Terms)%2 == 0 {
		return ID{}, fmt.Errorf("write conflict: %d terms, want an odd number", len(c.Terms))
	}
	data, err := EncodeRecord(KindConflict, c)
	if err != nil {
		return ID{}, err
	}
	return b.store.Put(data)
}

// ReadConflict loads a conflict.
func (b *Backend) ReadConflict(id ID) (*Conflict, error) {
	data, err := b.store.Get(id)
	if err != nil {
		return nil, err
	}
	var c Conflict
	if err := DecodeRecord(data, KindConflict, &c); err != nil {
		return nil, fmt.Errorf("conflict %s: %w", id.Short(), err)
	}
	if len(c.Terms)%2 == 0 {
		return nil, fmt.Errorf("conflict %s: %d terms: %w", id.Short(), len(c.Terms), ErrCorruptObject)
	}
	return &c, nil
}

// WriteCommit stores c and returns a copy with its ID set.
func (b *Backend) WriteCommit(c *Commit) (*Commit, error) {
	out := *c
	if out.Parents == nil {
		out.Parents = []ID{}
	}
	if out.Tree.IsZero() {
		out.Tree = b.emptyTree
	}
	data, err := EncodeRecord(KindCommit, &out)
	if err != nil {
		return nil, err
	}
	id, err := b.store.Put(data)
	if err != nil {
		return nil, err
	}
	out.ID = id
	b.commits.Add(id, &out)
	return &out, nil
}

// ReadCommit loads a commit, using the cache when possible.
func (b *Backend) ReadCommit(id ID) (*Commit, error) {
	if c, ok := b.commits.Get(id); ok {
		return c, nil
	}
	data, err := b.store.Get(id)
	if err != nil {
		return nil, err
	}
	var c Commit
	if err := DecodeRecord(data, KindCommit, &c); err != nil {
		return nil, fmt.Errorf("commit %s: %w", id.Short(), err)
	}
	c.ID = id
	b.commits.Add(id, &c)
	return &c, nil
}

// HasCommit reports whether the store holds id.
func (b *Backend) HasCommit(id ID) (bool, error) {
	if b.commits.Contains(id) {
		return true, nil
	}
	return b.store.Has(id)
}

// ParentTree returns the tree a commit's changes are measured against: the
// first parent's tree, or the empty tree for the root.
func (b *Backend) ParentTree(c *Commit) (ID, error) {
	if len(c.Parents) == 0 {
		return b.emptyTree, nil
	}
	p, err := b.ReadCommit(c.Parents[0])
	if err != nil {
		return ID{}, err
	}
	return p.Tree, nil
}

// ChangedPaths lists the paths a commit changed relative to its first parent.
func (b *Backend) ChangedPaths(id ID) ([]string, error) {
	c, err := b.ReadCommit(id)
	if err != nil {
		return nil, err
	}
	base, err := b.ParentTree(c)
	if err != nil {
		return nil, err
	}
	changes, err := b.DiffTrees(base, c.Tree)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(changes))
	for i, ch := range changes {
		paths[i] = ch.Path
	}
	return paths, nil
}

// IsEmpty reports whether a commit changes nothing relative to its first
// parent.
func (b *Backend) IsEmpty(id ID) (bool, error) {
	c, err := b.ReadCommit(id)
	if err != nil {
		return false, err
	}
	base, err := b.ParentTree(c)
	if err != nil {
		return false, err
	}
	return base == c.Tree, nil
}

// HasConflicts reports whether the commit's tree contains a conflict entry.
func (b *Backend) HasConflicts(id ID) (bool, error) {
	c, err := b.ReadCommit(id)
	if err != nil {
		return false, err
	}
	return b.treeHasConflicts(c.Tree)
}

var errFoundConflict = errors.New("conflict found")

func (b *Backend) treeHasConflicts(id ID) (bool, error) {
	err := b.WalkTree(id, func(_ string, v TreeValue) error {
		if v.Kind == ValueConflict {
			return errFoundConflict
		}
		return nil
	})
	if errors.Is(err, errFoundConflict) {
		return true, nil
	}
	return false, err
}
