package dag

import (
	"slices"
	"strings"
	"time"
)

// Signature identifies who made a commit and when.
type Signature struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
}

// Commit is an immutable snapshot with its ancestry. Commits returned by a
// Backend are shared and must not be modified; use Clone before editing.
type Commit struct {
	ID           ID        `json:"-"`
	Parents      []ID      `json:"parents"`
	Predecessors []ID      `json:"predecessors,omitempty"`
	Tree         ID        `json:"tree"`
	ChangeID     string    `json:"change_id"`
	Description  string    `json:"description"`
	Author       Signature `json:"author"`
	Committer    Signature `json:"committer"`
}

// Clone returns a deep copy with the ID cleared, ready to be rewritten.
func (c *Commit) Clone() *Commit {
	out := *c
	out.ID = ID{}
	out.Parents = slices.Clone(c.Parents)
	out.Predecessors = slices.Clone(c.Predecessors)
	return &out
}

// IsMerge reports whether the commit has more than one parent.
func (c *Commit) IsMerge() bool { return len(c.Parents) > 1 }

// IsRoot reports whether the commit has no parents.
func (c *Commit) IsRoot() bool { return len(c.Parents) == 0 }

// ValueKind is the kind of a tree entry.
type ValueKind string

const (
	ValueAbsent   ValueKind = ""
	ValueFile     ValueKind = "file"
	ValueSymlink  ValueKind = "symlink"
	ValueTree     ValueKind = "tree"
	ValueConflict ValueKind = "conflict"
)

// TreeValue is what a tree entry points at. The zero value means the path
// is absent, which is how deletions appear inside conflict terms.
type TreeValue struct {
	Kind       ValueKind `json:"kind,omitempty"`
	ID         ID        `json:"id"`
	Executable bool      `json:"executable,omitempty"`
}

// Absent is the zero TreeValue.
var Absent = TreeValue{}

// IsAbsent reports whether v denotes a missing entry.
func (v TreeValue) IsAbsent() bool { return v.Kind == ValueAbsent }

// FileValue returns a file entry.
func FileValue(id ID, executable bool) TreeValue {
	return TreeValue{Kind: ValueFile, ID: id, Executable: executable}
}

// TreeRef returns a subtree entry.
func TreeRef(id ID) TreeValue { return TreeValue{Kind: ValueTree, ID: id} }

// ConflictRef returns an entry pointing at a stored Conflict.
func ConflictRef(id ID) TreeValue { return TreeValue{Kind: ValueConflict, ID: id} }

// TreeEntry is one named entry of a Tree.
type TreeEntry struct {
	Name  string    `json:"name"`
	Value TreeValue `json:"value"`
}

// Tree is a directory listing with entries sorted by name.
type Tree struct {
	Entries []TreeEntry `json:"entries"`
}

// Get returns the value for name, or Absent.
func (t *Tree) Get(name string) TreeValue {
	i, ok := slices.BinarySearchFunc(t.Entries, name, func(e TreeEntry, n string) int {
		return strings.Compare(e.Name, n)
	})
	if !ok {
		return Absent
	}
	return t.Entries[i].Value
}

// Names returns the entry names in order.
func (t *Tree) Names() []string {
	names := make([]string, len(t.Entries))
	for i, e := range t.Entries {
		names[i] = e.Name
	}
	return names
}

func (t *Tree) normalize() {
	t.Entries = slices.DeleteFunc(t.Entries, func(e TreeEntry) bool { return e.Value.IsAbsent() })
	slices.SortFunc(t.Entries, func(a, b TreeEntry) int { return strings.Compare(a.Name, b.Name) })
	if t.Entries == nil {
		t.Entries = []TreeEntry{}
	}
}

// Conflict is an unresolved merge stored as data: terms alternate
// add, remove, add, ... and always have odd length.
type Conflict struct {
	Terms []TreeValue `json:"terms"`
}
