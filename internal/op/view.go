// Package op holds the repository view and the operation log that records
// every change to it.
//
// A View is an immutable value: the heads, hidden commits, branch targets
// and workspace checkouts at one point in time. Each Operation points at
// the View it produced and at the operation(s) it was based on, forming a
// DAG ordered by height. The only mutable state is the head pointer, held
// by a HeadStore and moved with compare-and-swap.
package op

import (
	"maps"
	"slices"

	"github.com/systemshift/weft/internal/dag"
)

// Checkout binds a workspace to a commit. Conflict is set when concurrent
// operations moved the workspace to different commits and one was kept.
type Checkout struct {
	Commit   dag.ID `json:"commit"`
	Conflict bool   `json:"conflict,omitempty"`
}

// View is the state of a repository at one operation. It is never modified
// after construction; use Edit to derive a new one.
type View struct {
	heads      []dag.ID
	hidden     map[dag.ID]struct{}
	branches   map[string][]dag.ID
	workspaces map[string]Checkout
}

// EmptyView returns a view whose only head is root.
func EmptyView(root dag.ID) *View {
	return (&MutableView{
		heads:      map[dag.ID]struct{}{root: {}},
		hidden:     map[dag.ID]struct{}{},
		branches:   map[string][]dag.ID{},
		workspaces: map[string]Checkout{},
	}).Freeze()
}

// HeadIDs returns the heads sorted by id.
func (v *View) HeadIDs() []dag.ID { return slices.Clone(v.heads) }

// IsHead reports whether id is one of the view's heads.
func (v *View) IsHead(id dag.ID) bool {
	_, ok := slices.BinarySearchFunc(v.heads, id, dag.ID.Compare)
	return ok
}

// IsHidden reports whether id has been abandoned or rewritten.
func (v *View) IsHidden(id dag.ID) bool {
	_, ok := v.hidden[id]
	return ok
}

// HiddenIDs returns the hidden commits sorted by id.
func (v *View) HiddenIDs() []dag.ID { return sortedSet(v.hidden) }

// BranchNames returns the branch names in sorted order.
func (v *View) BranchNames() []string { return slices.Sorted(maps.Keys(v.branches)) }

// BranchTargets returns the targets of a branch. A branch that diverged
// has more than one target.
func (v *View) BranchTargets(name string) []dag.ID { return slices.Clone(v.branches[name]) }

// HasBranch reports whether the branch exists.
func (v *View) HasBranch(name string) bool {
	_, ok := v.branches[name]
	return ok
}

// IsDivergent reports whether the branch has more than one target.
func (v *View) IsDivergent(name string) bool { return len(v.branches[name]) > 1 }

// WorkspaceNames returns the workspace names in sorted order.
func (v *View) WorkspaceNames() []string { return slices.Sorted(maps.Keys(v.workspaces)) }

// Workspace returns the checkout of a workspace.
func (v *View) Workspace(name string) (Checkout, bool) {
	co, ok := v.workspaces[name]
	return co, ok
}

// WorkspaceCommit returns the commit a workspace has checked out.
func (v *View) WorkspaceCommit(name string) (dag.ID, bool) {
	co, ok := v.workspaces[name]
	return co.Commit, ok
}

// Referenced returns every commit the view names, sorted and deduplicated.
func (v *View) Referenced() []dag.ID {
	ids := slices.Clone(v.heads)
	for id := range v.hidden {
		ids = append(ids, id)
	}
	for _, targets := range v.branches {
		ids = append(ids, targets...)
	}
	for _, co := range v.workspaces {
		ids = append(ids, co.Commit)
	}
	return dag.UniqueIDs(ids)
}

// Equal reports whether two views hold the same state.
func (v *View) Equal(other *View) bool {
	return slices.Equal(v.heads, other.heads) &&
		maps.Equal(v.hidden, other.hidden) &&
		maps.EqualFunc(v.branches, other.branches, slices.Equal[[]dag.ID]) &&
		maps.Equal(v.workspaces, other.workspaces)
}

// Edit returns a mutable copy of v.
func (v *View) Edit() *MutableView {
	m := &MutableView{
		heads:      make(map[dag.ID]struct{}, len(v.heads)),
		hidden:     maps.Clone(v.hidden),
		branches:   make(map[string][]dag.ID, len(v.branches)),
		workspaces: maps.Clone(v.workspaces),
	}
	for _, id := range v.heads {
		m.heads[id] = struct{}{}
	}
	for name, targets := range v.branches {
		m.branches[name] = slices.Clone(targets)
	}
	return m
}

// MutableView accumulates edits to a View. It is not safe for concurrent
// use.
type MutableView struct {
	heads      map[dag.ID]struct{}
	hidden     map[dag.ID]struct{}
	branches   map[string][]dag.ID
	workspaces map[string]Checkout
}

// AddHead marks id as a head.
func (m *MutableView) AddHead(id dag.ID) { m.heads[id] = struct{}{} }

// RemoveHead unmarks id as a head.
func (m *MutableView) RemoveHead(id dag.ID) { delete(m.heads, id) }

// SetHeads replaces the head set.
func (m *MutableView) SetHeads(ids []dag.ID) {
	m.heads = make(map[dag.ID]struct{}, len(ids))
	for _, id := range ids {
		m.heads[id] = struct{}{}
	}
}

// HeadIDs returns the current heads sorted by id.
func (m *MutableView) HeadIDs() []dag.ID { return sortedSet(m.heads) }

// Hide marks id as abandoned.
func (m *MutableView) Hide(id dag.ID) { m.hidden[id] = struct{}{} }

// Unhide makes id visible again.
func (m *MutableView) Unhide(id dag.ID) { delete(m.hidden, id) }

// IsHidden reports whether id is hidden.
func (m *MutableView) IsHidden(id dag.ID) bool {
	_, ok := m.hidden[id]
	return ok
}

// SetBranch points a branch at targets. No targets deletes the branch.
func (m *MutableView) SetBranch(name string, targets ...dag.ID) {
	targets = dag.UniqueIDs(targets)
	if len(targets) == 0 {
		delete(m.branches, name)
		return
	}
	m.branches[name] = targets
}

// DeleteBranch removes a branch.
func (m *MutableView) DeleteBranch(name string) { delete(m.branches, name) }

// BranchNames returns the branch names in sorted order.
func (m *MutableView) BranchNames() []string { return slices.Sorted(maps.Keys(m.branches)) }

// BranchTargets returns the targets of a branch.
func (m *MutableView) BranchTargets(name string) []dag.ID { return slices.Clone(m.branches[name]) }

// SetWorkspace binds a workspace to a checkout.
func (m *MutableView) SetWorkspace(name string, co Checkout) { m.workspaces[name] = co }

// RemoveWorkspace forgets a workspace.
func (m *MutableView) RemoveWorkspace(name string) { delete(m.workspaces, name) }

// WorkspaceNames returns the workspace names in sorted order.
func (m *MutableView) WorkspaceNames() []string { return slices.Sorted(maps.Keys(m.workspaces)) }

// Workspace returns the checkout of a workspace.
func (m *MutableView) Workspace(name string) (Checkout, bool) {
	co, ok := m.workspaces[name]
	return co, ok
}

// WorkspaceCommit returns the commit a workspace has checked out.
func (m *MutableView) WorkspaceCommit(name string) (dag.ID, bool) {
	co, ok := m.workspaces[name]
	return co.Commit, ok
}

// Freeze returns an immutable View holding the current state. The
// MutableView can keep being edited afterwards without affecting it.
func (m *MutableView) Freeze() *View {
	v := &View{
		heads:      sortedSet(m.heads),
		hidden:     maps.Clone(m.hidden),
		branches:   make(map[string][]dag.ID, len(m.branches)),
		workspaces: maps.Clone(m.workspaces),
	}
	for name, targets := range m.branches {
		v.branches[name] = slices.Clone(targets)
	}
	return v
}

func sortedSet(set map[dag.ID]struct{}) []dag.ID {
	ids := make([]dag.ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	dag.SortIDs(ids)
	return ids
}
