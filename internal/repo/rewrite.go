package repo

import (
	"context"
	"fmt"
	"slices"

	"github.com/systemshift/weft/internal/dag"
	"github.com/systemshift/weft/internal/merge"
	"github.com/systemshift/weft/internal/op"
	"github.com/systemshift/weft/internal/revset"
)

func (tx *Transaction) requireCommit(id dag.ID) (*dag.Commit, error) {
	c, err := tx.repo.backend.ReadCommit(id)
	if err != nil {
		return nil, fmt.Errorf("commit %s: %w", id.Short(), err)
	}
	return c, nil
}

func (tx *Transaction) signature() dag.Signature {
	cfg := tx.repo.cfg
	return dag.Signature{Name: cfg.User.Name, Email: cfg.User.Email, Timestamp: tx.repo.now().UTC()}
}

// NewCommit writes a commit with the given parents and tree, authored by
// the configured user, and makes it a head.
func (tx *Transaction) NewCommit(ctx context.Context, parents []dag.ID, tree dag.ID, description string) (*dag.Commit, error) {
	return tx.WriteCommit(ctx, &dag.Commit{Parents: parents, Tree: tree, Description: description})
}

// WriteCommit writes c and makes it a head. Missing fields are filled in:
// a fresh change id, the configured user as author and committer, and the
// root commit as parent.
func (tx *Transaction) WriteCommit(ctx context.Context, c *dag.Commit) (*dag.Commit, error) {
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c = c.Clone()
	if len(c.Parents) == 0 {
		c.Parents = []dag.ID{tx.repo.backend.RootCommitID()}
	}
	for _, p := range c.Parents {
		if _, err := tx.requireCommit(p); err != nil {
			return nil, err
		}
	}
	if c.ChangeID == "" {
		c.ChangeID = dag.NewChangeID()
	}
	sig := tx.signature()
	if c.Author.Timestamp.IsZero() {
		c.Author = sig
	}
	if c.Committer.Timestamp.IsZero() {
		c.Committer = sig
	}
	written, err := tx.repo.backend.WriteCommit(c)
	if err != nil {
		return nil, err
	}
	tx.view.Unhide(written.ID)
	tx.view.AddHead(written.ID)
	return written, nil
}

// AddHead makes a stored commit visible.
func (tx *Transaction) AddHead(id dag.ID) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if _, err := tx.requireCommit(id); err != nil {
		return err
	}
	tx.view.Unhide(id)
	tx.view.AddHead(id)
	return nil
}

// SetBranch points a branch at one or more commits.
func (tx *Transaction) SetBranch(name string, targets ...dag.ID) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if err := checkBranchName(name); err != nil {
		return err
	}
	if len(targets) == 0 {
		return fmt.Errorf("branch %q: no target", name)
	}
	for _, id := range targets {
		if _, err := tx.requireCommit(id); err != nil {
			return err
		}
		tx.view.Unhide(id)
	}
	tx.view.SetBranch(name, targets...)
	return nil
}

func checkBranchName(name string) error {
	expr, err := revset.Parse(name)
	if err != nil {
		return fmt.Errorf("invalid branch name %q: %w", name, err)
	}
	if sym, ok := expr.(*revset.SymbolExpr); !ok || sym.Name != name {
		return fmt.Errorf("invalid branch name %q", name)
	}
	return nil
}

// DeleteBranch removes a branch.
func (tx *Transaction) DeleteBranch(name string) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if len(tx.view.BranchTargets(name)) == 0 {
		return fmt.Errorf("branch %q: %w", name, dag.ErrNotFound)
	}
	tx.view.DeleteBranch(name)
	return nil
}

// SetWorkspaceCommit checks a workspace out at a commit.
func (tx *Transaction) SetWorkspaceCommit(name string, id dag.ID) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("empty workspace name")
	}
	if _, err := tx.requireCommit(id); err != nil {
		return err
	}
	tx.view.Unhide(id)
	tx.view.SetWorkspace(name, op.Checkout{Commit: id})
	return nil
}

// RemoveWorkspace forgets a workspace. Its commit stays visible.
func (tx *Transaction) RemoveWorkspace(name string) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	id, ok := tx.view.WorkspaceCommit(name)
	if !ok {
		return fmt.Errorf("workspace %q: %w", name, dag.ErrNotFound)
	}
	tx.view.RemoveWorkspace(name)
	tx.view.AddHead(id)
	return nil
}

// Describe replaces a commit's description. Descendants are rebased onto
// the rewritten commit.
func (tx *Transaction) Describe(ctx context.Context, id dag.ID, description string) (*dag.Commit, error) {
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}
	old, err := tx.editable(id)
	if err != nil {
		return nil, err
	}
	c := old.Clone()
	c.Description = description
	return tx.rewrite(ctx, old, c)
}

// Rebase moves a commit onto new parents, carrying its changes along with
// a 3-way tree merge. Conflicts are recorded in the tree, not reported as
// errors. Descendants follow.
func (tx *Transaction) Rebase(ctx context.Context, id dag.ID, parents []dag.ID) (*dag.Commit, error) {
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}
	old, err := tx.editable(id)
	if err != nil {
		return nil, err
	}
	if len(parents) == 0 {
		return nil, fmt.Errorf("rebase %s: no destination", id.Short())
	}
	snap, err := tx.repo.index.Update(ctx, append(slices.Clone(parents), id))
	if err != nil {
		return nil, err
	}
	for _, p := range parents {
		if _, err := tx.requireCommit(p); err != nil {
			return nil, err
		}
		if desc, err := snap.IsAncestor(id, p); err != nil {
			return nil, err
		} else if desc {
			return nil, fmt.Errorf("rebase %s onto %s would create a cycle", id.Short(), p.Short())
		}
	}
	c, err := tx.rebased(ctx, old, parents)
	if err != nil {
		return nil, err
	}
	return tx.rewrite(ctx, old, c)
}

// Abandon hides commits. Their visible descendants are rebased onto their
// parents, workspaces on them move to their first parent, and branch
// targets on them are dropped.
func (tx *Transaction) Abandon(ctx context.Context, ids ...dag.ID) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}
	for _, id := range ids {
		c, err := tx.editable(id)
		if err != nil {
			return err
		}
		tx.view.Hide(id)
		tx.view.RemoveHead(id)
		for _, p := range c.Parents {
			tx.view.AddHead(p)
		}
		tx.rewritten[id] = slices.Clone(c.Parents)
		tx.abandoned[id] = true
		tx.pending = append(tx.pending, id)
	}
	return tx.rebaseDescendants(ctx)
}

// AbandonRevset abandons every commit a revset selects and returns them.
func (tx *Transaction) AbandonRevset(ctx context.Context, expr string) ([]dag.ID, error) {
	rs, err := tx.Query(ctx, expr)
	if err != nil {
		return nil, err
	}
	ids, err := rs.IDs()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, tx.Abandon(ctx, ids...)
}

func (tx *Transaction) editable(id dag.ID) (*dag.Commit, error) {
	if id == tx.repo.backend.RootCommitID() {
		return nil, ErrRootCommit
	}
	return tx.requireCommit(id)
}

// rewrite replaces old with c and rebases old's descendants.
func (tx *Transaction) rewrite(ctx context.Context, old, c *dag.Commit) (*dag.Commit, error) {
	c.Predecessors = []dag.ID{old.ID}
	c.Committer = tx.signature()
	written, err := tx.repo.backend.WriteCommit(c)
	if err != nil {
		return nil, err
	}
	if written.ID == old.ID {
		return written, nil
	}
	tx.replace(old.ID, written.ID)
	if err := tx.rebaseDescendants(ctx); err != nil {
		return nil, err
	}
	return written, nil
}

func (tx *Transaction) replace(old, replacement dag.ID) {
	tx.view.Hide(old)
	tx.view.RemoveHead(old)
	tx.view.Unhide(replacement)
	tx.view.AddHead(replacement)
	tx.rewritten[old] = []dag.ID{replacement}
	tx.pending = append(tx.pending, old)
}

// rebased returns a copy of c on new parents. The tree is the 3-way merge
// of c's tree into the new parents' tree, relative to the old parents'.
func (tx *Transaction) rebased(ctx context.Context, c *dag.Commit, parents []dag.ID) (*dag.Commit, error) {
	oldBase, err := tx.parentTree(ctx, c.Parents)
	if err != nil {
		return nil, err
	}
	newBase, err := tx.parentTree(ctx, parents)
	if err != nil {
		return nil, err
	}
	tree, err := merge.Trees(tx.repo.backend, oldBase, newBase, c.Tree)
	if err != nil {
		return nil, fmt.Errorf("rebase %s: %w", c.ID.Short(), err)
	}
	out := c.Clone()
	out.Parents = slices.Clone(parents)
	out.Tree = tree
	return out, nil
}

// MergedTree returns the tree a new commit on parents starts from: the
// parents' trees merged, conflicts included.
func (tx *Transaction) MergedTree(ctx context.Context, parents []dag.ID) (dag.ID, error) {
	if len(parents) == 0 {
		return tx.repo.backend.EmptyTreeID(), nil
	}
	return tx.parentTree(ctx, parents)
}

// parentTree returns the combined tree of parents: the first parent's
// tree, with every further parent merged in relative to its merge base
// with the first.
func (tx *Transaction) parentTree(ctx context.Context, parents []dag.ID) (dag.ID, error) {
	b := tx.repo.backend
	first, err := b.ReadCommit(parents[0])
	if err != nil {
		return dag.ID{}, err
	}
	tree := first.Tree
	for _, p := range parents[1:] {
		other, err := b.ReadCommit(p)
		if err != nil {
			return dag.ID{}, err
		}
		snap, err := tx.repo.index.Update(ctx, []dag.ID{parents[0], p})
		if err != nil {
			return dag.ID{}, err
		}
		bases, err := snap.CommonAncestors([]dag.ID{parents[0]}, []dag.ID{p})
		if err != nil {
			return dag.ID{}, err
		}
		baseTree := b.EmptyTreeID()
		if len(bases) > 0 {
			bc, err := b.ReadCommit(bases[0])
			if err != nil {
				return dag.ID{}, err
			}
			baseTree = bc.Tree
		}
		if tree, err = merge.Trees(b, baseTree, tree, other.Tree); err != nil {
			return dag.ID{}, err
		}
	}
	return tree, nil
}

// newParents maps parents through the rewrites recorded so far.
func (tx *Transaction) newParents(parents []dag.ID) []dag.ID {
	var out []dag.ID
	var walk func(id dag.ID)
	walk = func(id dag.ID) {
		repl, ok := tx.rewritten[id]
		if !ok {
			if !slices.Contains(out, id) {
				out = append(out, id)
			}
			return
		}
		for _, r := range repl {
			walk(r)
		}
	}
	for _, p := range parents {
		walk(p)
	}
	return out
}

// rebaseDescendants rebases the visible descendants of pending rewrites,
// parents first, then moves branches and workspaces off rewritten commits.
func (tx *Transaction) rebaseDescendants(ctx context.Context) error {
	r := tx.repo
	for len(tx.pending) > 0 {
		roots := tx.pending
		tx.pending = nil

		if err := r.normalize(ctx, tx.view); err != nil {
			return err
		}
		view := tx.view.Freeze()
		snap, err := r.index.Update(ctx, append(view.Referenced(), roots...))
		if err != nil {
			return err
		}
		scope := &revset.Scope{Index: snap, View: view, Store: r.backend, Workspace: r.workspace}
		rs, err := revset.Evaluate(ctx, &revset.DescendantsExpr{Of: &revset.CommitsExpr{IDs: roots}}, scope)
		if err != nil {
			return err
		}
		ids, err := rs.IDs()
		if err != nil {
			return err
		}
		slices.Reverse(ids)
		for _, id := range ids {
			if _, done := tx.rewritten[id]; done {
				continue
			}
			c, err := r.backend.ReadCommit(id)
			if err != nil {
				return err
			}
			parents := tx.newParents(c.Parents)
			if slices.Equal(parents, c.Parents) {
				continue
			}
			moved, err := tx.rebased(ctx, c, parents)
			if err != nil {
				return err
			}
			moved.Predecessors = []dag.ID{c.ID}
			written, err := r.backend.WriteCommit(moved)
			if err != nil {
				return err
			}
			tx.view.Hide(c.ID)
			tx.view.RemoveHead(c.ID)
			tx.view.AddHead(written.ID)
			tx.rewritten[c.ID] = []dag.ID{written.ID}
			r.logger.Debug("rebased descendant", "old", c.ID.Short(), "new", written.ID.Short())
		}
	}
	tx.updateRefs()
	return nil
}

// updateRefs moves branch targets and workspaces off rewritten commits.
func (tx *Transaction) updateRefs() {
	for _, name := range tx.view.BranchNames() {
		var targets []dag.ID
		changed := false
		for _, id := range tx.view.BranchTargets(name) {
			if _, ok := tx.rewritten[id]; !ok {
				targets = append(targets, id)
				continue
			}
			changed = true
			if !tx.abandoned[id] {
				targets = append(targets, tx.newParents([]dag.ID{id})...)
			}
		}
		if changed {
			tx.view.SetBranch(name, targets...)
		}
	}
	for _, name := range tx.view.WorkspaceNames() {
		co, _ := tx.view.Workspace(name)
		if _, ok := tx.rewritten[co.Commit]; ok {
			co.Commit = tx.newParents([]dag.ID{co.Commit})[0]
			tx.view.SetWorkspace(name, co)
		}
	}
}
