package repo

import (
	"context"
	"fmt"

	"github.com/systemshift/weft/internal/dag"
)

// WorkingCopy materializes commits on a filesystem and snapshots the
// filesystem back into trees. The repository only stores what it returns.
type WorkingCopy interface {
	Checkout(ctx context.Context, commit *dag.Commit) error
	Snapshot(ctx context.Context) (dag.ID, error)
}

// SnapshotWorkingCopy records the working copy's current state in the
// workspace's commit. It returns the rewritten commit, or nil when
// nothing changed.
func (r *Repository) SnapshotWorkingCopy(ctx context.Context, workspace string, wc WorkingCopy) (*dag.Commit, error) {
	tree, err := wc.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot working copy: %w", err)
	}
	tx, err := r.Start(ctx, fmt.Sprintf("snapshot working copy in workspace %q", workspace))
	if err != nil {
		return nil, err
	}
	defer tx.Abort()

	id, ok := tx.view.WorkspaceCommit(workspace)
	if !ok {
		return nil, fmt.Errorf("workspace %q: %w", workspace, dag.ErrNotFound)
	}
	old, err := r.backend.ReadCommit(id)
	if err != nil {
		return nil, err
	}
	if old.Tree == tree {
		return nil, nil
	}
	if _, err := r.backend.ReadTree(tree); err != nil {
		return nil, fmt.Errorf("snapshot tree %s: %w", tree.Short(), err)
	}
	c := old.Clone()
	c.Tree = tree
	written, err := tx.rewrite(ctx, old, c)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return written, nil
}

// CheckoutWorkspace starts a new empty commit on top of target, binds the
// workspace to it and materializes it in the working copy. The previous
// working-copy commit is abandoned when it is an empty, undescribed head
// that target does not build on.
func (r *Repository) CheckoutWorkspace(ctx context.Context, workspace string, target dag.ID, wc WorkingCopy) (*dag.Commit, error) {
	tx, err := r.Start(ctx, fmt.Sprintf("check out %s in workspace %q", target.Short(), workspace))
	if err != nil {
		return nil, err
	}
	defer tx.Abort()

	parent, err := tx.requireCommit(target)
	if err != nil {
		return nil, err
	}
	if prev, ok := tx.view.WorkspaceCommit(workspace); ok {
		discard, err := r.discardable(ctx, tx, prev, target)
		if err != nil {
			return nil, err
		}
		if discard {
			if err := tx.Abandon(ctx, prev); err != nil {
				return nil, err
			}
		}
	}
	c, err := tx.NewCommit(ctx, []dag.ID{parent.ID}, parent.Tree, "")
	if err != nil {
		return nil, err
	}
	if err := tx.SetWorkspaceCommit(workspace, c.ID); err != nil {
		return nil, err
	}
	if _, err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	if err := wc.Checkout(ctx, c); err != nil {
		return nil, fmt.Errorf("check out %s: %w", c.ID.Short(), err)
	}
	return c, nil
}

func (r *Repository) discardable(ctx context.Context, tx *Transaction, prev, target dag.ID) (bool, error) {
	if prev == r.backend.RootCommitID() || !tx.baseView.IsHead(prev) {
		return false, nil
	}
	c, err := r.backend.ReadCommit(prev)
	if err != nil {
		return false, err
	}
	if c.Description != "" {
		return false, nil
	}
	empty, err := r.backend.IsEmpty(prev)
	if err != nil || !empty {
		return false, err
	}
	snap, err := r.index.Update(ctx, []dag.ID{prev, target})
	if err != nil {
		return false, err
	}
	below, err := snap.IsAncestor(prev, target)
	if err != nil {
		return false, err
	}
	return !below, nil
}
