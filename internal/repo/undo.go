package repo

import (
	"context"
	"fmt"

	"github.com/systemshift/weft/internal/op"
)

// Undo records an operation that reverses the effect of the named
// operation while keeping everything done since. The result is the 3-way
// merge of the current view with the view before the undone operation,
// relative to the view it produced. Merge operations cannot be undone.
func (r *Repository) Undo(ctx context.Context, name string) (*op.Operation, error) {
	target, err := r.ResolveOperation(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(target.Parents) != 1 {
		if len(target.Parents) == 0 {
			return nil, fmt.Errorf("undo %s: cannot undo repository initialization", target.ID.Short())
		}
		return nil, fmt.Errorf("undo %s: %w", target.ID.Short(), ErrUndoMerge)
	}
	after, err := r.ops.View(target)
	if err != nil {
		return nil, err
	}
	parent, err := r.ops.ReadOperation(target.Parents[0])
	if err != nil {
		return nil, err
	}
	before, err := r.ops.View(parent)
	if err != nil {
		return nil, err
	}

	tx, err := r.Start(ctx, fmt.Sprintf("undo operation %s", target.ID.Short()))
	if err != nil {
		return nil, err
	}
	tx.opType = op.TypeUndo
	tx.SetTag("undone", target.ID.Hex())
	tx.view = op.MergeViews(after, before, tx.baseView).Edit()
	return tx.Commit(ctx)
}

// Restore records an operation whose view is the view of the named
// operation.
func (r *Repository) Restore(ctx context.Context, name string) (*op.Operation, error) {
	target, err := r.ResolveOperation(ctx, name)
	if err != nil {
		return nil, err
	}
	v, err := r.ops.View(target)
	if err != nil {
		return nil, err
	}
	tx, err := r.Start(ctx, fmt.Sprintf("restore to operation %s", target.ID.Short()))
	if err != nil {
		return nil, err
	}
	tx.opType = op.TypeRestore
	tx.SetTag("restored", target.ID.Hex())
	tx.view = v.Edit()
	return tx.Commit(ctx)
}
