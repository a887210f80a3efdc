package repo

import (
	"context"
	"fmt"
	"maps"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/systemshift/weft/internal/dag"
	"github.com/systemshift/weft/internal/op"
	"github.com/systemshift/weft/internal/revset"
)

// State is where a Transaction is in its life.
type State int

const (
	StateOpen State = iota
	StateCommitting
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateCommitting:
		return "committing"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Transaction batches edits to the view and records them as one
// operation. Edits only touch the transaction's private copy of the view
// (and write immutable commits), so abandoning a transaction leaves the
// repository as it was.
type Transaction struct {
	repo        *Repository
	base        *op.Operation
	baseView    *op.View
	view        *op.MutableView
	description string
	opType      string
	tags        map[string]string
	start       time.Time
	state       State

	// rewritten maps a replaced commit to its replacements. An abandoned
	// commit maps to its parents and is also listed in abandoned.
	rewritten map[dag.ID][]dag.ID
	abandoned map[dag.ID]bool
	pending   []dag.ID
}

// Start opens a transaction on the current head operation.
func (r *Repository) Start(ctx context.Context, description string) (*Transaction, error) {
	base, view, err := r.Head(ctx)
	if err != nil {
		return nil, err
	}
	return &Transaction{
		repo:        r,
		base:        base,
		baseView:    view,
		view:        view.Edit(),
		description: description,
		opType:      op.TypeEdit,
		start:       r.now().UTC(),
		rewritten:   map[dag.ID][]dag.ID{},
		abandoned:   map[dag.ID]bool{},
	}, nil
}

// Base returns the operation the transaction started from.
func (tx *Transaction) Base() *op.Operation { return tx.base }

// BaseView returns the view the transaction started from.
func (tx *Transaction) BaseView() *op.View { return tx.baseView }

// State returns the transaction's state.
func (tx *Transaction) State() State { return tx.state }

// View returns the transaction's edited view so far.
func (tx *Transaction) View() *op.View { return tx.view.Freeze() }

// SetTag records a key/value pair in the operation metadata.
func (tx *Transaction) SetTag(key, value string) {
	if tx.tags == nil {
		tx.tags = map[string]string{}
	}
	tx.tags[key] = value
}

// Abort discards the transaction. Aborting twice is harmless; aborting a
// committed transaction is an error.
func (tx *Transaction) Abort() error {
	switch tx.state {
	case StateAborted:
		return nil
	case StateOpen:
		tx.state = StateAborted
		return nil
	}
	return ErrTransactionClosed
}

func (tx *Transaction) checkOpen() error {
	if tx.state != StateOpen {
		return fmt.Errorf("%w (%s)", ErrTransactionClosed, tx.state)
	}
	return nil
}

// Query evaluates a revset against the transaction's edited view.
func (tx *Transaction) Query(ctx context.Context, input string) (*revset.Revset, error) {
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}
	if err := tx.repo.normalize(ctx, tx.view); err != nil {
		return nil, err
	}
	return tx.repo.Query(ctx, tx.view.Freeze(), input)
}

// Commit records the transaction as a new operation and moves the head to
// it. If another writer moved the head since the transaction started, the
// two views are merged against their common ancestor and a merge operation
// with both as parents is recorded instead. This repeats until the head
// swap succeeds. A failure leaves the head where it was and the
// transaction open, so the caller may retry or abort.
func (tx *Transaction) Commit(ctx context.Context) (result *op.Operation, err error) {
	if err := tx.checkOpen(); err != nil {
		return nil, err
	}
	r := tx.repo
	ctx, span := tracer.Start(ctx, "repo.Transaction.Commit",
		trace.WithAttributes(attribute.String("weft.operation.description", tx.description)),
	)
	defer span.End()
	started := time.Now()
	tx.state = StateCommitting
	defer func() {
		if err != nil {
			span.RecordError(err)
			tx.state = StateOpen
			return
		}
		tx.state = StateCommitted
		commitDuration.Observe(time.Since(started).Seconds())
	}()

	if err := r.normalize(ctx, tx.view); err != nil {
		return nil, err
	}
	mine, err := tx.writeOperation(ctx, tx.view.Freeze(), []dag.ID{tx.base.ID}, tx.opType, tx.description)
	if err != nil {
		return nil, err
	}
	expected := tx.base.ID
	for {
		ok, err := r.heads.CompareAndSwap(ctx, expected, mine.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			transactionsCommitted.WithLabelValues(mine.Metadata.Type).Inc()
			r.logger.Info("committed operation",
				"id", mine.ID.Short(), "description", mine.Metadata.Description, "type", mine.Metadata.Type)
			return mine, nil
		}

		commitRetries.Inc()
		theirsID, err := r.heads.ReadHead(ctx)
		if err != nil {
			return nil, err
		}
		theirs, err := r.ops.ReadOperation(theirsID)
		if err != nil {
			return nil, err
		}
		r.logger.Debug("operation head moved, merging", "mine", mine.ID.Short(), "theirs", theirs.ID.Short())
		if mine, err = tx.mergeWith(ctx, mine, theirs); err != nil {
			return nil, err
		}
		expected = theirs.ID
	}
}

// mergeWith records the merge of mine and theirs.
func (tx *Transaction) mergeWith(ctx context.Context, mine, theirs *op.Operation) (*op.Operation, error) {
	r := tx.repo
	ctx, span := tracer.Start(ctx, "repo.mergeOperations")
	defer span.End()

	lca, err := r.ops.CommonAncestor(ctx, mine.ID, theirs.ID)
	if err != nil {
		return nil, err
	}
	baseView, err := r.ops.View(lca)
	if err != nil {
		return nil, err
	}
	mineView, err := r.ops.View(mine)
	if err != nil {
		return nil, err
	}
	theirsView, err := r.ops.View(theirs)
	if err != nil {
		return nil, err
	}
	merged := op.MergeViews(baseView, mineView, theirsView).Edit()
	if err := r.normalize(ctx, merged); err != nil {
		return nil, err
	}
	o, err := tx.writeOperation(ctx, merged.Freeze(), []dag.ID{mine.ID, theirs.ID}, op.TypeMerge,
		"merge concurrent operations")
	if err != nil {
		return nil, err
	}
	r.logger.Info("merged concurrent operations",
		"base", lca.ID.Short(), "mine", mine.ID.Short(), "theirs", theirs.ID.Short(), "merge", o.ID.Short())
	return o, nil
}

func (tx *Transaction) writeOperation(ctx context.Context, v *op.View, parents []dag.ID, typ, description string) (*op.Operation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := tx.repo
	viewID, err := r.ops.WriteView(v)
	if err != nil {
		return nil, err
	}
	return r.ops.WriteOperation(viewID, parents, op.Metadata{
		Start:       tx.start,
		End:         r.now().UTC(),
		Description: description,
		Hostname:    r.cfg.Hostname(),
		Username:    r.cfg.Username(),
		Type:        typ,
		Tags:        maps.Clone(tx.tags),
	})
}
