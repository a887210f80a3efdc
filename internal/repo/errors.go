package repo

import "errors"

// ErrTransactionClosed is returned when a transaction is used after it was
// committed or aborted.
var ErrTransactionClosed = errors.New("transaction is closed")

// ErrUndoMerge is returned when asked to undo an operation that does not
// have exactly one parent: a merge of concurrent operations, or the first
// operation of the repository.
var ErrUndoMerge = errors.New("can only undo an operation with exactly one parent")

// ErrRootCommit is returned when an edit would rewrite or abandon the root
// commit.
var ErrRootCommit = errors.New("the root commit cannot be modified")

// ErrNotRepository is returned by Open when no repository exists at the
// given path.
var ErrNotRepository = errors.New("not a weft repository")
