package op

import (
	"errors"
	"fmt"

	"github.com/systemshift/weft/internal/dag"
)

// ErrNoHead is returned by a HeadStore that has never been initialized.
var ErrNoHead = fmt.Errorf("operation head: %w", dag.ErrNotFound)

// ErrAmbiguousOperation is returned when an operation id prefix matches
// more than one operation.
var ErrAmbiguousOperation = errors.New("ambiguous operation id prefix")

// CorruptOperationLogError reports a structural problem in the operation
// log: a parent that is missing from the store, or a parent that is not
// older than its child.
type CorruptOperationLogError struct {
	ID     dag.ID
	Reason string
}

func (e *CorruptOperationLogError) Error() string {
	return fmt.Sprintf("corrupt operation log at %s: %s", e.ID, e.Reason)
}
