package dag

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a digest, branch, operation or revision
// cannot be found. Callers test for it with errors.Is.
var ErrNotFound = errors.New("not found")

// ErrCorruptObject is returned when stored bytes do not hash to the digest
// they were stored under.
var ErrCorruptObject = errors.New("object content does not match its digest")

// StoreError wraps an I/O failure from a Store implementation.
type StoreError struct {
	Op  string
	ID  ID
	Err error
}

func (e *StoreError) Error() string {
	if e.ID.IsZero() {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.ID.Short(), e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// CorruptGraphError reports a structural problem in the commit graph, such
// as a parent that is missing from the store or a cycle.
type CorruptGraphError struct {
	ID     ID
	Reason string
}

func (e *CorruptGraphError) Error() string {
	return fmt.Sprintf("corrupt commit graph at %s: %s", e.ID, e.Reason)
}

// UnsupportedFormatVersionError is returned when a persisted record carries
// a format version this build does not understand.
type UnsupportedFormatVersionError struct {
	Kind    string
	Version int
}

func (e *UnsupportedFormatVersionError) Error() string {
	return fmt.Sprintf("unsupported %s format version %d (supported: %d)", e.Kind, e.Version, FormatVersion)
}
