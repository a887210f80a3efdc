package revset

import (
	"fmt"
	"strings"
)

// Span is a half-open byte range [Start, End) in the parsed input.
type Span struct {
	Start int
	End   int
}

// ParseError reports malformed revset input.
type ParseError struct {
	Message string
	Span    Span
	Input   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("revset parse error at %d: %s", e.Span.Start, e.Message)
}

// Pointer renders the input with a caret line under the offending span.
func (e *ParseError) Pointer() string {
	start := min(max(e.Span.Start, 0), len(e.Input))
	end := min(max(e.Span.End, start+1), len(e.Input)+1)
	return e.Input + "\n" + strings.Repeat(" ", start) + strings.Repeat("^", end-start)
}

// ResolveError reports a symbol that names no branch, commit or change.
type ResolveError struct {
	Symbol string
	Err    error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("revision %q: %v", e.Symbol, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }
