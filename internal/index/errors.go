package index

import "fmt"

// AmbiguousPrefixError is returned when an id prefix matches more than one
// commit or change.
type AmbiguousPrefixError struct {
	Prefix string
}

func (e *AmbiguousPrefixError) Error() string {
	return fmt.Sprintf("prefix %q is ambiguous", e.Prefix)
}
