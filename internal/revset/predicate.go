package revset

import (
	"errors"
	"fmt"

	"github.com/systemshift/weft/internal/dag"
	"github.com/systemshift/weft/internal/index"
)

var errNoStore = errors.New("revset: predicate needs a commit store")

// predicate returns the test for pred. All predicates dispatch through
// here; merges() is answered from the index alone, the rest read commits.
func (ev *evaluator) predicate(pred Predicate) (func(index.Pos) (bool, error), error) {
	snap := ev.snap
	if pred.Kind == PredMerges {
		return func(p index.Pos) (bool, error) {
			return len(snap.Parents(p)) > 1, nil
		}, nil
	}
	store := ev.scope.Store
	if store == nil {
		return nil, errNoStore
	}
	commit := func(p index.Pos, match func(*dag.Commit) bool) (bool, error) {
		c, err := store.ReadCommit(snap.ID(p))
		if err != nil {
			return false, err
		}
		return match(c), nil
	}
	switch pred.Kind {
	case PredAuthor:
		return func(p index.Pos) (bool, error) {
			return commit(p, func(c *dag.Commit) bool { return matchSignature(pred.Pattern, c.Author) })
		}, nil
	case PredCommitter:
		return func(p index.Pos) (bool, error) {
			return commit(p, func(c *dag.Commit) bool { return matchSignature(pred.Pattern, c.Committer) })
		}, nil
	case PredDescription:
		return func(p index.Pos) (bool, error) {
			return commit(p, func(c *dag.Commit) bool { return pred.Pattern.Match(c.Description) })
		}, nil
	case PredDate:
		return func(p index.Pos) (bool, error) {
			return commit(p, func(c *dag.Commit) bool {
				t := c.Author.Timestamp
				return !t.Before(pred.From) && (pred.To.IsZero() || t.Before(pred.To))
			})
		}, nil
	case PredFile:
		return func(p index.Pos) (bool, error) {
			paths, err := store.ChangedPaths(snap.ID(p))
			if err != nil {
				return false, err
			}
			for _, path := range paths {
				if pred.Path.Match(path) {
					return true, nil
				}
			}
			return false, nil
		}, nil
	case PredConflicts:
		return func(p index.Pos) (bool, error) { return store.HasConflicts(snap.ID(p)) }, nil
	case PredEmpty:
		return func(p index.Pos) (bool, error) { return store.IsEmpty(snap.ID(p)) }, nil
	}
	return nil, fmt.Errorf("revset: unknown predicate %d", int(pred.Kind))
}

func matchSignature(pat StringPattern, sig dag.Signature) bool {
	return pat.Match(sig.Name) || pat.Match(sig.Email)
}
