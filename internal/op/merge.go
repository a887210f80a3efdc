package op

import (
	"maps"
	"slices"

	"github.com/systemshift/weft/internal/dag"
)

// MergeViews combines two views that were both derived from base.
//
// Heads and hidden commits are merged as sets: whatever either side added
// is kept, whatever either side removed is dropped, and a commit that one
// side added as a head is never hidden by the other. A branch or workspace
// changed by only one side takes that side's value. A branch moved by both
// sides to different targets keeps the targets of both. A workspace moved
// by both sides to different commits keeps side1's commit and is flagged
// as conflicted.
//
// The result depends only on the three inputs. Apart from the choice of
// workspace commit, swapping side1 and side2 gives the same view.
func MergeViews(base, side1, side2 *View) *View {
	viewMerges.Inc()
	m := &MutableView{
		heads:      map[dag.ID]struct{}{},
		hidden:     map[dag.ID]struct{}{},
		branches:   map[string][]dag.ID{},
		workspaces: map[string]Checkout{},
	}

	baseHeads := idSet(base.heads)
	heads1, heads2 := idSet(side1.heads), idSet(side2.heads)
	m.heads = mergeSets(baseHeads, heads1, heads2)
	m.hidden = mergeSets(base.hidden, side1.hidden, side2.hidden)
	for id := range m.heads {
		_, wasHead := baseHeads[id]
		if !wasHead {
			delete(m.hidden, id)
		}
	}

	for _, name := range unionKeys(base.branches, side1.branches, side2.branches) {
		targets := mergeTargets(base.branches[name], side1.branches[name], side2.branches[name])
		if len(targets) > 0 {
			m.branches[name] = targets
		}
	}

	for _, name := range unionKeys(base.workspaces, side1.workspaces, side2.workspaces) {
		b, inBase := base.workspaces[name]
		s1, in1 := side1.workspaces[name]
		s2, in2 := side2.workspaces[name]
		same := func(x Checkout, okX bool, y Checkout, okY bool) bool {
			return okX == okY && x.Commit == y.Commit
		}
		switch {
		case same(s1, in1, s2, in2):
			if in1 {
				s1.Conflict = s1.Conflict || s2.Conflict
				m.workspaces[name] = s1
			}
		case same(s1, in1, b, inBase):
			if in2 {
				m.workspaces[name] = s2
			}
		case same(s2, in2, b, inBase):
			if in1 {
				m.workspaces[name] = s1
			}
		default:
			// Both sides changed it differently. A side that still has the
			// workspace wins over one that removed it; otherwise side1.
			divergentWorkspaces.Inc()
			switch {
			case in1:
				s1.Conflict = true
				m.workspaces[name] = s1
			case in2:
				s2.Conflict = true
				m.workspaces[name] = s2
			}
		}
	}
	return m.Freeze()
}

// mergeSets returns base plus everything either side added, minus
// everything either side removed.
func mergeSets(base, side1, side2 map[dag.ID]struct{}) map[dag.ID]struct{} {
	out := map[dag.ID]struct{}{}
	for id := range base {
		_, in1 := side1[id]
		_, in2 := side2[id]
		if in1 && in2 {
			out[id] = struct{}{}
		}
	}
	for _, side := range []map[dag.ID]struct{}{side1, side2} {
		for id := range side {
			if _, inBase := base[id]; !inBase {
				out[id] = struct{}{}
			}
		}
	}
	return out
}

// mergeTargets merges the target sets of one branch. Empty means absent.
func mergeTargets(base, side1, side2 []dag.ID) []dag.ID {
	switch {
	case slices.Equal(side1, side2):
		return side1
	case slices.Equal(side1, base):
		return side2
	case slices.Equal(side2, base):
		return side1
	}
	divergentBranches.Inc()
	merged := mergeSets(idSet(base), idSet(side1), idSet(side2))
	if len(merged) == 0 {
		// Each side dropped what the other kept; keep both.
		merged = idSet(append(slices.Clone(side1), side2...))
	}
	return sortedSet(merged)
}

func idSet(ids []dag.ID) map[dag.ID]struct{} {
	set := make(map[dag.ID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func unionKeys[V any](ms ...map[string]V) []string {
	seen := map[string]struct{}{}
	for _, m := range ms {
		for k := range m {
			seen[k] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}
