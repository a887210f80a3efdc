package merge

import (
	"fmt"
	"slices"

	"github.com/systemshift/weft/internal/dag"
)

// Trees performs the 3-way merge of side1 and side2 relative to base and
// writes the result. Paths that cannot be merged are written as Conflict
// entries; the merge itself never fails because of conflicting content.
func Trees(b *dag.Backend, base, side1, side2 dag.ID) (dag.ID, error) {
	return TreesN(b, ThreeWay(base, side1, side2))
}

// TreesN merges an arbitrary merge of trees.
func TreesN(b *dag.Backend, trees Merge[dag.ID]) (dag.ID, error) {
	id, err := mergeTrees(b, trees)
	if err != nil {
		return dag.ID{}, err
	}
	if id.IsZero() {
		return b.EmptyTreeID(), nil
	}
	return id, nil
}

// mergeTrees returns the zero id when the result is empty.
func mergeTrees(b *dag.Backend, trees Merge[dag.ID]) (dag.ID, error) {
	empty := b.EmptyTreeID()
	trees = Map(trees, func(id dag.ID) dag.ID {
		if id == empty {
			return dag.ID{}
		}
		return id
	}).Simplify()
	if id, ok := trees.Resolve(); ok {
		return id, nil
	}

	loaded, err := MapErr(trees, func(id dag.ID) (*dag.Tree, error) { return b.ReadTree(id) })
	if err != nil {
		return dag.ID{}, err
	}
	var names []string
	for _, t := range loaded.terms {
		names = append(names, t.Names()...)
	}
	slices.Sort(names)
	names = slices.Compact(names)

	out := &dag.Tree{}
	for _, name := range names {
		values := Map(loaded, func(t *dag.Tree) dag.TreeValue { return t.Get(name) })
		v, err := mergeValues(b, values)
		if err != nil {
			return dag.ID{}, fmt.Errorf("merge %s: %w", name, err)
		}
		if !v.IsAbsent() {
			out.Entries = append(out.Entries, dag.TreeEntry{Name: name, Value: v})
		}
	}
	if len(out.Entries) == 0 {
		return dag.ID{}, nil
	}
	return b.WriteTree(out)
}

func mergeValues(b *dag.Backend, values Merge[dag.TreeValue]) (dag.TreeValue, error) {
	values = values.Simplify()
	if v, ok := values.Resolve(); ok {
		return v, nil
	}

	values, err := expandConflicts(b, values)
	if err != nil {
		return dag.Absent, err
	}
	if v, ok := values.Resolve(); ok {
		return v, nil
	}

	if allKinds(values, dag.ValueTree, dag.ValueAbsent) {
		ids := Map(values, func(v dag.TreeValue) dag.ID { return v.ID })
		id, err := mergeTrees(b, ids)
		if err != nil {
			return dag.Absent, err
		}
		if id.IsZero() {
			return dag.Absent, nil
		}
		return dag.TreeRef(id), nil
	}

	if v, ok, err := mergeFileValues(b, values); err != nil || ok {
		return v, err
	}

	id, err := b.WriteConflict(&dag.Conflict{Terms: values.Terms()})
	if err != nil {
		return dag.Absent, err
	}
	return dag.ConflictRef(id), nil
}

// expandConflicts replaces every conflict term with its own terms and
// simplifies the flattened result.
func expandConflicts(b *dag.Backend, values Merge[dag.TreeValue]) (Merge[dag.TreeValue], error) {
	if !slices.ContainsFunc(values.terms, func(v dag.TreeValue) bool { return v.Kind == dag.ValueConflict }) {
		return values, nil
	}
	nested := make([]Merge[dag.TreeValue], len(values.terms))
	for i, v := range values.terms {
		if v.Kind != dag.ValueConflict {
			nested[i] = Resolved(v)
			continue
		}
		c, err := b.ReadConflict(v.ID)
		if err != nil {
			return Merge[dag.TreeValue]{}, err
		}
		if nested[i], err = FromTerms(c.Terms); err != nil {
			return Merge[dag.TreeValue]{}, err
		}
	}
	return Flatten(nested).Simplify(), nil
}

// mergeFileValues attempts a line merge when every term is a file with the
// same executable bit.
func mergeFileValues(b *dag.Backend, values Merge[dag.TreeValue]) (dag.TreeValue, bool, error) {
	exec := values.terms[0].Executable
	for _, v := range values.terms {
		if v.Kind != dag.ValueFile || v.Executable != exec {
			return dag.Absent, false, nil
		}
	}
	contents, err := MapErr(values, func(v dag.TreeValue) (string, error) {
		data, err := b.ReadFile(v.ID)
		return string(data), err
	})
	if err != nil {
		return dag.Absent, false, err
	}
	res := Files(toBytes(contents.Removes()), toBytes(contents.Adds()))
	if !res.Resolved {
		return dag.Absent, false, nil
	}
	id, err := b.WriteFile(res.Content)
	if err != nil {
		return dag.Absent, false, err
	}
	return dag.FileValue(id, exec), true, nil
}

func allKinds(values Merge[dag.TreeValue], kinds ...dag.ValueKind) bool {
	for _, v := range values.terms {
		if !slices.Contains(kinds, v.Kind) {
			return false
		}
	}
	return true
}

func toBytes(ss []string) [][]byte {
	out := make([][]byte, len(ss))
	for i, s := range ss {
		out[i] = []byte(s)
	}
	return out
}
